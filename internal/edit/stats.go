package edit

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// LineStats computes the number of added and removed lines when removed is
// replaced by inserted, and a patch-formatted preview of the change.
func LineStats(removed, inserted string) (added, deleted int, preview string) {
	if removed == inserted {
		return 0, 0, ""
	}

	dmp := diffmatchpatch.New()
	a, b, lineArray := dmp.DiffLinesToChars(removed, inserted)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			added += countLines(d.Text)
		case diffmatchpatch.DiffDelete:
			deleted += countLines(d.Text)
		}
	}

	patches := dmp.PatchMake(removed, diffs)
	return added, deleted, dmp.PatchToText(patches)
}

func countLines(text string) int {
	if text == "" {
		return 0
	}
	lines := strings.Count(text, "\n")
	if !strings.HasSuffix(text, "\n") {
		lines++
	}
	return lines
}
