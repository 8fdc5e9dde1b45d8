package promptctx

import (
	"context"
	"fmt"
	"path"
	"strings"
	"unicode/utf8"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"golang.org/x/sync/errgroup"

	"github.com/CarmenSalvado/ProofMesh-sub001/internal/docstore"
	"github.com/CarmenSalvado/ProofMesh-sub001/internal/edit"
	"github.com/CarmenSalvado/ProofMesh-sub001/internal/logging"
	"github.com/CarmenSalvado/ProofMesh-sub001/internal/textbuf"
)

// TruncationMarker ends every text cut to the item budget.
const TruncationMarker = "…[truncated]"

const (
	DefaultMaxItemChars  = 4000
	DefaultExcerptWindow = 20
	DefaultMaxFiles      = 20

	maxConcurrentLookups = 8
)

// Documents reads workspace files for @path mentions.
type Documents interface {
	Read(path string) (string, error)
	Glob(pattern string) ([]string, error)
}

// Options bounds the assembled context.
type Options struct {
	// MaxItemChars is the rune budget of each resolved item.
	MaxItemChars int
	// ExcerptWindow is the number of lines shown around the selection.
	ExcerptWindow int
	// MaxFiles caps the files one glob mention expands to.
	MaxFiles int
}

// Image is an attachment listed in the image manifest.
type Image struct {
	Name      string `json:"name"`
	MediaType string `json:"mediaType"`
	Size      int    `json:"size"`
}

// Input is everything a context is built from.
type Input struct {
	Instruction string
	FilePath    string
	Buffer      string
	// Selection is the user's selection or cursor, in buffer coordinates.
	Selection *edit.Selection
	// SelectionDismissed omits the selection text while keeping the excerpt.
	SelectionDismissed bool
	Images             []Image
}

// Assembler builds run contexts.
type Assembler struct {
	docs      Documents
	knowledge Knowledge
	opts      Options
}

// New creates an Assembler. docs and knowledge may be nil, in which case the
// matching mentions are left unresolved.
func New(docs Documents, knowledge Knowledge, opts Options) *Assembler {
	if opts.MaxItemChars <= 0 {
		opts.MaxItemChars = DefaultMaxItemChars
	}
	if opts.ExcerptWindow <= 0 {
		opts.ExcerptWindow = DefaultExcerptWindow
	}
	if opts.MaxFiles <= 0 {
		opts.MaxFiles = DefaultMaxFiles
	}
	return &Assembler{docs: docs, knowledge: knowledge, opts: opts}
}

type item struct {
	kind  Kind
	title string
	text  string
}

// Build returns the context for in. The output depends only on the input
// and the referenced content: segments always appear in the order
// selection, blocks, nodes, files, images, document, excerpt, and empty
// segments are left out. Unresolvable mentions are logged and skipped.
func (a *Assembler) Build(ctx context.Context, in Input) (string, error) {
	mentions := ParseMentions(in.Instruction)

	// one slot per mention keeps the output order independent of lookup timing
	slots := make([][]item, len(mentions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentLookups)
	for i, m := range mentions {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			items, err := a.resolve(m, in.FilePath)
			if err != nil {
				logging.Debug().Err(err).Str("mention", m.String()).Msg("mention not resolved")
				return nil
			}
			slots[i] = items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	var blocks, nodes, files []item
	seenFiles := make(map[string]bool)
	for _, items := range slots {
		for _, it := range items {
			switch it.kind {
			case KindBlock:
				blocks = append(blocks, it)
			case KindNode:
				nodes = append(nodes, it)
			case KindFile:
				if seenFiles[it.title] {
					continue
				}
				seenFiles[it.title] = true
				files = append(files, it)
			}
		}
	}

	var segments []string
	add := func(s string) {
		if strings.TrimSpace(s) != "" {
			segments = append(segments, s)
		}
	}

	lines := textbuf.Index(in.Buffer)
	if in.Selection != nil && !in.Selection.IsPoint() && !in.SelectionDismissed {
		if text := a.truncate(selectionText(lines, *in.Selection)); strings.TrimSpace(text) != "" {
			add("## Selection\n" + text)
		}
	}
	add(section("Blocks", blocks))
	add(section("Nodes", nodes))
	add(section("Files", files))
	add(imageManifest(in.Images))
	if in.Buffer != "" {
		add(fmt.Sprintf("## Document: %s\n%s", in.FilePath, in.Buffer))
	}
	if in.Selection != nil {
		add(a.excerpt(lines, *in.Selection))
	}

	return strings.Join(segments, "\n\n"), nil
}

func (a *Assembler) resolve(m Mention, current string) ([]item, error) {
	switch m.Kind {
	case KindNode:
		if a.knowledge == nil {
			return nil, fmt.Errorf("no knowledge base")
		}
		n, ok := a.knowledge.Node(m.Ref)
		if !ok {
			return nil, fmt.Errorf("unknown node %q", m.Ref)
		}
		return []item{{kind: KindNode, title: fmt.Sprintf("%s (node:%s)", n.Title, n.ID), text: a.truncate(n.Content)}}, nil

	case KindBlock:
		if a.knowledge == nil {
			return nil, fmt.Errorf("no knowledge base")
		}
		b, ok := a.knowledge.Block(m.Ref)
		if !ok {
			return nil, fmt.Errorf("unknown block %q", m.Ref)
		}
		return []item{{kind: KindBlock, title: fmt.Sprintf("%s (block:%s)", b.Title, b.ID), text: a.truncate(a.blockText(b))}}, nil

	default:
		if a.docs == nil {
			return nil, fmt.Errorf("no document store")
		}
		paths := []string{m.Ref}
		if docstore.IsPattern(m.Ref) {
			matched, err := a.docs.Glob(m.Ref)
			if err != nil {
				return nil, err
			}
			if len(matched) > a.opts.MaxFiles {
				logging.Debug().Str("pattern", m.Ref).Int("matches", len(matched)).Msg("file mention capped")
				matched = matched[:a.opts.MaxFiles]
			}
			paths = matched
		}
		var items []item
		for _, p := range paths {
			if p == current {
				// the buffer is sent whole anyway
				continue
			}
			text, err := a.docs.Read(p)
			if err != nil {
				return nil, err
			}
			items = append(items, item{kind: KindFile, title: p, text: a.truncate(fileText(p, text))})
		}
		return items, nil
	}
}

func (a *Assembler) blockText(b Block) string {
	var sb strings.Builder
	sb.WriteString(b.Summary)
	for _, id := range b.Nodes {
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		title := id
		if n, ok := a.knowledge.Node(id); ok && n.ID == id {
			title = n.Title
		}
		sb.WriteString("- " + title)
	}
	return sb.String()
}

func fileText(p, text string) string {
	switch strings.ToLower(path.Ext(p)) {
	case ".html", ".htm":
		return convertHTMLToMarkdown(text)
	}
	return text
}

// convertHTMLToMarkdown converts HTML to Markdown, falling back to the raw
// HTML when conversion fails.
func convertHTMLToMarkdown(html string) string {
	converter := md.NewConverter("", true, &md.Options{
		HeadingStyle:     "atx",
		HorizontalRule:   "---",
		BulletListMarker: "-",
		CodeBlockStyle:   "fenced",
		EmDelimiter:      "*",
	})
	converter.Remove("script", "style", "meta", "link")

	markdown, err := converter.ConvertString(html)
	if err != nil {
		logging.Debug().Err(err).Msg("html conversion failed")
		return html
	}
	return markdown
}

// truncate cuts s to the item budget in runes.
func (a *Assembler) truncate(s string) string {
	if utf8.RuneCountInString(s) <= a.opts.MaxItemChars {
		return s
	}
	runes := []rune(s)
	return string(runes[:a.opts.MaxItemChars]) + TruncationMarker
}

func section(name string, items []item) string {
	if len(items) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("## " + name)
	for _, it := range items {
		sb.WriteString("\n### " + it.title)
		if it.text != "" {
			sb.WriteString("\n" + strings.TrimRight(it.text, "\n"))
		}
	}
	return sb.String()
}

func imageManifest(images []Image) string {
	if len(images) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("## Images")
	for _, img := range images {
		fmt.Fprintf(&sb, "\n- %s (%s, %d bytes)", img.Name, img.MediaType, img.Size)
	}
	return sb.String()
}

func selectionText(lines *textbuf.Lines, sel edit.Selection) string {
	start := lines.Offset(textbuf.Pos{Line: sel.StartLine, Column: sel.StartColumn})
	end := lines.Offset(textbuf.Pos{Line: sel.EndLine, Column: sel.EndColumn})
	if end < start {
		start, end = end, start
	}
	return lines.Text()[start:end]
}

// excerpt returns the selected lines plus ExcerptWindow lines either side,
// numbered.
func (a *Assembler) excerpt(lines *textbuf.Lines, sel edit.Selection) string {
	first, last := sel.StartLine, sel.EndLine
	if last < first {
		first, last = last, first
	}
	first -= a.opts.ExcerptWindow
	last += a.opts.ExcerptWindow
	if first < 1 {
		first = 1
	}
	if last > lines.Count() {
		last = lines.Count()
	}
	body := lines.Slice(first, last)
	if len(body) == 0 {
		return ""
	}

	width := len(fmt.Sprint(last))
	var sb strings.Builder
	fmt.Fprintf(&sb, "## Excerpt (lines %d-%d)", first, last)
	for i, line := range body {
		fmt.Fprintf(&sb, "\n%*d | %s", width, first+i, line)
	}
	return sb.String()
}
