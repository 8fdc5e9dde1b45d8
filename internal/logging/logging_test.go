package logging_test

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/CarmenSalvado/ProofMesh-sub001/internal/edit"
	"github.com/CarmenSalvado/ProofMesh-sub001/internal/logging"
	"github.com/CarmenSalvado/ProofMesh-sub001/internal/review"
	"github.com/CarmenSalvado/ProofMesh-sub001/internal/textbuf"
)

// capture points the global logger at a buffer for the duration of the test.
func capture(t *testing.T, level logging.Level) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	logging.Init(logging.Config{Level: level, Output: &buf})
	t.Cleanup(func() { logging.Init(logging.DefaultConfig()) })
	return &buf
}

// entries decodes every JSON line written to buf.
func entries(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	sc := bufio.NewScanner(bytes.NewReader(buf.Bytes()))
	for sc.Scan() {
		var m map[string]any
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			t.Fatalf("log line is not JSON: %q: %v", sc.Text(), err)
		}
		out = append(out, m)
	}
	return out
}

func find(logs []map[string]any, component, msg string) map[string]any {
	for _, m := range logs {
		if m["component"] == component && m["message"] == msg {
			return m
		}
	}
	return nil
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected logging.Level
	}{
		{"debug", logging.DebugLevel},
		{"  INFO ", logging.InfoLevel},
		{"warning", logging.WarnLevel},
		{"ERROR", logging.ErrorLevel},
		{"", logging.InfoLevel},
		{"verbose", logging.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := logging.ParseLevel(tt.input); got != tt.expected {
				t.Errorf("ParseLevel(%q) = %v, expected %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestComponent_TagsEngineLoggers(t *testing.T) {
	buf := capture(t, logging.InfoLevel)

	for _, name := range []string{logging.ComponentLedger, logging.ComponentApplier, logging.ComponentCoordinator} {
		logging.Component(name).Info().Str("run", "run_1").Msg("tagged")
	}

	logs := entries(t, buf)
	if len(logs) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(logs))
	}
	for i, name := range []string{"ledger", "applier", "coordinator"} {
		if logs[i]["component"] != name {
			t.Errorf("entry %d: expected component %q, got %v", i, name, logs[i]["component"])
		}
		if logs[i]["run"] != "run_1" {
			t.Errorf("entry %d: run field lost", i)
		}
	}
}

func TestComponent_FollowsReinit(t *testing.T) {
	buf := capture(t, logging.ErrorLevel)
	logging.Component(logging.ComponentCoordinator).Info().Msg("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info written at error level: %s", buf.String())
	}

	logging.Init(logging.Config{Level: logging.DebugLevel, Output: buf})
	logging.Component(logging.ComponentCoordinator).Debug().Msg("shown")
	if find(entries(t, buf), "coordinator", "shown") == nil {
		t.Errorf("component logger did not pick up the new level: %s", buf.String())
	}
}

func TestNormalize_WarnsOnEditOutsideSelection(t *testing.T) {
	buf := capture(t, logging.WarnLevel)

	sel := &edit.Selection{StartLine: 2, StartColumn: 1, EndLine: 3, EndColumn: 1}
	kept, dropped := edit.Normalize([]edit.Edit{
		{Start: edit.Point{Line: 5, Column: 1}, End: edit.Point{Line: 5, Column: 4}, Text: "far"},
		{Start: edit.Point{Line: 2, Column: 1}, End: edit.Point{Line: 2, Column: 3}, Text: "in"},
	}, sel)
	if len(kept) != 1 || len(dropped) != 1 {
		t.Fatalf("expected one kept and one dropped edit, got %d/%d", len(kept), len(dropped))
	}

	m := find(entries(t, buf), logging.ComponentNormalizer, "edit outside selection dropped")
	if m == nil {
		t.Fatalf("no normalizer warning in %s", buf.String())
	}
	if m["level"] != "warn" {
		t.Errorf("expected warn level, got %v", m["level"])
	}
	if m["selectionStart"] == nil || m["edit"] == nil {
		t.Errorf("warning lacks edit context: %v", m)
	}
}

func TestLedger_LogsThroughComponents(t *testing.T) {
	buf := capture(t, logging.DebugLevel)

	ledger := review.NewLedger(nil)
	if err := ledger.Open("main.tex", textbuf.NewBuffer("a\nb\n")); err != nil {
		t.Fatal(err)
	}
	if _, err := ledger.BeginRun(review.RunSpec{ID: "run_1", FilePath: "main.tex"}); err != nil {
		t.Fatal(err)
	}
	changes, err := ledger.Apply(review.Batch{RunID: "run_1", Edits: []edit.Edit{
		{Start: edit.Point{Line: 2, Column: 1}, End: edit.Point{Line: 2, Column: 1}, Text: "c\n"},
	}})
	if err != nil || len(changes) != 1 {
		t.Fatalf("apply: %v, %d changes", err, len(changes))
	}
	ledger.EndRun("run_1")
	if _, err := ledger.Reject(changes[0].ID); err != nil {
		t.Fatal(err)
	}

	logs := entries(t, buf)
	if find(logs, logging.ComponentApplier, "snapshot captured") == nil {
		t.Errorf("applier did not log the snapshot")
	}
	if find(logs, logging.ComponentLedger, "change resolved") == nil {
		t.Errorf("ledger did not log the resolution")
	}
	m := find(logs, logging.ComponentLedger, "run reviewed")
	if m == nil {
		t.Fatalf("ledger did not log the run verdict")
	}
	if m["outcome"] != "rejected" {
		t.Errorf("expected rejected outcome, got %v", m["outcome"])
	}
}

func TestLogToFile(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer
	logging.Init(logging.Config{Level: logging.InfoLevel, Output: &console, LogToFile: true, LogDir: dir})
	t.Cleanup(func() { logging.Init(logging.DefaultConfig()) })

	path := logging.LogFilePath()
	if path == "" {
		t.Fatal("expected a log file")
	}
	if filepath.Dir(path) != dir || !strings.HasPrefix(filepath.Base(path), "proofmesh-") {
		t.Errorf("unexpected log file %s", path)
	}

	logging.Component(logging.ComponentCoordinator).Info().Str("file", "main.tex").Msg("document opened")
	logging.Close()

	if got := logging.LogFilePath(); got != "" {
		t.Errorf("expected no log file after Close, got %s", got)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"component":"coordinator"`) {
		t.Errorf("file is missing the entry: %s", data)
	}
	if !strings.Contains(console.String(), "document opened") {
		t.Errorf("console is missing the entry")
	}

	logging.Info().Msg("after close")
	if !strings.Contains(console.String(), "after close") {
		t.Errorf("console output stopped after Close")
	}
}
