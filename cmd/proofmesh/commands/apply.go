package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/CarmenSalvado/ProofMesh-sub001/internal/event"
	"github.com/CarmenSalvado/ProofMesh-sub001/internal/review"
	"github.com/CarmenSalvado/ProofMesh-sub001/internal/session"
)

var (
	applyReplay  string
	applyAccept  bool
	applyJSON    bool
	applyNoColor bool
	applyTier    string
)

var applyCmd = &cobra.Command{
	Use:   "apply <file> <instruction...>",
	Short: "Run one instruction against a file and show the proposed changes",
	Long: `Run one instruction against a workspace file, print the streamed
narration and a diff of every proposed change.

Without --accept the file on disk is left untouched.

Examples:
  proofmesh apply main.tex "tighten the proof of @node:lemma-2"
  proofmesh apply --replay run.ndjson --accept main.tex "fix typos"`,
	Args: cobra.MinimumNArgs(2),
	RunE: runApply,
}

func init() {
	applyCmd.Flags().StringVar(&applyReplay, "replay", "", "Serve the run from a recorded NDJSON stream")
	applyCmd.Flags().BoolVar(&applyAccept, "accept", false, "Accept every change and save the file")
	applyCmd.Flags().BoolVar(&applyJSON, "json", false, "Print the proposed changes as JSON")
	applyCmd.Flags().BoolVar(&applyNoColor, "no-color", false, "Disable colored output")
	applyCmd.Flags().StringVar(&applyTier, "tier", "", "Model tier for this run")
}

func runApply(cmd *cobra.Command, args []string) error {
	appConfig, err := loadConfig(true)
	if err != nil {
		return err
	}
	appConfig.Autosave.Disabled = true

	eng, err := newEngine(appConfig, applyReplay, !applyAccept)
	if err != nil {
		return err
	}
	defer eng.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	defer eng.coordinator.Shutdown(context.Background())

	p := newPrinter(cmd.OutOrStdout(), applyNoColor, applyJSON)
	unsub := eng.bus.Subscribe(event.RunThought, func(e event.Event) {
		if data, ok := e.Data.(event.RunThoughtData); ok {
			p.thought(data.Text)
		}
	})
	defer unsub()

	path := args[0]
	if _, err := eng.coordinator.Open(ctx, path); err != nil {
		return err
	}

	run, err := eng.coordinator.Run(ctx, path, session.Instruction{
		Prompt:    strings.Join(args[1:], " "),
		ModelTier: applyTier,
	})
	if err != nil {
		return err
	}
	for _, step := range run.Steps {
		p.comment(step)
	}

	changes, err := eng.coordinator.Pending(path)
	if err != nil {
		return err
	}
	if err := p.changes(changes); err != nil {
		return err
	}
	p.summary(run.Summary, len(changes))

	if !applyAccept || len(changes) == 0 {
		return nil
	}
	if _, err := eng.coordinator.AcceptAll(path); err != nil {
		return err
	}
	if err := eng.coordinator.Save(path); err != nil {
		return err
	}
	p.info(fmt.Sprintf("Accepted %d change(s), saved %s", len(changes), path))
	return nil
}

// printer renders run output for the terminal.
type printer struct {
	w    io.Writer
	json bool
}

func newPrinter(w io.Writer, noColor, asJSON bool) *printer {
	if noColor || asJSON {
		color.NoColor = true
	}
	return &printer{w: w, json: asJSON}
}

func (p *printer) thought(text string) {
	if p.json {
		return
	}
	fmt.Fprintln(p.w, color.New(color.FgHiBlack).Sprintf("… %s", text))
}

func (p *printer) comment(text string) {
	if p.json {
		return
	}
	fmt.Fprintf(p.w, "%s %s\n", color.New(color.FgGreen, color.Bold).Sprint("assistant ›"), text)
}

func (p *printer) info(text string) {
	if p.json {
		return
	}
	fmt.Fprintln(p.w, color.New(color.FgCyan).Sprint(text))
}

func (p *printer) changes(changes []review.Change) error {
	if p.json {
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return enc.Encode(changes)
	}
	for _, ch := range changes {
		header := fmt.Sprintf("@@ %s lines %d-%d (+%d -%d)", ch.FilePath, ch.Range.Start.Line, ch.Range.End.Line, ch.AddedLines, ch.RemovedLines)
		if ch.Fallback {
			header += " [full rewrite]"
		}
		fmt.Fprintln(p.w, color.New(color.FgCyan, color.Bold).Sprint(header))
		fmt.Fprint(p.w, renderDiff(ch.Diff))
	}
	return nil
}

func (p *printer) summary(text string, n int) {
	if p.json {
		return
	}
	if text == "" {
		text = "No summary"
	}
	fmt.Fprintf(p.w, "%s %s (%d change(s) pending)\n", color.New(color.Bold).Sprint("summary ›"), text, n)
}

// renderDiff colors the lines of a patch preview.
func renderDiff(diff string) string {
	if diff == "" {
		return ""
	}
	add := color.New(color.FgGreen)
	del := color.New(color.FgRed)
	hunk := color.New(color.FgHiBlack)

	var sb strings.Builder
	for _, line := range strings.SplitAfter(diff, "\n") {
		if line == "" {
			continue
		}
		switch {
		case strings.HasPrefix(line, "@@"):
			sb.WriteString(hunk.Sprint(line))
		case strings.HasPrefix(line, "+"):
			sb.WriteString(add.Sprint(line))
		case strings.HasPrefix(line, "-"):
			sb.WriteString(del.Sprint(line))
		default:
			sb.WriteString(line)
		}
	}
	if !strings.HasSuffix(diff, "\n") {
		sb.WriteString("\n")
	}
	return sb.String()
}
