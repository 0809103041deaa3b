// Package report renders run results and evaluation summaries as terminal
// or Markdown tables.
package report

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/hupe1980/clinagents/core"
	"github.com/hupe1980/clinagents/evaluation"
)

// Format selects the table rendering.
type Format int

const (
	ASCII    Format = iota // box-drawing terminal tables
	Markdown               // GitHub-flavoured Markdown tables
)

// ParseFormat maps "ascii"/"text" and "markdown"/"md" onto a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "ascii", "text":
		return ASCII, nil
	case "markdown", "md":
		return Markdown, nil
	default:
		return ASCII, fmt.Errorf("unknown report format %q", s)
	}
}

func newWriter(title string) table.Writer {
	w := table.NewWriter()
	w.SetStyle(table.StyleLight)
	if title != "" {
		w.SetTitle(title)
	}
	return w
}

func render(w table.Writer, f Format) string {
	if f == Markdown {
		return w.RenderMarkdown()
	}
	return w.Render()
}

// Summary writes the metrics of an evaluation summary followed by the
// per-pathology accuracies.
func Summary(out io.Writer, s evaluation.Summary, f Format) error {
	w := newWriter("Evaluation summary")
	w.AppendHeader(table.Row{"Metric", "Value"})
	w.SetColumnConfigs([]table.ColumnConfig{{Number: 2, Align: text.AlignRight}})

	w.AppendRows([]table.Row{
		{"Experiment", s.Experiment},
		{"Cases", s.Cases},
		{"Diagnosed", s.Terminations[core.TerminationDiagnosed]},
		{"Max turns exceeded", s.Terminations[core.TerminationMaxTurnsExceeded]},
		{"Agent failure", s.Terminations[core.TerminationAgentFailure]},
		{"Indeterminate", s.Indeterminate},
	})
	w.AppendSeparator()
	w.AppendRows([]table.Row{
		{"Diagnosis accuracy", Percent(s.DiagnosisAccuracy)},
		{"Macro accuracy", Percent(s.MacroAccuracy)},
		{"Top-1 / Top-3 / Top-5", fmt.Sprintf("%s / %s / %s", Percent(s.Top1), Percent(s.Top3), Percent(s.Top5))},
		{"Treatment match", Percent(s.TreatmentMatchRate)},
		{"Treatment adherence", Percent(s.TreatmentAdherence)},
	})
	w.AppendSeparator()
	w.AppendRows([]table.Row{
		{"Mean turns", fmt.Sprintf("%.2f", s.MeanTurns)},
		{"Mean requests", fmt.Sprintf("%.2f", s.MeanRequests)},
		{"Mean unnecessary requests", fmt.Sprintf("%.2f", s.MeanUnnecessary)},
		{"Mean protocol violations", fmt.Sprintf("%.2f", s.MeanViolations)},
		{"Physical exam first", Percent(s.PhysicalExamFirstRate)},
		{"Guideline coverage", Percent(s.MeanCoverage)},
		{"Lab interpretation accuracy", Percent(s.InterpretationAccuracy)},
	})
	w.AppendSeparator()
	w.AppendRows([]table.Row{
		{"Mean tokens", Tokens(int(s.MeanTokens))},
		{"Mean latency", Duration(s.MeanLatency)},
		{"Mean cost", USD(s.MeanUSD)},
		{"Total cost", USD(s.TotalUSD)},
		{"Matcher cost", USD(s.MatcherUSD)},
		{"Mean lab fees", USD(s.MeanLabFees)},
	})
	if s.Comparator != "" {
		w.AppendFooter(table.Row{"Comparator", s.Comparator})
	}

	if _, err := fmt.Fprintln(out, render(w, f)); err != nil {
		return err
	}

	if len(s.PerPathology) == 0 {
		return nil
	}

	p := newWriter("")
	p.AppendHeader(table.Row{"Pathology", "Cases", "Correct", "Accuracy"})
	p.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
	})

	keys := make([]string, 0, len(s.PerPathology))
	for k := range s.PerPathology {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, k := range keys {
		ps := s.PerPathology[k]
		p.AppendRow(table.Row{k, ps.Cases, ps.Matches, Percent(ps.Accuracy)})
	}

	_, err := fmt.Fprintln(out, render(p, f))
	return err
}

// Records writes one row per score record.
func Records(out io.Writer, records []evaluation.ScoreRecord, f Format) error {
	w := newWriter("")
	w.AppendHeader(table.Row{"Case", "Pathology", "Termination", "Diagnosis", "Match", "Rank", "Turns", "Tokens", "Cost"})
	w.SetColumnConfigs([]table.ColumnConfig{{Number: 4, WidthMax: 40}})

	for _, r := range records {
		match := Mark(r.DiagnosisMatch)
		if r.Indeterminate {
			match = "?"
		}
		w.AppendRow(table.Row{
			r.CaseID,
			r.Pathology,
			r.Termination,
			Truncate(r.Diagnosis, 40),
			match,
			r.RankedHit,
			r.Process.Turns,
			Tokens(r.Cost.Tokens()),
			USD(r.Cost.USD),
		})
	}

	_, err := fmt.Fprintln(out, render(w, f))
	return err
}

// Run writes the termination counts of a finished batch.
func Run(out io.Writer, runID string, counts map[core.Termination]int, d time.Duration, f Format) error {
	w := newWriter("Run " + runID)
	w.AppendHeader(table.Row{"Termination", "Cases"})

	total := 0
	for _, t := range core.Terminations {
		w.AppendRow(table.Row{t, counts[t]})
		total += counts[t]
	}
	w.AppendFooter(table.Row{"Total " + Duration(d), total})

	_, err := fmt.Fprintln(out, render(w, f))
	return err
}
