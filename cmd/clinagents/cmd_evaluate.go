package main

import (
	"github.com/spf13/cobra"

	"github.com/hupe1980/clinagents"
	"github.com/hupe1980/clinagents/report"
)

var evaluateFlags struct {
	logDir     string
	experiment string
	matcher    string
	static     bool
	db         string
	csv        string
	format     string
	records    bool
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Score the transcripts of one experiment",
	RunE:  runEvaluate,
}

func init() {
	f := evaluateCmd.Flags()
	f.StringVar(&evaluateFlags.logDir, "log-dir", "", "Directory holding the experiment's transcripts (required)")
	f.StringVar(&evaluateFlags.experiment, "experiment", "", "Experiment name (defaults to the one in the transcripts)")
	f.StringVar(&evaluateFlags.matcher, "matcher", "", "Platform of the model comparator")
	f.BoolVar(&evaluateFlags.static, "static", false, "Use the static catalog comparator even if --matcher is set")
	f.StringVar(&evaluateFlags.db, "db", "", "SQLite database receiving the scores")
	f.StringVar(&evaluateFlags.csv, "csv", "", "CSV file receiving one row per case")
	f.StringVar(&evaluateFlags.format, "format", "ascii", "Table format: ascii or markdown")
	f.BoolVar(&evaluateFlags.records, "records", false, "Also print one row per case")

	_ = evaluateCmd.MarkFlagRequired("log-dir")
}

func runEvaluate(cmd *cobra.Command, _ []string) error {
	format, err := report.ParseFormat(evaluateFlags.format)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	h, closer, err := newHarness(cmd, cfg, evaluateFlags.logDir)
	if err != nil {
		return err
	}
	defer closer.Close()

	matcherPlatform := evaluateFlags.matcher
	if evaluateFlags.static {
		matcherPlatform = ""
	}

	records, sum, err := h.Evaluate(cmd.Context(), clinagents.EvaluateRun{
		LogDir:     evaluateFlags.logDir,
		Experiment: evaluateFlags.experiment,
		Matcher:    matcherPlatform,
		DBPath:     evaluateFlags.db,
		CSVPath:    evaluateFlags.csv,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()

	if evaluateFlags.records {
		if err := report.Records(out, records, format); err != nil {
			return err
		}
	}

	return report.Summary(out, sum, format)
}
