package main

import (
	"github.com/spf13/cobra"

	"github.com/hupe1980/clinagents"
)

var singleFlags struct {
	runFlags
	model string
}

var singleCmd = &cobra.Command{
	Use:   "single",
	Short: "Run one clinician agent over a dataset split",
	RunE:  runSingle,
}

func init() {
	singleFlags.register(singleCmd)
	singleCmd.Flags().StringVar(&singleFlags.model, "model", "", "Platform of the clinician agent (required)")
	_ = singleCmd.MarkFlagRequired("model")
}

func runSingle(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if singleFlags.concurrency > 0 {
		cfg.Runtime.Concurrency = singleFlags.concurrency
	}
	if singleFlags.maxTurns > 0 {
		cfg.Runtime.MaxTurns = singleFlags.maxTurns
	}

	h, closer, err := newHarness(cmd, cfg, singleFlags.logDir)
	if err != nil {
		return err
	}
	defer closer.Close()

	res, err := h.RunSingle(cmd.Context(), clinagents.SingleRun{
		Run:   singleFlags.run(),
		Model: singleFlags.model,
	})

	return finishRun(cmd, res, err, singleFlags.format)
}
