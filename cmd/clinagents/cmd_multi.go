package main

import (
	"github.com/spf13/cobra"

	"github.com/hupe1980/clinagents"
)

var multiFlags struct {
	runFlags
	info           string
	interpretation string
	diagnosis      string
}

var multiCmd = &cobra.Command{
	Use:   "multi",
	Short: "Run the gatherer, interpreter and diagnostician agents over a dataset split",
	RunE:  runMulti,
}

func init() {
	multiFlags.register(multiCmd)

	f := multiCmd.Flags()
	f.StringVar(&multiFlags.info, "info", "", "Platform of the information gatherer (required)")
	f.StringVar(&multiFlags.interpretation, "interpretation", "", "Platform of the lab interpreter (optional)")
	f.StringVar(&multiFlags.diagnosis, "diagnosis", "", "Platform of the diagnostician (required)")

	_ = multiCmd.MarkFlagRequired("info")
	_ = multiCmd.MarkFlagRequired("diagnosis")
}

func runMulti(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if multiFlags.concurrency > 0 {
		cfg.Runtime.Concurrency = multiFlags.concurrency
	}
	if multiFlags.maxTurns > 0 {
		cfg.Runtime.MaxTurns = multiFlags.maxTurns
	}

	h, closer, err := newHarness(cmd, cfg, multiFlags.logDir)
	if err != nil {
		return err
	}
	defer closer.Close()

	res, err := h.RunMulti(cmd.Context(), clinagents.MultiRun{
		Run:            multiFlags.run(),
		Info:           multiFlags.info,
		Interpretation: multiFlags.interpretation,
		Diagnosis:      multiFlags.diagnosis,
	})

	return finishRun(cmd, res, err, multiFlags.format)
}
