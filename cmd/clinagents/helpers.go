package main

import (
	"context"
	"errors"
	"io"

	"github.com/spf13/cobra"

	"github.com/hupe1980/clinagents"
	"github.com/hupe1980/clinagents/config"
	"github.com/hupe1980/clinagents/core"
	"github.com/hupe1980/clinagents/logging"
	"github.com/hupe1980/clinagents/report"
	"github.com/hupe1980/clinagents/runner"
)

var rootFlags struct {
	configPath string
	logLevel   string
	logFormat  string
	logFile    bool
}

// clientFactory overrides the platform client factory. Tests use it to run
// commands against scripted models.
var clientFactory clinagents.ClientFactory

// runFlags are shared by single and multi.
type runFlags struct {
	matcher     string
	split       string
	cases       []string
	experiment  string
	logDir      string
	concurrency int
	maxTurns    int
	metricsFile string
	format      string
}

func (r *runFlags) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&r.matcher, "matcher", "", "Platform used to select labs and imaging (selector: model)")
	f.StringVar(&r.split, "split", "test", "Dataset split: train, val or test")
	f.StringSliceVar(&r.cases, "cases", nil, "Restrict the run to these case ids")
	f.StringVar(&r.experiment, "experiment", "", "Experiment name (defaults to the platform names)")
	f.StringVar(&r.logDir, "log-dir", "", "Transcript directory (overrides config)")
	f.IntVar(&r.concurrency, "concurrency", 0, "Cases in flight (overrides config)")
	f.IntVar(&r.maxTurns, "max-turns", 0, "Turn budget per case (overrides config)")
	f.StringVar(&r.metricsFile, "metrics-file", "", "Write Prometheus metrics to this textfile after the run")
	f.StringVar(&r.format, "format", "ascii", "Result table format: ascii or markdown")
}

func (r *runFlags) run() clinagents.Run {
	return clinagents.Run{
		Experiment:  r.experiment,
		Split:       r.split,
		CaseIDs:     r.cases,
		Matcher:     r.matcher,
		LogDir:      r.logDir,
		MetricsFile: r.metricsFile,
	}
}

// loadConfig reads --config (or the defaults) and applies flag overrides.
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if rootFlags.configPath != "" {
		loaded, err := config.Load(rootFlags.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if rootFlags.logLevel != "" {
		if _, err := logging.ParseLevel(rootFlags.logLevel); err != nil {
			return nil, &core.SetupFault{Component: "flags", Problems: []string{err.Error()}}
		}
		cfg.Logging.Level = rootFlags.logLevel
	}
	if rootFlags.logFormat != "" {
		cfg.Logging.Format = rootFlags.logFormat
	}
	if rootFlags.logFile {
		cfg.Logging.ToFile = true
	}

	return cfg, nil
}

// newHarness builds the harness and its logger. The returned closer releases
// the log file, if any.
func newHarness(cmd *cobra.Command, cfg *config.Config, logDir string) (*clinagents.Harness, io.Closer, error) {
	var (
		out    io.Writer = cmd.ErrOrStderr()
		closer io.Closer = nopCloser{}
	)

	if cfg.Logging.ToFile {
		if logDir == "" {
			logDir = cfg.Paths.LogDir
		}
		w, c, err := logging.OpenRunLog(logDir, out)
		if err != nil {
			return nil, nil, core.NewSetupFault("logging", err)
		}
		out, closer = w, c
	}

	logger := logging.NewLogger(cfg.LoggerConfig(out))

	h := clinagents.New(func(o *clinagents.Options) {
		o.Config = cfg
		o.Logger = logger
		if clientFactory != nil {
			o.NewClient = clientFactory
		}
	})

	return h, closer, nil
}

// finishRun prints the result table. Only setup faults fail the command;
// sink errors are reported and the run still counts as complete.
func finishRun(cmd *cobra.Command, res runner.Result, err error, format string) error {
	if err != nil {
		if errors.Is(err, core.ErrSetupFault) || errors.Is(err, context.Canceled) {
			return err
		}
		cmd.PrintErrln("warning:", err)
	}

	f, ferr := report.ParseFormat(format)
	if ferr != nil {
		return ferr
	}

	return report.Run(cmd.OutOrStdout(), res.RunID, res.Counts, res.Duration, f)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
