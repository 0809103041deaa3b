// clinagents runs LLM agents through simulated clinical cases and scores
// their diagnoses.
//
// Usage:
//
//	clinagents single   --model=<platform> [--matcher=<platform>] [--split=test] [--log-file]
//	clinagents multi    --info=<platform> [--interpretation=<platform>] --diagnosis=<platform> [--matcher=<platform>]
//	clinagents evaluate --log-dir=<dir> [--matcher=<platform>] [--db=<path>] [--csv=<path>]
//
// The process exits non-zero only when the run cannot start (bad
// configuration, missing dataset, unknown platform). Failed cases are
// recorded in their transcripts.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hupe1980/clinagents/core"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "clinagents",
	Short: "Clinical decision-making benchmark for LLM agents",
	Long: "clinagents plays LLM agents through abdominal-pathology patient cases,\n" +
		"lets them request examinations, labs and imaging, and scores their final\n" +
		"diagnoses and treatments against the ground truth.",
	SilenceUsage: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&rootFlags.configPath, "config", "", "YAML configuration file (defaults to the built-in platforms)")
	f.StringVar(&rootFlags.logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")
	f.StringVar(&rootFlags.logFormat, "log-format", "", "Log format: text or json (overrides config)")
	f.BoolVar(&rootFlags.logFile, "log-file", false, "Also write logs to <log-dir>/run.log")

	rootCmd.AddCommand(singleCmd)
	rootCmd.AddCommand(multiCmd)
	rootCmd.AddCommand(evaluateCmd)
	rootCmd.Version = version
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	if errors.Is(err, core.ErrSetupFault) {
		return 2
	}
	return 1
}
