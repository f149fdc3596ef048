package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const (
	appName = "backtestd"
	version = "v1.0.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Deterministic backtesting and validation engine",
		Version: version,
		Long: `backtestd runs single-strategy backtests end-to-end: dataset
ingestion, indicator computation, signal generation, execution simulation,
statistical validation, and content-addressed artifact persistence.

Subcommands either drive the engine directly (run), start the control-plane
server (serve), or talk to a running one (cancel); pin/unpin/gc operate on the
Postgres-backed run registry independent of any running server.`,
	}

	rootCmd.PersistentFlags().String("config", "", "Path to engine config YAML (defaults baked in if omitted)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(pinCmd)
	rootCmd.AddCommand(unpinCmd)
	rootCmd.AddCommand(gcCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func configPath(cmd *cobra.Command) string {
	p, _ := cmd.Flags().GetString("config")
	return p
}
