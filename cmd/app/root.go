package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	cfgpkg "github.com/local/partkit/internal/config"
	logpkg "github.com/local/partkit/internal/logger"
)

var cfg cfgpkg.Config

var rootCmd = &cobra.Command{
	Use:   "partkit",
	Short: "Split band scores into per-instrument part PDFs",
	Long: `partkit loads a combined score PDF, proposes one segment per instrument
part, lets you merge, split and rename segments, and exports each part as
its own PDF (singly, as a batch, or as one zip).

Companion tools:
  - combine: put pairs of pages side by side, two per sheet
  - assemble: concatenate parts, each repeated a chosen number of times`,
	Version:      GitRelease,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()
		cfg = cfgpkg.FromEnv()

		opts := logpkg.OptionsFromConfig(cfg)
		if cmd.Name() != "serve" {
			// Results go to stdout; keep logs off it.
			opts.Console = os.Stderr
			opts.SendToAxiom = false
		}
		return logpkg.Init(opts)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logpkg.Close()
	},
}

func init() {
	rootCmd.AddCommand(versionCmd, serveCmd, splitCmd, combineCmd, assembleCmd)
}
