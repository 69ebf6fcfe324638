package main

import (
	"fmt"
	"runtime"

	"github.com/gen2brain/go-fitz"
	"github.com/spf13/cobra"
)

// Set with -ldflags "-X main.GitRelease=... -X main.GitCommit=...".
var (
	GitRelease = "dev"
	GitCommit  = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("partkit %s\n", GitRelease)
		fmt.Printf("  Go:     %s\n", runtime.Version())
		fmt.Printf("  Commit: %s\n", GitCommit)
		fmt.Printf("  MuPDF:  %s\n", fitz.FzVersion)
	},
}
