package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/local/partkit/internal/export"
	"github.com/local/partkit/internal/session"
)

var (
	splitBase    string
	splitArchive string
	splitOut     string
	splitZip     bool
	splitS3      bool
	splitDryRun  bool
)

var splitCmd = &cobra.Command{
	Use:   "split FILE",
	Short: "Split a score into one PDF per detected part",
	Long: `Split a combined score into part PDFs using the instrument dictionary.

FILE may be a local path, an http(s) URL or an s3://bucket/key URL.

Examples:
  partkit split march.pdf                     # write parts to ./exports
  partkit split march.pdf --zip --out dist    # write dist/march-all-parts.zip
  partkit split s3://scores/march.pdf --s3    # upload parts to AWS_S3_BUCKET
  partkit split march.pdf --dry-run           # only print the proposed parts`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		c, err := newComponents(ctx, cfg)
		if err != nil {
			return err
		}
		defer c.Close()

		name, data, err := c.fetcher(true).Fetch(ctx, args[0])
		if err != nil {
			return err
		}
		sess, regenErrs, err := c.manager().Load(ctx, name, data, splitBase)
		if err != nil {
			return err
		}
		if splitArchive != "" {
			if _, err := sess.SetArchiveName(splitArchive); err != nil {
				return err
			}
		}
		snap := sess.Snapshot()
		printSnapshot(snap)
		for _, e := range regenErrs {
			fmt.Fprintf(os.Stderr, "warning: %v\n", e)
		}
		if splitDryRun {
			return nil
		}

		var sink export.Sink = export.DirSink{Dir: splitOut}
		if splitS3 {
			if c.s3 == nil {
				return errors.New("--s3 requires AWS_S3_BUCKET")
			}
			sink = c.s3Sink(cfg.S3.ExportPrefix + "/" + snap.BaseName)
		}

		if splitZip {
			archive, rep, err := export.Archive(ctx, snap, sink)
			if err != nil {
				return err
			}
			fmt.Printf("wrote %s (%d parts, %d skipped)\n", archive, len(rep.Emitted), len(rep.Skipped))
			return nil
		}
		rep, err := export.Batch(ctx, snap, sink)
		for _, f := range rep.Emitted {
			fmt.Printf("wrote %s\n", f)
		}
		if len(rep.Skipped) > 0 {
			fmt.Fprintf(os.Stderr, "%d parts skipped\n", len(rep.Skipped))
		}
		return err
	},
}

func init() {
	splitCmd.Flags().StringVar(&splitBase, "base", "", "file name prefix for parts (default: source name)")
	splitCmd.Flags().StringVar(&splitArchive, "archive-name", "", "zip name (default: {base}-all-parts)")
	splitCmd.Flags().StringVarP(&splitOut, "out", "d", "exports", "output directory")
	splitCmd.Flags().BoolVar(&splitZip, "zip", false, "write one zip instead of separate files")
	splitCmd.Flags().BoolVar(&splitS3, "s3", false, "upload to S3 instead of the output directory")
	splitCmd.Flags().BoolVar(&splitDryRun, "dry-run", false, "print the proposed parts and exit")
}

func printSnapshot(snap *session.Snapshot) {
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "#\tLABEL\tPAGES\tFILE\n")
	for i, e := range snap.Entries {
		file := "(failed)"
		if !e.Artifact.Stale() {
			file = e.Artifact.Filename
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", i+1, e.Segment.Label, e.Segment.RangeLabel(), file)
	}
	tw.Flush()
}
