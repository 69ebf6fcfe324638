package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/local/partkit/internal/combine"
	"github.com/local/partkit/internal/export"
)

var (
	combineFirstAlone bool
	combineOut        string
	combineZip        bool
	combineZipName    string
	combineCrop       float64
)

var combineCmd = &cobra.Command{
	Use:   "combine FILES...",
	Short: "Put pairs of pages side by side, two per sheet",
	Long: `Combine each PDF (or every PDF inside a zip) into a 2-up document.

Pages are paired 1+2, 3+4, ...; with --first-alone page 1 gets its own sheet
and pairing starts at page 2. --crop trims that percentage of each page's
size from every edge before layout. Output files are named
{name}-combined.pdf.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		c, err := newComponents(ctx, cfg)
		if err != nil {
			return err
		}
		defer c.Close()

		uploads, err := readFiles(args)
		if err != nil {
			return err
		}
		res, err := combine.Files(ctx, c.engine, c.engine, c.detector, uploads, combine.Options{
			FirstPageAlone: combineFirstAlone,
			ZipName:        combineZipName,
			CropPercent:    combineCrop,
		})
		if err != nil {
			return err
		}

		sink := export.DirSink{Dir: combineOut}
		if combineZip {
			entries := make([]export.Entry, len(res.Files))
			for i, f := range res.Files {
				entries[i] = export.Entry{Name: f.Name, Data: f.Data}
			}
			data, err := export.Pack(entries)
			if err != nil {
				return err
			}
			if err := sink.Emit(ctx, res.ZipName, data); err != nil {
				return err
			}
			fmt.Printf("wrote %s (%d files)\n", res.ZipName, len(res.Files))
			return nil
		}
		for _, f := range res.Files {
			if err := sink.Emit(ctx, f.Name, f.Data); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", f.Name)
		}
		return nil
	},
}

func init() {
	combineCmd.Flags().BoolVar(&combineFirstAlone, "first-alone", false, "give page 1 its own sheet")
	combineCmd.Flags().StringVarP(&combineOut, "out", "d", ".", "output directory")
	combineCmd.Flags().BoolVar(&combineZip, "zip", false, "pack the outputs into one zip")
	combineCmd.Flags().Float64Var(&combineCrop, "crop", 0, "trim this percent of each page from every edge (0-50)")
	combineCmd.Flags().StringVar(&combineZipName, "zip-name", "", "zip name (default: input zip name or combined-pdfs)")
}
