package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/local/partkit/internal/assemble"
	"github.com/local/partkit/internal/export"
	"github.com/local/partkit/internal/pdfdoc"
)

var (
	assembleReplicas map[string]int
	assembleOrder    []string
	assembleName     string
	assembleOut      string
)

var assembleCmd = &cobra.Command{
	Use:   "assemble FILES...",
	Short: "Concatenate parts, each repeated a chosen number of times",
	Long: `Assemble part PDFs (or zips of them) into one document for printing.

Sources are ordered by name unless --order is given. Each source appears
once unless --replicas sets another count (0 to 99).

Examples:
  partkit assemble parts.zip --replicas march-Tuba.pdf=2
  partkit assemble *.pdf --order march-Score.pdf --name band-set`,
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
		var docs []*pdfdoc.Document
		var names []string
		for _, up := range uploads {
			pdfs, err := c.detector.ExpandPDFs(up)
			if err != nil {
				return err
			}
			for _, f := range pdfs {
				doc, err := c.engine.Open(f.Name, f.Data)
				if err != nil {
					return fmt.Errorf("open %s: %w", f.Name, err)
				}
				docs = append(docs, doc)
				names = append(names, f.Name)
			}
		}

		plan := assemble.NewPlan(docs)
		if len(assembleOrder) > 0 {
			if err := plan.Reorder(assembleOrder); err != nil {
				return err
			}
		}
		for name, n := range assembleReplicas {
			if err := plan.SetReplicasByName(name, n); err != nil {
				return err
			}
		}
		for _, s := range plan.Sources() {
			fmt.Printf("%-40s %3d pages x %d\n", s.Name, s.Pages, s.Replicas)
		}

		out, err := plan.Assemble(ctx, c.engine)
		if err != nil {
			return err
		}
		name := assemble.OutputName(assembleName, names)
		if err := (export.DirSink{Dir: assembleOut}).Emit(ctx, name, out); err != nil {
			return err
		}
		fmt.Printf("wrote %s (%d pages)\n", name, plan.TotalPages())
		return nil
	},
}

func init() {
	assembleCmd.Flags().StringToIntVar(&assembleReplicas, "replicas", nil, "copies per source, e.g. --replicas a.pdf=2,b.pdf=0")
	assembleCmd.Flags().StringSliceVar(&assembleOrder, "order", nil, "sources to put first, in order")
	assembleCmd.Flags().StringVar(&assembleName, "name", "", "output file name (default: common prefix of sources)")
	assembleCmd.Flags().StringVarP(&assembleOut, "out", "d", ".", "output directory")
}
