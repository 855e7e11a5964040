package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/pagepulse/pagepulse/pkg/diff"
	"github.com/pagepulse/pagepulse/pkg/run"
	"github.com/pagepulse/pagepulse/pkg/surface"
)

func newDiffCmd() *cobra.Command {
	var (
		product   string
		outputFmt string
		outPath   string
	)

	cmd := &cobra.Command{
		Use:   "diff [base-run head-run]",
		Short: "Compare two runs and explain the score movement",
		Long: `Compares two scored runs page by page: product delta, per-page deltas,
new and removed pages, and the metrics that drove each change. With no
arguments the two most recent runs in the local history are compared.`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiff(diffOpts{
				files:     args,
				product:   product,
				outputFmt: outputFmt,
				outPath:   outPath,
			})
		},
	}

	cmd.Flags().StringVar(&product, "product", "", "Product name (default: product from .pagepulse.yml)")
	cmd.Flags().StringVar(&outputFmt, "format", "", "Output format: terminal, markdown, csv, or json")
	cmd.Flags().StringVar(&outPath, "out", "", "Write the rendered diff to a file instead of stdout")

	return cmd
}

type diffOpts struct {
	files     []string
	product   string
	outputFmt string
	outPath   string
}

func runDiff(opts diffOpts) error {
	cfg := loadProjectConfig()

	var base, head *run.Snapshot
	switch len(opts.files) {
	case 2:
		var err error
		if base, err = run.Load(opts.files[0]); err != nil {
			return err
		}
		if head, err = run.Load(opts.files[1]); err != nil {
			return err
		}
	case 0:
		product := firstNonEmpty(opts.product, cfg.Product)
		if product == "" {
			return fmt.Errorf("no product name: pass --product, set product in .pagepulse.yml, or pass two run files")
		}
		store := run.NewStore(cfg.StoreDir())
		var err error
		base, head, err = store.LatestPair(product)
		if errors.Is(err, run.ErrInsufficientHistory) {
			fmt.Fprintf(os.Stderr, "Not enough history for %s: two runs are needed to diff.\n", product)
			return nil
		}
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("pass both a base and a head run file, or neither")
	}

	fmt.Fprintf(os.Stderr, "Comparing %s..%s\n",
		base.ID[:minInt(8, len(base.ID))], head.ID[:minInt(8, len(head.ID))])

	res, err := diff.Compute(base, head)
	if err != nil {
		return err
	}

	renderer, err := surface.ForFormat(firstNonEmpty(opts.outputFmt, cfg.Format))
	if err != nil {
		return err
	}
	return renderTo(opts.outPath, func(w io.Writer) error {
		return renderer.RenderDiff(w, res)
	})
}
