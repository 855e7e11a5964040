package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/pagepulse/pagepulse/pkg/run"
	"github.com/pagepulse/pagepulse/pkg/surface"
	"github.com/pagepulse/pagepulse/pkg/trend"
)

func newHistoryCmd() *cobra.Command {
	var (
		product   string
		limit     int
		movers    int
		outputFmt string
		outPath   string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the score trend for a product",
		Long: `Reads the local run history and prints the score trajectory, the best
and worst runs in the window, and the pages that moved the most
between the two most recent runs.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(historyOpts{
				product:   product,
				limit:     limit,
				movers:    movers,
				outputFmt: outputFmt,
				outPath:   outPath,
			})
		},
	}

	cmd.Flags().StringVar(&product, "product", "", "Product name (default: product from .pagepulse.yml)")
	cmd.Flags().IntVar(&limit, "limit", 10, "Most recent runs to include (0 for all)")
	cmd.Flags().IntVar(&movers, "movers", 5, "Pages to list per movement direction")
	cmd.Flags().StringVar(&outputFmt, "format", "", "Output format: terminal, markdown, csv, or json")
	cmd.Flags().StringVar(&outPath, "out", "", "Write the rendered history to a file instead of stdout")

	return cmd
}

type historyOpts struct {
	product   string
	limit     int
	movers    int
	outputFmt string
	outPath   string
}

func runHistory(opts historyOpts) error {
	cfg := loadProjectConfig()

	product := firstNonEmpty(opts.product, cfg.Product)
	if product == "" {
		return fmt.Errorf("no product name: pass --product or set product in .pagepulse.yml")
	}

	store := run.NewStore(cfg.StoreDir())
	snaps, err := store.History(product, opts.limit)
	if err != nil {
		return fmt.Errorf("reading history: %w", err)
	}

	series, err := trend.BuildSeries(snaps)
	if errors.Is(err, run.ErrInsufficientHistory) {
		fmt.Fprintf(os.Stderr, "No runs recorded for %s yet.\n", product)
		return nil
	}
	if err != nil {
		return err
	}

	var mv *trend.MoversResult
	if len(snaps) >= 2 {
		if mv, err = trend.TopMovers(snaps, opts.movers); err != nil {
			return err
		}
	}

	renderer, err := surface.ForFormat(firstNonEmpty(opts.outputFmt, cfg.Format))
	if err != nil {
		return err
	}
	return renderTo(opts.outPath, func(w io.Writer) error {
		return renderer.RenderHistory(w, series, mv)
	})
}
