package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pagepulse/pagepulse/pkg/kpi"
	"github.com/pagepulse/pagepulse/pkg/run"
)

func newValidateCmd() *cobra.Command {
	var (
		kpiPath string
		product string
	)

	cmd := &cobra.Command{
		Use:   "validate [run-files...]",
		Short: "Check run files and KPI configuration for integrity",
		Long: `Validates archived run files: format version, required fields, and
score ranges. With no arguments every stored run for the configured
product is checked. Pass --kpi to also validate a KPI configuration.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(validateOpts{
				files:   args,
				kpiPath: kpiPath,
				product: product,
			})
		},
	}

	cmd.Flags().StringVar(&kpiPath, "kpi", "", "KPI configuration file to validate")
	cmd.Flags().StringVar(&product, "product", "", "Check every stored run for this product (default: product from .pagepulse.yml)")

	return cmd
}

type validateOpts struct {
	files   []string
	kpiPath string
	product string
}

func runValidate(opts validateOpts) error {
	checked, bad := 0, 0

	if opts.kpiPath != "" {
		checked++
		if _, err := kpi.Load(opts.kpiPath); err != nil {
			bad++
			fmt.Printf("FAIL %s: %v\n", opts.kpiPath, err)
		} else {
			fmt.Printf("ok   %s\n", opts.kpiPath)
		}
	}

	files := opts.files
	if len(files) == 0 {
		cfg := loadProjectConfig()
		product := firstNonEmpty(opts.product, cfg.Product)
		if product != "" {
			listed, err := run.NewStore(cfg.StoreDir()).List(product)
			if err != nil {
				return fmt.Errorf("listing runs: %w", err)
			}
			files = listed
		}
	}

	for _, path := range files {
		checked++
		_, err := run.Load(path)
		if err == nil {
			fmt.Printf("ok   %s\n", path)
			continue
		}
		bad++
		var integ *run.IntegrityError
		if errors.As(err, &integ) {
			fmt.Printf("FAIL %s: %s\n", path, integ.Reason)
		} else {
			fmt.Printf("FAIL %s: %v\n", path, err)
		}
	}

	if checked == 0 {
		return fmt.Errorf("nothing to validate: pass run files, --kpi, or --product")
	}
	if bad > 0 {
		return fmt.Errorf("%d of %d checks failed", bad, checked)
	}
	fmt.Printf("%d checks passed\n", checked)
	return nil
}
