package main

import (
	"encoding/json"
	"io"

	"github.com/alovak/paytrust/bininfo"
	"github.com/spf13/cobra"
	"golang.org/x/exp/slog"
)

func binCmd() *cobra.Command {
	var (
		table       string
		installment bool
		price       float64
		currency    string
		productType string
	)

	cmd := &cobra.Command{
		Use:   "bin [card-number]",
		Short: "Classify a card number offline against the BIN table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := loadTable(table)
			if err != nil {
				return err
			}

			opts := bininfo.Options{
				WithInstallment: installment,
				Currency:        currency,
				ProductType:     productType,
			}
			if cmd.Flags().Changed("price") {
				opts.Price = &price
			}

			classifier := bininfo.NewClassifier(source, slog.New(slog.NewTextHandler(io.Discard)))
			info, err := classifier.Classify(args[0], opts)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		},
	}

	cmd.Flags().StringVar(&table, "table", getenv("BIN_TABLE_PATH", ""), "BIN table YAML (embedded table when empty)")
	cmd.Flags().BoolVarP(&installment, "installment", "i", false, "include installment plans")
	cmd.Flags().Float64Var(&price, "price", 0, "purchase price for installment plans")
	cmd.Flags().StringVar(&currency, "currency", "", "purchase currency, e.g. EUR")
	cmd.Flags().StringVar(&productType, "product", "", "product type, e.g. flight")

	return cmd
}

func loadTable(path string) (*bininfo.Table, error) {
	if path == "" {
		return bininfo.DefaultTable()
	}
	return bininfo.LoadYAML(path)
}
