package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/alovak/paytrust/internal/cardgen"
	"github.com/alovak/paytrust/internal/expiry"
	"github.com/alovak/paytrust/vault"
	"github.com/spf13/cobra"
)

type testCard struct {
	PAN        string `json:"pan"`
	Brand      string `json:"brand"`
	Expiry     string `json:"expiry"`
	HolderName string `json:"holder_name,omitempty"`
}

func gencardCmd() *cobra.Command {
	var (
		bin      string
		length   int
		sequence string
		years    int
		cardName string
		verbose  bool
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "gencard",
		Short: "Generate a Luhn-valid test card for a BIN",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cardgen.ValidateBIN(bin); err != nil {
				return err
			}
			if years <= 0 {
				return fmt.Errorf("--years must be positive")
			}

			pan, err := cardgen.GeneratePAN(bin, length, sequence)
			if err != nil {
				return err
			}

			card := testCard{
				PAN:        cardgen.MaskPAN(pan),
				Brand:      cardgen.Brand(pan),
				Expiry:     expiry.CardFace(time.Now(), years),
				HolderName: vault.NormalizeHolderName(cardName),
			}
			if verbose {
				card.PAN = pan
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(card)
			}

			fmt.Fprintf(out, "PAN: %s\n", card.PAN)
			fmt.Fprintf(out, "BRAND: %s\n", card.Brand)
			fmt.Fprintf(out, "EXP(card-face): %s\n", card.Expiry)
			if card.HolderName != "" {
				fmt.Fprintf(out, "NAME(card-face): %s\n", card.HolderName)
			}
			if !verbose {
				fmt.Fprintln(out, "(PAN masked; pass --verbose to print it in full)")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&bin, "bin", "411111", "6/8/9-digit BIN prefix")
	cmd.Flags().IntVar(&length, "length", 16, "total PAN length")
	cmd.Flags().StringVar(&sequence, "sequence", "", "optional numeric sequence (before check digit)")
	cmd.Flags().IntVar(&years, "years", 3, "validity years from now")
	cmd.Flags().StringVar(&cardName, "card-name", "", "cardholder name for card face imprint")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "print full PAN (otherwise masked)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")

	return cmd
}
