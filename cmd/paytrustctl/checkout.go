package main

import (
	"context"
	"fmt"
	"time"

	"github.com/alovak/paytrust/internal/cardgen"
	"github.com/alovak/paytrust/internal/devclient"
	"github.com/alovak/paytrust/internal/expiry"
	"github.com/alovak/paytrust/internal/redact"
	"github.com/alovak/paytrust/vault"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func checkoutCmd() *cobra.Command {
	var (
		gatewayURL string
		pan        string
		exp        string
		cvv        string
		holder     string
		amount     string
		currency   string
		orderID    string
		reject     bool
	)

	cmd := &cobra.Command{
		Use:   "checkout",
		Short: "Run tokenize, 3ds initiate, authenticate and complete against a gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			yymm, err := expiry.ParseCardFace(exp)
			if err != nil {
				return err
			}
			month, year, err := expiry.SplitYYMM(yymm)
			if err != nil {
				return err
			}
			value, err := decimal.NewFromString(amount)
			if err != nil {
				return fmt.Errorf("parsing --amount: %w", err)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			out := cmd.OutOrStdout()
			client := devclient.New(gatewayURL, nil)

			token, err := client.Tokenize(ctx, vault.Card{
				PAN:         pan,
				ExpiryMonth: month,
				ExpiryYear:  year,
				CVV:         cvv,
				HolderName:  holder,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "tokenized %s as %s\n", cardgen.MaskPAN(pan), redact.ID(token.Token))

			challenge, err := client.Initiate(ctx, devclient.InitiateReq{
				CardToken: token.Token,
				Amount:    value,
				Currency:  currency,
				OrderID:   orderID,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "3ds session %s, acs %s\n", redact.ID(challenge.SessionID), challenge.ACSURL)

			pares, err := client.Authenticate(ctx, challenge.MD, !reject)
			if err != nil {
				return err
			}

			done, err := client.Complete(ctx, challenge.SessionID, pares)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "authenticated: transaction %s %s %s\n", done.TransactionID, done.Amount, done.Currency)
			return nil
		},
	}

	cmd.Flags().StringVar(&gatewayURL, "gateway", getenv("PAYTRUST_URL", "http://127.0.0.1:8080"), "gateway base URL")
	cmd.Flags().StringVar(&pan, "pan", "4111111111111111", "card number")
	cmd.Flags().StringVar(&exp, "expiry", time.Now().AddDate(3, 0, 0).Format("01/06"), "expiry MM/YY")
	cmd.Flags().StringVar(&cvv, "cvv", "123", "card verification value")
	cmd.Flags().StringVar(&holder, "holder", "Test Cardholder", "cardholder name")
	cmd.Flags().StringVar(&amount, "amount", "10.00", "purchase amount")
	cmd.Flags().StringVar(&currency, "currency", "EUR", "purchase currency")
	cmd.Flags().StringVar(&orderID, "order", "", "merchant order id")
	cmd.Flags().BoolVar(&reject, "reject", false, "fail the cardholder authentication")

	return cmd
}
