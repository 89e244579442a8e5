// Package bininfo classifies card numbers by their BIN and computes the
// installment plans an issuer offers for a price.
package bininfo

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/alovak/paytrust/internal/cardgen"
	"github.com/shopspring/decimal"
	"golang.org/x/exp/slog"
)

const (
	binLen    = 6
	maxDigits = 19

	CardTypeUnknown = "unknown"
)

var ErrInvalidInput = errors.New("invalid input")

// Options control installment computation. Plans are computed only when
// WithInstallment is set and both Price and Currency are present.
type Options struct {
	WithInstallment bool
	Price           *float64
	Currency        string
	ProductType     string
}

type InstallmentPlan struct {
	ID                string          `json:"id"`
	Count             int             `json:"count"`
	InterestRate      decimal.Decimal `json:"interest_rate"`
	CommissionRate    decimal.Decimal `json:"commission_rate"`
	InstallmentAmount decimal.Decimal `json:"installment_amount"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
	Currency          string          `json:"currency"`
}

type BinInfo struct {
	BIN          string            `json:"bin"`
	Issuer       string            `json:"issuer,omitempty"`
	Brand        string            `json:"brand,omitempty"`
	Schema       string            `json:"schema"`
	CardType     string            `json:"card_type"`
	PANLengths   []int             `json:"pan_lengths"`
	CVVLength    int               `json:"cvv_length"`
	Installments []InstallmentPlan `json:"installments,omitempty"`
}

type Classifier struct {
	source Source
	logger *slog.Logger
}

func NewClassifier(source Source, logger *slog.Logger) *Classifier {
	return &Classifier{
		source: source,
		logger: logger.With(slog.String("component", "bininfo")),
	}
}

// Classify looks up the first 6 digits of cardNumber. Only the BIN and the
// digit count are ever logged or returned.
func (c *Classifier) Classify(cardNumber string, opts Options) (*BinInfo, error) {
	number := cardgen.NormalizePAN(cardNumber)
	if !cardgen.IsDigits(number) {
		return nil, fmt.Errorf("%w: card number must contain digits only", ErrInvalidInput)
	}
	if l := len(number); l < binLen || l > maxDigits {
		return nil, fmt.Errorf("%w: card number must have %d..%d digits (got %d)", ErrInvalidInput, binLen, maxDigits, l)
	}

	var price decimal.Decimal
	computePlans := opts.WithInstallment && opts.Price != nil && strings.TrimSpace(opts.Currency) != ""
	if opts.Price != nil {
		if math.IsNaN(*opts.Price) || math.IsInf(*opts.Price, 0) {
			return nil, fmt.Errorf("%w: price must be finite", ErrInvalidInput)
		}
		price = decimal.NewFromFloat(*opts.Price)
	}

	bin := number[:binLen]
	info := c.describe(bin)

	if computePlans {
		info.Installments = c.plans(bin, price, strings.ToUpper(strings.TrimSpace(opts.Currency)), strings.ToLower(opts.ProductType))
	}

	c.logger.Debug("bin classified",
		slog.String("bin", bin),
		slog.Int("digits", len(number)),
		slog.String("schema", info.Schema),
		slog.Int("plans", len(info.Installments)),
	)

	return info, nil
}

func (c *Classifier) describe(bin string) *BinInfo {
	info := &BinInfo{BIN: bin}

	if e, ok := c.source.Lookup(bin); ok {
		info.Issuer = e.Issuer
		info.Brand = e.Brand
		info.Schema = e.Schema
		info.CardType = e.CardType
	} else {
		info.Schema = cardgen.Brand(bin)
		info.CardType = CardTypeUnknown
	}

	if rules, ok := c.source.Schema(info.Schema); ok {
		info.PANLengths = append([]int(nil), rules.PANLengths...)
		info.CVVLength = rules.CVVLength
	} else {
		info.PANLengths = []int{16}
		info.CVVLength = 3
	}

	return info
}

func (c *Classifier) plans(bin string, price decimal.Decimal, currency, productType string) []InstallmentPlan {
	plans := []InstallmentPlan{flatPlan(price, currency)}

	e, ok := c.source.Lookup(bin)
	if !ok || e.Program == nil || !e.Program.offers(currency, e.CardType) {
		return plans
	}

	limit := e.Program.maxCount(productType)
	for _, rule := range e.Program.Plans {
		if rule.Count > limit {
			continue
		}
		plans = append(plans, computePlan(rule, price, currency))
	}
	return plans
}
