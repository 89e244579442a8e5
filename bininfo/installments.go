package bininfo

import (
	"math"
	"strconv"

	"github.com/shopspring/decimal"
)

const (
	amountPlaces   = 2
	defaultProduct = "default"
)

var hundred = decimal.NewFromInt(100)

func flatPlan(price decimal.Decimal, currency string) InstallmentPlan {
	total := price.Round(amountPlaces)
	return InstallmentPlan{
		ID:                "inst-1",
		Count:             1,
		InterestRate:      decimal.Zero,
		CommissionRate:    decimal.Zero,
		InstallmentAmount: total,
		TotalAmount:       total,
		Currency:          currency,
	}
}

// computePlan applies the interest rate once to the whole price and splits
// the total evenly. The last cent of rounding is not redistributed.
func computePlan(rule PlanRule, price decimal.Decimal, currency string) InstallmentPlan {
	factor := decimal.NewFromInt(1).Add(rule.InterestRate.Div(hundred))
	total := price.Mul(factor).Round(amountPlaces)

	return InstallmentPlan{
		ID:                "inst-" + strconv.Itoa(rule.Count),
		Count:             rule.Count,
		InterestRate:      rule.InterestRate,
		CommissionRate:    rule.CommissionRate,
		InstallmentAmount: total.DivRound(decimal.NewFromInt(int64(rule.Count)), amountPlaces),
		TotalAmount:       total,
		Currency:          currency,
	}
}

// offers reports whether multi-installment plans apply. Debit cards only
// get the flat plan.
func (p *Program) offers(currency, cardType string) bool {
	if cardType == "debit" {
		return false
	}
	if len(p.Currencies) == 0 {
		return true
	}
	for _, c := range p.Currencies {
		if c == currency {
			return true
		}
	}
	return false
}

// maxCount returns the installment cap for a product type. A program without
// caps offers every plan.
func (p *Program) maxCount(productType string) int {
	if len(p.MaxCount) == 0 {
		return math.MaxInt
	}
	if n, ok := p.MaxCount[productType]; ok {
		return n
	}
	if n, ok := p.MaxCount[defaultProduct]; ok {
		return n
	}
	return 0
}
