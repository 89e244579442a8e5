package cardgen

import "strconv"

const (
	BrandVisa       = "Visa"
	BrandMastercard = "Mastercard"
	BrandAmex       = "American Express"
	BrandDiscover   = "Discover"
	BrandTroy       = "Troy"
	BrandJCB        = "JCB"
	BrandUnknown    = "Unknown"
)

// Brand detects the card network from the leading digits of a normalized number.
// It needs at least 6 digits to tell the 2-series Mastercard and Troy ranges apart.
func Brand(number string) string {
	if len(number) < 6 || !IsDigits(number[:6]) {
		return BrandUnknown
	}
	p2, _ := strconv.Atoi(number[:2])
	p4, _ := strconv.Atoi(number[:4])
	p6, _ := strconv.Atoi(number[:6])

	switch {
	case number[0] == '4':
		return BrandVisa
	case p2 >= 51 && p2 <= 55, p6 >= 222100 && p6 <= 272099:
		return BrandMastercard
	case p2 == 34 || p2 == 37:
		return BrandAmex
	case p4 == 6011 || p2 == 65 || (p6 >= 644000 && p6 <= 649999):
		return BrandDiscover
	case p4 == 9792:
		return BrandTroy
	case p4 >= 3528 && p4 <= 3589:
		return BrandJCB
	default:
		return BrandUnknown
	}
}
