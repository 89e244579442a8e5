// Package money holds currency rules shared by the wire formats.
package money

import "github.com/shopspring/decimal"

// currencies whose minor unit is not the cent
var currencyExponent = map[string]int32{
	"BHD": 3, "CLP": 0, "ISK": 0, "JOD": 3, "JPY": 0,
	"KRW": 0, "KWD": 3, "OMR": 3, "TND": 3, "VND": 0,
}

// Exponent returns the number of minor-unit digits of an ISO 4217 currency.
func Exponent(currency string) int32 {
	if e, ok := currencyExponent[currency]; ok {
		return e
	}
	return 2
}

// Format renders amount with the currency's minor-unit digits, e.g. 150.50
// for EUR and 1000 for JPY. Extra precision is kept.
func Format(amount decimal.Decimal, currency string) string {
	places := Exponent(currency)
	if e := -amount.Exponent(); e > places {
		places = e
	}
	return amount.StringFixed(places)
}
