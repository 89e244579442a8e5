// Package redact is the single place where identifiers and card numbers are
// shortened before they reach a log sink or an error message.
package redact

import (
	"strconv"

	"github.com/alovak/paytrust/internal/cardgen"
	"golang.org/x/exp/slog"
)

const (
	idPrefixLen = 8
	binLen      = 6
	ellipsis    = "…"
)

// ID keeps the first 8 characters of an identifier and appends an ellipsis.
// Identifiers of 8 characters or fewer are fully masked, since keeping them
// would reveal the whole value.
func ID(id string) string {
	if id == "" {
		return ""
	}
	r := []rune(id)
	if len(r) <= idPrefixLen {
		return ellipsis
	}
	return string(r[:idPrefixLen]) + ellipsis
}

// PAN returns only the BIN and the digit count, e.g. "411111…(16)".
func PAN(number string) string {
	bin, digits := BIN(number)
	if bin == "" {
		return "(" + strconv.Itoa(digits) + ")"
	}
	return bin + ellipsis + "(" + strconv.Itoa(digits) + ")"
}

// BIN returns the first 6 digits of a normalized number and its digit count.
// Inputs shorter than 6 digits yield an empty BIN.
func BIN(number string) (string, int) {
	n := cardgen.NormalizePAN(number)
	if len(n) < binLen || !cardgen.IsDigits(n[:binLen]) {
		return "", len(n)
	}
	return n[:binLen], len(n)
}

// IDAttr is a slog attribute carrying a redacted identifier.
func IDAttr(key, id string) slog.Attr {
	return slog.String(key, ID(id))
}

// PANAttrs are the only card number attributes allowed in logs.
func PANAttrs(number string) []any {
	bin, digits := BIN(number)
	return []any{slog.String("bin", bin), slog.Int("digits", digits)}
}
