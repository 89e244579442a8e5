package expiry

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// maxYearsAhead bounds how far in the future a card expiry is considered plausible.
const maxYearsAhead = 20

var defaultLoc = time.UTC

// SetDefaultExpiryLocation sets the default time location for expiry calculations (fallback UTC).
func SetDefaultExpiryLocation(loc *time.Location) {
	if loc != nil {
		defaultLoc = loc
	}
}

// NormalizeYear accepts YY or YYYY and returns a four digit year in 2000..2099.
func NormalizeYear(year int) (int, error) {
	switch {
	case year >= 0 && year <= 99:
		return 2000 + year, nil
	case year >= 2000 && year <= 2099:
		return year, nil
	default:
		return 0, fmt.Errorf("expiry year must be YY or YYYY (got %d)", year)
	}
}

// EndOfMonth returns the last instant of the given month in loc.
func EndOfMonth(month, year int, loc *time.Location) time.Time {
	if loc == nil {
		loc = defaultLoc
	}
	firstNext := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, loc).AddDate(0, 1, 0)
	return firstNext.Add(-time.Nanosecond)
}

// ValidateCardExpiry checks that month/year is a plausible, unexpired card expiry at 'at'.
// It returns the normalized four digit year.
func ValidateCardExpiry(month, year int, at time.Time) (int, error) {
	if month < 1 || month > 12 {
		return 0, fmt.Errorf("expiry month must be 01..12")
	}
	y, err := NormalizeYear(year)
	if err != nil {
		return 0, err
	}
	end := EndOfMonth(month, y, nil)
	if at.In(end.Location()).After(end) {
		return 0, fmt.Errorf("card expired")
	}
	if y > at.Year()+maxYearsAhead {
		return 0, fmt.Errorf("expiry year too far in the future")
	}
	return y, nil
}

// YYMM formats a month/year pair as YYMM (ISO 8583 DE14).
func YYMM(month, year int) string {
	return fmt.Sprintf("%02d%02d", year%100, month)
}

// CardFace returns expiry as MM/YY for card imprint, 'years' after issue.
func CardFace(issue time.Time, years int) string {
	t := issue.In(defaultLoc)
	y := (t.Year() + years) % 100
	m := int(t.Month())
	return fmt.Sprintf("%02d/%02d", m, y)
}

// SplitYYMM returns month and four digit year of a valid YYMM value.
func SplitYYMM(yymm string) (month, year int, err error) {
	if err := ValidateYYMM(yymm); err != nil {
		return 0, 0, err
	}
	yy, _ := strconv.Atoi(yymm[:2])
	mm, _ := strconv.Atoi(yymm[2:])
	return mm, 2000 + yy, nil
}

// ParseYYMMEndOfMonth parses YYMM into the last instant of that month in loc.
func ParseYYMMEndOfMonth(yymm string, loc *time.Location) (time.Time, error) {
	month, year, err := SplitYYMM(yymm)
	if err != nil {
		return time.Time{}, err
	}
	return EndOfMonth(month, year, loc), nil
}

// IsExpired reports whether time 'at' is strictly after the end of YYMM month in loc.
func IsExpired(yymm string, at time.Time, loc *time.Location) (bool, error) {
	end, err := ParseYYMMEndOfMonth(yymm, loc)
	if err != nil {
		return false, err
	}
	return at.In(end.Location()).After(end), nil
}

// ParseCardFace accepts "MM/YY" or "MMYY" and returns YYMM.
func ParseCardFace(in string) (string, error) {
	s := strings.TrimSpace(in)
	s = strings.ReplaceAll(s, "/", "")
	if len(s) != 4 {
		return "", fmt.Errorf("card face must be MM/YY or MMYY")
	}
	for i := 0; i < 4; i++ {
		if s[i] < '0' || s[i] > '9' {
			return "", fmt.Errorf("card face must be digits")
		}
	}
	mm, _ := strconv.Atoi(s[:2])
	if mm < 1 || mm > 12 {
		return "", fmt.Errorf("month must be 01..12")
	}
	return s[2:] + fmt.Sprintf("%02d", mm), nil
}

// ValidateYYMM checks the value is four digits with a month in 01..12.
func ValidateYYMM(yymm string) error {
	if len(yymm) != 4 {
		return fmt.Errorf("expiry must be YYMM (4 digits)")
	}
	for i := 0; i < 4; i++ {
		if yymm[i] < '0' || yymm[i] > '9' {
			return fmt.Errorf("expiry must be digits: YYMM")
		}
	}
	mm := int(yymm[2]-'0')*10 + int(yymm[3]-'0')
	if mm < 1 || mm > 12 {
		return fmt.Errorf("expiry month must be 01..12")
	}
	return nil
}
