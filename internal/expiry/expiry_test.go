package expiry

import (
	"testing"
	"time"
)

func TestCardFace_Rollover(t *testing.T) {
	issue := time.Date(2029, time.December, 15, 0, 0, 0, 0, time.UTC)
	if got := CardFace(issue, 1); got != "12/30" {
		t.Fatalf("CardFace got %s want %s", got, "12/30")
	}
}

func TestYYMM(t *testing.T) {
	if got := YYMM(2, 2031); got != "3102" {
		t.Fatalf("YYMM got %s want 3102", got)
	}
	if got := YYMM(11, 30); got != "3011" {
		t.Fatalf("YYMM two digit year got %s want 3011", got)
	}
}

func TestParseYYMMEndOfMonth(t *testing.T) {
	// 2030-02 (non-leap): expect 28th 23:59:59.999999999
	ts, err := ParseYYMMEndOfMonth("3002", time.UTC)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	want := time.Date(2030, time.February, 28, 23, 59, 59, 999999999, time.UTC)
	if !ts.Equal(want) {
		t.Fatalf("got %v want %v", ts, want)
	}

	// 2028-02 (leap)
	ts, err = ParseYYMMEndOfMonth("2802", time.UTC)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	want = time.Date(2028, time.February, 29, 23, 59, 59, 999999999, time.UTC)
	if !ts.Equal(want) {
		t.Fatalf("got %v want %v", ts, want)
	}
}

func TestValidateYYMM(t *testing.T) {
	cases := []struct {
		in string
		ok bool
	}{
		{"3002", true}, {"9912", true}, {"0001", true},
		{"123", false}, {"12a4", false}, {"3013", false}, {"0000", false},
	}
	for _, c := range cases {
		err := ValidateYYMM(c.in)
		if (err == nil) != c.ok {
			t.Fatalf("ValidateYYMM(%s) ok=%v got err=%v", c.in, c.ok, err)
		}
	}
}

func TestIsExpired(t *testing.T) {
	yymm := "3002"
	end, _ := ParseYYMMEndOfMonth(yymm, time.UTC)
	expired, err := IsExpired(yymm, end, time.UTC)
	if err != nil || expired {
		t.Fatalf("expected not expired at end, got expired=%v err=%v", expired, err)
	}
	expired, err = IsExpired(yymm, end.Add(time.Nanosecond), time.UTC)
	if err != nil || !expired {
		t.Fatalf("expected expired after %v, got expired=%v err=%v", end, expired, err)
	}
}

func TestValidateCardExpiry(t *testing.T) {
	now := time.Date(2026, time.October, 16, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		month, year int
		want        int
		ok          bool
	}{
		{10, 2026, 2026, true}, // current month is still valid
		{12, 30, 2030, true},
		{9, 2026, 0, false},
		{0, 2030, 0, false},
		{13, 2030, 0, false},
		{1, 2050, 0, false},
		{1, 1999, 0, false},
	}
	for _, c := range cases {
		got, err := ValidateCardExpiry(c.month, c.year, now)
		if (err == nil) != c.ok {
			t.Fatalf("ValidateCardExpiry(%d,%d) ok=%v got err=%v", c.month, c.year, c.ok, err)
		}
		if c.ok && got != c.want {
			t.Fatalf("ValidateCardExpiry(%d,%d) year got %d want %d", c.month, c.year, got, c.want)
		}
	}
}

func TestSplitYYMM(t *testing.T) {
	m, y, err := SplitYYMM("3010")
	if err != nil || m != 10 || y != 2030 {
		t.Fatalf("SplitYYMM got %d/%d err=%v", m, y, err)
	}
}

func TestParseCardFace(t *testing.T) {
	yymm, err := ParseCardFace("10/30")
	if err != nil || yymm != "3010" {
		t.Fatalf("ParseCardFace 10/30 got %s err=%v", yymm, err)
	}
	yymm, err = ParseCardFace("1030")
	if err != nil || yymm != "3010" {
		t.Fatalf("ParseCardFace 1030 got %s err=%v", yymm, err)
	}
	if _, err := ParseCardFace("13/30"); err == nil {
		t.Fatalf("expected error for 13/30")
	}
}
