package cardgen

import (
	"strings"
	"testing"
)

func TestGeneratePAN_LuhnValid(t *testing.T) {
	for _, l := range []int{12, 16, 19} {
		pan, err := GeneratePAN("411111", l, "")
		if err != nil {
			t.Fatalf("GeneratePAN len=%d err: %v", l, err)
		}
		if len(pan) != l {
			t.Fatalf("GeneratePAN len got %d want %d", len(pan), l)
		}
		if !strings.HasPrefix(pan, "411111") {
			t.Fatalf("GeneratePAN %s lost bin", MaskPAN(pan))
		}
		if err := ValidatePAN(pan); err != nil {
			t.Fatalf("generated pan invalid: %v", err)
		}
	}
}

func TestGeneratePAN_Sequence(t *testing.T) {
	pan, err := GeneratePAN("411111", 16, "4242")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if got := pan[11:15]; got != "4242" {
		t.Fatalf("sequence got %s want 4242", got)
	}
	if _, err := GeneratePAN("411111", 16, "12345678901"); err == nil {
		t.Fatalf("expected error for oversized sequence")
	}
	if _, err := GeneratePAN("4111", 16, ""); err == nil {
		t.Fatalf("expected error for short bin")
	}
}

func TestValidatePAN(t *testing.T) {
	cases := []struct {
		in string
		ok bool
	}{
		{"4111111111111111", true},
		{"5555555555554444", true},
		{"378282246310005", true},
		{"4111111111111112", false},
		{"41111111111", false},
		{"41111111111111111111", false},
		{"4111a11111111111", false},
		{"", false},
	}
	for _, c := range cases {
		err := ValidatePAN(c.in)
		if (err == nil) != c.ok {
			t.Fatalf("ValidatePAN(%s) ok=%v got err=%v", MaskPAN(c.in), c.ok, err)
		}
	}
}

func TestMaskPAN(t *testing.T) {
	if got := MaskPAN("4111 1111-1111 1111"); got != "411111******1111" {
		t.Fatalf("MaskPAN got %s", got)
	}
	if got := MaskPAN("123456789"); got != "*****6789" {
		t.Fatalf("MaskPAN short got %s", got)
	}
	if got := MaskPAN("123"); got != "***" {
		t.Fatalf("MaskPAN tiny got %s", got)
	}
}

func TestBrand(t *testing.T) {
	cases := map[string]string{
		"4111111111111111": BrandVisa,
		"5555555555554444": BrandMastercard,
		"2223003122003222": BrandMastercard,
		"378282246310005":  BrandAmex,
		"6011111111111117": BrandDiscover,
		"9792131111111111": BrandTroy,
		"3530111333300000": BrandJCB,
		"123456":           BrandUnknown,
		"41":               BrandUnknown,
	}
	for in, want := range cases {
		if got := Brand(in); got != want {
			t.Fatalf("Brand(%s) got %s want %s", in[:2], got, want)
		}
	}
}

func TestFingerprint_StablePerKey(t *testing.T) {
	a := Fingerprint("4111111111111111", []byte("k1"))
	b := Fingerprint("4111111111111111", []byte("k1"))
	c := Fingerprint("4111111111111111", []byte("k2"))
	if a != b {
		t.Fatalf("fingerprint not stable")
	}
	if a == c {
		t.Fatalf("fingerprint ignores key")
	}
	if strings.Contains(a, "4111111111111111") {
		t.Fatalf("fingerprint leaks pan")
	}
}
