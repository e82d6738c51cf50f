package ticker

import (
	"errors"
	"strings"
	"testing"
)

func TestNormalize_Valid(t *testing.T) {
	tests := map[string]string{
		"aapl":       "AAPL",
		" VWCE.DE ":  "VWCE.DE",
		"brk.b":      "BRK.B",
		"btc-usd":    "BTC-USD",
		"EUR/USD":    "EUR/USD",
		"7203.T":     "7203.T",
		"IE00B4L5Y9": "IE00B4L5Y9",
	}
	for in, want := range tests {
		got, err := Normalize(in)
		if err != nil {
			t.Errorf("Normalize(%q): unexpected error: %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalize_Invalid(t *testing.T) {
	tests := []string{
		".AAPL",
		"AAPL.",
		"BTC--USD",
		"AA PL",
		"ÄPPL",
		"$SPY",
	}
	for _, in := range tests {
		if _, err := Normalize(in); !errors.Is(err, ErrInvalid) {
			t.Errorf("Normalize(%q): expected ErrInvalid, got %v", in, err)
		}
	}
}

func TestNormalize_Empty(t *testing.T) {
	if _, err := Normalize("   "); !errors.Is(err, ErrEmpty) {
		t.Errorf("expected ErrEmpty, got %v", err)
	}
}

func TestNormalize_TooLong(t *testing.T) {
	if _, err := Normalize(strings.Repeat("A", MaxLength+1)); !errors.Is(err, ErrTooLong) {
		t.Errorf("expected ErrTooLong, got %v", err)
	}
	if _, err := Normalize(strings.Repeat("A", MaxLength)); err != nil {
		t.Errorf("expected %d characters to be accepted, got %v", MaxLength, err)
	}
}

func TestExchange(t *testing.T) {
	tests := map[string]string{
		"VWCE.DE":  "DE",
		"BRK.B":    "",
		"AAPL":     "",
		"7203.T":   "",
		"SAP.XETR": "XETR",
	}
	for in, want := range tests {
		if got := Exchange(in); got != want {
			t.Errorf("Exchange(%q) = %q, want %q", in, got, want)
		}
	}
}
