// Package ticker normalizes and validates the instrument symbols users
// attach to their assets.
//
// Symbols are upper-cased and trimmed before validation, so "vwce.de" and
// " VWCE.DE " name the same asset. Accepted forms include plain equities
// (AAPL), exchange-suffixed listings (VWCE.DE), share classes (BRK.B),
// crypto pairs (BTC-USD) and FX pairs (EUR/USD).
package ticker

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// MaxLength is the longest accepted symbol.
const MaxLength = 20

var (
	ErrEmpty   = errors.New("ticker: empty symbol")
	ErrTooLong = errors.New("ticker: symbol too long")
	ErrInvalid = errors.New("ticker: invalid symbol")
)

// Must start with a letter or digit; separators may not repeat or trail.
var pattern = regexp.MustCompile(`^[A-Z0-9]+([.\-/][A-Z0-9]+)*$`)

// Normalize returns the canonical form of raw or an error describing why
// it is not a valid symbol.
func Normalize(raw string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return "", ErrEmpty
	}
	if len(s) > MaxLength {
		return "", fmt.Errorf("%w: %d > %d characters", ErrTooLong, len(s), MaxLength)
	}
	if !pattern.MatchString(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalid, raw)
	}
	return s, nil
}

// Exchange returns the listing suffix of a symbol such as "DE" for
// "VWCE.DE", or "" when there is none. Share-class suffixes of a single
// letter (BRK.B) are not treated as exchanges.
func Exchange(symbol string) string {
	i := strings.LastIndexByte(symbol, '.')
	if i < 0 || len(symbol)-i-1 < 2 {
		return ""
	}
	return symbol[i+1:]
}
