// Package money represents USD-denominated amounts as integer micro-dollars.
//
// One micro-dollar is 10^-6 USD, which is also the base unit of 6-decimal
// stablecoins (USDC), so amounts convert to on-chain atomic units without
// scaling.
package money

import (
	"fmt"
	"strconv"
	"strings"
)

// Micros is an amount in micro-dollars (10^-6 USD).
type Micros int64

const microsPerDollar = 1_000_000

// ParseUSD parses a decimal dollar string such as "$0.01", "0.01" or "2"
// into micro-dollars. At most six fractional digits are accepted.
func ParseUSD(s string) (Micros, error) {
	raw := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "$"))
	if raw == "" {
		return 0, fmt.Errorf("empty amount")
	}

	whole := raw
	frac := ""
	if i := strings.IndexByte(raw, '.'); i >= 0 {
		whole = raw[:i]
		frac = raw[i+1:]
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > 6 {
		return 0, fmt.Errorf("amount %q has more than 6 decimal places", s)
	}

	dollars, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || dollars < 0 {
		return 0, fmt.Errorf("invalid amount %q", s)
	}

	var fracMicros int64
	if frac != "" {
		fracMicros, err = strconv.ParseInt(frac, 10, 64)
		if err != nil || fracMicros < 0 {
			return 0, fmt.Errorf("invalid amount %q", s)
		}
		for i := len(frac); i < 6; i++ {
			fracMicros *= 10
		}
	}

	return Micros(dollars*microsPerDollar + fracMicros), nil
}

// String renders the amount as a dollar string, e.g. "$0.01".
// Trailing fractional zeros are trimmed down to two decimal places.
func (m Micros) String() string {
	neg := m < 0
	v := int64(m)
	if neg {
		v = -v
	}

	dollars := v / microsPerDollar
	frac := fmt.Sprintf("%06d", v%microsPerDollar)
	for len(frac) > 2 && frac[len(frac)-1] == '0' {
		frac = frac[:len(frac)-1]
	}

	if neg {
		return fmt.Sprintf("-$%d.%s", dollars, frac)
	}
	return fmt.Sprintf("$%d.%s", dollars, frac)
}

// Atomic returns the amount as a base-unit integer string for a 6-decimal
// token contract.
func (m Micros) Atomic() string {
	return strconv.FormatInt(int64(m), 10)
}
