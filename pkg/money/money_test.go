package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUSD(t *testing.T) {
	tests := []struct {
		in   string
		want Micros
	}{
		{"$0.01", 10_000},
		{"0.01", 10_000},
		{"$1", 1_000_000},
		{"2.5", 2_500_000},
		{" $0.000001 ", 1},
		{"$10.250000", 10_250_000},
		{"$0", 0},
	}
	for _, tt := range tests {
		got, err := ParseUSD(tt.in)
		require.NoError(t, err, "parse %q", tt.in)
		assert.Equal(t, tt.want, got, "parse %q", tt.in)
	}
}

func TestParseUSDInvalid(t *testing.T) {
	for _, in := range []string{"", "$", "abc", "$-1", "1.2345678", "$1.x"} {
		_, err := ParseUSD(in)
		assert.Error(t, err, "parse %q should fail", in)
	}
}

func TestString(t *testing.T) {
	assert.Equal(t, "$0.01", Micros(10_000).String())
	assert.Equal(t, "$1.00", Micros(1_000_000).String())
	assert.Equal(t, "$0.000001", Micros(1).String())
	assert.Equal(t, "$2.50", Micros(2_500_000).String())
	assert.Equal(t, "-$0.25", Micros(-250_000).String())
}

func TestAtomic(t *testing.T) {
	assert.Equal(t, "10000", Micros(10_000).Atomic())
}
