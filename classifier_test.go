package liquidator

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestIsLiquidatable(t *testing.T) {
	c := NewClassifier(testLog(), 9800, StrategyFull, false)

	tests := []struct {
		name     string
		hf       int64
		success  bool
		valueUSD decimal.Decimal
		expected bool
	}{
		{"below threshold", 9750, true, decimal.Zero, true},
		{"just below threshold", 9799, true, decimal.Zero, true},
		{"at threshold", 9800, true, decimal.Zero, false},
		{"above threshold", 9999, true, decimal.Zero, false},
		{"failed fetch with zero health factor", 0, false, decimal.Zero, false},
		{"dust position", 9500, true, decimal.NewFromFloat(0.005), false},
		{"priced position above dust", 9500, true, decimal.NewFromInt(1200), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acc := testAccount(tt.hf, 310)
			acc.Success = tt.success
			acc.TotalValueUSD = tt.valueUSD
			assert.Equal(t, tt.expected, c.IsLiquidatable(acc))
		})
	}
}

func TestSelectStrategy(t *testing.T) {
	tests := []struct {
		name     string
		mode     StrategyKind
		fallback bool
		version  int
		expected StrategyKind
		wantErr  error
	}{
		{"full always applies", StrategyFull, false, 300, StrategyFull, nil},
		{"partial on v3.00", StrategyPartial, false, 300, StrategyPartial, nil},
		{"partial below v3.00 without fallback", StrategyPartial, false, 210, StrategyPartial, ErrStrategyInapplicable},
		{"partial below v3.00 with fallback", StrategyPartial, true, 210, StrategyFull, nil},
		{"deleverage on v3.10", StrategyDeleverage, false, 310, StrategyDeleverage, nil},
		{"deleverage on v3.19", StrategyDeleverage, false, 319, StrategyDeleverage, nil},
		{"deleverage above range with fallback", StrategyDeleverage, true, 320, StrategyFull, nil},
		{"deleverage below range without fallback", StrategyDeleverage, false, 300, StrategyDeleverage, ErrStrategyInapplicable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClassifier(testLog(), 9800, tt.mode, tt.fallback)
			kind, err := c.SelectStrategy(testAccount(9500, tt.version))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.expected, kind)
		})
	}
}

func TestParseStrategyKind(t *testing.T) {
	for _, mode := range []string{"full", "partial", "batch", "deleverage"} {
		kind, ok := ParseStrategyKind(mode)
		assert.True(t, ok, mode)
		assert.Equal(t, mode, kind.String())
	}
	_, ok := ParseStrategyKind("bogus")
	assert.False(t, ok)
}
