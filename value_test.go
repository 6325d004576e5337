package liquidator

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCalcValue(t *testing.T) {
	weight := decimal.NewFromFloat(0.8)

	tests := []struct {
		name     string
		amount   decimal.Decimal
		price    decimal.Decimal
		weight   *decimal.Decimal
		expected decimal.Decimal
	}{
		{"zero amount", decimal.Zero, decimal.NewFromInt(2000), nil, decimal.Zero},
		{"unweighted", decimal.NewFromInt(3), decimal.NewFromInt(2000), nil, decimal.NewFromInt(6000)},
		{"weighted", decimal.NewFromInt(10), decimal.NewFromInt(100), &weight, decimal.NewFromInt(800)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			value, err := CalcValue(tt.amount, tt.price, tt.weight)
			assert.NoError(t, err)
			assert.True(t, tt.expected.Equal(value), value.String())
		})
	}
}

func TestCalcAmount(t *testing.T) {
	amount, err := CalcAmount(decimal.NewFromInt(6000), decimal.NewFromInt(2000))
	assert.NoError(t, err)
	assert.True(t, decimal.NewFromInt(3).Equal(amount))

	_, err = CalcAmount(decimal.NewFromInt(6000), decimal.Zero)
	assert.Error(t, err)
}

func TestHealthFactorBps(t *testing.T) {
	tests := []struct {
		name       string
		collateral decimal.Decimal
		debt       decimal.Decimal
		discount   uint16
		expected   int64
	}{
		{"zero debt is fully healthy", decimal.NewFromInt(1000), decimal.Zero, 9600, HealthFactorBase},
		{"no discount at parity", decimal.NewFromInt(1000), decimal.NewFromInt(1000), 10000, 10000},
		{"discounted collateral", decimal.NewFromInt(1000), decimal.NewFromInt(1000), 9600, 9600},
		{"underwater", decimal.NewFromInt(500), decimal.NewFromInt(1000), 9600, 4800},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, HealthFactorBps(tt.collateral, tt.debt, tt.discount))
		})
	}
}

func TestApplySlippage(t *testing.T) {
	assert.Equal(t, big.NewInt(9950), ApplySlippage(big.NewInt(10000), 50))
	assert.Equal(t, big.NewInt(99), ApplySlippage(big.NewInt(100), 50))
	assert.Zero(t, ApplySlippage(nil, 50).Sign(), "nil amount reads as zero")
}

func TestSeizableValueUSD(t *testing.T) {
	// 1000 * 96% = 960 gross, minus the 1.5% protocol fee = 945.6.
	got := SeizableValueUSD(decimal.NewFromInt(1000), 9600, 150)
	assert.True(t, decimal.NewFromFloat(945.6).Equal(got), got.String())
}
