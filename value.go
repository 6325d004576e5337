package liquidator

import (
	"math/big"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// CalcValue prices an amount, optionally scaled by a collateral weight.
func CalcValue(amount decimal.Decimal, price decimal.Decimal, weight *decimal.Decimal) (decimal.Decimal, error) {
	if amount.IsZero() {
		return decimal.Zero, nil
	}

	weightedAmount := amount
	if weight != nil {
		weightedAmount = amount.Mul(*weight)
	}
	return weightedAmount.Mul(price), nil
}

// CalcAmount converts a USD value back into token units.
func CalcAmount(value decimal.Decimal, price decimal.Decimal) (decimal.Decimal, error) {
	if price.IsZero() {
		return decimal.Zero, errors.New("price is zero")
	}
	return value.Div(price), nil
}

// HealthFactorBps computes collateral-over-debt in basis points with the
// liquidation discount applied to collateral. Zero debt reads as fully
// healthy.
func HealthFactorBps(collateralUSD, debtUSD decimal.Decimal, liquidationDiscount uint16) int64 {
	if debtUSD.IsZero() {
		return HealthFactorBase
	}
	discounted := collateralUSD.
		Mul(decimal.NewFromInt(int64(liquidationDiscount))).
		Div(HUNDRED_PERCENT)
	return discounted.Div(debtUSD).Mul(HUNDRED_PERCENT).IntPart()
}

// ApplySlippage returns amount reduced by slippageBps, floor-rounded. Used to
// derive minAmount bounds for swap legs.
func ApplySlippage(amount *big.Int, slippageBps int64) *big.Int {
	if amount == nil {
		return new(big.Int)
	}
	out := new(big.Int).Mul(amount, big.NewInt(HealthFactorBase-slippageBps))
	return out.Div(out, big.NewInt(HealthFactorBase))
}

// SeizableValueUSD is the discounted collateral value a liquidator can seize,
// net of the protocol liquidation fee.
func SeizableValueUSD(totalValueUSD decimal.Decimal, liquidationDiscount, feeLiquidation uint16) decimal.Decimal {
	discount := decimal.NewFromInt(int64(liquidationDiscount)).Div(HUNDRED_PERCENT)
	feeKept := ONE.Sub(decimal.NewFromInt(int64(feeLiquidation)).Div(HUNDRED_PERCENT))
	return totalValueUSD.Mul(discount).Mul(feeKept)
}
