package liquidator

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

func TestTotalDebt(t *testing.T) {
	acc := testAccount(9500, 310)
	acc.AccruedInterest = big.NewInt(30_000)
	acc.AccruedFees = big.NewInt(5_000)
	assert.Equal(t, big.NewInt(1_035_000), acc.TotalDebt())

	// Nil components read as zero.
	acc.AccruedInterest = nil
	acc.AccruedFees = nil
	assert.Equal(t, big.NewInt(1_000_000), acc.TotalDebt())
}

func TestUnderlyingBalance(t *testing.T) {
	acc := testAccount(9500, 310)
	other := common.HexToAddress("0x3333000000000000000000000000000000003333")
	acc.Balances = []TokenBalance{
		{Token: other, Balance: big.NewInt(77), Enabled: true},
		{Token: acc.Underlying, Balance: big.NewInt(42), Enabled: false},
	}
	// A disabled underlying balance does not count.
	assert.Zero(t, acc.UnderlyingBalance().Sign())

	acc.Balances[1].Enabled = true
	assert.Equal(t, big.NewInt(42), acc.UnderlyingBalance())
}

func TestHasForbiddenTokens(t *testing.T) {
	acc := testAccount(9500, 310)
	acc.Balances = []TokenBalance{
		{Token: acc.Underlying, Balance: big.NewInt(1), Enabled: true},
		{Token: common.HexToAddress("0x3333000000000000000000000000000000003333"), Enabled: false, Forbidden: true},
	}
	// Forbidden but disabled does not count.
	assert.False(t, acc.HasForbiddenTokens())

	acc.Balances[1].Enabled = true
	assert.True(t, acc.HasForbiddenTokens())
}
