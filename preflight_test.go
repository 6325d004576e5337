package liquidator

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
)

func TestMakeLiquidatableVersionGate(t *testing.T) {
	client := newFakeClient()
	m := NewPreFlightMutator(testLog(), client, common.HexToAddress("0x5555000000000000000000000000000000005555"), true)

	tests := []struct {
		name    string
		version int
		wantErr error
	}{
		{"below window", 300, ErrUnsupportedFacadeVersion},
		{"window start", 310, nil},
		{"window end", 319, nil},
		{"above window", 320, ErrUnsupportedFacadeVersion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := m.MakeLiquidatable(context.Background(), testAccount(9500, tt.version))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestMakeLiquidatableRefusedOutsideOptimistic(t *testing.T) {
	client := newFakeClient()
	m := NewPreFlightMutator(testLog(), client, common.HexToAddress("0x5555000000000000000000000000000000005555"), false)

	err := m.MakeLiquidatable(context.Background(), testAccount(9500, 310))
	assert.ErrorIs(t, err, ErrImpersonationForbidden)
	assert.Empty(t, client.impersonated)
}

func TestMakeLiquidatableImpersonatesBorrower(t *testing.T) {
	client := newFakeClient()
	m := NewPreFlightMutator(testLog(), client, common.HexToAddress("0x5555000000000000000000000000000000005555"), true)

	acc := testAccount(9500, 310)
	assert.NoError(t, m.MakeLiquidatable(context.Background(), acc))
	assert.Equal(t, []common.Address{acc.Borrower}, client.impersonated)
}

func TestMakeLiquidatableRevertedGrantIsTerminal(t *testing.T) {
	client := newFakeClient()
	// First impersonated submit yields this hash.
	revertedHash := common.BigToHash(big.NewInt(1001))
	client.receipts[revertedHash] = &types.Receipt{Status: types.ReceiptStatusFailed, TxHash: revertedHash}
	m := NewPreFlightMutator(testLog(), client, common.HexToAddress("0x5555000000000000000000000000000000005555"), true)

	err := m.MakeLiquidatable(context.Background(), testAccount(9500, 310))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "reverted")
}
