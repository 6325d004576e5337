package liquidator

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
)

// Bot permission bits mirrored from the bot-list contract.
const (
	PermissionAddCollateral      = 1 << 0
	PermissionIncreaseDebt       = 1 << 1
	PermissionDecreaseDebt       = 1 << 2
	PermissionEnableToken        = 1 << 3
	PermissionDisableToken       = 1 << 4
	PermissionWithdrawCollateral = 1 << 5
	PermissionUpdateQuota        = 1 << 6
)

// DeleverageBotPermissions is the fixed bitmask granted during pre-flight.
var DeleverageBotPermissions = big.NewInt(
	PermissionDecreaseDebt | PermissionDisableToken | PermissionWithdrawCollateral | PermissionUpdateQuota,
)

// PreFlightMutator performs the account state mutation some strategies need
// before liquidation is valid. Only the deleverage family has a non-trivial
// implementation; other strategies never reach it.
type PreFlightMutator struct {
	client      ChainClient
	bot         common.Address
	permissions *big.Int
	optimistic  bool
	log         Log
}

func NewPreFlightMutator(log Log, client ChainClient, bot common.Address, optimistic bool) *PreFlightMutator {
	return &PreFlightMutator{
		client:      client,
		bot:         bot,
		permissions: DeleverageBotPermissions,
		optimistic:  optimistic,
		log:         log,
	}
}

// MakeLiquidatable grants the deleverage bot its permission bitmask on the
// account, acting as the account owner. Impersonating the owner only works
// against a forked chain, so the operation is refused outright outside
// optimistic mode. A reverted grant is terminal for this account this cycle.
func (m *PreFlightMutator) MakeLiquidatable(ctx context.Context, account *CreditAccount) error {
	if account.FacadeVersion < MinDeleverageVersion || account.FacadeVersion > MaxDeleverageVersion {
		return errors.Wrapf(ErrUnsupportedFacadeVersion,
			"deleverage requires facade in [%d, %d], account has %d",
			MinDeleverageVersion, MaxDeleverageVersion, account.FacadeVersion)
	}
	if !m.optimistic {
		return ErrImpersonationForbidden
	}

	call, err := EncodeSetBotPermissions(account.CreditFacade, account.Address, m.bot, m.permissions)
	if err != nil {
		return err
	}

	txHash, err := m.client.ImpersonatedSubmit(ctx, account.Borrower, call)
	if err != nil {
		return errors.Wrap(err, "submit bot permission grant")
	}
	receipt, err := m.client.WaitForReceipt(ctx, txHash, DefaultReceiptTimeout)
	if err != nil {
		return errors.Wrap(err, "wait for bot permission grant")
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return errors.Errorf("bot permission grant %s reverted", txHash.Hex())
	}

	m.log.Debug().
		Str("account", account.Address.Hex()).
		Str("bot", m.bot.Hex()).
		Msg("deleverage bot permissions granted")
	return nil
}
