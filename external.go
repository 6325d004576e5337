package liquidator

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

type (
	// Call is one element of an ordered call plan: oracle price updates
	// first, liquidation calls second.
	Call struct {
		Target   common.Address `json:"target"`
		CallData []byte         `json:"callData"`
	}

	// ClosePath is the path finder's answer for a full liquidation.
	ClosePath struct {
		Amount    *big.Int `json:"amount"`
		MinAmount *big.Int `json:"minAmount"`
		Calls     []Call   `json:"calls"`
	}

	// Scanner produces fresh account and manager snapshots once per cycle.
	Scanner interface {
		Accounts(ctx context.Context) ([]*CreditAccount, error)
		Managers(ctx context.Context) ([]*CreditManagerProfile, error)
	}

	// ChainClient is the transport boundary. Network failures surface as
	// plain errors; on-chain reverts surface as *RevertError so callers can
	// tell the two apart.
	ChainClient interface {
		SimulateCall(ctx context.Context, from common.Address, calls []Call) ([]byte, error)
		SubmitTransaction(ctx context.Context, calls []Call) (common.Hash, error)
		WaitForReceipt(ctx context.Context, txHash common.Hash, timeout time.Duration) (*types.Receipt, error)
		MulticallRead(ctx context.Context, reads []Call) ([][]byte, error)
		DeployContract(ctx context.Context, initCode []byte, salt common.Hash) (common.Address, error)
		HasCode(ctx context.Context, addr common.Address) (bool, error)

		// ImpersonatedSubmit sends a call as from; only forked chains
		// support it and callers must gate it on optimistic mode.
		ImpersonatedSubmit(ctx context.Context, from common.Address, call Call) (common.Hash, error)
	}

	// PriceOracle builds on-demand price update calls to prepend to a
	// liquidation call sequence.
	PriceOracle interface {
		BuildUpdateCalls(ctx context.Context, account *CreditAccount, fresh bool) ([]Call, error)
	}

	PathFinder interface {
		FindBestClosePath(ctx context.Context, account *CreditAccount, profile *CreditManagerProfile, slippageBps int64) (*ClosePath, error)
	}

	// Notifier delivery is fire-and-forget; the core never waits on it.
	Notifier interface {
		Notify(event Event)
		Alert(event Event)
	}

	// OutcomeStore persists optimistic-mode attempt records.
	OutcomeStore interface {
		SaveOutcome(ctx context.Context, rec *OptimisticRecord) error
	}

	// OptimisticRecord is one row per optimistic attempt.
	OptimisticRecord struct {
		Account       common.Address
		CreditManager common.Address
		Strategy      string
		Passed        bool
		Error         string
		GasUsed       uint64
		CallCount     int
		TraceRef      string
		CreatedAt     int64
	}
)
