package liquidator

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

type (
	// LiquidationPreview is the call plan for one account, built fresh per
	// attempt and never persisted.
	LiquidationPreview struct {
		Calls []Call

		Amount    *big.Int
		MinAmount *big.Int

		OptimalAmount   *big.Int
		FlashLoanAmount *big.Int
		RepaidAmount    *big.Int

		UnderlyingBalance *big.Int
		PriceUpdateCount  int
	}

	// BatchPreview is the call plan covering several accounts at once.
	// Accounts holds the on-chain estimate's liquidatable subset; the final
	// receipt can still diverge from it.
	BatchPreview struct {
		Calls    []Call
		Accounts []*CreditAccount
	}

	PreviewBuilderOptions struct {
		// Wallet receives seized funds on full liquidation.
		Wallet      common.Address
		SlippageBps int64
		// OracleNeedsUpdates controls whether partial previews carry price
		// updates; some oracles push prices and need none.
		OracleNeedsUpdates bool
		// OptimalHealthFactor is the target the partial repayment restores,
		// in basis points.
		OptimalHealthFactor int64
		// BotMinHealthFactor is the deleverage bot's own boundary.
		BotMinHealthFactor int64
	}

	PreviewBuilder struct {
		client     ChainClient
		oracle     PriceOracle
		pathFinder PathFinder
		registry   *Registry
		opts       PreviewBuilderOptions
		log        Log
	}
)

func NewPreviewBuilder(log Log, client ChainClient, oracle PriceOracle, pathFinder PathFinder, registry *Registry, opts PreviewBuilderOptions) *PreviewBuilder {
	if opts.SlippageBps <= 0 {
		opts.SlippageBps = DefaultSlippageBps
	}
	if opts.OptimalHealthFactor <= 0 {
		opts.OptimalHealthFactor = HealthFactorBase + 300
	}
	if opts.BotMinHealthFactor <= 0 {
		opts.BotMinHealthFactor = DefaultBotMinHealthFactor
	}
	return &PreviewBuilder{
		client:     client,
		oracle:     oracle,
		pathFinder: pathFinder,
		registry:   registry,
		opts:       opts,
		log:        log,
	}
}

// Preview builds the simulated call sequence for one classified account.
// Batch plans are built with PreviewBatch instead.
func (b *PreviewBuilder) Preview(ctx context.Context, account *CreditAccount, profile *CreditManagerProfile, kind StrategyKind) (*LiquidationPreview, error) {
	switch kind {
	case StrategyFull:
		return b.previewFull(ctx, account, profile)
	case StrategyPartial:
		return b.previewPartial(ctx, account)
	case StrategyDeleverage:
		return b.previewDeleverage(ctx, account)
	default:
		return nil, errors.Errorf("no single-account preview for strategy %s", kind)
	}
}

func (b *PreviewBuilder) previewFull(ctx context.Context, account *CreditAccount, profile *CreditManagerProfile) (*LiquidationPreview, error) {
	path, err := b.pathFinder.FindBestClosePath(ctx, account, profile, b.opts.SlippageBps)
	if err != nil {
		return nil, errors.Wrap(err, "find close path")
	}
	if path == nil {
		return nil, ErrNoViablePath
	}

	// Liquidation requires up-to-the-block prices, so fresh update calls
	// always lead the sequence.
	updates, err := b.oracle.BuildUpdateCalls(ctx, account, true)
	if err != nil {
		return nil, errors.Wrap(err, "build price updates")
	}

	liqCall, err := EncodeLiquidateCall(account.CreditFacade, account.Address, b.opts.Wallet, path.Calls)
	if err != nil {
		return nil, err
	}

	calls := make([]Call, 0, len(updates)+1)
	calls = append(calls, updates...)
	calls = append(calls, liqCall)

	return &LiquidationPreview{
		Calls:             calls,
		Amount:            path.Amount,
		MinAmount:         path.MinAmount,
		UnderlyingBalance: account.UnderlyingBalance(),
		PriceUpdateCount:  len(updates),
	}, nil
}

func (b *PreviewBuilder) previewPartial(ctx context.Context, account *CreditAccount) (*LiquidationPreview, error) {
	inst := b.registry.Resolve(account.CreditManager)
	if inst == nil {
		return nil, ErrNoPartialLiquidator
	}

	optCall, err := EncodeGetOptimalLiquidation(inst.Address, account.Address, big.NewInt(b.opts.OptimalHealthFactor))
	if err != nil {
		return nil, err
	}
	data, err := b.client.SimulateCall(ctx, b.opts.Wallet, []Call{optCall})
	if err != nil {
		return nil, errors.Wrap(err, "estimate optimal liquidation")
	}
	opt, err := DecodeOptimalLiquidation(data)
	if err != nil {
		return nil, err
	}
	if !opt.IsOptimalRepayable {
		return nil, errors.Wrap(ErrNoViablePath, "optimal repayment not repayable from flash loan")
	}

	var updates []Call
	if b.opts.OracleNeedsUpdates {
		updates, err = b.oracle.BuildUpdateCalls(ctx, account, true)
		if err != nil {
			return nil, errors.Wrap(err, "build price updates")
		}
	}

	liqCall, err := EncodePartialLiquidate(inst.Address, account.CreditManager, account.Address,
		opt.TokenOut, opt.OptimalAmount, opt.FlashLoanAmount, updates)
	if err != nil {
		return nil, err
	}

	return &LiquidationPreview{
		Calls:             []Call{liqCall},
		MinAmount:         ApplySlippage(opt.OptimalAmount, b.opts.SlippageBps),
		OptimalAmount:     opt.OptimalAmount,
		FlashLoanAmount:   opt.FlashLoanAmount,
		RepaidAmount:      opt.RepaidAmount,
		UnderlyingBalance: account.UnderlyingBalance(),
		PriceUpdateCount:  len(updates),
	}, nil
}

// previewDeleverage encodes a bot multicall against the credit facade. No
// flash loan or swap amount is computed; the bot contract enforces its own
// min-health-factor boundary, which is also the comparator used here.
func (b *PreviewBuilder) previewDeleverage(ctx context.Context, account *CreditAccount) (*LiquidationPreview, error) {
	if account.HealthFactor >= b.opts.BotMinHealthFactor {
		return nil, errors.Wrapf(ErrAccountNotLiquidatable,
			"health factor %d above bot boundary %d", account.HealthFactor, b.opts.BotMinHealthFactor)
	}

	updates, err := b.oracle.BuildUpdateCalls(ctx, account, true)
	if err != nil {
		return nil, errors.Wrap(err, "build price updates")
	}

	botCall, err := EncodeBotMulticall(account.CreditFacade, account.Address, updates)
	if err != nil {
		return nil, err
	}

	return &LiquidationPreview{
		Calls:             []Call{botCall},
		UnderlyingBalance: account.UnderlyingBalance(),
		PriceUpdateCount:  len(updates),
	}, nil
}

// PreviewBatch estimates which of the given accounts are liquidatable via a
// simulated read, then assembles a single liquidateBatch call over that
// subset. All accounts must resolve to the same liquidator instance; the
// coordinator groups them beforehand.
func (b *PreviewBuilder) PreviewBatch(ctx context.Context, inst *LiquidatorInstance, accounts []*CreditAccount) (*BatchPreview, error) {
	if len(accounts) == 0 {
		return nil, errors.New("empty batch")
	}

	addrs := make([]common.Address, len(accounts))
	byAddr := make(map[common.Address]*CreditAccount, len(accounts))
	for i, acc := range accounts {
		addrs[i] = acc.Address
		byAddr[acc.Address] = acc
	}

	estCall, err := EncodeEstimateBatch(inst.Address, addrs)
	if err != nil {
		return nil, err
	}
	data, err := b.client.SimulateCall(ctx, b.opts.Wallet, []Call{estCall})
	if err != nil {
		return nil, errors.Wrap(err, "estimate batch liquidation")
	}
	est, err := DecodeBatchEstimate(data)
	if err != nil {
		return nil, err
	}
	if len(est.Liquidatable) == 0 {
		return nil, ErrNoViablePath
	}

	subset := make([]*CreditAccount, 0, len(est.Liquidatable))
	facades := make([]common.Address, 0, len(est.Liquidatable))
	for _, addr := range est.Liquidatable {
		acc, ok := byAddr[addr]
		if !ok {
			return nil, errors.Errorf("estimate returned unknown account %s", addr.Hex())
		}
		subset = append(subset, acc)
		facades = append(facades, acc.CreditFacade)
	}

	updates, err := b.oracle.BuildUpdateCalls(ctx, subset[0], true)
	if err != nil {
		return nil, errors.Wrap(err, "build price updates")
	}

	batchCall, err := EncodeLiquidateBatch(inst.Address, facades, est.Liquidatable, est.CallData)
	if err != nil {
		return nil, err
	}

	calls := make([]Call, 0, len(updates)+1)
	calls = append(calls, updates...)
	calls = append(calls, batchCall)

	return &BatchPreview{Calls: calls, Accounts: subset}, nil
}
