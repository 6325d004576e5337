package liquidator

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
)

// AttemptState tracks one liquidation attempt through its state machine:
// Built -> Simulated -> Submitted -> Mined, or SimulationFailed.
type AttemptState string

const (
	StateBuilt            AttemptState = "built"
	StateSimulated        AttemptState = "simulated"
	StateSimulationFailed AttemptState = "simulation_failed"
	StateSubmitted        AttemptState = "submitted"
	StateMinedSuccess     AttemptState = "mined_success"
	StateMinedReverted    AttemptState = "mined_reverted"
)

type (
	// LiquidationOutcome is produced once per attempt and handed to the
	// reporter.
	LiquidationOutcome struct {
		State     AttemptState
		TxHash    common.Hash
		Receipt   *types.Receipt
		GasUsed   uint64
		CallCount int
		ErrShort  string
		ErrLong   string
		TraceRef  string
		Verdict   *RevertVerdict
	}

	CoordinatorOptions struct {
		Optimistic      bool
		PartialFallback bool
		Concurrency     int
		ReceiptTimeout  time.Duration
	}

	// Coordinator drives classify -> pre-flight -> preview -> simulate ->
	// execute -> report per account, with bounded concurrency across
	// accounts and serialized submission from the single liquidator wallet.
	Coordinator struct {
		client     ChainClient
		builder    *PreviewBuilder
		classifier *Classifier
		mutator    *PreFlightMutator
		registry   *Registry
		reporter   *Reporter
		opts       CoordinatorOptions
		log        Log

		submitMu sync.Mutex
		wg       sync.WaitGroup

		shutdownOnce sync.Once
		done         chan struct{}
	}
)

func NewCoordinator(log Log, client ChainClient, builder *PreviewBuilder, classifier *Classifier, mutator *PreFlightMutator, registry *Registry, reporter *Reporter, opts CoordinatorOptions) *Coordinator {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.ReceiptTimeout <= 0 {
		opts.ReceiptTimeout = DefaultReceiptTimeout
	}
	return &Coordinator{
		client:     client,
		builder:    builder,
		classifier: classifier,
		mutator:    mutator,
		registry:   registry,
		reporter:   reporter,
		opts:       opts,
		log:        log,
		done:       make(chan struct{}),
	}
}

// ProcessCycle handles one scan's worth of account snapshots. Errors local
// to one account never abort the cycle for others.
func (c *Coordinator) ProcessCycle(ctx context.Context, accounts []*CreditAccount, profiles map[common.Address]*CreditManagerProfile) {
	select {
	case <-c.done:
		return
	default:
	}

	liquidatable := make([]*CreditAccount, 0, len(accounts))
	for _, acc := range accounts {
		if c.classifier.IsLiquidatable(acc) {
			liquidatable = append(liquidatable, acc)
		}
	}
	if len(liquidatable) == 0 {
		return
	}
	c.log.Info().Int("count", len(liquidatable)).Msg("liquidatable accounts found")

	if c.classifier.Mode() == StrategyBatch {
		c.processBatches(ctx, liquidatable, profiles)
		return
	}

	sem := make(chan struct{}, c.opts.Concurrency)
	for _, acc := range liquidatable {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case sem <- struct{}{}:
		}
		c.wg.Add(1)
		go func(acc *CreditAccount) {
			defer c.wg.Done()
			defer func() { <-sem }()
			c.processAccount(ctx, acc, profiles[acc.CreditManager])
		}(acc)
	}
	c.wg.Wait()
}

func (c *Coordinator) processAccount(ctx context.Context, account *CreditAccount, profile *CreditManagerProfile) {
	// Accounts are re-fetched every cycle but the profile index is built at
	// launch; a market deployed since then has no profile yet.
	if profile == nil {
		c.log.Warn().
			Str("account", account.Address.Hex()).
			Str("creditManager", account.CreditManager.Hex()).
			Msg("credit manager missing from profile index, skipping account")
		return
	}

	kind, err := c.classifier.SelectStrategy(account)
	if err != nil {
		// Already logged as a warning by the classifier; not an error.
		return
	}

	c.reporter.AccountStart(account)

	outcome := c.attempt(ctx, account, profile, kind)
	if outcome.failed() && kind == StrategyPartial && c.opts.PartialFallback && !outcome.benign() {
		c.log.Warn().
			Str("account", account.Address.Hex()).
			Str("error", outcome.ErrShort).
			Msg("partial liquidation failed, falling back to full")
		outcome = c.attempt(ctx, account, profile, StrategyFull)
	}

	c.report(ctx, account, kind, outcome)
}

func (o *LiquidationOutcome) failed() bool {
	return o.State == StateSimulationFailed || o.State == StateMinedReverted || o.ErrShort != ""
}

func (o *LiquidationOutcome) benign() bool {
	return o.Verdict != nil && o.Verdict.Class == RevertBenign
}

// attempt runs pre-flight, preview, simulation and, when not in optimistic
// mode, real execution for one account and one strategy.
func (c *Coordinator) attempt(ctx context.Context, account *CreditAccount, profile *CreditManagerProfile, kind StrategyKind) *LiquidationOutcome {
	if kind.RequiresPreFlight() {
		if err := c.mutator.MakeLiquidatable(ctx, account); err != nil {
			return failedOutcome(StateBuilt, errors.Wrap(err, "pre-flight"))
		}
	}

	preview, err := c.builder.Preview(ctx, account, profile, kind)
	if err != nil {
		return failedOutcome(StateBuilt, err)
	}

	outcome := &LiquidationOutcome{State: StateBuilt, CallCount: len(preview.Calls)}
	if _, err := c.client.SimulateCall(ctx, c.builder.opts.Wallet, preview.Calls); err != nil {
		return c.classifyFailure(StateSimulationFailed, err)
	}
	outcome.State = StateSimulated

	if c.opts.Optimistic {
		return outcome
	}

	txHash, err := c.submit(ctx, preview.Calls)
	if err != nil {
		return failedOutcome(StateSimulated, errors.Wrap(err, "submit"))
	}
	outcome.State = StateSubmitted
	outcome.TxHash = txHash

	receipt, err := c.client.WaitForReceipt(ctx, txHash, c.opts.ReceiptTimeout)
	if err != nil {
		return failedOutcome(StateSubmitted, errors.Wrap(err, "wait for receipt"))
	}
	outcome.Receipt = receipt
	outcome.GasUsed = receipt.GasUsed
	if receipt.Status != types.ReceiptStatusSuccessful {
		outcome.State = StateMinedReverted
		outcome.ErrShort = "transaction reverted"
		outcome.ErrLong = "liquidation transaction " + txHash.Hex() + " reverted on-chain"
		return outcome
	}
	outcome.State = StateMinedSuccess
	return outcome
}

// submit serializes transaction submission: the liquidator wallet is a
// single nonce sequence.
func (c *Coordinator) submit(ctx context.Context, calls []Call) (common.Hash, error) {
	c.submitMu.Lock()
	defer c.submitMu.Unlock()
	select {
	case <-c.done:
		return common.Hash{}, ErrShutdown
	default:
	}
	return c.client.SubmitTransaction(ctx, calls)
}

func (c *Coordinator) classifyFailure(state AttemptState, err error) *LiquidationOutcome {
	outcome := failedOutcome(state, err)
	if re, ok := AsRevert(err); ok {
		verdict := ClassifyRevert(re.Data)
		outcome.Verdict = &verdict
		if verdict.Class == RevertBenign {
			outcome.ErrShort = verdict.Reason
		}
	}
	return outcome
}

func failedOutcome(state AttemptState, err error) *LiquidationOutcome {
	return &LiquidationOutcome{
		State:    state,
		ErrShort: TruncateError(err.Error()),
		ErrLong:  err.Error(),
	}
}

func (c *Coordinator) report(ctx context.Context, account *CreditAccount, kind StrategyKind, outcome *LiquidationOutcome) {
	switch {
	case outcome.benign():
		c.log.Debug().
			Str("account", account.Address.Hex()).
			Str("reason", outcome.Verdict.Reason).
			Msg("expected revert, position raced or recovered")
		c.reporter.Skipped(account, outcome.Verdict.Reason)
	case outcome.failed():
		c.log.Error().
			Str("account", account.Address.Hex()).
			Str("strategy", kind.String()).
			Str("state", string(outcome.State)).
			Str("error", outcome.ErrShort).
			Msg("liquidation attempt failed")
		c.reporter.AccountError(account, kind, outcome)
	default:
		c.log.Info().
			Str("account", account.Address.Hex()).
			Str("strategy", kind.String()).
			Uint64("gasUsed", outcome.GasUsed).
			Msg("account liquidated")
		c.reporter.AccountSuccess(account, kind, outcome)
	}
	if c.opts.Optimistic {
		c.reporter.RecordOptimistic(ctx, account, kind, outcome)
	}
}

// processBatches groups liquidatable accounts by their resolved liquidator
// instance; accounts with no instance fall through to individual full
// liquidation.
func (c *Coordinator) processBatches(ctx context.Context, accounts []*CreditAccount, profiles map[common.Address]*CreditManagerProfile) {
	groups := make(map[*LiquidatorInstance][]*CreditAccount)
	var leftovers []*CreditAccount
	for _, acc := range accounts {
		if !StrategyBatch.IsApplicable(acc) {
			leftovers = append(leftovers, acc)
			continue
		}
		inst := c.registry.Resolve(acc.CreditManager)
		if inst == nil {
			leftovers = append(leftovers, acc)
			continue
		}
		groups[inst] = append(groups[inst], acc)
	}

	for inst, group := range groups {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		default:
		}
		c.processBatch(ctx, inst, group)
	}

	for _, acc := range leftovers {
		profile, ok := profiles[acc.CreditManager]
		if !ok || profile == nil {
			c.log.Warn().
				Str("account", acc.Address.Hex()).
				Str("creditManager", acc.CreditManager.Hex()).
				Msg("credit manager missing from profile index, skipping account")
			continue
		}
		c.reporter.AccountStart(acc)
		outcome := c.attempt(ctx, acc, profile, StrategyFull)
		c.report(ctx, acc, StrategyFull, outcome)
	}
}

func (c *Coordinator) processBatch(ctx context.Context, inst *LiquidatorInstance, accounts []*CreditAccount) {
	preview, err := c.builder.PreviewBatch(ctx, inst, accounts)
	if err != nil {
		c.log.Error().Err(err).Int("accounts", len(accounts)).Msg("batch preview failed")
		c.reporter.BatchError(accounts, err)
		return
	}

	if _, err := c.client.SimulateCall(ctx, c.builder.opts.Wallet, preview.Calls); err != nil {
		outcome := c.classifyFailure(StateSimulationFailed, err)
		if outcome.benign() {
			c.log.Debug().Str("reason", outcome.Verdict.Reason).Msg("batch no longer liquidatable")
			return
		}
		c.reporter.BatchError(preview.Accounts, err)
		return
	}

	if c.opts.Optimistic {
		for _, acc := range preview.Accounts {
			c.reporter.RecordOptimistic(ctx, acc, StrategyBatch, &LiquidationOutcome{
				State:     StateSimulated,
				CallCount: len(preview.Calls),
			})
		}
		return
	}

	txHash, err := c.submit(ctx, preview.Calls)
	if err != nil {
		c.reporter.BatchError(preview.Accounts, errors.Wrap(err, "submit batch"))
		return
	}
	receipt, err := c.client.WaitForReceipt(ctx, txHash, c.opts.ReceiptTimeout)
	if err != nil {
		c.reporter.BatchError(preview.Accounts, errors.Wrap(err, "wait for batch receipt"))
		return
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		c.reporter.BatchFinished(nil, preview.Accounts, receipt)
		return
	}

	// The on-chain estimate can diverge from the final result; the receipt
	// logs are the source of truth for who actually got liquidated.
	liquidated, notLiquidated := PartitionBatch(receipt, preview.Accounts)
	c.reporter.BatchFinished(liquidated, notLiquidated, receipt)
}

// PartitionBatch splits the submitted set into the accounts the receipt
// proves liquidated and the remainder. The two partitions always cover the
// submitted set exactly.
func PartitionBatch(receipt *types.Receipt, submitted []*CreditAccount) (liquidated, notLiquidated []*CreditAccount) {
	seen := make(map[common.Address]bool)
	for _, lg := range receipt.Logs {
		if len(lg.Topics) >= 2 && lg.Topics[0] == LiquidateEventTopic {
			seen[common.BytesToAddress(lg.Topics[1].Bytes()[12:])] = true
		}
	}
	for _, acc := range submitted {
		if seen[acc.Address] {
			liquidated = append(liquidated, acc)
		} else {
			notLiquidated = append(notLiquidated, acc)
		}
	}
	return liquidated, notLiquidated
}

// Shutdown stops accepting work, waits for in-flight pipelines and flushes
// pending notifications. Intended to be called from a lifecycle hook on
// SIGINT or SIGTERM.
func (c *Coordinator) Shutdown() {
	c.shutdownOnce.Do(func() {
		close(c.done)
		c.wg.Wait()
		c.reporter.Flush()
	})
}
