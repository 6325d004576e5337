package liquidator

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/facebookgo/clock"
	"github.com/gofrs/uuid"
)

type EventKind string

const (
	EventStart            EventKind = "start"
	EventSuccess          EventKind = "success"
	EventError            EventKind = "error"
	EventSkipped          EventKind = "skipped"
	EventBatchFinished    EventKind = "batch-finished"
	EventLowBalance       EventKind = "low-balance"
	EventProviderRotation EventKind = "provider-rotation"
)

// Event is one notification. Key is a deterministic de-duplication key so a
// delivery layer can suppress repeats within a cooldown window; computing it
// is this component's job, suppression is not.
type Event struct {
	Kind     EventKind
	Key      string
	Message  string
	Severity StatusCode
	At       time.Time
}

// Reporter classifies completed and failed attempts into notification
// events and persists optimistic-mode records.
type Reporter struct {
	clk      clock.Clock
	notifier Notifier
	store    OutcomeStore
	log      Log
}

func NewReporter(log Log, clk clock.Clock, notifier Notifier, store OutcomeStore) *Reporter {
	if clk == nil {
		clk = clock.New()
	}
	return &Reporter{
		clk:      clk,
		notifier: notifier,
		store:    store,
		log:      log,
	}
}

func (r *Reporter) AccountStart(account *CreditAccount) {
	r.notifier.Notify(Event{
		Kind:     EventStart,
		Key:      "start-" + account.Address.Hex(),
		Message:  fmt.Sprintf("Liquidating account %s (HF %d)", account.Address.Hex(), account.HealthFactor),
		Severity: StatusHealthy,
		At:       r.clk.Now(),
	})
}

func (r *Reporter) AccountSuccess(account *CreditAccount, kind StrategyKind, outcome *LiquidationOutcome) {
	msg := fmt.Sprintf("Account %s liquidated %s", account.Address.Hex(), kind.Adverb())
	if outcome.TxHash != (common.Hash{}) {
		msg += fmt.Sprintf(" in tx %s (gas %d)", outcome.TxHash.Hex(), outcome.GasUsed)
	}
	r.notifier.Notify(Event{
		Kind:     EventSuccess,
		Key:      "success-" + account.Address.Hex(),
		Message:  msg,
		Severity: StatusHealthy,
		At:       r.clk.Now(),
	})
}

func (r *Reporter) AccountError(account *CreditAccount, kind StrategyKind, outcome *LiquidationOutcome) {
	short := TruncateError(outcome.ErrShort)
	r.notifier.Alert(Event{
		Kind:     EventError,
		Key:      fmt.Sprintf("error-%s-%x", account.Address.Hex(), crypto.Keccak256([]byte(short))[:4]),
		Message:  fmt.Sprintf("Failed to liquidate %s %s: %s", account.Address.Hex(), kind.Adverb(), short),
		Severity: StatusAlert,
		At:       r.clk.Now(),
	})
}

// Skipped covers benign reverts: the position raced away or recovered.
func (r *Reporter) Skipped(account *CreditAccount, reason string) {
	r.notifier.Notify(Event{
		Kind:     EventSkipped,
		Key:      "skipped-" + account.Address.Hex(),
		Message:  fmt.Sprintf("Skipped account %s: %s", account.Address.Hex(), reason),
		Severity: StatusHealthy,
		At:       r.clk.Now(),
	})
}

func (r *Reporter) BatchError(accounts []*CreditAccount, err error) {
	r.notifier.Alert(Event{
		Kind:     EventError,
		Key:      "batch-error-" + batchKey(accounts),
		Message:  fmt.Sprintf("Batch of %d accounts failed: %s", len(accounts), TruncateError(err.Error())),
		Severity: StatusAlert,
		At:       r.clk.Now(),
	})
}

// BatchFinished emits one event per batch receipt, distinguishing full
// success, partial success and full revert.
func (r *Reporter) BatchFinished(liquidated, notLiquidated []*CreditAccount, receipt *types.Receipt) {
	all := append(append([]*CreditAccount{}, liquidated...), notLiquidated...)
	key := "batch-" + batchKey(all)

	var msg string
	severity := StatusHealthy
	switch {
	case receipt.Status != types.ReceiptStatusSuccessful:
		msg = fmt.Sprintf("Batch of %d accounts reverted in tx %s", len(all), receipt.TxHash.Hex())
		severity = StatusAlert
	case len(notLiquidated) == 0:
		msg = fmt.Sprintf("Batch liquidated all %d accounts in tx %s (gas %d)",
			len(liquidated), receipt.TxHash.Hex(), receipt.GasUsed)
	default:
		msg = fmt.Sprintf("Batch liquidated %d of %d accounts in tx %s",
			len(liquidated), len(all), receipt.TxHash.Hex())
		severity = StatusWarning
	}

	event := Event{
		Kind:     EventBatchFinished,
		Key:      key,
		Message:  msg,
		Severity: severity,
		At:       r.clk.Now(),
	}
	if severity == StatusAlert {
		r.notifier.Alert(event)
	} else {
		r.notifier.Notify(event)
	}
}

// LowBalance and ProviderRotated originate outside per-account processing
// but share the delivery path and dedupe contract.
func (r *Reporter) LowBalance(wallet common.Address, balanceWei string) {
	r.notifier.Alert(Event{
		Kind:     EventLowBalance,
		Key:      "low-balance-" + wallet.Hex(),
		Message:  fmt.Sprintf("Liquidator wallet %s balance low: %s wei", wallet.Hex(), balanceWei),
		Severity: StatusWarning,
		At:       r.clk.Now(),
	})
}

func (r *Reporter) ProviderRotated(provider string) {
	r.notifier.Notify(Event{
		Kind:     EventProviderRotation,
		Key:      "provider-rotation-" + provider,
		Message:  "RPC provider rotated to " + provider,
		Severity: StatusWarning,
		At:       r.clk.Now(),
	})
}

// RecordOptimistic persists one optimistic attempt. Failures to persist are
// logged, never propagated into account processing.
func (r *Reporter) RecordOptimistic(ctx context.Context, account *CreditAccount, kind StrategyKind, outcome *LiquidationOutcome) {
	if r.store == nil {
		return
	}
	rec := &OptimisticRecord{
		Account:       account.Address,
		CreditManager: account.CreditManager,
		Strategy:      kind.String(),
		Passed:        !outcome.failed(),
		Error:         outcome.ErrShort,
		GasUsed:       outcome.GasUsed,
		CallCount:     outcome.CallCount,
		TraceRef:      outcome.TraceRef,
		CreatedAt:     r.clk.Now().Unix(),
	}
	if rec.TraceRef == "" && !rec.Passed {
		rec.TraceRef = uuid.Must(uuid.NewV4()).String()
	}
	if err := r.store.SaveOutcome(ctx, rec); err != nil {
		r.log.Warn().Err(err).Str("account", account.Address.Hex()).Msg("failed to persist optimistic record")
	}
}

// Flush is called on shutdown; delivery is fire-and-forget so there is
// nothing buffered here, but the hook keeps the shutdown contract explicit.
func (r *Reporter) Flush() {}

// batchKey hashes the sorted account addresses so the same set always maps
// to the same key regardless of discovery order.
func batchKey(accounts []*CreditAccount) string {
	addrs := make([][]byte, len(accounts))
	for i, acc := range accounts {
		addrs[i] = acc.Address.Bytes()
	}
	sort.Slice(addrs, func(i, j int) bool { return bytes.Compare(addrs[i], addrs[j]) < 0 })
	return fmt.Sprintf("%x", crypto.Keccak256(addrs...)[:8])
}
