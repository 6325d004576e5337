package liquidator

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

var (
	ErrAccountNotLiquidatable   = errors.New("account is not liquidatable")
	ErrNoViablePath             = errors.New("path finder returned no viable close path")
	ErrNoPartialLiquidator      = errors.New("no partial liquidator bound for credit manager")
	ErrStrategyInapplicable     = errors.New("configured strategy is not applicable to account")
	ErrImpersonationForbidden   = errors.New("impersonated pre-flight is only allowed in optimistic mode")
	ErrUnsupportedFacadeVersion = errors.New("credit facade version outside supported range")
	ErrReceiptTimeout           = errors.New("timed out waiting for transaction receipt")
	ErrShutdown                 = errors.New("coordinator is shutting down")
)

// ConfigError is fatal at launch: the process must not proceed with an
// ambiguous or incomplete liquidator binding.
type ConfigError struct {
	CreditManager common.Address
	Detail        string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("liquidator config error for credit manager %s: %s", e.CreditManager.Hex(), e.Detail)
}

// AmbiguousTemplateError reports two templates both claiming one credit manager.
func AmbiguousTemplateError(cm common.Address, first, second string) *ConfigError {
	return &ConfigError{
		CreditManager: cm,
		Detail:        fmt.Sprintf("templates %q and %q both match", first, second),
	}
}

// RevertError carries raw revert data surfaced by call simulation or receipt
// decoding. Transport failures are plain errors; only on-chain reverts use
// this type, so callers can tell the two apart with errors.As.
type RevertError struct {
	Data   []byte
	Reason string
}

func (e *RevertError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("execution reverted: %s", e.Reason)
	}
	return fmt.Sprintf("execution reverted: 0x%x", e.Data)
}

func AsRevert(err error) (*RevertError, bool) {
	var re *RevertError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// TruncateError caps a message for notification delivery, cutting on a rune
// boundary so multi-byte characters never get split.
func TruncateError(msg string) string {
	if len(msg) <= ErrorMessageCap {
		return msg
	}
	runes := []rune(msg)
	if len(runes) <= ErrorMessageCap {
		return msg
	}
	return string(runes[:ErrorMessageCap]) + "…"
}
