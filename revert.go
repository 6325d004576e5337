package liquidator

import (
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
)

// RevertClass separates races another liquidator won (benign) from genuine
// operational failures.
type RevertClass uint8

const (
	RevertBenign RevertClass = iota
	RevertOperational
)

func (c RevertClass) String() string {
	switch c {
	case RevertBenign:
		return "benign"
	case RevertOperational:
		return "operational"
	default:
		return "unknown"
	}
}

// RevertVerdict is the classification outcome. Using a value instead of
// error matching keeps the coordinator logic testable without exception
// brittleness.
type RevertVerdict struct {
	Class  RevertClass
	Reason string
}

// Known protocol revert signatures that mean the position was already closed
// or became healthy again between scan and submission.
var benignRevertReasons = map[[4]byte]string{
	errorSelector("CreditAccountNotLiquidatableException()"):         "account not liquidatable",
	errorSelector("CreditAccountNotLiquidatableWithLossException()"): "account not liquidatable with loss",
	errorSelector("NothingToLiquidateException()"):                   "nothing left to liquidate",
	errorSelector("CreditAccountDoesNotExistException()"):            "account already closed",
}

func errorSelector(sig string) [4]byte {
	var sel [4]byte
	copy(sel[:], crypto.Keccak256([]byte(sig))[:4])
	return sel
}

// ClassifyRevert matches raw revert data against the known-selector table.
// Anything unrecognized, including data too short to carry a selector, is an
// operational error.
func ClassifyRevert(data []byte) RevertVerdict {
	if len(data) >= 4 {
		var sel [4]byte
		copy(sel[:], data[:4])
		if reason, ok := benignRevertReasons[sel]; ok {
			return RevertVerdict{Class: RevertBenign, Reason: reason}
		}
	}
	return RevertVerdict{
		Class:  RevertOperational,
		Reason: fmt.Sprintf("unrecognized revert: 0x%x", data),
	}
}
