package liquidator

import (
	"time"

	"github.com/shopspring/decimal"
)

// Health factors and thresholds are expressed in basis points: 10000 == 100.00%.
const (
	HealthFactorBase = 10000

	DefaultHealthFactorThreshold = 9650
	DefaultSlippageBps           = 50

	// Deleverage bots enforce their own boundary on-chain; previews built for
	// them must compare against this value, not the operator threshold.
	DefaultBotMinHealthFactor = 9800
)

const (
	DefaultReceiptTimeout = 120 * time.Second
	DefaultConcurrency    = 4

	ErrorMessageCap = 128
)

// Facade versions are encoded as integers: 300 == v3.00, 310 == v3.10.
const (
	MinPartialVersion    = 300
	MinDeleverageVersion = 310
	MaxDeleverageVersion = 319
)

var (
	ONE = decimal.NewFromInt(1)

	HUNDRED_PERCENT = decimal.NewFromInt(HealthFactorBase)

	// Positions whose seizable USD value rounds below this are not worth the gas.
	DUST_VALUE_THRESHOLD = decimal.NewFromFloat(0.01)
)
