package liquidator

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

type (
	// CreditAccount is a read-only snapshot produced fresh each scan cycle.
	// It is never mutated; the next cycle supersedes it with a new snapshot.
	CreditAccount struct {
		Address       common.Address `json:"address"`
		Borrower      common.Address `json:"borrower"`
		CreditManager common.Address `json:"creditManager"`
		CreditFacade  common.Address `json:"creditFacade"`
		Underlying    common.Address `json:"underlying"`

		Debt            *big.Int `json:"debt"`
		AccruedInterest *big.Int `json:"accruedInterest"`
		AccruedFees     *big.Int `json:"accruedFees"`

		TotalValue    *big.Int        `json:"totalValue"`
		TotalValueUSD decimal.Decimal `json:"totalValueUSD"`

		// HealthFactor is in basis points and only meaningful when Success
		// is true. An unsuccessful fetch must never be treated as
		// liquidatable.
		HealthFactor  int64 `json:"healthFactor"`
		FacadeVersion int   `json:"facadeVersion"`
		Success       bool  `json:"success"`

		Balances []TokenBalance `json:"balances"`
	}

	TokenBalance struct {
		Token     common.Address `json:"token"`
		Symbol    string         `json:"symbol"`
		Balance   *big.Int       `json:"balance"`
		Enabled   bool           `json:"enabled"`
		Quoted    bool           `json:"quoted"`
		Forbidden bool           `json:"forbidden"`
	}

	CollateralToken struct {
		Token                common.Address `json:"token"`
		Symbol               string         `json:"symbol"`
		LiquidationThreshold uint16         `json:"liquidationThreshold"`
	}

	// CreditManagerProfile is cached per network epoch. In optimistic mode
	// the cache is append-only for the duration of one run.
	CreditManagerProfile struct {
		Address          common.Address `json:"address"`
		Name             string         `json:"name"`
		Network          string         `json:"network"`
		Curator          string         `json:"curator"`
		Version          int            `json:"version"`
		Underlying       common.Address `json:"underlying"`
		UnderlyingSymbol string         `json:"underlyingSymbol"`
		Router           common.Address `json:"router"`
		RouterVersion    int            `json:"routerVersion"`
		CreditFacade     common.Address `json:"creditFacade"`

		LiquidationDiscount uint16 `json:"liquidationDiscount"`
		FeeLiquidation      uint16 `json:"feeLiquidation"`

		ForbiddenTokenMask *big.Int          `json:"forbiddenTokenMask"`
		CollateralTokens   []CollateralToken `json:"collateralTokens"`
	}
)

// UnderlyingBalance returns the account's enabled balance of its own
// underlying token, zero if the token is not held.
func (a *CreditAccount) UnderlyingBalance() *big.Int {
	for _, b := range a.Balances {
		if b.Token == a.Underlying && b.Enabled {
			return b.Balance
		}
	}
	return new(big.Int)
}

// TotalDebt is principal plus accrued interest and fees.
func (a *CreditAccount) TotalDebt() *big.Int {
	out := new(big.Int)
	if a.Debt != nil {
		out.Add(out, a.Debt)
	}
	if a.AccruedInterest != nil {
		out.Add(out, a.AccruedInterest)
	}
	if a.AccruedFees != nil {
		out.Add(out, a.AccruedFees)
	}
	return out
}

// HasForbiddenTokens reports whether any enabled balance is forbidden.
func (a *CreditAccount) HasForbiddenTokens() bool {
	for _, b := range a.Balances {
		if b.Enabled && b.Forbidden {
			return true
		}
	}
	return false
}
