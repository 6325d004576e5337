package liquidator

// Classifier decides whether an account is liquidatable and which strategy
// variant applies to it under the operator-configured mode.
type Classifier struct {
	threshold       int64
	mode            StrategyKind
	partialFallback bool
	log             Log
}

func NewClassifier(log Log, thresholdBps int64, mode StrategyKind, partialFallback bool) *Classifier {
	if thresholdBps <= 0 {
		thresholdBps = DefaultHealthFactorThreshold
	}
	return &Classifier{
		threshold:       thresholdBps,
		mode:            mode,
		partialFallback: partialFallback,
		log:             log,
	}
}

// IsLiquidatable is true iff the snapshot fetch succeeded and the health
// factor sits below the configured threshold. An unsuccessful fetch is never
// liquidatable regardless of the stored health factor. Positions whose
// snapshot carries a USD value below the dust threshold are not worth the
// gas; a zero USD value means the scanner did not price the position and is
// not treated as dust.
func (c *Classifier) IsLiquidatable(account *CreditAccount) bool {
	if !account.Success || account.HealthFactor >= c.threshold {
		return false
	}
	if !account.TotalValueUSD.IsZero() && account.TotalValueUSD.LessThan(DUST_VALUE_THRESHOLD) {
		return false
	}
	return true
}

// SelectStrategy picks the strategy for one account. When the configured
// mode does not apply to this account, classification falls back to full
// liquidation if partialFallback is set; otherwise the account is skipped
// with ErrStrategyInapplicable, which callers treat as a warning, not a
// fatal error.
func (c *Classifier) SelectStrategy(account *CreditAccount) (StrategyKind, error) {
	if c.mode.IsApplicable(account) {
		return c.mode, nil
	}
	if c.partialFallback {
		c.log.Debug().
			Str("account", account.Address.Hex()).
			Str("mode", c.mode.String()).
			Msg("configured strategy inapplicable, falling back to full liquidation")
		return StrategyFull, nil
	}
	c.log.Warn().
		Str("account", account.Address.Hex()).
		Str("mode", c.mode.String()).
		Int("facadeVersion", account.FacadeVersion).
		Msg("skipping account: strategy inapplicable and no fallback configured")
	return c.mode, ErrStrategyInapplicable
}

// Threshold exposes the configured boundary in basis points.
func (c *Classifier) Threshold() int64 {
	return c.threshold
}

// Mode exposes the operator-configured strategy.
func (c *Classifier) Mode() StrategyKind {
	return c.mode
}
