package liquidator

// StrategyKind is a closed set of liquidation strategies. Behavior per kind
// lives in a dispatch table rather than in subtypes, so adding a strategy is
// a new tag plus a table entry.
type StrategyKind uint8

const (
	StrategyFull StrategyKind = iota
	StrategyPartial
	StrategyBatch
	StrategyDeleverage
)

func (k StrategyKind) String() string {
	if spec, ok := strategyTable[k]; ok {
		return spec.name
	}
	return "unknown"
}

// Adverb qualifies a success notification: "fully", "partially", "via batch".
func (k StrategyKind) Adverb() string {
	if spec, ok := strategyTable[k]; ok {
		return spec.adverb
	}
	return ""
}

// RequiresPreFlight reports whether the strategy needs an account state
// mutation before liquidation is valid.
func (k StrategyKind) RequiresPreFlight() bool {
	if spec, ok := strategyTable[k]; ok {
		return spec.requiresPreFlight
	}
	return false
}

// IsApplicable checks the account's facade version against the strategy's
// supported range.
func (k StrategyKind) IsApplicable(account *CreditAccount) bool {
	spec, ok := strategyTable[k]
	if !ok {
		return false
	}
	return spec.isApplicable(account)
}

// ParseStrategyKind maps an operator-configured mode string to a kind.
func ParseStrategyKind(mode string) (StrategyKind, bool) {
	for kind, spec := range strategyTable {
		if spec.name == mode {
			return kind, true
		}
	}
	return StrategyFull, false
}

type strategySpec struct {
	name              string
	adverb            string
	requiresPreFlight bool
	isApplicable      func(account *CreditAccount) bool
}

var strategyTable = map[StrategyKind]strategySpec{
	StrategyFull: {
		name:   "full",
		adverb: "fully",
		isApplicable: func(*CreditAccount) bool {
			return true
		},
	},
	StrategyPartial: {
		name:   "partial",
		adverb: "partially",
		isApplicable: func(a *CreditAccount) bool {
			return a.FacadeVersion >= MinPartialVersion
		},
	},
	StrategyBatch: {
		name:   "batch",
		adverb: "via batch",
		isApplicable: func(a *CreditAccount) bool {
			return a.FacadeVersion >= MinPartialVersion
		},
	},
	StrategyDeleverage: {
		name:              "deleverage",
		adverb:            "via deleverage bot",
		requiresPreFlight: true,
		isApplicable: func(a *CreditAccount) bool {
			return a.FacadeVersion >= MinDeleverageVersion && a.FacadeVersion <= MaxDeleverageVersion
		},
	},
}
