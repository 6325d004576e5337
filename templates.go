package liquidator

// A liquidatorTemplate binds credit managers to one partial-liquidator
// contract flavor. Matchers are pure functions over the manager profile,
// keyed by underlying symbol, router version range, network and curator.
// At most one template may match a given credit manager; two matches is a
// fatal configuration error caught during registry construction.
type liquidatorTemplate struct {
	name  string
	match func(p *CreditManagerProfile) bool
}

func ghoUnderlying(symbol string) bool {
	return symbol == "GHO" || symbol == "DOLA"
}

// DefaultTemplates is the ordered matcher chain used in production.
func DefaultTemplates() []liquidatorTemplate {
	return []liquidatorTemplate{
		{
			// Flash loans sourced from the Aave pool. Default flavor for
			// Chaos Labs curated markets on mainline networks.
			name: "Aave",
			match: func(p *CreditManagerProfile) bool {
				return p.RouterVersion >= MinPartialVersion &&
					p.Curator == "Chaos Labs" &&
					p.Network != "sonic" &&
					!ghoUnderlying(p.UnderlyingSymbol)
			},
		},
		{
			// GHO-family underlyings flash-mint instead of borrowing.
			name: "GHO",
			match: func(p *CreditManagerProfile) bool {
				return p.RouterVersion >= MinPartialVersion &&
					ghoUnderlying(p.UnderlyingSymbol)
			},
		},
		{
			name: "Silo",
			match: func(p *CreditManagerProfile) bool {
				return p.Network == "sonic" &&
					p.RouterVersion >= MinDeleverageVersion
			},
		},
		{
			name: "Morpho",
			match: func(p *CreditManagerProfile) bool {
				return p.Curator == "Morpho Labs" &&
					p.RouterVersion >= MinDeleverageVersion &&
					p.RouterVersion <= MaxDeleverageVersion
			},
		},
	}
}
