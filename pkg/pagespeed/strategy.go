package pagespeed

// Strategy is the analysis strategy sent to the API. Desktop and Mobile are
// concrete strategies; Both is a selector that expands to the two of them.
type Strategy string

const (
	StrategyDesktop Strategy = "desktop"
	StrategyMobile  Strategy = "mobile"
	StrategyBoth    Strategy = "both"
)

// DefaultStrategy is used when a query is issued with an empty strategy.
const DefaultStrategy = StrategyDesktop

// Expand returns the concrete strategies selected by s, desktop before mobile.
// Unknown values are returned unexpanded: the API decides what is legal.
func (s Strategy) Expand() []Strategy {
	switch s {
	case "":
		return []Strategy{DefaultStrategy}
	case StrategyBoth:
		return []Strategy{StrategyDesktop, StrategyMobile}
	default:
		return []Strategy{s}
	}
}

func (s Strategy) String() string { return string(s) }
