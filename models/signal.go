package models

const (
	RecommendationBuy  = "BUY"
	RecommendationSell = "SELL"
	RecommendationHold = "HOLD"
)

// Signal is a per-symbol trading recommendation derived from the rolling
// liquidation window. Confidence is an integer percentage in [0, 99].
type Signal struct {
	Recommendation string `json:"recommendation"`
	Confidence     int    `json:"confidence"`
}

// HoldSignal returns the neutral signal used when no window data exists.
func HoldSignal() Signal {
	return Signal{Recommendation: RecommendationHold, Confidence: 0}
}
