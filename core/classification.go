package core

// Category is a fraud category tag assigned by the intent classifier.
type Category string

const (
	// CategoryUnknown means no category has produced a signal yet.
	CategoryUnknown       Category = "unknown"
	CategoryUPIFraud      Category = "upi_fraud"
	CategoryPhishing      Category = "phishing"
	CategoryLotteryScam   Category = "lottery_scam"
	CategoryImpersonation Category = "impersonation"
	CategoryInvestment    Category = "investment_scam"
	CategoryTechSupport   Category = "tech_support_scam"
)

// Classification is the classifier's cumulative state for a session.
//
// Scores holds the monotone per-category aggregate (maximum observed signal
// strength across turns), so a single strong signal can never be diluted by
// later ambiguous turns. Category/Confidence always describe the current
// leader of Scores, which makes reported confidence non-decreasing: the
// leader only changes when another category's score overtakes it.
type Classification struct {
	Category    Category             `json:"category"`
	Confidence  float64              `json:"confidence"`
	Scores      map[Category]float64 `json:"scores,omitempty"`
	FirstSignal map[Category]int     `json:"first_signal,omitempty"`
}

// NewClassification returns the empty prior state.
func NewClassification() Classification {
	return Classification{
		Category:    CategoryUnknown,
		Scores:      map[Category]float64{},
		FirstSignal: map[Category]int{},
	}
}

// Clone deep-copies the classification maps.
func (c Classification) Clone() Classification {
	clone := c
	clone.Scores = make(map[Category]float64, len(c.Scores))
	for k, v := range c.Scores {
		clone.Scores[k] = v
	}
	clone.FirstSignal = make(map[Category]int, len(c.FirstSignal))
	for k, v := range c.FirstSignal {
		clone.FirstSignal[k] = v
	}
	return clone
}
