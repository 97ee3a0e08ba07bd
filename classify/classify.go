// Package classify scores inbound turns for scam intent. Classification is
// continuous: each turn produces a raw per-category signal, and the session
// keeps the maximum signal ever observed per category. The aggregate is
// therefore monotone, so a single strong signal can never be diluted by
// later ambiguous turns and activation stays sticky.
package classify

import (
	"sort"
	"strings"

	"github.com/intelhive/intelhive/core"
)

// signal is one weighted lexical indicator for a category. Patterns are
// matched against a whitespace-normalized lowercase rendering of the turn,
// so multi-word phrases match across arbitrary separators.
type signal struct {
	pattern string
	weight  float64
}

// lexicon maps each fraud category to its indicators. Weights are tuned so
// that a clearly fraudulent single turn crosses the default activation
// threshold (0.7) while an isolated weak indicator does not.
var lexicon = map[core.Category][]signal{
	core.CategoryUPIFraud: {
		{"otp", 0.5},
		{"upi", 0.5},
		{"paytm", 0.4},
		{"phonepe", 0.4},
		{"gpay", 0.4},
		{"google pay", 0.4},
		{"kyc", 0.4},
		{"bank", 0.25},
		{"cashback", 0.3},
		{"payment request", 0.35},
		{"collect request", 0.45},
		{"transfer", 0.2},
		{"refund", 0.25},
	},
	core.CategoryPhishing: {
		{"verify your account", 0.55},
		{"account suspended", 0.5},
		{"account blocked", 0.5},
		{"click the link", 0.5},
		{"click here", 0.4},
		{"login", 0.25},
		{"password", 0.35},
		{"update your details", 0.4},
		{"confirm your identity", 0.45},
	},
	core.CategoryLotteryScam: {
		{"lottery", 0.55},
		{"lucky draw", 0.5},
		{"prize", 0.4},
		{"winner", 0.4},
		{"you have won", 0.6},
		{"claim", 0.25},
		{"processing fee", 0.45},
	},
	core.CategoryImpersonation: {
		{"police", 0.45},
		{"customs", 0.45},
		{"income tax", 0.45},
		{"cbi", 0.4},
		{"arrest warrant", 0.6},
		{"legal action", 0.4},
		{"i am calling from", 0.3},
		{"your relative", 0.3},
		{"digital arrest", 0.6},
	},
	core.CategoryInvestment: {
		{"guaranteed returns", 0.6},
		{"double your money", 0.6},
		{"invest", 0.3},
		{"crypto", 0.3},
		{"trading tips", 0.4},
		{"profit", 0.25},
		{"stock tips", 0.4},
	},
	core.CategoryTechSupport: {
		{"virus", 0.4},
		{"your computer", 0.3},
		{"remote access", 0.5},
		{"anydesk", 0.55},
		{"teamviewer", 0.55},
		{"tech support", 0.45},
		{"microsoft support", 0.5},
	},
}

// Classifier is a stateless scorer: all cross-turn state lives in the
// core.Classification value threaded through Classify.
type Classifier struct{}

// New constructs a Classifier over the built-in lexicon.
func New() *Classifier { return &Classifier{} }

// Classify folds one inbound turn into the prior classification state and
// returns the updated state. The prior value is not mutated.
//
// The leading category is the argmax of the monotone per-category scores.
// Ties break by highest raw signal on this turn, then by earliest first
// signal turn, then by category name for determinism.
func (c *Classifier) Classify(prior core.Classification, text string, turnIndex int) core.Classification {
	next := prior.Clone()
	norm := normalize(text)

	raw := make(map[core.Category]float64, len(lexicon))
	for category, signals := range lexicon {
		score := 0.0
		for _, sig := range signals {
			if strings.Contains(norm, " "+sig.pattern+" ") {
				score += sig.weight
			}
		}
		if score == 0 {
			continue
		}
		if score > 1 {
			score = 1
		}
		raw[category] = score
		if score > next.Scores[category] {
			next.Scores[category] = score
		}
		if _, seen := next.FirstSignal[category]; !seen {
			next.FirstSignal[category] = turnIndex
		}
	}

	next.Category, next.Confidence = lead(next, raw)
	return next
}

// lead picks the winning category from the aggregated scores.
func lead(state core.Classification, raw map[core.Category]float64) (core.Category, float64) {
	if len(state.Scores) == 0 {
		return core.CategoryUnknown, 0
	}
	categories := make([]core.Category, 0, len(state.Scores))
	for category := range state.Scores {
		categories = append(categories, category)
	}
	sort.Slice(categories, func(i, j int) bool {
		a, b := categories[i], categories[j]
		if state.Scores[a] != state.Scores[b] {
			return state.Scores[a] > state.Scores[b]
		}
		if raw[a] != raw[b] {
			return raw[a] > raw[b]
		}
		fa, oka := state.FirstSignal[a]
		fb, okb := state.FirstSignal[b]
		if oka && okb && fa != fb {
			return fa < fb
		}
		return a < b
	})
	winner := categories[0]
	return winner, state.Scores[winner]
}

// normalize lowercases the text and collapses every non-alphanumeric run
// into a single space, padded so word-boundary matching is a plain
// substring check.
func normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text) + 2)
	b.WriteByte(' ')
	space := true
	for _, r := range strings.ToLower(text) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	if !space {
		b.WriteByte(' ')
	}
	return b.String()
}
