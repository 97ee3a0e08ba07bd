// Package extract recognizes structured intelligence in a single turn's
// text: payment identifiers (UPI handles), phone numbers, URLs, bank details
// and tactic tags. Every match is normalized before it reaches the session's
// dedup set, so re-processing the same turn adds nothing new.
package extract

import (
	"regexp"
	"strings"

	"github.com/intelhive/intelhive/core"
)

var (
	// UPI handles look like an address but the provider part is a bare
	// word (scammer@paytm, shop@okaxis). Candidates followed by a dot are
	// rejected later so email addresses don't leak in as payment ids.
	upiRe = regexp.MustCompile(`[a-zA-Z0-9][a-zA-Z0-9._-]*@[a-zA-Z]{2,}`)

	// Phone numbers with an explicit country prefix or separator-heavy
	// formatting. Bare digit runs are handled separately so account
	// numbers are not swallowed as phones.
	phoneRe = regexp.MustCompile(`\+\d[\d\s().-]{8,16}\d`)

	digitRunRe = regexp.MustCompile(`\b\d{9,18}\b`)

	urlRe = regexp.MustCompile(`(?i)\b(?:https?://|www\.)[^\s<>"']+`)

	ifscRe = regexp.MustCompile(`\b[A-Z]{4}0[A-Z0-9]{6}\b`)
)

// tacticLexicon maps each behavioral tag to the phrases that evidence it.
// Matching runs against a whitespace-normalized lowercase rendering.
var tacticLexicon = map[string][]string{
	"urgency": {
		"urgent", "urgently", "immediately", "right now", "hurry",
		"last chance", "act now", "expires", "within the hour",
	},
	"authority": {
		"officer", "police", "government", "bank official", "rbi",
		"income tax", "customs", "legal action", "court order",
	},
	"fear": {
		"arrest", "blocked", "suspended", "penalty", "jail",
		"fraud case", "fine of",
	},
	"reward": {
		"prize", "winner", "you have won", "lottery", "bonus",
		"cashback", "free gift",
	},
	"secrecy": {
		"confidential", "keep this secret", "don t tell anyone",
		"keep this between us", "do not inform",
	},
}

// Extractor is stateless; a single instance is safe for concurrent use.
type Extractor struct{}

// New constructs an Extractor.
func New() *Extractor { return &Extractor{} }

// Extract returns every entity recognized in the turn text, already
// normalized and deduplicated within the turn. FirstSeenTurn is stamped
// with turnIndex; cross-turn dedup is the session's job.
func (e *Extractor) Extract(text string, turnIndex int) []core.ExtractedEntity {
	var out []core.ExtractedEntity
	seen := map[string]struct{}{}
	add := func(entityType core.EntityType, value string) {
		if value == "" {
			return
		}
		entity := core.ExtractedEntity{Type: entityType, Value: value, FirstSeenTurn: turnIndex}
		if _, ok := seen[entity.Key()]; ok {
			return
		}
		seen[entity.Key()] = struct{}{}
		out = append(out, entity)
	}

	for _, v := range e.paymentIdentifiers(text) {
		add(core.EntityPaymentIdentifier, v)
	}
	phones, accounts := e.numbers(text)
	for _, v := range phones {
		add(core.EntityPhoneNumber, v)
	}
	for _, v := range accounts {
		add(core.EntityBankDetail, v)
	}
	for _, m := range urlRe.FindAllString(text, -1) {
		add(core.EntityURL, normalizeURL(m))
	}
	for _, m := range ifscRe.FindAllString(text, -1) {
		add(core.EntityBankDetail, m)
	}
	for _, tag := range e.tactics(text) {
		add(core.EntityTacticTag, tag)
	}
	return out
}

// paymentIdentifiers finds UPI-style handles, rejecting email addresses.
// A candidate is an email when the provider part continues with ".tld";
// a sentence-final dot does not disqualify it.
func (e *Extractor) paymentIdentifiers(text string) []string {
	var out []string
	for _, loc := range upiRe.FindAllStringIndex(text, -1) {
		if loc[1]+1 < len(text) && text[loc[1]] == '.' && isLetter(text[loc[1]+1]) {
			continue
		}
		out = append(out, strings.ToLower(text[loc[0]:loc[1]]))
	}
	return out
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// numbers splits digit evidence into phones and account numbers. Explicit
// "+" prefixed numbers are always phones; bare runs are phones only when
// they have the shape of an Indian mobile number, otherwise 9-18 digit runs
// are treated as account numbers.
func (e *Extractor) numbers(text string) (phones, accounts []string) {
	consumed := make([]bool, len(text))
	for _, loc := range phoneRe.FindAllStringIndex(text, -1) {
		if v := normalizePhone(text[loc[0]:loc[1]]); v != "" {
			phones = append(phones, v)
		}
		for i := loc[0]; i < loc[1]; i++ {
			consumed[i] = true
		}
	}
	for _, loc := range digitRunRe.FindAllStringIndex(text, -1) {
		if consumed[loc[0]] {
			continue
		}
		run := text[loc[0]:loc[1]]
		if v := normalizePhone(run); v != "" {
			phones = append(phones, v)
			continue
		}
		accounts = append(accounts, run)
	}
	return phones, accounts
}

// normalizePhone canonicalizes to "+<digits>". Ten-digit Indian mobile
// numbers (leading 6-9) get the +91 prefix; other plausible international
// numbers keep their own country code. Returns "" if the digits do not look
// like a phone number.
func normalizePhone(raw string) string {
	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	explicit := strings.HasPrefix(strings.TrimSpace(raw), "+")
	switch {
	case len(d) == 10 && d[0] >= '6' && d[0] <= '9':
		return "+91" + d
	case len(d) == 11 && d[0] == '0' && d[1] >= '6' && d[1] <= '9':
		return "+91" + d[1:]
	case len(d) == 12 && strings.HasPrefix(d, "91") && d[2] >= '6' && d[2] <= '9':
		return "+" + d
	case explicit && len(d) >= 10 && len(d) <= 15:
		return "+" + d
	default:
		return ""
	}
}

// normalizeURL lowercases and strips trailing punctuation that commonly
// clings to links in prose.
func normalizeURL(raw string) string {
	return strings.ToLower(strings.TrimRight(raw, ".,;:!?)("))
}

// tactics returns the behavioral tags evidenced by the turn, in lexicon
// iteration-independent (sorted by caller if needed) order.
func (e *Extractor) tactics(text string) []string {
	norm := normalizeWords(text)
	var tags []string
	for tag, phrases := range tacticLexicon {
		for _, phrase := range phrases {
			if strings.Contains(norm, " "+phrase+" ") {
				tags = append(tags, tag)
				break
			}
		}
	}
	return tags
}

// normalizeWords lowercases and collapses non-alphanumeric runs to single
// spaces with padding, mirroring the classifier's matcher.
func normalizeWords(text string) string {
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
