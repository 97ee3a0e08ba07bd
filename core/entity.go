package core

// EntityType is the closed enumeration of structured intelligence kinds the
// extractor recognizes.
type EntityType string

const (
	// EntityPaymentIdentifier covers UPI handles and similar payment ids.
	EntityPaymentIdentifier EntityType = "payment-identifier"
	// EntityPhoneNumber is a phone number in canonical +digits form.
	EntityPhoneNumber EntityType = "phone-number"
	// EntityURL is a normalized link.
	EntityURL EntityType = "url"
	// EntityBankDetail covers account numbers and IFSC codes.
	EntityBankDetail EntityType = "bank-detail"
	// EntityTacticTag is a behavioral marker from the tactic vocabulary
	// (urgency, authority, fear, reward, secrecy).
	EntityTacticTag EntityType = "tactic-tag"
)

// ExtractedEntity is one normalized intelligence value. Immutable once
// created; FirstSeenTurn records the turn it was first extracted from.
type ExtractedEntity struct {
	Type          EntityType `json:"type"`
	Value         string     `json:"value"`
	FirstSeenTurn int        `json:"first_seen_turn"`
}

// Key is the dedup identity of an entity. FirstSeenTurn intentionally does
// not participate: re-extracting a value on a later turn adds nothing.
func (e ExtractedEntity) Key() string { return string(e.Type) + "\x00" + e.Value }
