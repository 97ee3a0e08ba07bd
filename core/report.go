package core

import (
	"sort"
	"time"
)

// EngagementLevel tags how invested the counterparty was, derived from the
// number of inbound turns.
type EngagementLevel string

const (
	EngagementLow    EngagementLevel = "low"
	EngagementMedium EngagementLevel = "medium"
	EngagementHigh   EngagementLevel = "high"
)

// EngagementFor maps a counterparty turn count onto an engagement level.
func EngagementFor(counterpartyTurns int) EngagementLevel {
	switch {
	case counterpartyTurns >= 8:
		return EngagementHigh
	case counterpartyTurns >= 4:
		return EngagementMedium
	default:
		return EngagementLow
	}
}

// Report is the final structured payload describing a terminated session.
// The JSON shape is part of the public callback contract.
type Report struct {
	SessionID      string             `json:"session_id"`
	StartedAt      time.Time          `json:"started_at"`
	EndedAt        time.Time          `json:"ended_at"`
	Classification Category           `json:"classification"`
	Confidence     float64            `json:"confidence"`
	Extracted      ReportEntities     `json:"extracted"`
	Conversation   ReportConversation `json:"conversation"`
}

// ReportEntities groups extracted values by kind. Slices are always non-nil
// so the serialized payload carries empty arrays rather than nulls.
type ReportEntities struct {
	UPIIDs       []string `json:"upi_ids"`
	PhoneNumbers []string `json:"phone_numbers"`
	URLs         []string `json:"urls"`
	BankDetails  []string `json:"bank_details"`
	Tactics      []string `json:"tactics"`
}

// ReportConversation summarizes the exchange. TotalTurns counts counterparty
// turns, i.e. the number of exchanges the scammer initiated.
type ReportConversation struct {
	TotalTurns        int             `json:"total_turns"`
	AgentPersona      string          `json:"agent_persona"`
	ScammerEngagement EngagementLevel `json:"scammer_engagement"`
}

// BuildReport assembles the report for a session. The caller must have
// frozen the session (EndedAt set) before building; the same input always
// yields identical report content, which backs idempotent Terminate.
func BuildReport(s *Session) *Report {
	r := &Report{
		SessionID:      s.ID,
		StartedAt:      s.CreatedAt,
		Classification: s.Classification.Category,
		Confidence:     s.Classification.Confidence,
		Extracted: ReportEntities{
			UPIIDs:       []string{},
			PhoneNumbers: []string{},
			URLs:         []string{},
			BankDetails:  []string{},
			Tactics:      []string{},
		},
		Conversation: ReportConversation{
			TotalTurns:        s.CounterpartyTurns(),
			AgentPersona:      s.Persona,
			ScammerEngagement: EngagementFor(s.CounterpartyTurns()),
		},
	}
	if s.EndedAt != nil {
		r.EndedAt = *s.EndedAt
	}
	for _, e := range s.Extracted {
		switch e.Type {
		case EntityPaymentIdentifier:
			r.Extracted.UPIIDs = append(r.Extracted.UPIIDs, e.Value)
		case EntityPhoneNumber:
			r.Extracted.PhoneNumbers = append(r.Extracted.PhoneNumbers, e.Value)
		case EntityURL:
			r.Extracted.URLs = append(r.Extracted.URLs, e.Value)
		case EntityBankDetail:
			r.Extracted.BankDetails = append(r.Extracted.BankDetails, e.Value)
		case EntityTacticTag:
			r.Extracted.Tactics = append(r.Extracted.Tactics, e.Value)
		}
	}
	sort.Strings(r.Extracted.Tactics)
	return r
}

// DeliveryOutcome is the state of the callback delivery for a session.
type DeliveryOutcome string

const (
	DeliveryPending   DeliveryOutcome = "pending"
	DeliveryDelivered DeliveryOutcome = "delivered"
	DeliveryFailed    DeliveryOutcome = "failed"
)

// CallbackRecord tracks report delivery attempts. It is owned by the
// reporting dispatcher, which updates it without touching conversation data.
type CallbackRecord struct {
	Attempts      int             `json:"attempts"`
	LastAttemptAt *time.Time      `json:"last_attempt_at,omitempty"`
	LastOutcome   DeliveryOutcome `json:"last_outcome"`
	NextRetryAt   *time.Time      `json:"next_retry_at,omitempty"`
}
