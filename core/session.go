package core

import (
	"context"
	"time"
)

// Status is the lifecycle state of a session. Transitions are one-directional:
// Monitoring may advance to Engaged or Terminated, Engaged only to Terminated,
// and Terminated only to Archived. A session never re-enters an earlier state.
type Status string

const (
	// StatusMonitoring is the initial state: the classifier runs on each
	// inbound turn but no persona has been adopted yet.
	StatusMonitoring Status = "monitoring"
	// StatusEngaged means scam intent was confirmed and the agent is
	// actively replying in persona.
	StatusEngaged Status = "engaged"
	// StatusTerminated means conversation activity has ended and the final
	// report has been handed to the dispatcher.
	StatusTerminated Status = "terminated"
	// StatusArchived means the report delivery reached a terminal outcome
	// (delivered or permanently failed). Pure bookkeeping, no behavior.
	StatusArchived Status = "archived"
)

// Active reports whether the session still accepts conversation activity.
func (s Status) Active() bool { return s == StatusMonitoring || s == StatusEngaged }

// Terminal reports whether the session has left the conversational lifecycle.
func (s Status) Terminal() bool { return s == StatusTerminated || s == StatusArchived }

// Session is one tracked honeypot conversation with a single counterparty.
//
// Contract:
//   - Messages is append-only; TurnIndex values are contiguous from 0.
//   - Extracted only grows and never holds two entries with the same
//     (Type, Value) pair.
//   - Classification confidence for the leading category never decreases.
//   - The session manager is the exclusive mutator; everything else sees
//     clones. Session itself carries no lock.
type Session struct {
	ID             string            `json:"id"`
	Credential     string            `json:"credential"`
	Status         Status            `json:"status"`
	Persona        string            `json:"persona,omitempty"`
	Classification Classification    `json:"classification"`
	Messages       []Message         `json:"messages"`
	Extracted      []ExtractedEntity `json:"extracted"`
	CallbackURL    string            `json:"callback_url,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	LastActivityAt time.Time         `json:"last_activity_at"`
	EndedAt        *time.Time        `json:"ended_at,omitempty"`
	Callback       *CallbackRecord   `json:"callback,omitempty"`
}

// NewSession creates a session in Monitoring owned by the given credential.
func NewSession(credential string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:             NewSessionID(),
		Credential:     credential,
		Status:         StatusMonitoring,
		Classification: NewClassification(),
		CreatedAt:      now,
		LastActivityAt: now,
	}
}

// NextTurnIndex returns the index the next appended message will receive.
func (s *Session) NextTurnIndex() int { return len(s.Messages) }

// Append adds a turn with the next contiguous index and returns it.
func (s *Session) Append(sender Sender, content string) Message {
	msg := NewMessage(sender, content, s.NextTurnIndex())
	s.Messages = append(s.Messages, msg)
	s.LastActivityAt = msg.Timestamp
	return msg
}

// CounterpartyTurns counts inbound (non-agent) turns.
func (s *Session) CounterpartyTurns() int {
	n := 0
	for _, m := range s.Messages {
		if m.Sender == SenderCounterparty {
			n++
		}
	}
	return n
}

// AddEntities merges entities into the extracted set, deduplicating by
// (Type, Value). It returns only the entities that were actually new.
func (s *Session) AddEntities(entities []ExtractedEntity) []ExtractedEntity {
	if len(entities) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(s.Extracted))
	for _, e := range s.Extracted {
		seen[e.Key()] = struct{}{}
	}
	var added []ExtractedEntity
	for _, e := range entities {
		if _, ok := seen[e.Key()]; ok {
			continue
		}
		seen[e.Key()] = struct{}{}
		s.Extracted = append(s.Extracted, e)
		added = append(added, e)
	}
	return added
}

// Clone returns a deep copy safe for independent reads while the manager
// keeps mutating the original.
func (s *Session) Clone() *Session {
	clone := *s
	clone.Messages = make([]Message, len(s.Messages))
	copy(clone.Messages, s.Messages)
	clone.Extracted = make([]ExtractedEntity, len(s.Extracted))
	copy(clone.Extracted, s.Extracted)
	clone.Classification = s.Classification.Clone()
	if s.EndedAt != nil {
		t := *s.EndedAt
		clone.EndedAt = &t
	}
	if s.Callback != nil {
		cb := *s.Callback
		clone.Callback = &cb
	}
	return &clone
}

// SessionStore is the durable copy of session aggregates and the single
// source of truth across process restarts. Save overwrites the full
// aggregate; implementations must keep returned sessions isolated from
// internal state.
type SessionStore interface {
	Save(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	ListByStatus(ctx context.Context, status Status) ([]*Session, error)
}
