package core

import "time"

// Sender identifies which side of the conversation authored a turn.
type Sender string

const (
	// SenderCounterparty is the suspected scammer.
	SenderCounterparty Sender = "counterparty"
	// SenderAgent is the honeypot's persona-driven responder.
	SenderAgent Sender = "agent"
)

// Message is a single ordered turn within a session. Immutable after append;
// insertion order is the conversation order and is load-bearing for the
// classifier and extractor.
type Message struct {
	ID        string    `json:"id"`
	Sender    Sender    `json:"sender"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	TurnIndex int       `json:"turn_index"`
}

// NewMessage creates a turn stamped with the current UTC time.
func NewMessage(sender Sender, content string, turnIndex int) Message {
	return Message{
		ID:        NewID(),
		Sender:    sender,
		Content:   content,
		Timestamp: time.Now().UTC(),
		TurnIndex: turnIndex,
	}
}
