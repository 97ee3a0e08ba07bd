// Package responder abstracts the external reply-generation capability
// behind a narrow request/response interface: conversation history plus a
// rendered persona prompt in, one reply string out. The engine treats the
// capability as a black box with a bounded-latency expectation; failures are
// explicit so the orchestrator can recover locally.
package responder

import (
	"context"
	"fmt"
	"sync"

	"github.com/intelhive/intelhive/core"
)

// Request is the normalized generation input.
type Request struct {
	// SystemPrompt is the rendered persona instruction.
	SystemPrompt string
	// History is the full ordered turn sequence, oldest first.
	History []core.Message
}

// Info describes a generator implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"` // "openai", "anthropic", "stub", ...
}

// Generator produces the agent's next reply. Implementations must honor
// context cancellation and return an error rather than an empty reply on
// failure.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
	Info() Info
}

// Stub is a deterministic in-memory Generator for tests and local runs.
// It can script exact replies per inbound message and fail a configured
// number of leading calls to exercise retry paths.
type Stub struct {
	mu           sync.Mutex
	replies      map[string]string
	defaultReply string
	failuresLeft int
	calls        int
}

// NewStub constructs a Stub with a generic default reply.
func NewStub() *Stub {
	return &Stub{
		replies:      map[string]string{},
		defaultReply: "Oh, I see. Can you tell me a bit more about how this works?",
	}
}

// AddReply registers a canned reply for an exact inbound message.
func (s *Stub) AddReply(inbound, reply string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies[inbound] = reply
}

// SetDefault overrides the fallback reply for unscripted messages.
func (s *Stub) SetDefault(reply string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaultReply = reply
}

// FailTimes makes the next n Generate calls return an error.
func (s *Stub) FailTimes(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failuresLeft = n
}

// Calls reports how many times Generate ran.
func (s *Stub) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Generate implements Generator. It keys off the last counterparty turn.
func (s *Stub) Generate(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failuresLeft > 0 {
		s.failuresLeft--
		return "", fmt.Errorf("stub generator: scripted failure")
	}
	for i := len(req.History) - 1; i >= 0; i-- {
		if req.History[i].Sender != core.SenderCounterparty {
			continue
		}
		if reply, ok := s.replies[req.History[i].Content]; ok {
			return reply, nil
		}
		break
	}
	return s.defaultReply, nil
}

// Info implements Generator.
func (s *Stub) Info() Info { return Info{Name: "stub", Provider: "stub"} }
