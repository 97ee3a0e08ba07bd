package core

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSessionDefaults(t *testing.T) {
	s := NewSession("key-1")
	assert.True(t, strings.HasPrefix(s.ID, "ses_"))
	assert.Equal(t, StatusMonitoring, s.Status)
	assert.Equal(t, CategoryUnknown, s.Classification.Category)
	assert.Empty(t, s.Persona)
	assert.Nil(t, s.EndedAt)
}

func TestSessionIDsUnique(t *testing.T) {
	seen := map[string]struct{}{}
	for i := 0; i < 1000; i++ {
		id := NewSessionID()
		if _, ok := seen[id]; ok {
			t.Fatalf("duplicate session id %s", id)
		}
		seen[id] = struct{}{}
	}
}

func TestAppendAssignsContiguousTurnIndices(t *testing.T) {
	s := NewSession("key-1")
	s.Append(SenderCounterparty, "hello")
	s.Append(SenderAgent, "hi there")
	s.Append(SenderCounterparty, "send money")
	require.Len(t, s.Messages, 3)
	for i, m := range s.Messages {
		assert.Equal(t, i, m.TurnIndex)
	}
	assert.Equal(t, 2, s.CounterpartyTurns())
}

func TestAddEntitiesDeduplicates(t *testing.T) {
	s := NewSession("key-1")
	added := s.AddEntities([]ExtractedEntity{
		{Type: EntityPaymentIdentifier, Value: "scammer@paytm", FirstSeenTurn: 1},
		{Type: EntityTacticTag, Value: "urgency", FirstSeenTurn: 1},
	})
	require.Len(t, added, 2)

	// Same values on a later turn are dominated by the dedup key.
	added = s.AddEntities([]ExtractedEntity{
		{Type: EntityPaymentIdentifier, Value: "scammer@paytm", FirstSeenTurn: 3},
	})
	assert.Empty(t, added)
	assert.Len(t, s.Extracted, 2)

	keys := map[string]struct{}{}
	for _, e := range s.Extracted {
		if _, ok := keys[e.Key()]; ok {
			t.Fatalf("duplicate entity key %q", e.Key())
		}
		keys[e.Key()] = struct{}{}
	}
}

func TestCloneIsolation(t *testing.T) {
	s := NewSession("key-1")
	s.Append(SenderCounterparty, "original")
	s.Classification.Scores[CategoryUPIFraud] = 0.9
	clone := s.Clone()

	clone.Messages[0].Content = "mutated"
	clone.Classification.Scores[CategoryUPIFraud] = 0.1
	clone.Extracted = append(clone.Extracted, ExtractedEntity{Type: EntityURL, Value: "https://x.test"})

	assert.Equal(t, "original", s.Messages[0].Content)
	assert.Equal(t, 0.9, s.Classification.Scores[CategoryUPIFraud])
	assert.Empty(t, s.Extracted)
}

func TestBuildReportShape(t *testing.T) {
	s := NewSession("key-1")
	s.Persona = "cautious_elderly"
	s.Classification.Category = CategoryUPIFraud
	s.Classification.Confidence = 0.85
	for i := 0; i < 4; i++ {
		s.Append(SenderCounterparty, "msg")
		s.Append(SenderAgent, "reply")
	}
	s.AddEntities([]ExtractedEntity{
		{Type: EntityPaymentIdentifier, Value: "scammer@paytm", FirstSeenTurn: 2},
		{Type: EntityPhoneNumber, Value: "+919876543210", FirstSeenTurn: 4},
		{Type: EntityTacticTag, Value: "urgency", FirstSeenTurn: 0},
		{Type: EntityTacticTag, Value: "authority", FirstSeenTurn: 2},
	})
	ended := s.LastActivityAt
	s.EndedAt = &ended

	r := BuildReport(s)
	assert.Equal(t, s.ID, r.SessionID)
	assert.Equal(t, CategoryUPIFraud, r.Classification)
	assert.Equal(t, []string{"scammer@paytm"}, r.Extracted.UPIIDs)
	assert.Equal(t, []string{"+919876543210"}, r.Extracted.PhoneNumbers)
	assert.Equal(t, []string{"authority", "urgency"}, r.Extracted.Tactics)
	assert.NotNil(t, r.Extracted.URLs)
	assert.NotNil(t, r.Extracted.BankDetails)
	assert.Equal(t, 4, r.Conversation.TotalTurns)
	assert.Equal(t, EngagementMedium, r.Conversation.ScammerEngagement)

	// Same frozen session yields identical content.
	assert.Equal(t, r, BuildReport(s))
}

func TestEngagementFor(t *testing.T) {
	tests := []struct {
		turns int
		want  EngagementLevel
	}{
		{0, EngagementLow},
		{3, EngagementLow},
		{4, EngagementMedium},
		{7, EngagementMedium},
		{8, EngagementHigh},
		{20, EngagementHigh},
	}
	for _, tt := range tests {
		if got := EngagementFor(tt.turns); got != tt.want {
			t.Fatalf("EngagementFor(%d) = %s, want %s", tt.turns, got, tt.want)
		}
	}
}
