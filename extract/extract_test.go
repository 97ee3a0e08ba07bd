package extract

import (
	"testing"

	"github.com/intelhive/intelhive/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entitiesOf(entities []core.ExtractedEntity, entityType core.EntityType) []string {
	var values []string
	for _, e := range entities {
		if e.Type == entityType {
			values = append(values, e.Value)
		}
	}
	return values
}

func TestExtractUPIHandle(t *testing.T) {
	e := New()
	entities := e.Extract("My UPI is scammer@paytm", 1)
	assert.Equal(t, []string{"scammer@paytm"}, entitiesOf(entities, core.EntityPaymentIdentifier))
	for _, entity := range entities {
		assert.Equal(t, 1, entity.FirstSeenTurn)
	}
}

func TestUPIHandleAtSentenceEnd(t *testing.T) {
	e := New()
	entities := e.Extract("Send it to Victim.Help@okaxis. Thanks", 0)
	assert.Equal(t, []string{"victim.help@okaxis"}, entitiesOf(entities, core.EntityPaymentIdentifier))
}

func TestEmailIsNotAPaymentIdentifier(t *testing.T) {
	e := New()
	entities := e.Extract("write to support@gmail.com please", 0)
	assert.Empty(t, entitiesOf(entities, core.EntityPaymentIdentifier))
}

func TestExtractPhoneNumbers(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"call me on +919876543210", "+919876543210"},
		{"call me on +91 98765-43210", "+919876543210"},
		{"my number is 9876543210", "+919876543210"},
		{"my number is 09876543210", "+919876543210"},
		{"reach me at 919876543210", "+919876543210"},
		{"US desk: +1 (415) 555-0123", "+14155550123"},
	}
	e := New()
	for _, tt := range tests {
		entities := e.Extract(tt.text, 0)
		require.Equal(t, []string{tt.want}, entitiesOf(entities, core.EntityPhoneNumber), "text: %s", tt.text)
	}
}

func TestAccountNumberIsBankDetailNotPhone(t *testing.T) {
	e := New()
	entities := e.Extract("deposit into account 123456789012 IFSC SBIN0001234", 0)
	assert.Empty(t, entitiesOf(entities, core.EntityPhoneNumber))
	assert.ElementsMatch(t,
		[]string{"123456789012", "SBIN0001234"},
		entitiesOf(entities, core.EntityBankDetail))
}

func TestExtractURLs(t *testing.T) {
	e := New()
	entities := e.Extract("Pay at HTTPS://Fake-Bank.com/verify, or www.scam.example/x.", 0)
	assert.ElementsMatch(t,
		[]string{"https://fake-bank.com/verify", "www.scam.example/x"},
		entitiesOf(entities, core.EntityURL))
}

func TestExtractTactics(t *testing.T) {
	e := New()
	entities := e.Extract("This is URGENT, I am a police officer, don't tell anyone!", 0)
	assert.ElementsMatch(t,
		[]string{"urgency", "authority", "secrecy"},
		entitiesOf(entities, core.EntityTacticTag))
}

func TestExtractIsIdempotentWithinATurn(t *testing.T) {
	e := New()
	text := "urgent urgent send to scammer@paytm and scammer@paytm now"
	entities := e.Extract(text, 0)
	assert.Len(t, entitiesOf(entities, core.EntityPaymentIdentifier), 1)
	assert.Len(t, entitiesOf(entities, core.EntityTacticTag), 1)

	// Re-processing the same text yields the same set.
	assert.ElementsMatch(t, entities, e.Extract(text, 0))
}

func TestNoEntitiesInBenignText(t *testing.T) {
	e := New()
	assert.Empty(t, e.Extract("Hello, how is your day going?", 0))
}
