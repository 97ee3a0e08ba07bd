package core

import (
	"strings"

	"github.com/google/uuid"
)

// sessionIDPrefix matches the public id format ("ses_a1b2c3d4e5").
const sessionIDPrefix = "ses_"

// NewID generates a unique identifier for messages and other internal
// records.
func NewID() string { return uuid.NewString() }

// NewSessionID generates an opaque session identifier with the public
// prefix. Ten hex characters of a fresh UUID keep the id short enough for
// logs while collisions stay negligible at honeypot scale.
func NewSessionID() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return sessionIDPrefix + raw[:10]
}
