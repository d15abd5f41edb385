package uuidx

import "github.com/google/uuid"

// New returns a fresh v7 UUID. Message and session identities use v7 so
// that identifiers sort by creation time. Panics if generation fails.
func New() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}
