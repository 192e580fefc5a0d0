package uuidx

import "github.com/google/uuid"

// New generates a version 7 UUID. V7 ids are time-ordered, which keeps
// conversation ids roughly sortable by creation time. Panics if the random
// source fails.
func New() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// NewString generates a version 7 UUID as a string.
func NewString() string {
	return New().String()
}
