package common

import (
	"github.com/google/uuid"
)

// NewID generates a new canonical 8-4-4-4-12 hex UUID. Every id returned by
// any tool must match this format.
func NewID() string {
	return uuid.New().String()
}
