package utils

import "github.com/google/uuid"

// NewID returns a random identifier used to correlate log lines of one connection.
// It is unrelated to the member identity, which is a small sequential number.
func NewID() string {
	return uuid.NewString()
}
