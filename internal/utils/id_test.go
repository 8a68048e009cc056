package utils

import (
	"testing"

	"github.com/google/uuid"
)

func TestNewIDIsUniqueUUID(t *testing.T) {
	seen := make(map[string]struct{})
	for range 100 {
		id := NewID()
		if _, err := uuid.Parse(id); err != nil {
			t.Fatalf("NewID returned non-uuid %q: %v", id, err)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = struct{}{}
	}
}
