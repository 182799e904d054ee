// Package types provides the core identifiers shared across eventhash.
package types

import (
	"strconv"
	"strings"
)

// Event identifies a single reported occurrence within a project.
type Event struct {
	// ProjectID is the owning project
	ProjectID int64 `json:"project_id"`

	// EventID is the client supplied identifier, normally 32 lowercase hex characters
	EventID string `json:"event_id"`
}

// Tombstone is the marker left behind when a group is deleted with
// "don't show again". Only its identifier matters to the hashing pipeline.
type Tombstone struct {
	ID        int64 `json:"tombstone_id"`
	ProjectID int64 `json:"project_id"`
}

// ParseProjectID parses a positive project identifier.
func ParseProjectID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, ErrInvalidProjectID
	}
	if id <= 0 {
		return 0, ErrInvalidProjectID
	}
	return id, nil
}

// NormalizeEventID lowercases an event id and strips the dashes of the
// canonical UUID form so both spellings address the same cache entry.
func NormalizeEventID(s string) (string, error) {
	id := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "-", ""))
	if id == "" || len(id) > 64 {
		return "", ErrInvalidEventID
	}
	for _, c := range id {
		if (c < '0' || c > '9') && (c < 'a' || c > 'z') {
			return "", ErrInvalidEventID
		}
	}
	return id, nil
}
