package tombstone

import (
	"context"

	"github.com/arkilian/eventhash/internal/event"
	"github.com/arkilian/eventhash/internal/hashing"
)

// Match is the outcome of a discard lookup.
type Match struct {
	Matched     bool
	TombstoneID int64
}

// Matcher answers whether a set of digests hits a stored tombstone.
type Matcher struct {
	hasher *hashing.Hasher
	store  Store
}

// NewMatcher creates a matcher over store.
func NewMatcher(hasher *hashing.Hasher, store Store) *Matcher {
	return &Matcher{hasher: hasher, store: store}
}

// Matches reports whether any of digests is tombstoned for projectID. An
// empty digest list never matches and never reaches the store.
func (m *Matcher) Matches(ctx context.Context, projectID int64, digests []string) (Match, error) {
	if len(digests) == 0 {
		return Match{}, nil
	}
	id, ok, err := m.store.FindFirst(ctx, projectID, digests)
	if err != nil {
		return Match{}, err
	}
	return Match{Matched: ok, TombstoneID: id}, nil
}

// MatchesEvent computes the digests of data and looks them up. Hashing
// failures, including a missing hashable input, are returned unchanged.
func (m *Matcher) MatchesEvent(ctx context.Context, projectID int64, data event.Data) (Match, []string, error) {
	digests, err := m.hasher.ComputeHashes(data)
	if err != nil {
		return Match{}, nil, err
	}
	match, err := m.Matches(ctx, projectID, digests)
	return match, digests, err
}
