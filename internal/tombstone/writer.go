package tombstone

import (
	"context"
	"log"
	"time"

	"github.com/arkilian/eventhash/internal/event"
	"github.com/arkilian/eventhash/internal/hashing"
	"github.com/arkilian/eventhash/pkg/types"
)

// RawPayloadSource returns the cached raw payload of an event. ok is false
// when the entry is absent or expired.
type RawPayloadSource interface {
	Get(ctx context.Context, projectID int64, eventID string) (payload []byte, ok bool, err error)
}

// Registration summarizes one Register call.
type Registration struct {
	// Inserted are digests this call wrote
	Inserted []string
	// Existing are digests another writer had already stored
	Existing []string
	// CacheMiss is set when the raw payload was gone and nothing was written
	CacheMiss bool
}

// Writer records the digests of a deleted group's event against its tombstone.
type Writer struct {
	source RawPayloadSource
	hasher *hashing.Hasher
	store  Store
	now    func() time.Time
}

// NewWriter creates a tombstone hash writer.
func NewWriter(source RawPayloadSource, hasher *hashing.Hasher, store Store) *Writer {
	return &Writer{source: source, hasher: hasher, store: store, now: time.Now}
}

// Register loads the raw payload of ev, computes its digests and inserts
// one row per digest, each in its own transaction. Rows that already exist
// are skipped so repeated or concurrent calls converge on the same table.
// A cache miss is not an error.
func (w *Writer) Register(ctx context.Context, ev types.Event, tomb types.Tombstone) (Registration, error) {
	raw, ok, err := w.source.Get(ctx, ev.ProjectID, ev.EventID)
	if err != nil {
		return Registration{}, err
	}
	if !ok {
		log.Printf("tombstone: raw payload for event %s (project %d) not cached, skipping", ev.EventID, ev.ProjectID)
		return Registration{CacheMiss: true}, nil
	}

	data, err := event.Parse(raw)
	if err != nil {
		return Registration{}, err
	}
	digests, err := w.hasher.ComputeHashes(data)
	if err != nil {
		return Registration{}, err
	}

	var reg Registration
	createdAt := w.now().UTC()
	for _, d := range digests {
		res, err := w.store.Insert(ctx, Hash{
			ProjectID:   ev.ProjectID,
			Digest:      d,
			TombstoneID: tomb.ID,
			CreatedAt:   createdAt,
		})
		if err != nil {
			return reg, err
		}
		if res == InsertCreated {
			reg.Inserted = append(reg.Inserted, d)
		} else {
			reg.Existing = append(reg.Existing, d)
		}
	}
	return reg, nil
}
