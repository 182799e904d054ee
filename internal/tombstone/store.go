// Package tombstone persists the digests of deleted groups and answers
// whether an incoming event matches one of them.
package tombstone

import (
	"context"
	"time"
)

// Hash is one tombstoned digest. (ProjectID, Digest) is unique.
type Hash struct {
	ID          int64
	ProjectID   int64
	Digest      string
	TombstoneID int64
	CreatedAt   time.Time
}

// InsertResult tells whether an insert created a row or found one.
type InsertResult int

const (
	// InsertCreated means the row did not exist and was written.
	InsertCreated InsertResult = iota + 1
	// InsertExisting means another writer already registered the digest.
	InsertExisting
)

func (r InsertResult) String() string {
	switch r {
	case InsertCreated:
		return "created"
	case InsertExisting:
		return "existing"
	default:
		return "unknown"
	}
}

// Store is the persisted tombstone hash table.
type Store interface {
	// Insert writes h in its own transaction. A (project, digest) conflict
	// is reported as InsertExisting, never as an error.
	Insert(ctx context.Context, h Hash) (InsertResult, error)

	// FindFirst returns the tombstone id of the first stored row of project
	// whose digest is in digests.
	FindFirst(ctx context.Context, projectID int64, digests []string) (int64, bool, error)

	// List returns the stored rows of a project ordered by id.
	List(ctx context.Context, projectID int64) ([]Hash, error)

	// Close releases the underlying connections.
	Close() error
}
