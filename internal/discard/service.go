// Package discard is the caller-facing entry point of the pipeline: it
// computes digests, consults tombstones and registers tombstoned events.
package discard

import (
	"context"
	"log"
	"strings"

	"github.com/google/uuid"

	eherrors "github.com/arkilian/eventhash/internal/errors"
	"github.com/arkilian/eventhash/internal/event"
	"github.com/arkilian/eventhash/internal/hashing"
	"github.com/arkilian/eventhash/internal/observability"
	"github.com/arkilian/eventhash/internal/rawcache"
	"github.com/arkilian/eventhash/internal/tombstone"
	"github.com/arkilian/eventhash/pkg/types"
)

// IngestResult is the outcome of Ingest.
type IngestResult struct {
	EventID     string       `json:"event_id"`
	Hashes      []string     `json:"hashes"`
	Path        hashing.Path `json:"path"`
	Discarded   bool         `json:"discarded"`
	TombstoneID int64        `json:"tombstone_id,omitempty"`
	// Cached is false when the raw payload could not be written to the
	// raw cache; a later tombstone registration will then miss it.
	Cached bool `json:"cached"`
}

// Service wires the hasher, raw cache and tombstone store together.
type Service struct {
	hasher  *hashing.Hasher
	cache   *rawcache.Cache
	matcher *tombstone.Matcher
	writer  *tombstone.Writer
	stats   *observability.PipelineStats
}

// NewService creates a service. stats may be nil.
func NewService(cache *rawcache.Cache, store tombstone.Store, stats *observability.PipelineStats) *Service {
	hasher := hashing.NewHasher()
	if stats == nil {
		stats = observability.NewPipelineStats(0)
	}
	return &Service{
		hasher:  hasher,
		cache:   cache,
		matcher: tombstone.NewMatcher(hasher, store),
		writer:  tombstone.NewWriter(cache, hasher, store),
		stats:   stats,
	}
}

// Stats returns the pipeline statistics.
func (s *Service) Stats() *observability.PipelineStats {
	return s.stats
}

// ComputeHashes returns the digest list of data.
func (s *Service) ComputeHashes(data event.Data) ([]string, error) {
	res, err := s.computeDetailed(data)
	if err != nil {
		return nil, err
	}
	return res.Hashes, nil
}

func (s *Service) computeDetailed(data event.Data) (hashing.Result, error) {
	res, err := s.hasher.ComputeHashesDetailed(data)
	if err != nil {
		if eherrors.IsNoHashableInput(err) {
			s.stats.RecordNoHashableInput()
		}
		return hashing.Result{}, err
	}
	s.stats.RecordHash(string(res.Path), res.Source)
	return res, nil
}

// MatchesDiscard reports whether data hashes to a tombstoned digest of
// projectID.
func (s *Service) MatchesDiscard(ctx context.Context, data event.Data, projectID int64) (tombstone.Match, error) {
	hashes, err := s.ComputeHashes(data)
	if err != nil {
		return tombstone.Match{}, err
	}
	match, err := s.matcher.Matches(ctx, projectID, hashes)
	if err != nil {
		return tombstone.Match{}, err
	}
	s.stats.RecordDiscardCheck(match.Matched)
	return match, nil
}

// RegisterTombstone records the digests of a cached event against
// tombstoneID. A cache miss is reported in the result, not as an error.
func (s *Service) RegisterTombstone(ctx context.Context, projectID int64, eventID string, tombstoneID int64) (tombstone.Registration, error) {
	id, err := types.NormalizeEventID(eventID)
	if err != nil {
		return tombstone.Registration{}, eherrors.NewValidationError(eherrors.CodeInvalidArgument, err.Error())
	}

	reg, err := s.writer.Register(ctx,
		types.Event{ProjectID: projectID, EventID: id},
		types.Tombstone{ID: tombstoneID, ProjectID: projectID})
	if err != nil {
		return tombstone.Registration{}, err
	}
	s.stats.RecordRegistration(len(reg.Inserted), len(reg.Existing), reg.CacheMiss)
	return reg, nil
}

// Ingest parses raw, computes its digests, retains the payload in the raw
// cache and checks it against tombstones. A payload without a usable
// event_id is assigned a fresh one.
func (s *Service) Ingest(ctx context.Context, projectID int64, raw []byte) (IngestResult, error) {
	data, err := event.Parse(raw)
	if err != nil {
		return IngestResult{}, err
	}

	eventID := newEventID()
	if supplied := data.EventID(); supplied != "" {
		if id, err := types.NormalizeEventID(supplied); err == nil {
			eventID = id
		} else {
			log.Printf("discard: replacing malformed event id %q with %s", supplied, eventID)
		}
	}

	res, err := s.computeDetailed(data)
	if err != nil {
		return IngestResult{}, err
	}

	out := IngestResult{EventID: eventID, Hashes: res.Hashes, Path: res.Path, Cached: true}
	if err := s.cache.Put(ctx, projectID, eventID, raw); err != nil {
		log.Printf("discard: failed to cache raw payload of event %s: %v", eventID, err)
		out.Cached = false
	}

	match, err := s.matcher.Matches(ctx, projectID, res.Hashes)
	if err != nil {
		return IngestResult{}, err
	}
	s.stats.RecordDiscardCheck(match.Matched)
	out.Discarded = match.Matched
	out.TombstoneID = match.TombstoneID
	return out, nil
}

func newEventID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
