package grpc

import (
	"context"
	"fmt"
	"log"
	"math"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/arkilian/eventhash/internal/discard"
	eherrors "github.com/arkilian/eventhash/internal/errors"
	"github.com/arkilian/eventhash/internal/event"
	"github.com/arkilian/eventhash/internal/tombstone"
)

// Pipeline is the subset of the discard service exposed over gRPC.
type Pipeline interface {
	ComputeHashes(data event.Data) ([]string, error)
	MatchesDiscard(ctx context.Context, data event.Data, projectID int64) (tombstone.Match, error)
	RegisterTombstone(ctx context.Context, projectID int64, eventID string, tombstoneID int64) (tombstone.Registration, error)
	Ingest(ctx context.Context, projectID int64, raw []byte) (discard.IngestResult, error)
}

// HashServer implements HashServiceServer.
type HashServer struct {
	pipeline Pipeline
}

// NewHashServer creates a gRPC server over pipeline.
func NewHashServer(pipeline Pipeline) *HashServer {
	return &HashServer{pipeline: pipeline}
}

// ComputeHashes expects {"event": {...}} and returns {"hashes": [...]}.
func (s *HashServer) ComputeHashes(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	requestID := extractRequestID(ctx)

	_, data, err := eventField(req)
	if err != nil {
		return nil, err
	}
	hashes, err := s.pipeline.ComputeHashes(data)
	if err != nil {
		return nil, toStatus("compute hashes", requestID, err)
	}
	return newResponse(map[string]interface{}{
		"hashes":     stringList(hashes),
		"request_id": requestID,
	})
}

// MatchesDiscard expects {"project_id": n, "event": {...}}.
func (s *HashServer) MatchesDiscard(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	requestID := extractRequestID(ctx)

	projectID, err := positiveIntField(req, "project_id")
	if err != nil {
		return nil, err
	}
	_, data, err := eventField(req)
	if err != nil {
		return nil, err
	}

	match, err := s.pipeline.MatchesDiscard(ctx, data, projectID)
	if err != nil {
		return nil, toStatus("matches discard", requestID, err)
	}
	return newResponse(map[string]interface{}{
		"matched":      match.Matched,
		"tombstone_id": match.TombstoneID,
		"request_id":   requestID,
	})
}

// RegisterTombstone expects {"project_id": n, "event_id": s, "tombstone_id": n}.
func (s *HashServer) RegisterTombstone(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	requestID := extractRequestID(ctx)

	projectID, err := positiveIntField(req, "project_id")
	if err != nil {
		return nil, err
	}
	tombstoneID, err := positiveIntField(req, "tombstone_id")
	if err != nil {
		return nil, err
	}
	eventID := req.GetFields()["event_id"].GetStringValue()
	if eventID == "" {
		return nil, status.Error(codes.InvalidArgument, "event_id is required")
	}

	reg, err := s.pipeline.RegisterTombstone(ctx, projectID, eventID, tombstoneID)
	if err != nil {
		return nil, toStatus("register tombstone", requestID, err)
	}
	return newResponse(map[string]interface{}{
		"inserted":   stringList(reg.Inserted),
		"existing":   stringList(reg.Existing),
		"cache_miss": reg.CacheMiss,
		"request_id": requestID,
	})
}

// Ingest expects {"project_id": n, "event": {...}}.
func (s *HashServer) Ingest(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	requestID := extractRequestID(ctx)

	projectID, err := positiveIntField(req, "project_id")
	if err != nil {
		return nil, err
	}
	raw, _, err := eventField(req)
	if err != nil {
		return nil, err
	}

	res, err := s.pipeline.Ingest(ctx, projectID, raw)
	if err != nil {
		return nil, toStatus("ingest", requestID, err)
	}
	return newResponse(map[string]interface{}{
		"event_id":     res.EventID,
		"hashes":       stringList(res.Hashes),
		"path":         string(res.Path),
		"discarded":    res.Discarded,
		"tombstone_id": res.TombstoneID,
		"cached":       res.Cached,
		"request_id":   requestID,
	})
}

// eventField returns the "event" member of req both as JSON and decoded.
func eventField(req *structpb.Struct) ([]byte, event.Data, error) {
	ev := req.GetFields()["event"].GetStructValue()
	if ev == nil {
		return nil, nil, status.Error(codes.InvalidArgument, "event is required")
	}
	raw, err := protojson.Marshal(ev)
	if err != nil {
		return nil, nil, status.Errorf(codes.InvalidArgument, "invalid event: %v", err)
	}
	data, err := event.Parse(raw)
	if err != nil {
		return nil, nil, status.Error(codes.InvalidArgument, err.Error())
	}
	return raw, data, nil
}

func positiveIntField(req *structpb.Struct, name string) (int64, error) {
	v, ok := req.GetFields()[name]
	if !ok {
		return 0, status.Errorf(codes.InvalidArgument, "%s is required", name)
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, status.Errorf(codes.InvalidArgument, "%s must be a number", name)
	}
	f := n.NumberValue
	if f <= 0 || f != math.Trunc(f) || f >= math.MaxInt64 {
		return 0, status.Errorf(codes.InvalidArgument, "%s must be a positive integer", name)
	}
	return int64(f), nil
}

func stringList(in []string) []interface{} {
	out := make([]interface{}, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

func newResponse(fields map[string]interface{}) (*structpb.Struct, error) {
	resp, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to build response: %v", err)
	}
	return resp, nil
}

// toStatus maps pipeline errors to gRPC status codes.
func toStatus(op, requestID string, err error) error {
	switch {
	case eherrors.IsNoHashableInput(err):
		return status.Error(codes.FailedPrecondition, err.Error())
	case eherrors.GetCategory(err) == eherrors.ErrCategoryValidation:
		return status.Error(codes.InvalidArgument, err.Error())
	}
	log.Printf("grpc %s: request %s failed: %v", op, requestID, err)
	return status.Error(codes.Internal, fmt.Sprintf("%s failed", op))
}

// extractRequestID extracts or generates a request ID from the gRPC context.
func extractRequestID(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if ids := md.Get("x-request-id"); len(ids) > 0 {
			return ids[0]
		}
	}
	return uuid.New().String()
}
