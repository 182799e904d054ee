package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/arkilian/eventhash/internal/event"
	"github.com/arkilian/eventhash/pkg/types"
)

// HashesResponse is returned by POST /v1/hashes.
type HashesResponse struct {
	Hashes    []string `json:"hashes"`
	RequestID string   `json:"request_id"`
}

// DiscardResponse is returned by POST /v1/projects/{projectID}/discard.
type DiscardResponse struct {
	Matched     bool   `json:"matched"`
	TombstoneID int64  `json:"tombstone_id,omitempty"`
	RequestID   string `json:"request_id"`
}

// TombstoneRequest is the body of POST /v1/projects/{projectID}/tombstones.
type TombstoneRequest struct {
	EventID     string `json:"event_id"`
	TombstoneID int64  `json:"tombstone_id"`
}

// TombstoneResponse reports the outcome of a tombstone registration.
type TombstoneResponse struct {
	Inserted  []string `json:"inserted"`
	Existing  []string `json:"existing"`
	CacheMiss bool     `json:"cache_miss"`
	RequestID string   `json:"request_id"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.pipeline.Stats().Snapshot())
}

func (h *Handler) computeHashes(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	data, ok := h.readEvent(w, r)
	if !ok {
		return
	}
	hashes, err := h.pipeline.ComputeHashes(data)
	if err != nil {
		writeServiceError(w, err, requestID)
		return
	}
	writeJSON(w, http.StatusOK, HashesResponse{Hashes: hashes, RequestID: requestID})
}

func (h *Handler) ingest(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	projectID, ok := projectIDParam(w, r)
	if !ok {
		return
	}
	raw, ok := h.readBody(w, r)
	if !ok {
		return
	}

	res, err := h.pipeline.Ingest(r.Context(), projectID, raw)
	if err != nil {
		writeServiceError(w, err, requestID)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) matchDiscard(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	projectID, ok := projectIDParam(w, r)
	if !ok {
		return
	}
	data, ok := h.readEvent(w, r)
	if !ok {
		return
	}

	match, err := h.pipeline.MatchesDiscard(r.Context(), data, projectID)
	if err != nil {
		writeServiceError(w, err, requestID)
		return
	}
	writeJSON(w, http.StatusOK, DiscardResponse{
		Matched:     match.Matched,
		TombstoneID: match.TombstoneID,
		RequestID:   requestID,
	})
}

func (h *Handler) registerTombstone(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	projectID, ok := projectIDParam(w, r)
	if !ok {
		return
	}
	raw, ok := h.readBody(w, r)
	if !ok {
		return
	}

	var req TombstoneRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err), requestID)
		return
	}
	if req.EventID == "" {
		writeError(w, http.StatusBadRequest, "event_id is required", requestID)
		return
	}
	if req.TombstoneID <= 0 {
		writeError(w, http.StatusBadRequest, "tombstone_id must be positive", requestID)
		return
	}

	reg, err := h.pipeline.RegisterTombstone(r.Context(), projectID, req.EventID, req.TombstoneID)
	if err != nil {
		writeServiceError(w, err, requestID)
		return
	}
	resp := TombstoneResponse{
		Inserted:  reg.Inserted,
		Existing:  reg.Existing,
		CacheMiss: reg.CacheMiss,
		RequestID: requestID,
	}
	if resp.Inserted == nil {
		resp.Inserted = []string{}
	}
	if resp.Existing == nil {
		resp.Existing = []string{}
	}
	writeJSON(w, http.StatusOK, resp)
}

// readBody reads the request body up to the configured limit.
func (h *Handler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	requestID := GetRequestID(r.Context())

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large", requestID)
			return nil, false
		}
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to read request body: %v", err), requestID)
		return nil, false
	}
	return raw, true
}

func (h *Handler) readEvent(w http.ResponseWriter, r *http.Request) (event.Data, bool) {
	raw, ok := h.readBody(w, r)
	if !ok {
		return nil, false
	}
	data, err := event.Parse(raw)
	if err != nil {
		writeServiceError(w, err, GetRequestID(r.Context()))
		return nil, false
	}
	return data, true
}

func projectIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := types.ParseProjectID(chi.URLParam(r, "projectID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), GetRequestID(r.Context()))
		return 0, false
	}
	return id, true
}
