// Package event provides a read-only view over raw event payloads and the
// capability sections that can contribute grouping hash tokens.
package event

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	eherrors "github.com/arkilian/eventhash/internal/errors"
)

// Data is a decoded, partially trusted event payload. Numbers are kept as
// json.Number so that re-encoding a token never depends on float formatting.
type Data map[string]any

// Parse decodes a raw JSON payload. The payload must be a JSON object.
func Parse(raw []byte) (Data, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, eherrors.Wrap(eherrors.ErrCategoryValidation, eherrors.CodeInvalidPayload,
			"payload is not valid JSON", err)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, eherrors.NewValidationError(eherrors.CodeInvalidPayload, "payload must be a JSON object")
	}
	return Data(obj), nil
}

// Platform returns the event platform, or "" when absent.
func (d Data) Platform() string {
	return stringField(d, "platform")
}

// Checksum returns the explicit checksum override, or "" when absent.
func (d Data) Checksum() string {
	return stringField(d, "checksum")
}

// EventID returns the client supplied event id, or "" when absent.
func (d Data) EventID() string {
	return stringField(d, "event_id")
}

// Fingerprint returns the fingerprint template carried by the event. A
// missing, empty or non-list fingerprint yields nil. Scalar entries are
// stringified; nested values are dropped.
func (d Data) Fingerprint() []string {
	list, ok := d["fingerprint"].([]any)
	if !ok || len(list) == 0 {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, v := range list {
		if s, ok := scalarString(v); ok {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// stringField reads a string value, treating any other type as absent.
func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

// scalarString renders strings, numbers and booleans as tokens.
func scalarString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return "", false
	}
}

// intField reads an integer field. Legacy payloads sometimes send line
// numbers as strings; those are accepted when they parse cleanly.
func intField(m map[string]any, key string) (int64, bool) {
	switch t := m[key].(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n, true
		}
	case float64:
		return int64(t), true
	case int:
		return int64(t), true
	case int64:
		return t, true
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}

// boolField reads an optional boolean.
func boolField(m map[string]any, key string) *bool {
	b, ok := m[key].(bool)
	if !ok {
		return nil
	}
	return &b
}
