package hashing

import (
	"testing"

	"github.com/arkilian/eventhash/internal/event"
	eherrors "github.com/arkilian/eventhash/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, raw string) event.Data {
	t.Helper()
	d, err := event.Parse([]byte(raw))
	require.NoError(t, err)
	return d
}

const stackEvent = `{
	"platform": "python",
	"exception": {"values": [{
		"type": "ZeroDivisionError",
		"value": "division by zero",
		"stacktrace": {"frames": [
			{"module": "app.views", "function": "index", "context_line": "return 1 / 0", "in_app": true},
			{"module": "django.core", "function": "dispatch", "in_app": false}
		]}
	}]},
	"logentry": {"message": "boom %s"}
}`

func TestExtractor_PriorityOrder(t *testing.T) {
	ext := NewExtractor()

	in, err := ext.Extract(parse(t, stackEvent))
	require.NoError(t, err)
	assert.Equal(t, "exception", in.Source)
	assert.Equal(t, event.KindException, in.Kind)
	assert.Equal(t, []string{
		"app.views", "return 1 / 0",
		"django.core", "dispatch",
		"ZeroDivisionError",
	}, in.Tokens, "raw data must hash every frame, in_app flags are not trusted yet")

	single, err := ext.Extract(parse(t, `{"exception": {"type": "E", "value": "v"}, "stacktrace": {"frames": [{"module": "m", "function": "f"}]}}`))
	require.NoError(t, err)
	assert.Equal(t, event.KindSingleException, single.Kind)
	assert.Equal(t, []string{"E", "v"}, single.Tokens)
}

func TestExtractor_FallsThroughEmptyCapabilities(t *testing.T) {
	ext := NewExtractor()
	in, err := ext.Extract(parse(t, `{
		"exception": {"values": []},
		"stacktrace": {"frames": []},
		"request": {"url": "http://example.com"},
		"message": "legacy message"
	}`))
	require.NoError(t, err)
	assert.Equal(t, "message", in.Source)
	assert.Equal(t, []string{"legacy message"}, in.Tokens)
}

func TestExtractor_NoHashableInput(t *testing.T) {
	ext := NewExtractor()
	for _, raw := range []string{
		`{}`,
		`{"platform": "python", "request": {"url": "http://x"}, "user": {"id": 1}}`,
		`{"exception": {"values": [{}]}}`,
	} {
		_, err := ext.Extract(parse(t, raw))
		require.Error(t, err, raw)
		assert.True(t, eherrors.IsNoHashableInput(err), raw)
	}
}

func TestExtractor_MalformedSectionPropagates(t *testing.T) {
	_, err := NewExtractor().Extract(parse(t, `{"exception": "nope", "message": "ok"}`))
	require.Error(t, err)
	assert.Equal(t, eherrors.CodeInvalidSection, eherrors.GetCode(err))
}

func TestResolver_DefaultExpansion(t *testing.T) {
	r := NewResolver(NewExtractor())
	data := parse(t, `{"logentry": {"message": "t1"}}`)

	lists, err := r.Resolve(data, []string{"{{default}}", "extra"})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"t1", "extra"}}, lists)

	stack := parse(t, `{"stacktrace": {"frames": [{"module": "t1", "function": "t2"}]}}`)
	lists, err = r.Resolve(stack, []string{"{{default}}", "extra"})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"t1", "t2", "extra"}}, lists)
}

func TestResolver_MultiplePlaceholdersAndSpelling(t *testing.T) {
	r := NewResolver(NewExtractor())
	data := parse(t, `{"message": "m"}`)
	template := []string{"a", "{{ default }}", "b", "{{default}}"}

	lists, err := r.Resolve(data, template)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "m", "b", "m"}}, lists)
	assert.Equal(t, []string{"a", "{{ default }}", "b", "{{default}}"}, template, "template must not be mutated")
}

func TestResolver_LiteralOnlySkipsExtraction(t *testing.T) {
	r := NewResolver(NewExtractor())
	// The payload has no hashable input and a malformed section, but no
	// placeholder asks for extraction.
	lists, err := r.Resolve(parse(t, `{"exception": 5}`), []string{"db-timeout"})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"db-timeout"}}, lists)
}

func TestResolver_PlaceholderWithoutInputFails(t *testing.T) {
	_, err := NewResolver(NewExtractor()).Resolve(parse(t, `{}`), []string{"{{default}}"})
	assert.True(t, eherrors.IsNoHashableInput(err))
}

func TestHasher_Precedence(t *testing.T) {
	h := NewHasher()

	both := parse(t, `{"fingerprint": ["custom"], "checksum": "deadbeef", "message": "m"}`)
	res, err := h.ComputeHashesDetailed(both)
	require.NoError(t, err)
	assert.Equal(t, PathFingerprint, res.Path)
	assert.Equal(t, []string{Digest([]string{"custom"})}, res.Hashes)

	checksum := parse(t, `{"checksum": "deadbeef", "message": "m"}`)
	res, err = h.ComputeHashesDetailed(checksum)
	require.NoError(t, err)
	assert.Equal(t, PathChecksum, res.Path)
	assert.Equal(t, []string{"deadbeef"}, res.Hashes)

	emptyFingerprint := parse(t, `{"fingerprint": [], "checksum": "deadbeef"}`)
	hashes, err := h.ComputeHashes(emptyFingerprint)
	require.NoError(t, err)
	assert.Equal(t, []string{"deadbeef"}, hashes)

	automatic := parse(t, `{"message": "m"}`)
	res, err = h.ComputeHashesDetailed(automatic)
	require.NoError(t, err)
	assert.Equal(t, PathDefault, res.Path)
	assert.Equal(t, "message", res.Source)
	assert.Equal(t, []string{Digest([]string{"m"})}, res.Hashes)
}

func TestHasher_DefaultPlaceholderMatchesAutomaticGrouping(t *testing.T) {
	h := NewHasher()
	plain, err := h.ComputeHashes(parse(t, stackEvent))
	require.NoError(t, err)

	withTemplate, err := h.ComputeHashes(parse(t, `{"fingerprint": ["{{default}}"], "message": "x",
		"exception": {"values": [{"type": "ZeroDivisionError", "value": "division by zero",
		"stacktrace": {"frames": [
			{"module": "app.views", "function": "index", "context_line": "return 1 / 0", "in_app": true},
			{"module": "django.core", "function": "dispatch", "in_app": false}
		]}}]}}`))
	require.NoError(t, err)
	assert.Equal(t, plain, withTemplate)
}

func TestHasher_EmptyInputFails(t *testing.T) {
	_, err := NewHasher().ComputeHashes(parse(t, `{"platform": "go", "tags": {"a": "b"}}`))
	require.Error(t, err)
	assert.True(t, eherrors.IsNoHashableInput(err))
}

func TestHasher_Deterministic(t *testing.T) {
	h := NewHasher()
	data := parse(t, stackEvent)

	first, err := h.ComputeHashes(data)
	require.NoError(t, err)
	second, err := h.ComputeHashes(data)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	reparsed, err := h.ComputeHashes(parse(t, stackEvent))
	require.NoError(t, err)
	assert.Equal(t, first, reparsed)
}
