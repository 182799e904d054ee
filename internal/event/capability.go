package event

import (
	"fmt"

	eherrors "github.com/arkilian/eventhash/internal/errors"
)

// Kind tags a capability variant. The set is closed.
type Kind int

const (
	KindSingleException Kind = iota
	KindException
	KindStacktrace
	KindFrame
	KindTemplate
	KindMessage
	KindRequest
	KindUser
)

// String returns the label used when reporting which capability produced a hash.
func (k Kind) String() string {
	switch k {
	case KindSingleException:
		return "exception.single"
	case KindException:
		return "exception"
	case KindStacktrace:
		return "stacktrace"
	case KindFrame:
		return "frame"
	case KindTemplate:
		return "template"
	case KindMessage:
		return "message"
	case KindRequest:
		return "request"
	case KindUser:
		return "user"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// HashOptions tell a capability how much normalization it may assume.
type HashOptions struct {
	// Processed is false for raw payloads: in-app classification and other
	// normalization have not run and must not be relied upon.
	Processed bool

	// Platform is the event platform, "" when unknown
	Platform string

	// SystemFrames makes every frame significant, not only in-app frames
	SystemFrames bool
}

// Capability is a typed view over one payload section that can produce
// grouping hash tokens.
type Capability interface {
	Kind() Kind
	// Path is the payload key the capability was read from.
	Path() string
	// Hash returns the ordered hash tokens, or nil when the section has none.
	Hash(opts HashOptions) []string
}

// Set holds the capabilities found in one payload, at most one per kind.
type Set map[Kind]Capability

// section aliases, canonical key first
var (
	exceptionKeys  = []string{"exception", "sentry.interfaces.Exception"}
	stacktraceKeys = []string{"stacktrace", "sentry.interfaces.Stacktrace"}
	frameKeys      = []string{"frame"}
	templateKeys   = []string{"template", "sentry.interfaces.Template"}
	messageKeys    = []string{"logentry", "sentry.interfaces.Message", "message"}
	requestKeys    = []string{"request", "sentry.interfaces.Http"}
	userKeys       = []string{"user", "sentry.interfaces.User"}
)

// Capabilities parses every known section of d. A section with the wrong
// top-level shape is reported as a validation error.
func Capabilities(d Data) (Set, error) {
	set := make(Set)

	if key, raw, ok := firstPresent(d, exceptionKeys); ok {
		c, err := parseException(key, raw)
		if err != nil {
			return nil, err
		}
		set[c.Kind()] = c
	}

	if key, raw, ok := firstPresent(d, stacktraceKeys); ok {
		m, ok := raw.(map[string]any)
		if !ok {
			return nil, invalidSection(key, "expected an object")
		}
		st, err := parseStacktrace(key, m)
		if err != nil {
			return nil, err
		}
		set[KindStacktrace] = st
	}

	if key, raw, ok := firstPresent(d, frameKeys); ok {
		m, ok := raw.(map[string]any)
		if !ok {
			return nil, invalidSection(key, "expected an object")
		}
		set[KindFrame] = parseFrame(key, m)
	}

	if key, raw, ok := firstPresent(d, templateKeys); ok {
		m, ok := raw.(map[string]any)
		if !ok {
			return nil, invalidSection(key, "expected an object")
		}
		set[KindTemplate] = &Template{
			path:        key,
			Filename:    stringField(m, "filename"),
			ContextLine: stringField(m, "context_line"),
		}
	}

	if key, raw, ok := firstPresent(d, messageKeys); ok {
		msg, err := parseMessage(key, raw)
		if err != nil {
			return nil, err
		}
		set[KindMessage] = msg
	}

	if key, raw, ok := firstPresent(d, requestKeys); ok {
		if _, ok := raw.(map[string]any); !ok {
			return nil, invalidSection(key, "expected an object")
		}
		set[KindRequest] = &opaque{kind: KindRequest, path: key}
	}

	if key, raw, ok := firstPresent(d, userKeys); ok {
		if _, ok := raw.(map[string]any); !ok {
			return nil, invalidSection(key, "expected an object")
		}
		set[KindUser] = &opaque{kind: KindUser, path: key}
	}

	return set, nil
}

// firstPresent returns the first alias carrying a non-null value.
func firstPresent(d Data, keys []string) (string, any, bool) {
	for _, k := range keys {
		if v, ok := d[k]; ok && v != nil {
			return k, v, true
		}
	}
	return "", nil, false
}

func invalidSection(key, reason string) error {
	return eherrors.NewValidationError(eherrors.CodeInvalidSection,
		fmt.Sprintf("section %q: %s", key, reason))
}

// opaque covers sections that carry context but never grouping tokens.
type opaque struct {
	kind Kind
	path string
}

func (o *opaque) Kind() Kind { return o.kind }

func (o *opaque) Path() string { return o.path }

func (o *opaque) Hash(HashOptions) []string { return nil }
