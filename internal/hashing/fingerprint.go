package hashing

import (
	"github.com/arkilian/eventhash/internal/event"
)

// Placeholders that stand for the default extractor tokens inside a
// fingerprint template. Both spellings are accepted.
const (
	DefaultPlaceholder       = "{{default}}"
	DefaultPlaceholderSpaced = "{{ default }}"
)

// IsDefaultPlaceholder reports whether token is a default placeholder.
func IsDefaultPlaceholder(token string) bool {
	return token == DefaultPlaceholder || token == DefaultPlaceholderSpaced
}

// Resolver expands fingerprint templates.
type Resolver struct {
	extractor *Extractor
}

// NewResolver creates a resolver that expands placeholders with extractor.
func NewResolver(extractor *Extractor) *Resolver {
	return &Resolver{extractor: extractor}
}

// Resolve expands template into concrete token lists. Literal entries are
// kept as is; every placeholder is replaced by the tokens of a fresh
// extraction. A template without placeholders never touches the payload
// sections. Extraction errors are returned unchanged.
func (r *Resolver) Resolve(data event.Data, template []string) ([][]string, error) {
	tokens := make([]string, 0, len(template))
	for _, entry := range template {
		if !IsDefaultPlaceholder(entry) {
			tokens = append(tokens, entry)
			continue
		}
		in, err := r.extractor.Extract(data)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, in.Tokens...)
	}
	return [][]string{tokens}, nil
}
