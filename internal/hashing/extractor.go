// Package hashing turns raw event payloads into stable grouping digests.
//
// The pipeline has three steps: the Extractor picks hash tokens from the
// highest priority capability that has any, the Resolver expands user
// fingerprint templates around those tokens, and Digest folds an ordered
// token list into a fixed-length string. Hasher applies the precedence
// between fingerprint templates, explicit checksums and automatic grouping.
package hashing

import (
	"github.com/arkilian/eventhash/internal/event"
	eherrors "github.com/arkilian/eventhash/internal/errors"
)

// Input is the token list produced by one capability.
type Input struct {
	// Source is the payload key of the capability that produced Tokens
	Source string
	// Kind is the capability variant that produced Tokens
	Kind   event.Kind
	Tokens []string
}

// probe asks one capability kind for tokens with kind-specific options.
type probe struct {
	kind    event.Kind
	options func(platform string) event.HashOptions
}

// rawOptions is used for capabilities without platform-specific hashing.
func rawOptions(string) event.HashOptions {
	return event.HashOptions{Processed: false}
}

// platformOptions passes the platform through.
func platformOptions(platform string) event.HashOptions {
	return event.HashOptions{Processed: false, Platform: platform}
}

// systemFrameOptions treats every frame as significant because in-app
// classification has not run on raw payloads.
func systemFrameOptions(platform string) event.HashOptions {
	return event.HashOptions{Processed: false, Platform: platform, SystemFrames: true}
}

// defaultProbes is the fixed priority order: the single exception first,
// then aggregate exception and stack capabilities, then the rest.
var defaultProbes = []probe{
	{kind: event.KindSingleException, options: platformOptions},
	{kind: event.KindException, options: systemFrameOptions},
	{kind: event.KindStacktrace, options: systemFrameOptions},
	{kind: event.KindFrame, options: systemFrameOptions},
	{kind: event.KindTemplate, options: rawOptions},
	{kind: event.KindMessage, options: rawOptions},
	{kind: event.KindRequest, options: rawOptions},
	{kind: event.KindUser, options: rawOptions},
}

// Extractor finds the default hash tokens of a raw event.
type Extractor struct {
	probes []probe
}

// NewExtractor creates an extractor using the standard priority order.
func NewExtractor() *Extractor {
	return &Extractor{probes: defaultProbes}
}

// Extract returns the tokens of the first capability, in priority order,
// that yields a non-empty list. It fails with ErrNoHashableInput when no
// capability does; it never invents a fallback.
func (e *Extractor) Extract(data event.Data) (Input, error) {
	caps, err := event.Capabilities(data)
	if err != nil {
		return Input{}, err
	}

	platform := data.Platform()
	for _, p := range e.probes {
		c, ok := caps[p.kind]
		if !ok {
			continue
		}
		if tokens := c.Hash(p.options(platform)); len(tokens) > 0 {
			return Input{Source: c.Path(), Kind: p.kind, Tokens: tokens}, nil
		}
	}
	return Input{}, eherrors.ErrNoHashableInput
}
