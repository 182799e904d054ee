package hashing

import (
	"github.com/arkilian/eventhash/internal/event"
)

// Path names which precedence branch produced a set of hashes.
type Path string

const (
	PathFingerprint Path = "fingerprint"
	PathChecksum    Path = "checksum"
	PathDefault     Path = "default"
)

// Result is the outcome of ComputeHashesDetailed.
type Result struct {
	Hashes []string
	Path   Path
	// Source is the capability path for the default branch, "" otherwise
	Source string
}

// Hasher computes the digest list of an event.
type Hasher struct {
	extractor *Extractor
	resolver  *Resolver
}

// NewHasher creates a hasher with the standard extractor.
func NewHasher() *Hasher {
	ext := NewExtractor()
	return &Hasher{extractor: ext, resolver: NewResolver(ext)}
}

// Extractor returns the extractor used for default tokens.
func (h *Hasher) Extractor() *Extractor {
	return h.extractor
}

// ComputeHashes returns the digests of data. Exactly one branch applies:
// a fingerprint template, else an explicit checksum used verbatim, else
// the default extractor tokens.
func (h *Hasher) ComputeHashes(data event.Data) ([]string, error) {
	res, err := h.ComputeHashesDetailed(data)
	if err != nil {
		return nil, err
	}
	return res.Hashes, nil
}

// ComputeHashesDetailed is ComputeHashes reporting the branch taken.
func (h *Hasher) ComputeHashesDetailed(data event.Data) (Result, error) {
	if template := data.Fingerprint(); len(template) > 0 {
		lists, err := h.resolver.Resolve(data, template)
		if err != nil {
			return Result{}, err
		}
		hashes := make([]string, 0, len(lists))
		for _, tokens := range lists {
			hashes = append(hashes, Digest(tokens))
		}
		return Result{Hashes: hashes, Path: PathFingerprint}, nil
	}

	if checksum := data.Checksum(); checksum != "" {
		return Result{Hashes: []string{checksum}, Path: PathChecksum}, nil
	}

	in, err := h.extractor.Extract(data)
	if err != nil {
		return Result{}, err
	}
	return Result{Hashes: []string{Digest(in.Tokens)}, Path: PathDefault, Source: in.Source}, nil
}
