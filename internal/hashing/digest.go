package hashing

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/spaolacci/murmur3"
)

// DigestVersion identifies the digest algorithm and token encoding.
// Stored digests are only comparable with digests of the same version, so
// any change to Digest must bump it.
const DigestVersion = "murmur3_128/v1"

// DigestLen is the length of a digest string.
const DigestLen = 32

// Digest folds an ordered token list into a 32 character lowercase hex
// string. Each token is written as its uvarint byte length followed by its
// UTF-8 bytes, so token boundaries are unambiguous.
func Digest(tokens []string) string {
	h := murmur3.New128()
	var lenBuf [binary.MaxVarintLen64]byte
	for _, tok := range tokens {
		n := binary.PutUvarint(lenBuf[:], uint64(len(tok)))
		h.Write(lenBuf[:n])
		h.Write([]byte(tok))
	}
	return hex.EncodeToString(h.Sum(nil))
}
