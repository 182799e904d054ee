package rawcache

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"time"
)

// On-disk and object entries share one envelope:
//
//	magic "EHRC" | version u8 | expires_at unix nanos u64 | key_len u16 | key | value
const (
	entryMagic      = "EHRC"
	entryVersion    = 1
	entryHeaderSize = len(entryMagic) + 1 + 8 + 2
	maxKeyLen       = 1<<16 - 1
)

var errCorruptEntry = errors.New("rawcache: corrupt entry")

type entryHeader struct {
	key       string
	expiresAt time.Time
}

func (h entryHeader) expired(now time.Time) bool {
	return !now.Before(h.expiresAt)
}

func encodeEntry(key string, value []byte, expiresAt time.Time) ([]byte, error) {
	if len(key) > maxKeyLen {
		return nil, errors.New("rawcache: key too long")
	}
	buf := make([]byte, entryHeaderSize+len(key)+len(value))
	n := copy(buf, entryMagic)
	buf[n] = entryVersion
	n++
	binary.BigEndian.PutUint64(buf[n:], uint64(expiresAt.UnixNano()))
	n += 8
	binary.BigEndian.PutUint16(buf[n:], uint16(len(key)))
	n += 2
	n += copy(buf[n:], key)
	copy(buf[n:], value)
	return buf, nil
}

// readEntryHeader reads the envelope header and key from r, leaving r
// positioned at the value.
func readEntryHeader(r io.Reader) (entryHeader, error) {
	var fixed [entryHeaderSize]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		return entryHeader{}, errCorruptEntry
	}
	if string(fixed[:len(entryMagic)]) != entryMagic || fixed[len(entryMagic)] != entryVersion {
		return entryHeader{}, errCorruptEntry
	}
	off := len(entryMagic) + 1
	expires := int64(binary.BigEndian.Uint64(fixed[off:]))
	keyLen := binary.BigEndian.Uint16(fixed[off+8:])

	key := make([]byte, keyLen)
	if _, err := io.ReadFull(r, key); err != nil {
		return entryHeader{}, errCorruptEntry
	}
	return entryHeader{key: string(key), expiresAt: time.Unix(0, expires)}, nil
}

func decodeEntry(b []byte) (entryHeader, []byte, error) {
	if len(b) < entryHeaderSize {
		return entryHeader{}, nil, errCorruptEntry
	}
	r := bytes.NewReader(b)
	h, err := readEntryHeader(r)
	if err != nil {
		return entryHeader{}, nil, err
	}
	return h, b[len(b)-r.Len():], nil
}
