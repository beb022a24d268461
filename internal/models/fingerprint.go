package models

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sort"
)

// Fingerprint computes a content hash of a key/value bundle. Keys are hashed
// in sorted order with length prefixes so that two bundles share a
// fingerprint if and only if they are byte-identical.
func Fingerprint(data map[string]string) string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	var lenBuf [8]byte
	writeField := func(s string) {
		binary.BigEndian.PutUint64(lenBuf[:], uint64(len(s)))
		h.Write(lenBuf[:])
		h.Write([]byte(s))
	}
	for _, k := range keys {
		writeField(k)
		writeField(data[k])
	}
	return hex.EncodeToString(h.Sum(nil))
}
