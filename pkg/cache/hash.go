package cache

import (
	"crypto/sha256"
	"encoding/hex"
)

// Key derives the content-addressed cache key for content: the lowercase hex
// SHA-256 of its UTF-8 bytes, with "prefix:" prepended when prefix is
// non-empty. Deterministic across instances and backends.
func Key(content, prefix string) string {
	h := Hash([]byte(content))
	if prefix == "" {
		return h
	}
	return prefix + ":" + h
}

// Hash returns the lowercase hex SHA-256 digest of data.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
