// Package canonhash renders values as canonical JSON and hashes them.
//
// Canonical form is produced by normalizing the value through a JSON
// round-trip so struct field declaration order never leaks into the bytes;
// Go's map marshaling then emits object keys in sorted order at every
// nesting level. Two values with the same logical state always canonicalize
// to byte-identical output.
package canonhash

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// CanonicalBytes returns the canonical JSON encoding of v.
func CanonicalBytes(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var normalized any
	if err := json.Unmarshal(b, &normalized); err != nil {
		return nil, err
	}
	return json.Marshal(normalized)
}

// CanonicalSHA256 returns the lowercase hex SHA-256 of the canonical JSON
// encoding of v, along with the canonical bytes themselves.
func CanonicalSHA256(v any) (hexHash string, bytes []byte, err error) {
	b, err := CanonicalBytes(v)
	if err != nil {
		return "", nil, err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), b, nil
}

// SumObject is CanonicalSHA256 with the digest in "sha256:<hex>" form, the
// shape used for file and evidence references.
func SumObject(v any) (string, []byte, error) {
	h, b, err := CanonicalSHA256(v)
	if err != nil {
		return "", nil, err
	}
	return "sha256:" + h, b, nil
}

// SHA256Hex computes the SHA-256 of raw bytes as lowercase hex.
func SHA256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// HashStringSHA256Hex computes the SHA-256 of a UTF-8 string as lowercase hex.
func HashStringSHA256Hex(s string) string {
	return SHA256Hex([]byte(s))
}
