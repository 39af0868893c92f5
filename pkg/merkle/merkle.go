// Package merkle builds binary Merkle trees over lowercase hex SHA-256
// digests. Nodes combine strictly left to right as SHA-256 of the ASCII
// concatenation of the two child digests; a level with an odd count
// duplicates its last node before pairing. A single leaf is its own root.
package merkle

import (
	"errors"
	"fmt"

	"github.com/EduBrainBoost/SSID-sub010/pkg/canonhash"
)

var (
	ErrNoLeaves    = errors.New("at least one leaf is required")
	ErrInvalidLeaf = errors.New("leaf must be lowercase hex sha256")
)

// Root reduces leaves to a single Merkle root. The caller is responsible for
// supplying leaves in canonical order; Root never reorders them.
func Root(leaves []string) (string, error) {
	if len(leaves) == 0 {
		return "", ErrNoLeaves
	}
	for i, leaf := range leaves {
		if !validDigest(leaf) {
			return "", fmt.Errorf("%w: leaf %d", ErrInvalidLeaf, i)
		}
	}

	level := make([]string, len(leaves))
	copy(level, leaves)
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([]string, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next = append(next, Combine(level[i], level[i+1]))
		}
		level = next
	}
	return level[0], nil
}

// Combine hashes a left/right digest pair into their parent node.
func Combine(left, right string) string {
	return canonhash.HashStringSHA256Hex(left + right)
}

func validDigest(s string) bool {
	if len(s) != 64 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return false
		}
	}
	return true
}
