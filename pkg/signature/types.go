// Package signature wraps canonical payload hashes in signature envelopes and
// delegates the cryptographic work to pluggable backends. All backends sign
// the same canonical message hash, so envelopes produced by different
// backends are interchangeable at the document level.
package signature

import "errors"

// EnvelopeVersion tags every attestation signature envelope.
const EnvelopeVersion = "att-sig-v1"

// Supported algorithms.
const (
	AlgorithmEd25519     = "ed25519"
	AlgorithmDilithium3  = "dilithium3"
	AlgorithmPlaceholder = "sha256-placeholder"
)

// Backend identifiers recorded in envelopes for audit purposes.
const (
	BackendStdlib      = "stdlib"
	BackendCircl       = "circl"
	BackendPlaceholder = "placeholder"
)

var (
	ErrUnsupportedAlgorithm = errors.New("unsupported algorithm")
	ErrInvalidIssuedAt      = errors.New("invalid issued_at")
	ErrPayloadHashMismatch  = errors.New("payload hash mismatch")
	ErrInvalidSignature     = errors.New("invalid signature")
	ErrInvalidEncoding      = errors.New("invalid encoding")
	ErrMissingKeyMaterial   = errors.New("missing key material")
)

// Envelope is the serialized signature document attached to an attestation.
type Envelope struct {
	Version     string `json:"version"`
	Algorithm   string `json:"algorithm"`
	Backend     string `json:"backend"`
	PublicKey   string `json:"public_key"`
	Signature   string `json:"signature"`
	PayloadHash string `json:"payload_hash"`
	IssuedAt    string `json:"issued_at"`
}

// Signer produces signatures over 32-byte canonical message hashes.
type Signer interface {
	Algorithm() string
	Backend() string
	PublicKey() []byte
	Sign(messageHash []byte) ([]byte, error)
}

// Verifier checks a signature over a 32-byte canonical message hash.
type Verifier interface {
	Verify(messageHash, signature, publicKey []byte) error
}
