package signature

import (
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/cloudflare/circl/sign/dilithium"
)

// SeedSize is the required seed length for every backend.
const SeedSize = 32

var dilithiumMode = dilithium.Mode3

// NewSigner constructs a signer for the named algorithm from a 32-byte seed.
func NewSigner(algorithm string, seed []byte) (Signer, error) {
	if len(seed) != SeedSize {
		return nil, fmt.Errorf("%w: seed must be %d bytes, got %d", ErrMissingKeyMaterial, SeedSize, len(seed))
	}
	switch strings.ToLower(strings.TrimSpace(algorithm)) {
	case AlgorithmEd25519:
		priv := ed25519.NewKeyFromSeed(seed)
		return &ed25519Signer{priv: priv, pub: priv.Public().(ed25519.PublicKey)}, nil
	case AlgorithmDilithium3:
		pk, sk := dilithiumMode.NewKeyFromSeed(seed)
		return &dilithiumSigner{pk: pk, sk: sk}, nil
	case AlgorithmPlaceholder:
		seedCopy := make([]byte, len(seed))
		copy(seedCopy, seed)
		pub := sha256.Sum256(seedCopy)
		return &placeholderSigner{seed: seedCopy, pub: pub[:]}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, algorithm)
	}
}

// NewSignerFromKeyFile reads a hex-encoded seed from path and constructs the
// signer. A missing or malformed key file is ErrMissingKeyMaterial.
func NewSignerFromKeyFile(algorithm, path string) (Signer, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: key file %s: %v", ErrMissingKeyMaterial, path, err)
	}
	seed, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("%w: key file %s is not hex", ErrMissingKeyMaterial, path)
	}
	return NewSigner(algorithm, seed)
}

// VerifierFor returns the verifier backend for the named algorithm.
func VerifierFor(algorithm string) (Verifier, error) {
	switch strings.ToLower(strings.TrimSpace(algorithm)) {
	case AlgorithmEd25519:
		return ed25519Verifier{}, nil
	case AlgorithmDilithium3:
		return dilithiumVerifier{}, nil
	case AlgorithmPlaceholder:
		return placeholderVerifier{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, algorithm)
	}
}

type ed25519Signer struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

func (s *ed25519Signer) Algorithm() string  { return AlgorithmEd25519 }
func (s *ed25519Signer) Backend() string    { return BackendStdlib }
func (s *ed25519Signer) PublicKey() []byte  { return s.pub }
func (s *ed25519Signer) Sign(messageHash []byte) ([]byte, error) {
	return ed25519.Sign(s.priv, messageHash), nil
}

type ed25519Verifier struct{}

func (ed25519Verifier) Verify(messageHash, sig, pub []byte) error {
	if len(pub) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return ErrInvalidEncoding
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), messageHash, sig) {
		return ErrInvalidSignature
	}
	return nil
}

type dilithiumSigner struct {
	pk dilithium.PublicKey
	sk dilithium.PrivateKey
}

func (s *dilithiumSigner) Algorithm() string { return AlgorithmDilithium3 }
func (s *dilithiumSigner) Backend() string   { return BackendCircl }
func (s *dilithiumSigner) PublicKey() []byte { return s.pk.Bytes() }
func (s *dilithiumSigner) Sign(messageHash []byte) ([]byte, error) {
	return dilithiumMode.Sign(s.sk, messageHash), nil
}

type dilithiumVerifier struct{}

func (dilithiumVerifier) Verify(messageHash, sig, pub []byte) error {
	if len(pub) != dilithiumMode.PublicKeySize() || len(sig) != dilithiumMode.SignatureSize() {
		return ErrInvalidEncoding
	}
	pk := dilithiumMode.PublicKeyFromBytes(pub)
	if !dilithiumMode.Verify(pk, messageHash, sig) {
		return ErrInvalidSignature
	}
	return nil
}

// placeholderSigner is a development backend with no cryptographic strength.
// It provides the same envelope shape and tamper evidence as real backends:
// signature = SHA-256(public_key || message_hash).
type placeholderSigner struct {
	seed []byte
	pub  []byte
}

func (s *placeholderSigner) Algorithm() string { return AlgorithmPlaceholder }
func (s *placeholderSigner) Backend() string   { return BackendPlaceholder }
func (s *placeholderSigner) PublicKey() []byte { return s.pub }
func (s *placeholderSigner) Sign(messageHash []byte) ([]byte, error) {
	return placeholderSum(s.pub, messageHash), nil
}

type placeholderVerifier struct{}

func (placeholderVerifier) Verify(messageHash, sig, pub []byte) error {
	if len(pub) != sha256.Size || len(sig) != sha256.Size {
		return ErrInvalidEncoding
	}
	if subtle.ConstantTimeCompare(sig, placeholderSum(pub, messageHash)) != 1 {
		return ErrInvalidSignature
	}
	return nil
}

func placeholderSum(pub, messageHash []byte) []byte {
	h := sha256.New()
	h.Write(pub)
	h.Write(messageHash)
	return h.Sum(nil)
}
