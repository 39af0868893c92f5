package signature

import (
	"bytes"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/EduBrainBoost/SSID-sub010/pkg/canonhash"
)

// SignEnvelope hashes payload canonically and signs the hash with s.
func SignEnvelope(s Signer, payload any, issuedAt time.Time) (Envelope, error) {
	issuedAtUTC := issuedAt.UTC()
	if issuedAtUTC.IsZero() {
		return Envelope{}, ErrInvalidIssuedAt
	}
	payloadHashHex, _, err := canonhash.CanonicalSHA256(payload)
	if err != nil {
		return Envelope{}, err
	}
	hashBytes, err := hex.DecodeString(payloadHashHex)
	if err != nil {
		return Envelope{}, ErrInvalidEncoding
	}
	sig, err := s.Sign(hashBytes)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		Version:     EnvelopeVersion,
		Algorithm:   s.Algorithm(),
		Backend:     s.Backend(),
		PublicKey:   base64.StdEncoding.EncodeToString(s.PublicKey()),
		Signature:   base64.StdEncoding.EncodeToString(sig),
		PayloadHash: payloadHashHex,
		IssuedAt:    issuedAtUTC.Format(time.RFC3339Nano),
	}, nil
}

// VerifyEnvelope recomputes the canonical hash of payload, compares it to the
// envelope's stored payload hash, and only then runs the cryptographic
// verification. The two failure modes stay distinguishable:
// ErrPayloadHashMismatch means the payload drifted since signing,
// ErrInvalidSignature means the signature itself does not verify.
func VerifyEnvelope(payload any, env Envelope) error {
	if strings.TrimSpace(env.Version) != EnvelopeVersion {
		return fmt.Errorf("%w: envelope version %q", ErrUnsupportedAlgorithm, env.Version)
	}
	if err := validateRFC3339UTC(env.IssuedAt); err != nil {
		return err
	}

	expectedHashHex, _, err := canonhash.CanonicalSHA256(payload)
	if err != nil {
		return err
	}
	expectedHashBytes, err := hex.DecodeString(expectedHashHex)
	if err != nil {
		return ErrInvalidEncoding
	}
	payloadHashBytes, err := decodeLowerHex32(strings.TrimSpace(env.PayloadHash))
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare(expectedHashBytes, payloadHashBytes) != 1 {
		return ErrPayloadHashMismatch
	}

	verifier, err := VerifierFor(env.Algorithm)
	if err != nil {
		return err
	}
	pub, err := base64.StdEncoding.DecodeString(strings.TrimSpace(env.PublicKey))
	if err != nil {
		return ErrInvalidEncoding
	}
	sig, err := base64.StdEncoding.DecodeString(strings.TrimSpace(env.Signature))
	if err != nil {
		return ErrInvalidEncoding
	}
	return verifier.Verify(payloadHashBytes, sig, pub)
}

// ParseEnvelopeStrict decodes an envelope rejecting unknown fields and
// malformed required values.
func ParseEnvelopeStrict(v any) (Envelope, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return Envelope{}, err
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	var out Envelope
	if err := dec.Decode(&out); err != nil {
		return Envelope{}, err
	}
	if dec.More() {
		return Envelope{}, errors.New("invalid trailing signature payload")
	}
	if out.Version != EnvelopeVersion {
		return Envelope{}, fmt.Errorf("version must be %s", EnvelopeVersion)
	}
	if _, err := decodeLowerHex32(out.PayloadHash); err != nil {
		return Envelope{}, errors.New("payload_hash must be lowercase hex sha256")
	}
	if err := validateRFC3339UTC(out.IssuedAt); err != nil {
		return Envelope{}, err
	}
	return out, nil
}

func validateRFC3339UTC(s string) error {
	if strings.TrimSpace(s) == "" {
		return ErrInvalidIssuedAt
	}
	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return ErrInvalidIssuedAt
	}
	if !strings.HasSuffix(s, "Z") || !parsed.Equal(parsed.UTC()) {
		return ErrInvalidIssuedAt
	}
	return nil
}

func decodeLowerHex32(s string) ([]byte, error) {
	if s == "" {
		return nil, ErrInvalidEncoding
	}
	if s != strings.ToLower(s) {
		return nil, ErrInvalidEncoding
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, ErrInvalidEncoding
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("%w: payload_hash length", ErrInvalidEncoding)
	}
	return b, nil
}
