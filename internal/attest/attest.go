// Package attest signs canonical registry summaries and re-verifies them
// against the live registry. Verification always recomputes the canonical
// message hash before touching the cryptographic backend, so a drifted
// registry and an invalid signature stay distinguishable failures.
package attest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/EduBrainBoost/SSID-sub010/internal/registry"
	"github.com/EduBrainBoost/SSID-sub010/pkg/canonhash"
	"github.com/EduBrainBoost/SSID-sub010/pkg/ledgererr"
	"github.com/EduBrainBoost/SSID-sub010/pkg/signature"
)

// SignatureBlock carries the signature half of an attestation document.
type SignatureBlock struct {
	Algorithm      string `json:"algorithm"`
	Backend        string `json:"backend"`
	SignatureBytes string `json:"signature_bytes"`
	Size           int    `json:"size"`
}

// PublicKeyBlock carries the verification key half of an attestation document.
type PublicKeyBlock struct {
	Algorithm string `json:"algorithm"`
	Backend   string `json:"backend"`
	KeyBytes  string `json:"key_bytes"`
}

// Attestation is a signed, canonical summary of one registry snapshot.
// Created once per registry build and immutable thereafter.
type Attestation struct {
	Payload     registry.Summary `json:"payload"`
	MessageHash string           `json:"message_hash"`
	Signature   SignatureBlock   `json:"signature"`
	PublicKey   PublicKeyBlock   `json:"public_key"`
	IssuedAt    string           `json:"issued_at"`
}

// Sign wraps the summary in a canonical message and signs it with the
// configured backend.
func Sign(summary registry.Summary, signer signature.Signer, issuedAt time.Time) (*Attestation, error) {
	env, err := signature.SignEnvelope(signer, summary, issuedAt)
	if err != nil {
		if errors.Is(err, signature.ErrMissingKeyMaterial) {
			return nil, fmt.Errorf("%w: %v", ledgererr.ErrEvidenceMissing, err)
		}
		return nil, err
	}
	return &Attestation{
		Payload:     summary,
		MessageHash: env.PayloadHash,
		Signature: SignatureBlock{
			Algorithm:      env.Algorithm,
			Backend:        env.Backend,
			SignatureBytes: env.Signature,
			Size:           len(env.Signature),
		},
		PublicKey: PublicKeyBlock{
			Algorithm: env.Algorithm,
			Backend:   env.Backend,
			KeyBytes:  env.PublicKey,
		},
		IssuedAt: env.IssuedAt,
	}, nil
}

// Verify checks att against the current registry summary. The stored message
// hash is recomputed from current first: a mismatch there means the registry
// drifted since signing and the cryptographic verify step is never reached.
func Verify(att *Attestation, current registry.Summary) error {
	if att == nil {
		return fmt.Errorf("%w: no attestation", ledgererr.ErrEvidenceMissing)
	}
	if att.Signature.SignatureBytes == "" || att.PublicKey.KeyBytes == "" {
		return fmt.Errorf("%w: attestation lacks signature or key material", ledgererr.ErrEvidenceMissing)
	}

	currentHash, _, err := canonhash.CanonicalSHA256(current)
	if err != nil {
		return err
	}
	if currentHash != att.MessageHash {
		return fmt.Errorf("%w: registry has drifted since signing (message_hash %s, recomputed %s)",
			ledgererr.ErrIntegrity, att.MessageHash, currentHash)
	}

	env := signature.Envelope{
		Version:     signature.EnvelopeVersion,
		Algorithm:   att.Signature.Algorithm,
		Backend:     att.Signature.Backend,
		PublicKey:   att.PublicKey.KeyBytes,
		Signature:   att.Signature.SignatureBytes,
		PayloadHash: att.MessageHash,
		IssuedAt:    att.IssuedAt,
	}
	if err := signature.VerifyEnvelope(att.Payload, env); err != nil {
		return fmt.Errorf("%w: signature invalid: %v", ledgererr.ErrIntegrity, err)
	}
	return nil
}

// ParseStrict decodes an attestation document, rejecting unknown fields.
func ParseStrict(raw []byte) (*Attestation, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var out Attestation
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: attestation document: %v", ledgererr.ErrEvidenceMissing, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: attestation document: trailing payload", ledgererr.ErrEvidenceMissing)
	}
	if out.MessageHash == "" || out.Payload.GlobalMerkleRoot == "" {
		return nil, fmt.Errorf("%w: attestation document missing required fields", ledgererr.ErrEvidenceMissing)
	}
	return &out, nil
}
