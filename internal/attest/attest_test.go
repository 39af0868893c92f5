package attest

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/EduBrainBoost/SSID-sub010/internal/registry"
	"github.com/EduBrainBoost/SSID-sub010/pkg/canonhash"
	"github.com/EduBrainBoost/SSID-sub010/pkg/ledgererr"
	"github.com/EduBrainBoost/SSID-sub010/pkg/signature"
)

func testSummary() registry.Summary {
	return registry.Summary{
		ComplianceScore:  1.0,
		GeneratedAt:      "2026-02-20T12:00:00Z",
		GlobalMerkleRoot: canonhash.HashStringSHA256Hex("global"),
		StandardMerkleRoots: map[string]string{
			"iso27001": canonhash.HashStringSHA256Hex("iso"),
			"soc2":     canonhash.HashStringSHA256Hex("soc"),
		},
		TotalManifestations: 12,
		TotalRules:          3,
		Version:             "1.0.0",
	}
}

func testSigner(t *testing.T, alg string) signature.Signer {
	t.Helper()
	seed := make([]byte, signature.SeedSize)
	for i := range seed {
		seed[i] = byte(i)
	}
	s, err := signature.NewSigner(alg, seed)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	return s
}

func TestSignVerifyRoundTrip(t *testing.T) {
	for _, alg := range []string{signature.AlgorithmEd25519, signature.AlgorithmDilithium3} {
		summary := testSummary()
		att, err := Sign(summary, testSigner(t, alg), time.Now())
		if err != nil {
			t.Fatalf("%s: Sign: %v", alg, err)
		}
		if err := Verify(att, summary); err != nil {
			t.Fatalf("%s: Verify: %v", alg, err)
		}
	}
}

func TestVerifyReportsDriftBeforeCrypto(t *testing.T) {
	summary := testSummary()
	att, err := Sign(summary, testSigner(t, signature.AlgorithmEd25519), time.Now())
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	drifted := testSummary()
	drifted.GlobalMerkleRoot = canonhash.HashStringSHA256Hex("drifted")
	err = Verify(att, drifted)
	if !errors.Is(err, ledgererr.ErrIntegrity) {
		t.Fatalf("expected ErrIntegrity, got %v", err)
	}
	if !strings.Contains(err.Error(), "drifted since signing") {
		t.Fatalf("expected drift diagnosis, got %v", err)
	}
}

func TestVerifyReportsInvalidSignature(t *testing.T) {
	summary := testSummary()
	att, err := Sign(summary, testSigner(t, signature.AlgorithmEd25519), time.Now())
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	att.Signature.SignatureBytes = strings.Repeat("A", len(att.Signature.SignatureBytes))
	err = Verify(att, summary)
	if !errors.Is(err, ledgererr.ErrIntegrity) {
		t.Fatalf("expected ErrIntegrity, got %v", err)
	}
	if strings.Contains(err.Error(), "drifted") {
		t.Fatalf("expected signature failure, not drift: %v", err)
	}
}

func TestVerifyRejectsMissingKeyMaterial(t *testing.T) {
	summary := testSummary()
	att, err := Sign(summary, testSigner(t, signature.AlgorithmEd25519), time.Now())
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	att.PublicKey.KeyBytes = ""
	if err := Verify(att, summary); !errors.Is(err, ledgererr.ErrEvidenceMissing) {
		t.Fatalf("expected ErrEvidenceMissing, got %v", err)
	}
	if err := Verify(nil, summary); !errors.Is(err, ledgererr.ErrEvidenceMissing) {
		t.Fatalf("expected ErrEvidenceMissing for nil attestation, got %v", err)
	}
}

func TestParseStrictRoundTrip(t *testing.T) {
	summary := testSummary()
	att, err := Sign(summary, testSigner(t, signature.AlgorithmDilithium3), time.Now())
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	raw, err := json.Marshal(att)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	parsed, err := ParseStrict(raw)
	if err != nil {
		t.Fatalf("ParseStrict: %v", err)
	}
	if err := Verify(parsed, summary); err != nil {
		t.Fatalf("Verify after parse: %v", err)
	}

	if _, err := ParseStrict([]byte(`{"payload":{},"unknown":1}`)); !errors.Is(err, ledgererr.ErrEvidenceMissing) {
		t.Fatalf("expected ErrEvidenceMissing for unknown fields, got %v", err)
	}
}
