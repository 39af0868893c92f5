package lineage

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/EduBrainBoost/SSID-sub010/internal/attest"
	"github.com/EduBrainBoost/SSID-sub010/internal/registry"
	"github.com/EduBrainBoost/SSID-sub010/pkg/canonhash"
	"github.com/EduBrainBoost/SSID-sub010/pkg/ledgererr"
	"github.com/EduBrainBoost/SSID-sub010/pkg/signature"
)

func summaryWith(seed string, rules, files int) registry.Summary {
	return registry.Summary{
		ComplianceScore:     1.0,
		GeneratedAt:         "2026-02-20T12:00:00Z",
		GlobalMerkleRoot:    canonhash.HashStringSHA256Hex(seed),
		StandardMerkleRoots: map[string]string{"iso27001": canonhash.HashStringSHA256Hex(seed + "-std")},
		TotalManifestations: files,
		TotalRules:          rules,
		Version:             "1.0.0",
	}
}

func candidate(seed string, rules, files int, at string) Entry {
	return Entry{
		Timestamp:   at,
		Registry:    summaryWith(seed, rules, files),
		Attribution: Attribution{Actor: "pipeline", Event: "registry rebuild"},
	}
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(filepath.Join(t.TempDir(), "lineage.json"))
}

func TestAppendInitialEntry(t *testing.T) {
	m := newTestManager(t)
	entry, err := m.Append(candidate("v1", 3, 12, "2026-02-20T12:00:00Z"), false)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if entry.EntryID != 1 {
		t.Fatalf("expected entry_id 1, got %d", entry.EntryID)
	}
	if entry.Changes.Type != ChangeInitial {
		t.Fatalf("expected initial change type, got %s", entry.Changes.Type)
	}
	if entry.Chain.PreviousEntryID != nil || entry.Chain.PreviousMerkleRoot != "" {
		t.Fatalf("expected no predecessor linkage on entry 1")
	}
	if entry.Chain.EntryHash == "" {
		t.Fatalf("expected computed entry hash")
	}
}

func TestAppendClassification(t *testing.T) {
	m := newTestManager(t)
	mustAppend := func(e Entry, force bool) *Entry {
		t.Helper()
		out, err := m.Append(e, force)
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
		return out
	}

	mustAppend(candidate("v1", 3, 12, "2026-02-20T12:00:00Z"), false)

	grown := mustAppend(candidate("v2", 5, 20, "2026-02-20T12:01:00Z"), false)
	if grown.Changes.Type != ChangeExpansion || grown.Changes.RulesAdded != 2 {
		t.Fatalf("expected expansion with 2 rules added, got %+v", grown.Changes)
	}

	shrunk := mustAppend(candidate("v3", 4, 16, "2026-02-20T12:02:00Z"), false)
	if shrunk.Changes.Type != ChangeReduction || shrunk.Changes.RulesRemoved != 1 {
		t.Fatalf("expected reduction with 1 rule removed, got %+v", shrunk.Changes)
	}

	modified := mustAppend(candidate("v4", 4, 16, "2026-02-20T12:03:00Z"), false)
	if modified.Changes.Type != ChangeModification {
		t.Fatalf("expected modification, got %s", modified.Changes.Type)
	}

	same := mustAppend(candidate("v4", 4, 16, "2026-02-20T12:04:00Z"), true)
	if same.Changes.Type != ChangeNoChange {
		t.Fatalf("expected no_change with force, got %s", same.Changes.Type)
	}
	if same.EntryID != 5 {
		t.Fatalf("expected 5 entries, got tip id %d", same.EntryID)
	}
}

func TestAppendMixedDeltaTieBreak(t *testing.T) {
	m := newTestManager(t)
	if _, err := m.Append(candidate("v1", 3, 12, "2026-02-20T12:00:00Z"), false); err != nil {
		t.Fatalf("Append: %v", err)
	}

	// Scanner-supplied counters: 3 added, 1 removed in the same snapshot.
	mixed := candidate("v2", 5, 20, "2026-02-20T12:01:00Z")
	mixed.Changes = ChangeSet{RulesAdded: 3, RulesRemoved: 1}
	entry, err := m.Append(mixed, false)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if entry.Changes.Type != ChangeExpansion {
		t.Fatalf("expected net-delta expansion, got %s", entry.Changes.Type)
	}
	if entry.Changes.RulesAdded != 3 || entry.Changes.RulesRemoved != 1 {
		t.Fatalf("expected scanner counters preserved, got %+v", entry.Changes)
	}
}

func TestAppendRejectsDuplicateState(t *testing.T) {
	m := newTestManager(t)
	if _, err := m.Append(candidate("v1", 3, 12, "2026-02-20T12:00:00Z"), false); err != nil {
		t.Fatalf("Append: %v", err)
	}
	_, err := m.Append(candidate("v1", 3, 12, "2026-02-20T12:01:00Z"), false)
	if !errors.Is(err, ledgererr.ErrDuplicateState) {
		t.Fatalf("expected ErrDuplicateState, got %v", err)
	}
	if _, err := m.Append(candidate("v1", 3, 12, "2026-02-20T12:01:00Z"), true); err != nil {
		t.Fatalf("expected forced no_change append to succeed, got %v", err)
	}
}

func TestAppendRejectsStaleTip(t *testing.T) {
	m := newTestManager(t)
	first, err := m.Append(candidate("v1", 3, 12, "2026-02-20T12:00:00Z"), false)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	// Candidate built against entry 1 as tip.
	stale := candidate("v3", 3, 12, "2026-02-20T12:02:00Z")
	prevID := first.EntryID
	stale.Chain.PreviousEntryID = &prevID
	stale.Chain.PreviousMerkleRoot = first.Registry.GlobalMerkleRoot

	// The chain advances before the stale candidate lands.
	if _, err := m.Append(candidate("v2", 3, 12, "2026-02-20T12:01:00Z"), false); err != nil {
		t.Fatalf("Append: %v", err)
	}

	if _, err := m.Append(stale, false); !errors.Is(err, ledgererr.ErrExecution) {
		t.Fatalf("expected ErrExecution for stale tip, got %v", err)
	}

	doc, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(doc.Entries) != 2 {
		t.Fatalf("expected chain untouched after failed append, got %d entries", len(doc.Entries))
	}
}

func TestAppendRejectsNonAscendingTimestamp(t *testing.T) {
	m := newTestManager(t)
	if _, err := m.Append(candidate("v1", 3, 12, "2026-02-20T12:00:00Z"), false); err != nil {
		t.Fatalf("Append: %v", err)
	}
	_, err := m.Append(candidate("v2", 3, 12, "2026-02-20T12:00:00Z"), false)
	if !errors.Is(err, ledgererr.ErrIntegrity) {
		t.Fatalf("expected ErrIntegrity for equal timestamp, got %v", err)
	}
}

func TestAppendWritesBackup(t *testing.T) {
	m := newTestManager(t)
	if _, err := m.Append(candidate("v1", 3, 12, "2026-02-20T12:00:00Z"), false); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := os.Stat(m.Path() + ".bak"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected no backup before the second append")
	}
	if _, err := m.Append(candidate("v2", 3, 12, "2026-02-20T12:01:00Z"), false); err != nil {
		t.Fatalf("Append: %v", err)
	}

	raw, err := os.ReadFile(m.Path() + ".bak")
	if err != nil {
		t.Fatalf("expected backup of the prior chain: %v", err)
	}
	prior, err := ParseDocumentStrict(raw)
	if err != nil {
		t.Fatalf("ParseDocumentStrict: %v", err)
	}
	if len(prior.Entries) != 1 {
		t.Fatalf("expected backup to hold the single-entry chain, got %d", len(prior.Entries))
	}
}

func TestVerifyCleanChain(t *testing.T) {
	m := newTestManager(t)
	for i, seed := range []string{"v1", "v2", "v3"} {
		at := time.Date(2026, 2, 20, 12, i, 0, 0, time.UTC).Format(time.RFC3339Nano)
		if _, err := m.Append(candidate(seed, 3+i, 12+4*i, at), false); err != nil {
			t.Fatalf("Append %s: %v", seed, err)
		}
	}
	report, err := m.Verify(false)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !report.OK || len(report.Violations) != 0 {
		t.Fatalf("expected clean report, got %+v", report.Violations)
	}
	if report.TotalEntries != 3 {
		t.Fatalf("expected 3 entries, got %d", report.TotalEntries)
	}
}

func TestVerifyReportsCascadingCorruption(t *testing.T) {
	m := newTestManager(t)
	for i, seed := range []string{"v1", "v2", "v3", "v4"} {
		at := time.Date(2026, 2, 20, 12, i, 0, 0, time.UTC).Format(time.RFC3339Nano)
		if _, err := m.Append(candidate(seed, 3, 12, at), false); err != nil {
			t.Fatalf("Append %s: %v", seed, err)
		}
	}

	// Corrupt entry 2 in the persisted document.
	doc, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	doc.Entries[1].Registry.GlobalMerkleRoot = canonhash.HashStringSHA256Hex("tampered")
	raw, _ := json.Marshal(doc)
	if err := os.WriteFile(m.Path(), raw, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	report, err := m.Verify(false)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if report.OK {
		t.Fatalf("expected violations")
	}

	var hashAt2, linkAt3 bool
	for _, v := range report.Violations {
		if v.EntryID == 2 && v.Code == CodeEntryHashMismatch {
			hashAt2 = true
		}
		if v.EntryID == 3 && v.Code == CodePreviousRootMismatch {
			linkAt3 = true
		}
	}
	if !hashAt2 {
		t.Fatalf("expected entry 2 hash violation, got %+v", report.Violations)
	}
	if !linkAt3 {
		t.Fatalf("expected entry 3 linkage violation in the same report, got %+v", report.Violations)
	}
}

func TestVerifyReportsTimestampDisorder(t *testing.T) {
	m := newTestManager(t)
	if _, err := m.Append(candidate("v1", 3, 12, "2026-02-20T12:00:00Z"), false); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := m.Append(candidate("v2", 3, 12, "2026-02-20T12:01:00Z"), false); err != nil {
		t.Fatalf("Append: %v", err)
	}

	doc, _ := m.Load()
	doc.Entries[1].Timestamp = "2026-02-20T11:59:00Z"
	report := VerifyDocument(doc, false)
	var tsViolation bool
	for _, v := range report.Violations {
		if v.EntryID == 2 && v.Code == CodeTimestampOrder {
			tsViolation = true
		}
	}
	if !tsViolation {
		t.Fatalf("expected timestamp order violation, got %+v", report.Violations)
	}
}

func TestVerifySignaturesPath(t *testing.T) {
	seed := make([]byte, signature.SeedSize)
	signer, err := signature.NewSigner(signature.AlgorithmPlaceholder, seed)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}

	m := newTestManager(t)
	cand := candidate("v1", 3, 12, "2026-02-20T12:00:00Z")
	att, err := attest.Sign(cand.Registry, signer, time.Date(2026, 2, 20, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	cand.Attestation = att
	if _, err := m.Append(cand, false); err != nil {
		t.Fatalf("Append: %v", err)
	}

	report, err := m.Verify(true)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !report.OK {
		t.Fatalf("expected signed entry to verify, got %+v", report.Violations)
	}

	// Corrupt the stored signature and verify again.
	doc, _ := m.Load()
	doc.Entries[0].Attestation.Signature.SignatureBytes = "AAAA"
	report = VerifyDocument(doc, true)
	var sigViolation, hashViolation bool
	for _, v := range report.Violations {
		if v.Code == CodeSignatureInvalid {
			sigViolation = true
		}
		if v.Code == CodeEntryHashMismatch {
			hashViolation = true
		}
	}
	if !sigViolation || !hashViolation {
		t.Fatalf("expected both signature and entry hash violations, got %+v", report.Violations)
	}
}
