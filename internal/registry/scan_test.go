package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
)

func TestScanSlotsHashesFilesAndMarksAbsence(t *testing.T) {
	dir := t.TempDir()
	body := []byte("policy document v1\n")
	if err := os.WriteFile(filepath.Join(dir, "policy.md"), body, 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	want := sha256.Sum256(body)

	m := Manifest{Standards: []StandardInput{{
		StandardID: "GDPR",
		Rules: []RuleInput{{
			RuleID: "GDPR-01",
			Slots: []ManifestationSlot{
				{Role: "policy", Path: "policy.md"},
				{Role: "audit", Path: "audit.md"},
				{Role: "test", SHA256: "ab", Exists: true},
			},
		}},
	}}}

	scanned, err := ScanSlots(m, dir)
	if err != nil {
		t.Fatalf("ScanSlots: %v", err)
	}
	slots := scanned.Standards[0].Rules[0].Slots
	if slots[0].SHA256 != hex.EncodeToString(want[:]) || !slots[0].Exists {
		t.Fatalf("scanned slot = %+v", slots[0])
	}
	if slots[1].Exists || slots[1].SHA256 != "" {
		t.Fatalf("absent slot = %+v, want unhashed and not existing", slots[1])
	}
	// Pre-hashed slots pass through untouched.
	if slots[2].SHA256 != "ab" || !slots[2].Exists {
		t.Fatalf("pre-hashed slot = %+v", slots[2])
	}
}
