package lineage

import (
	"fmt"

	"github.com/EduBrainBoost/SSID-sub010/internal/attest"
)

// Violation codes reported by chain verification.
const (
	CodeEntryHashMismatch    = "ENTRY_HASH_MISMATCH"
	CodeEntryIDSequence      = "ENTRY_ID_SEQUENCE"
	CodeUnexpectedLink       = "UNEXPECTED_PREVIOUS_LINK"
	CodePreviousIDMismatch   = "PREVIOUS_ID_MISMATCH"
	CodePreviousRootMismatch = "PREVIOUS_ROOT_MISMATCH"
	CodeTimestampInvalid     = "TIMESTAMP_INVALID"
	CodeTimestampOrder       = "TIMESTAMP_ORDER"
	CodeSignatureInvalid     = "SIGNATURE_INVALID"
	CodeMetadataMismatch     = "METADATA_MISMATCH"
)

// Violation is one integrity finding against one entry. EntryID 0 marks
// document-level findings.
type Violation struct {
	EntryID int64  `json:"entry_id"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Report is the complete result of a chain verification pass.
type Report struct {
	OK                 bool        `json:"ok"`
	TotalEntries       int         `json:"total_entries"`
	SignaturesVerified bool        `json:"signatures_verified"`
	Violations         []Violation `json:"violations,omitempty"`
}

// Verify loads the persisted chain and checks it in full.
func (m *Manager) Verify(verifySignatures bool) (*Report, error) {
	doc, err := m.Load()
	if err != nil {
		return nil, err
	}
	return VerifyDocument(doc, verifySignatures), nil
}

// VerifyDocument recomputes every entry hash, rechecks every linkage and the
// timestamp ordering, and optionally re-verifies attached attestations. It
// never mutates the chain and never stops at the first violation: a break at
// entry k is reported at k, and an independently broken linkage at k+1 is
// reported there too, since corruption can cascade.
func VerifyDocument(doc *Document, verifySignatures bool) *Report {
	report := &Report{TotalEntries: len(doc.Entries), SignaturesVerified: verifySignatures}
	add := func(entryID int64, code, msg string) {
		report.Violations = append(report.Violations, Violation{EntryID: entryID, Code: code, Message: msg})
	}

	for i := range doc.Entries {
		entry := doc.Entries[i]

		if want := int64(i + 1); entry.EntryID != want {
			add(entry.EntryID, CodeEntryIDSequence, fmt.Sprintf("entry at position %d has id %d, expected %d", i+1, entry.EntryID, want))
		}

		recomputed, err := EntryHash(entry)
		if err != nil {
			add(entry.EntryID, CodeEntryHashMismatch, fmt.Sprintf("entry hash not recomputable: %v", err))
		} else if recomputed != entry.Chain.EntryHash {
			add(entry.EntryID, CodeEntryHashMismatch, fmt.Sprintf("stored entry_hash %s, recomputed %s", entry.Chain.EntryHash, recomputed))
		}

		if i == 0 {
			if entry.Chain.PreviousEntryID != nil || entry.Chain.PreviousMerkleRoot != "" {
				add(entry.EntryID, CodeUnexpectedLink, "first entry must not reference a predecessor")
			}
		} else {
			prev := doc.Entries[i-1]
			if entry.Chain.PreviousEntryID == nil {
				add(entry.EntryID, CodePreviousIDMismatch, "previous_entry_id is absent")
			} else if *entry.Chain.PreviousEntryID != prev.EntryID {
				add(entry.EntryID, CodePreviousIDMismatch, fmt.Sprintf("previous_entry_id %d, predecessor is %d", *entry.Chain.PreviousEntryID, prev.EntryID))
			}
			if entry.Chain.PreviousMerkleRoot != prev.Registry.GlobalMerkleRoot {
				add(entry.EntryID, CodePreviousRootMismatch, fmt.Sprintf("previous_merkle_root %s, predecessor root %s", entry.Chain.PreviousMerkleRoot, prev.Registry.GlobalMerkleRoot))
			}
		}

		ts, err := parseUTC(entry.Timestamp)
		if err != nil {
			add(entry.EntryID, CodeTimestampInvalid, fmt.Sprintf("timestamp %q: %v", entry.Timestamp, err))
		} else if i > 0 {
			if prevTS, err := parseUTC(doc.Entries[i-1].Timestamp); err == nil && !ts.After(prevTS) {
				add(entry.EntryID, CodeTimestampOrder, fmt.Sprintf("timestamp %s not after predecessor %s", entry.Timestamp, doc.Entries[i-1].Timestamp))
			}
		}

		if verifySignatures && entry.Attestation != nil {
			if err := attest.Verify(entry.Attestation, entry.Registry); err != nil {
				add(entry.EntryID, CodeSignatureInvalid, err.Error())
			}
		}
	}

	if doc.Metadata.TotalEntries != len(doc.Entries) {
		add(0, CodeMetadataMismatch, fmt.Sprintf("metadata.total_entries %d, actual %d", doc.Metadata.TotalEntries, len(doc.Entries)))
	}

	report.OK = len(report.Violations) == 0
	return report
}
