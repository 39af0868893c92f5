// Package lineage keeps append-only custody of the hash-linked ledger of
// registry snapshots. Entries are immutable once appended; the chain only
// ever grows through Manager.Append, and verification recomputes every hash
// independently of the run that produced it.
package lineage

import (
	"github.com/EduBrainBoost/SSID-sub010/internal/attest"
	"github.com/EduBrainBoost/SSID-sub010/internal/registry"
	"github.com/EduBrainBoost/SSID-sub010/pkg/canonhash"
)

// DocumentVersion tags the persisted lineage ledger document.
const DocumentVersion = "lineage-v1"

// Change classification for one entry relative to its predecessor.
const (
	ChangeInitial      = "initial"
	ChangeExpansion    = "expansion"
	ChangeReduction    = "reduction"
	ChangeModification = "modification"
	ChangeNoChange     = "no_change"
)

// ChangeSet describes what changed between an entry and its predecessor.
type ChangeSet struct {
	Type          string `json:"type"`
	RulesAdded    int    `json:"rules_added"`
	RulesRemoved  int    `json:"rules_removed"`
	RulesModified int    `json:"rules_modified"`
	FilesAdded    int    `json:"files_added"`
	FilesRemoved  int    `json:"files_removed"`
	FilesModified int    `json:"files_modified"`
}

// Attribution records who caused an entry and why. SourceRevision is an
// optional external revision identifier; its absence never fails anything.
type Attribution struct {
	Actor          string `json:"actor"`
	Event          string `json:"event"`
	SourceRevision string `json:"source_revision,omitempty"`
}

// ChainRef links an entry to its predecessor. Entry 1 carries neither a
// previous id nor a previous root.
type ChainRef struct {
	PreviousEntryID    *int64 `json:"previous_entry_id,omitempty"`
	PreviousMerkleRoot string `json:"previous_merkle_root,omitempty"`
	EntryHash          string `json:"entry_hash,omitempty"`
}

// DAOApproval is stamped onto entries appended through governance execution.
type DAOApproval struct {
	ProposalID       string  `json:"proposal_id"`
	ApprovedAt       string  `json:"approved_at"`
	ApprovalRatio    float64 `json:"approval_ratio"`
	Quorum           int     `json:"quorum"`
	GovernanceLocked bool    `json:"governance_locked"`
}

// Entry is one hash-linked, immutable snapshot record.
type Entry struct {
	EntryID     int64               `json:"entry_id"`
	Timestamp   string              `json:"timestamp"`
	Registry    registry.Summary    `json:"registry"`
	Attestation *attest.Attestation `json:"attestation,omitempty"`
	Changes     ChangeSet           `json:"changes"`
	Attribution Attribution         `json:"attribution"`
	Chain       ChainRef            `json:"chain"`
	DAOApproval *DAOApproval        `json:"dao_approval,omitempty"`
}

// Metadata summarizes the ledger document.
type Metadata struct {
	Version      string `json:"version"`
	TotalEntries int    `json:"total_entries"`
	FirstEntry   string `json:"first_entry,omitempty"`
	LastEntry    string `json:"last_entry,omitempty"`
}

// Document is the persisted lineage ledger.
type Document struct {
	Metadata Metadata `json:"metadata"`
	Entries  []Entry  `json:"entries"`
}

// EntryHash computes the canonical hash of an entry with its own entry_hash
// excluded. The stored value must always recompute to this.
func EntryHash(e Entry) (string, error) {
	e.Chain.EntryHash = ""
	h, _, err := canonhash.CanonicalSHA256(e)
	return h, err
}
