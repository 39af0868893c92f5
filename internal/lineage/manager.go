package lineage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/EduBrainBoost/SSID-sub010/pkg/ledgererr"
)

// Manager owns the chain file. All appends go through it; concurrent
// invocations (including separate processes) are serialized with an
// exclusive file lock around the read-modify-write.
type Manager struct {
	path string
	now  func() time.Time
}

// NewManager returns a manager for the ledger document at path.
func NewManager(path string) *Manager {
	return &Manager{path: path, now: time.Now}
}

// Path returns the ledger file location.
func (m *Manager) Path() string { return m.path }

// Load reads the ledger document from disk. A missing file is an empty chain.
func (m *Manager) Load() (*Document, error) {
	raw, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Document{Metadata: Metadata{Version: DocumentVersion}}, nil
		}
		return nil, err
	}
	return ParseDocumentStrict(raw)
}

// ParseDocumentStrict decodes a ledger document, rejecting unknown fields.
func ParseDocumentStrict(raw []byte) (*Document, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var out Document
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: lineage document: %v", ledgererr.ErrEvidenceMissing, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: lineage document: trailing payload", ledgererr.ErrEvidenceMissing)
	}
	return &out, nil
}

// Tip returns the last entry of the chain, or nil for an empty chain.
func Tip(doc *Document) *Entry {
	if len(doc.Entries) == 0 {
		return nil
	}
	return &doc.Entries[len(doc.Entries)-1]
}

// Append validates the candidate against the current chain tip, assigns its
// identity and linkage, computes its hash, and persists the grown chain via
// backup-then-atomic-write. The append is all-or-nothing.
//
// A candidate built against a specific tip carries that tip's id and root in
// its chain block; if the chain advanced in the meantime the append aborts
// rather than silently rebasing. A candidate whose global root equals the
// tip's is rejected as a duplicate unless force is set, in which case a
// no_change entry is recorded.
func (m *Manager) Append(candidate Entry, force bool) (*Entry, error) {
	lock := flock.New(m.path + ".lock")
	if err := lock.Lock(); err != nil {
		return nil, fmt.Errorf("%w: chain lock: %v", ledgererr.ErrExecution, err)
	}
	defer func() { _ = lock.Unlock() }()

	doc, err := m.Load()
	if err != nil {
		return nil, err
	}
	tip := Tip(doc)

	if candidate.Chain.PreviousEntryID != nil || candidate.Chain.PreviousMerkleRoot != "" {
		if tip == nil {
			return nil, fmt.Errorf("%w: candidate references a chain tip but the chain is empty", ledgererr.ErrExecution)
		}
		if candidate.Chain.PreviousEntryID == nil || *candidate.Chain.PreviousEntryID != tip.EntryID ||
			candidate.Chain.PreviousMerkleRoot != tip.Registry.GlobalMerkleRoot {
			return nil, fmt.Errorf("%w: chain tip advanced since the candidate was constructed (tip entry %d)", ledgererr.ErrExecution, tip.EntryID)
		}
	}

	if tip != nil && candidate.Registry.GlobalMerkleRoot == tip.Registry.GlobalMerkleRoot && !force {
		return nil, fmt.Errorf("%w: global_merkle_root %s already at chain tip", ledgererr.ErrDuplicateState, tip.Registry.GlobalMerkleRoot)
	}

	entry := candidate
	entry.Changes = classify(candidate, tip)
	if tip == nil {
		entry.EntryID = 1
		entry.Chain.PreviousEntryID = nil
		entry.Chain.PreviousMerkleRoot = ""
	} else {
		entry.EntryID = tip.EntryID + 1
		prevID := tip.EntryID
		entry.Chain.PreviousEntryID = &prevID
		entry.Chain.PreviousMerkleRoot = tip.Registry.GlobalMerkleRoot
	}

	if entry.Timestamp == "" {
		entry.Timestamp = m.now().UTC().Format(time.RFC3339Nano)
	}
	ts, err := parseUTC(entry.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("%w: entry timestamp: %v", ledgererr.ErrIntegrity, err)
	}
	if tip != nil {
		prevTS, err := parseUTC(tip.Timestamp)
		if err == nil && !ts.After(prevTS) {
			return nil, fmt.Errorf("%w: entry timestamp %s not after chain tip %s", ledgererr.ErrIntegrity, entry.Timestamp, tip.Timestamp)
		}
	}

	entry.Chain.EntryHash = ""
	hash, err := EntryHash(entry)
	if err != nil {
		return nil, err
	}
	entry.Chain.EntryHash = hash

	doc.Entries = append(doc.Entries, entry)
	doc.Metadata.Version = DocumentVersion
	doc.Metadata.TotalEntries = len(doc.Entries)
	doc.Metadata.FirstEntry = doc.Entries[0].Timestamp
	doc.Metadata.LastEntry = entry.Timestamp

	if err := m.persist(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ledgererr.ErrExecution, err)
	}
	return &entry, nil
}

// classify derives the change set of a candidate relative to the tip. When
// the scanner supplied explicit add/remove counters they win; otherwise the
// counters derive from the net counter deltas. Classification tie-breaks on
// the net delta: expansion when added exceeds removed, reduction when removed
// exceeds added, modification when they balance but the root moved.
func classify(candidate Entry, tip *Entry) ChangeSet {
	cs := candidate.Changes
	if tip == nil {
		cs.Type = ChangeInitial
		if cs.RulesAdded == 0 {
			cs.RulesAdded = candidate.Registry.TotalRules
		}
		if cs.FilesAdded == 0 {
			cs.FilesAdded = candidate.Registry.TotalManifestations
		}
		return cs
	}

	if cs.RulesAdded == 0 && cs.RulesRemoved == 0 {
		switch delta := candidate.Registry.TotalRules - tip.Registry.TotalRules; {
		case delta > 0:
			cs.RulesAdded = delta
		case delta < 0:
			cs.RulesRemoved = -delta
		}
	}
	if cs.FilesAdded == 0 && cs.FilesRemoved == 0 {
		switch delta := candidate.Registry.TotalManifestations - tip.Registry.TotalManifestations; {
		case delta > 0:
			cs.FilesAdded = delta
		case delta < 0:
			cs.FilesRemoved = -delta
		}
	}

	switch {
	case candidate.Registry.GlobalMerkleRoot == tip.Registry.GlobalMerkleRoot:
		cs.Type = ChangeNoChange
	case cs.RulesAdded > cs.RulesRemoved:
		cs.Type = ChangeExpansion
	case cs.RulesAdded < cs.RulesRemoved:
		cs.Type = ChangeReduction
	default:
		cs.Type = ChangeModification
	}
	return cs
}

// persist writes a full backup of the prior chain file, then replaces the
// chain file atomically via a temp file and rename.
func (m *Manager) persist(doc *Document) error {
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	out = append(out, '\n')

	dir := filepath.Dir(m.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	if prior, err := os.ReadFile(m.path); err == nil {
		if err := os.WriteFile(m.path+".bak", prior, 0o644); err != nil {
			return err
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(m.path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(out); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, m.path)
}

func parseUTC(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
