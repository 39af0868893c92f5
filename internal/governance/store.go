package governance

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/EduBrainBoost/SSID-sub010/pkg/ledgererr"
)

// Store persists proposals as one JSON document per proposal id.
type Store struct {
	dir string
}

// NewStore returns a proposal store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) pathFor(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// Save writes the proposal document atomically.
func (s *Store) Save(p *Proposal) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	out, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	out = append(out, '\n')

	tmp, err := os.CreateTemp(s.dir, p.ProposalID+".tmp-*")
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
	return os.Rename(tmpName, s.pathFor(p.ProposalID))
}

// Load reads a proposal document, rejecting unknown fields.
func (s *Store) Load(id string) (*Proposal, error) {
	raw, err := os.ReadFile(s.pathFor(id))
	if err != nil {
		return nil, fmt.Errorf("%w: proposal %s: %v", ledgererr.ErrEvidenceMissing, id, err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var out Proposal
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: proposal %s: %v", ledgererr.ErrEvidenceMissing, id, err)
	}
	if out.ProposalID != id {
		return nil, fmt.Errorf("%w: proposal document id %q does not match %q", ledgererr.ErrIntegrity, out.ProposalID, id)
	}
	return &out, nil
}
