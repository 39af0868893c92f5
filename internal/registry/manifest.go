package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/EduBrainBoost/SSID-sub010/pkg/ledgererr"
)

// Manifest is the scanner's output document: the full ordered list of
// standards, rules, and hashed manifestation slots for one build.
type Manifest struct {
	Version   string          `json:"version,omitempty"`
	Standards []StandardInput `json:"standards"`
}

// ParseManifestStrict decodes a scanner manifest, rejecting unknown fields.
func ParseManifestStrict(raw []byte) (Manifest, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var out Manifest
	if err := dec.Decode(&out); err != nil {
		return Manifest{}, fmt.Errorf("%w: manifest: %v", ledgererr.ErrEvidenceMissing, err)
	}
	if dec.More() {
		return Manifest{}, fmt.Errorf("%w: manifest: %v", ledgererr.ErrEvidenceMissing, errors.New("trailing payload"))
	}
	if len(out.Standards) == 0 {
		return Manifest{}, fmt.Errorf("%w: manifest declares no standards", ledgererr.ErrEvidenceMissing)
	}
	return out, nil
}

// ParseRegistryStrict decodes a previously built registry document,
// rejecting unknown fields.
func ParseRegistryStrict(raw []byte) (*GlobalRegistry, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var out GlobalRegistry
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: registry document: %v", ledgererr.ErrEvidenceMissing, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: registry document: trailing payload", ledgererr.ErrEvidenceMissing)
	}
	if out.GlobalMerkleRoot == "" || len(out.Standards) == 0 {
		return nil, fmt.Errorf("%w: registry document missing required fields", ledgererr.ErrEvidenceMissing)
	}
	return &out, nil
}

// Recompute rebuilds every root in a stored registry document from its
// embedded slots, independently of the run that produced it, and returns the
// list of mismatches. An empty list means the document's roots are faithful.
func Recompute(doc *GlobalRegistry, slotCount int) ([]string, error) {
	inputs := make([]StandardInput, 0, len(doc.Standards))
	for _, s := range doc.Standards {
		in := StandardInput{StandardID: s.StandardID, Name: s.Name}
		for _, r := range s.Rules {
			in.Rules = append(in.Rules, RuleInput{RuleID: r.RuleID, Name: r.Name, Slots: r.Slots})
		}
		inputs = append(inputs, in)
	}

	b := NewBuilder(slotCount)
	b.Version = doc.Version
	rebuilt, err := b.Build(inputs)
	if err != nil {
		return nil, err
	}

	var mismatches []string
	if rebuilt.GlobalMerkleRoot != doc.GlobalMerkleRoot {
		mismatches = append(mismatches, "global_merkle_root mismatch")
	}
	for i, s := range doc.Standards {
		if rebuilt.Standards[i].MerkleRoot != s.MerkleRoot {
			mismatches = append(mismatches, fmt.Sprintf("standard %s merkle_root mismatch", s.StandardID))
		}
		for j, r := range s.Rules {
			if rebuilt.Standards[i].Rules[j].RootHash != r.RootHash {
				mismatches = append(mismatches, fmt.Sprintf("rule %s root_hash mismatch", r.RuleID))
			}
		}
	}
	if rebuilt.TotalRules != doc.TotalRules || rebuilt.TotalManifestations != doc.TotalManifestations {
		mismatches = append(mismatches, "counters mismatch")
	}
	return mismatches, nil
}
