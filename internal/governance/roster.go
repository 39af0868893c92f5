// Package governance gates lineage appends behind a weighted-voting workflow:
// proposal creation, voting, tally, and execution against the chain manager.
package governance

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/EduBrainBoost/SSID-sub010/pkg/ledgererr"
)

// Validator is one named voter with a non-negative weight.
type Validator struct {
	ID          string  `yaml:"id" json:"id"`
	Name        string  `yaml:"name" json:"name"`
	VotingPower float64 `yaml:"voting_power" json:"voting_power"`
	Active      bool    `yaml:"active" json:"active"`
}

// Roster is the validator set for one governance cycle, loaded once from
// external configuration and never re-read mid-vote.
type Roster struct {
	validators map[string]Validator
}

type rosterFile struct {
	Validators []Validator `yaml:"validators"`
}

// LoadRoster reads the validator roster from a YAML file.
func LoadRoster(path string) (*Roster, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: validator roster %s: %v", ledgererr.ErrEvidenceMissing, path, err)
	}
	var file rosterFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("%w: validator roster: %v", ledgererr.ErrEvidenceMissing, err)
	}
	return NewRoster(file.Validators)
}

// NewRoster builds a roster from validator entries, validating ids and
// weights.
func NewRoster(validators []Validator) (*Roster, error) {
	if len(validators) == 0 {
		return nil, fmt.Errorf("%w: roster declares no validators", ledgererr.ErrEvidenceMissing)
	}
	byID := make(map[string]Validator, len(validators))
	for _, v := range validators {
		if v.ID == "" {
			return nil, fmt.Errorf("%w: validator without id", ledgererr.ErrGovernance)
		}
		if v.VotingPower < 0 {
			return nil, fmt.Errorf("%w: validator %s has negative voting power", ledgererr.ErrGovernance, v.ID)
		}
		if _, dup := byID[v.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate validator id %s", ledgererr.ErrDeterminism, v.ID)
		}
		byID[v.ID] = v
	}
	return &Roster{validators: byID}, nil
}

// Get looks up a validator by id.
func (r *Roster) Get(id string) (Validator, bool) {
	v, ok := r.validators[id]
	return v, ok
}

// TotalPower sums the voting power of active validators. Inactive validators
// can neither vote nor count toward quorum.
func (r *Roster) TotalPower() float64 {
	var total float64
	for _, v := range r.validators {
		if v.Active {
			total += v.VotingPower
		}
	}
	return total
}

// Size returns the number of validators in the roster.
func (r *Roster) Size() int { return len(r.validators) }
