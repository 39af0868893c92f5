// Package registry aggregates compliance manifestation artifacts into
// per-rule, per-standard, and global Merkle roots. A registry is rebuilt in
// full on every run; identical input always yields identical roots.
package registry

import (
	"fmt"
	"time"

	"github.com/EduBrainBoost/SSID-sub010/pkg/canonhash"
	"github.com/EduBrainBoost/SSID-sub010/pkg/ledgererr"
	"github.com/EduBrainBoost/SSID-sub010/pkg/merkle"
)

// DefaultSlotCount is the reference number of manifestation slots per rule.
const DefaultSlotCount = 4

// DefaultVersion tags registry documents built without an explicit version.
const DefaultVersion = "1.0.0"

// MissingSlotHash is the fixed sentinel leaf for a manifestation slot whose
// file is absent. Any fixed constant works as long as it is applied on every
// rule and every run; this one is SHA-256("MISSING").
var MissingSlotHash = canonhash.HashStringSHA256Hex("MISSING")

// ManifestationSlot is one named artifact role within a rule, already hashed
// by the external scanner.
type ManifestationSlot struct {
	Role   string `json:"role"`
	Path   string `json:"path"`
	SHA256 string `json:"sha256"`
	Exists bool   `json:"exists"`
}

// RuleInput is one rule as supplied by the scanner.
type RuleInput struct {
	RuleID string              `json:"rule_id"`
	Name   string              `json:"name"`
	Slots  []ManifestationSlot `json:"slots"`
}

// StandardInput is one standard as supplied by the scanner. Rules must
// already be in strictly ascending rule_id order.
type StandardInput struct {
	StandardID string      `json:"standard_id"`
	Name       string      `json:"name"`
	Rules      []RuleInput `json:"rules"`
}

// Rule is a rule with its computed Merkle root. Immutable once computed for a
// given snapshot.
type Rule struct {
	RuleID     string              `json:"rule_id"`
	Name       string              `json:"name"`
	StandardID string              `json:"standard_id"`
	RootHash   string              `json:"root_hash"`
	Slots      []ManifestationSlot `json:"slots"`
}

// Standard is a standard with its computed Merkle root over rule roots.
type Standard struct {
	StandardID string `json:"standard_id"`
	Name       string `json:"name"`
	MerkleRoot string `json:"merkle_root"`
	Rules      []Rule `json:"rules"`
}

// GlobalRegistry is a point-in-time snapshot across all standards.
type GlobalRegistry struct {
	Version             string     `json:"version"`
	GeneratedAt         string     `json:"generated_at"`
	Standards           []Standard `json:"standards"`
	GlobalMerkleRoot    string     `json:"global_merkle_root"`
	ComplianceScore     float64    `json:"compliance_score"`
	TotalRules          int        `json:"total_rules"`
	TotalManifestations int        `json:"total_manifestations"`
}

// Summary is the canonical registry summary document signed by attestations
// and copied into lineage entries.
type Summary struct {
	ComplianceScore     float64           `json:"compliance_score"`
	GeneratedAt         string            `json:"generated_at"`
	GlobalMerkleRoot    string            `json:"global_merkle_root"`
	StandardMerkleRoots map[string]string `json:"standard_merkle_roots"`
	TotalManifestations int               `json:"total_manifestations"`
	TotalRules          int               `json:"total_rules"`
	Version             string            `json:"version"`
}

// Summary extracts the summary fields from a built registry.
func (r *GlobalRegistry) Summary() Summary {
	roots := make(map[string]string, len(r.Standards))
	for _, s := range r.Standards {
		roots[s.StandardID] = s.MerkleRoot
	}
	return Summary{
		ComplianceScore:     r.ComplianceScore,
		GeneratedAt:         r.GeneratedAt,
		GlobalMerkleRoot:    r.GlobalMerkleRoot,
		StandardMerkleRoots: roots,
		TotalManifestations: r.TotalManifestations,
		TotalRules:          r.TotalRules,
		Version:             r.Version,
	}
}

// Builder builds global registries with a fixed slot count per rule.
type Builder struct {
	SlotCount int
	Version   string
	Now       func() time.Time
}

// NewBuilder returns a builder for the given fixed slot count.
func NewBuilder(slotCount int) *Builder {
	if slotCount <= 0 {
		slotCount = DefaultSlotCount
	}
	return &Builder{SlotCount: slotCount, Version: DefaultVersion, Now: time.Now}
}

// Build computes every rule root, standard root, and the global root.
// Standards must arrive in strictly ascending standard_id order and each
// standard's rules in strictly ascending rule_id order; canonical ordering is
// validated, never silently repaired.
func (b *Builder) Build(standards []StandardInput) (*GlobalRegistry, error) {
	if len(standards) == 0 {
		return nil, fmt.Errorf("%w: no standards supplied", ledgererr.ErrEvidenceMissing)
	}

	out := &GlobalRegistry{
		Version:     b.Version,
		GeneratedAt: b.Now().UTC().Format(time.RFC3339Nano),
	}
	standardRoots := make([]string, 0, len(standards))
	existing := 0

	for i, std := range standards {
		if std.StandardID == "" {
			return nil, fmt.Errorf("%w: standard %d has no standard_id", ledgererr.ErrEvidenceMissing, i)
		}
		if i > 0 {
			prev := standards[i-1].StandardID
			if prev == std.StandardID {
				return nil, fmt.Errorf("%w: duplicate standard_id %q", ledgererr.ErrDeterminism, std.StandardID)
			}
			if prev > std.StandardID {
				return nil, fmt.Errorf("%w: standards not in ascending standard_id order (%q after %q)", ledgererr.ErrDeterminism, std.StandardID, prev)
			}
		}
		if len(std.Rules) == 0 {
			return nil, fmt.Errorf("%w: standard %q has no rules", ledgererr.ErrEvidenceMissing, std.StandardID)
		}

		built := Standard{StandardID: std.StandardID, Name: std.Name, Rules: make([]Rule, 0, len(std.Rules))}
		ruleRoots := make([]string, 0, len(std.Rules))

		for j, rule := range std.Rules {
			if rule.RuleID == "" {
				return nil, fmt.Errorf("%w: standard %q rule %d has no rule_id", ledgererr.ErrEvidenceMissing, std.StandardID, j)
			}
			if j > 0 {
				prev := std.Rules[j-1].RuleID
				if prev == rule.RuleID {
					return nil, fmt.Errorf("%w: duplicate rule_id %q in standard %q", ledgererr.ErrDeterminism, rule.RuleID, std.StandardID)
				}
				if prev > rule.RuleID {
					return nil, fmt.Errorf("%w: rules not in ascending rule_id order in standard %q (%q after %q)", ledgererr.ErrDeterminism, std.StandardID, rule.RuleID, prev)
				}
			}
			if len(rule.Slots) != b.SlotCount {
				return nil, fmt.Errorf("%w: rule %q declares %d manifestation slots, expected %d", ledgererr.ErrEvidenceMissing, rule.RuleID, len(rule.Slots), b.SlotCount)
			}

			leaves := make([]string, len(rule.Slots))
			slots := make([]ManifestationSlot, len(rule.Slots))
			for k, slot := range rule.Slots {
				slots[k] = slot
				if !slot.Exists {
					slots[k].SHA256 = MissingSlotHash
				} else {
					if slot.SHA256 == "" {
						return nil, fmt.Errorf("%w: rule %q slot %q exists but carries no content hash", ledgererr.ErrEvidenceMissing, rule.RuleID, slot.Role)
					}
					existing++
				}
				leaves[k] = slots[k].SHA256
			}

			root, err := merkle.Root(leaves)
			if err != nil {
				return nil, fmt.Errorf("%w: rule %q: %v", ledgererr.ErrEvidenceMissing, rule.RuleID, err)
			}
			built.Rules = append(built.Rules, Rule{
				RuleID:     rule.RuleID,
				Name:       rule.Name,
				StandardID: std.StandardID,
				RootHash:   root,
				Slots:      slots,
			})
			ruleRoots = append(ruleRoots, root)
			out.TotalRules++
			out.TotalManifestations += len(rule.Slots)
		}

		stdRoot, err := merkle.Root(ruleRoots)
		if err != nil {
			return nil, fmt.Errorf("%w: standard %q: %v", ledgererr.ErrEvidenceMissing, std.StandardID, err)
		}
		built.MerkleRoot = stdRoot
		standardRoots = append(standardRoots, stdRoot)
		out.Standards = append(out.Standards, built)
	}

	globalRoot, err := merkle.Root(standardRoots)
	if err != nil {
		return nil, fmt.Errorf("%w: global root: %v", ledgererr.ErrEvidenceMissing, err)
	}
	out.GlobalMerkleRoot = globalRoot
	if out.TotalManifestations > 0 {
		out.ComplianceScore = float64(existing) / float64(out.TotalManifestations)
	}
	return out, nil
}
