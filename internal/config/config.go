// Package config loads the ledger tool configuration from YAML, with
// defaults suitable for a repository-local ledger layout.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/EduBrainBoost/SSID-sub010/pkg/ledgererr"
)

// Archive drivers.
const (
	ArchiveNone     = "none"
	ArchiveJSONL    = "jsonl"
	ArchivePostgres = "postgres"
)

// Registry holds registry builder settings.
type Registry struct {
	SlotCount int    `yaml:"slot_count"`
	Version   string `yaml:"version"`
}

// Paths locates the ledger documents on disk.
type Paths struct {
	Manifest     string `yaml:"manifest"`
	Registry     string `yaml:"registry"`
	Attestation  string `yaml:"attestation"`
	Lineage      string `yaml:"lineage"`
	ProposalsDir string `yaml:"proposals_dir"`
	Roster       string `yaml:"roster"`
}

// Signer selects the attestation signing backend and its key material.
type Signer struct {
	Algorithm string `yaml:"algorithm"`
	KeyFile   string `yaml:"key_file"`
}

// Archive selects the mirror sink. DSN may also come from LEDGER_ARCHIVE_DSN.
type Archive struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	DSN    string `yaml:"dsn"`
}

// Governance holds default voting parameters for new proposals.
type Governance struct {
	QuorumRatio            float64 `yaml:"quorum_ratio"`
	ApprovalThresholdRatio float64 `yaml:"approval_threshold_ratio"`
	VotingPeriodSeconds    int64   `yaml:"voting_period_seconds"`
	ExecutionDelaySeconds  int64   `yaml:"execution_delay_seconds"`
}

// Config is the full tool configuration.
type Config struct {
	Registry   Registry   `yaml:"registry"`
	Paths      Paths      `yaml:"paths"`
	Signer     Signer     `yaml:"signer"`
	Archive    Archive    `yaml:"archive"`
	Governance Governance `yaml:"governance"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Registry: Registry{SlotCount: 4, Version: "1.0.0"},
		Paths: Paths{
			Manifest:     "ledger/manifest.json",
			Registry:     "ledger/registry.json",
			Attestation:  "ledger/attestation.json",
			Lineage:      "ledger/lineage.json",
			ProposalsDir: "ledger/proposals",
			Roster:       "ledger/validators.yaml",
		},
		Signer:  Signer{Algorithm: "ed25519", KeyFile: "ledger/signing.key"},
		Archive: Archive{Driver: ArchiveNone},
		Governance: Governance{
			QuorumRatio:            0.67,
			ApprovalThresholdRatio: 0.67,
			VotingPeriodSeconds:    86400,
			ExecutionDelaySeconds:  0,
		},
	}
}

// Load reads a YAML config file over the defaults. An empty path yields the
// defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: config %s: %v", ledgererr.ErrEvidenceMissing, path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: config %s: %v", ledgererr.ErrEvidenceMissing, path, err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Registry.SlotCount <= 0 {
		return fmt.Errorf("%w: registry.slot_count must be positive", ledgererr.ErrDeterminism)
	}
	switch c.Archive.Driver {
	case ArchiveNone, ArchiveJSONL, ArchivePostgres:
	default:
		return fmt.Errorf("%w: unknown archive.driver %q", ledgererr.ErrDeterminism, c.Archive.Driver)
	}
	if c.Archive.Driver == ArchiveJSONL && c.Archive.Path == "" {
		return fmt.Errorf("%w: archive.path required for the jsonl driver", ledgererr.ErrDeterminism)
	}
	return nil
}

// ArchiveDSN resolves the Postgres DSN, preferring the environment variable
// over the config file so credentials stay out of committed configs.
func (c Config) ArchiveDSN() string {
	if dsn := os.Getenv("LEDGER_ARCHIVE_DSN"); dsn != "" {
		return dsn
	}
	return c.Archive.DSN
}
