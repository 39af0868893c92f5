package governance

import (
	"github.com/EduBrainBoost/SSID-sub010/internal/lineage"
)

// ProposalType is fixed: every proposal carries one candidate lineage entry.
const ProposalType = "lineage_update"

// Status is the proposal lifecycle state.
type Status string

const (
	StatusCreated         Status = "CREATED"
	StatusVoting          Status = "VOTING"
	StatusApproved        Status = "APPROVED"
	StatusRejected        Status = "REJECTED"
	StatusExecuted        Status = "EXECUTED"
	StatusExecutionFailed Status = "EXECUTION_FAILED"
)

// Vote choices.
const (
	VoteYes     = "yes"
	VoteNo      = "no"
	VoteAbstain = "abstain"
)

// Rejection reasons recorded by tally.
const (
	RejectQuorumNotReached = "quorum_not_reached"
	RejectThresholdNotMet  = "threshold_not_met"
)

// Params are the voting parameters fixed at proposal creation.
type Params struct {
	QuorumRatio            float64 `json:"quorum_ratio"`
	ApprovalThresholdRatio float64 `json:"approval_threshold_ratio"`
	VotingPeriodSeconds    int64   `json:"voting_period_seconds"`
	ExecutionDelaySeconds  int64   `json:"execution_delay_seconds"`
}

// EvidenceRefs point at the registry and attestation documents backing a
// proposal, plus an optional immutable snapshot reference.
type EvidenceRefs struct {
	RegistryPath    string `json:"registry_path"`
	RegistryHash    string `json:"registry_hash"`
	AttestationPath string `json:"attestation_path"`
	AttestationHash string `json:"attestation_hash"`
	SnapshotRef     string `json:"snapshot_ref,omitempty"`
}

// TallyResult is the arithmetic outcome of one tally pass.
type TallyResult struct {
	TotalPower         float64 `json:"total_power"`
	ParticipatingPower float64 `json:"participating_power"`
	YesPower           float64 `json:"yes_power"`
	NoPower            float64 `json:"no_power"`
	AbstainPower       float64 `json:"abstain_power"`
	Participation      float64 `json:"participation"`
	ApprovalRatio      float64 `json:"approval_ratio"`
	QuorumReached      bool    `json:"quorum_reached"`
	Approved           bool    `json:"approved"`
	Participants       int     `json:"participants"`
	RejectReason       string  `json:"reject_reason,omitempty"`
}

// VotingState mutates as votes arrive and the tally runs.
type VotingState struct {
	Status      Status            `json:"status"`
	VotingStart string            `json:"voting_start,omitempty"`
	VotingEnd   string            `json:"voting_end,omitempty"`
	ClosedAt    string            `json:"closed_at,omitempty"`
	Votes       map[string]string `json:"votes"`
	Tally       *TallyResult      `json:"tally,omitempty"`
}

// ExecutionState mutates only when an approved proposal executes.
type ExecutionState struct {
	Status     string `json:"status"`
	ExecutedAt string `json:"executed_at,omitempty"`
	Result     string `json:"result,omitempty"`
}

// Proposal wraps one candidate lineage entry in voting parameters and
// evidence references. Only its voting and execution blocks ever mutate.
type Proposal struct {
	ProposalID    string         `json:"proposal_id"`
	Title         string         `json:"title"`
	Type          string         `json:"type"`
	CreatedAt     string         `json:"created_at"`
	Governance    Params         `json:"governance"`
	ProposedEntry lineage.Entry  `json:"proposed_entry"`
	Evidence      EvidenceRefs   `json:"evidence"`
	Force         bool           `json:"force,omitempty"`
	Voting        VotingState    `json:"voting"`
	Execution     ExecutionState `json:"execution"`
}

// Terminal reports whether the proposal can never change state again.
func (p *Proposal) Terminal() bool {
	switch p.Voting.Status {
	case StatusRejected, StatusExecuted, StatusExecutionFailed:
		return true
	}
	return false
}
