package governance

import (
	"fmt"
	"math"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/EduBrainBoost/SSID-sub010/internal/attest"
	"github.com/EduBrainBoost/SSID-sub010/internal/lineage"
	"github.com/EduBrainBoost/SSID-sub010/pkg/ledgererr"
)

// Engine drives the proposal lifecycle against one roster, one proposal
// store, and one chain manager. Votes on a single proposal are serialized;
// votes on different proposals proceed independently.
type Engine struct {
	roster *Roster
	store  *Store
	chain  *lineage.Manager

	// Now is injectable for deterministic tests.
	Now func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewEngine wires a governance engine.
func NewEngine(roster *Roster, store *Store, chain *lineage.Manager) *Engine {
	return &Engine{
		roster: roster,
		store:  store,
		chain:  chain,
		Now:    time.Now,
		locks:  make(map[string]*sync.Mutex),
	}
}

func (e *Engine) lockFor(id string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[id]
	if !ok {
		l = &sync.Mutex{}
		e.locks[id] = l
	}
	return l
}

// Create wraps a candidate lineage entry in a proposal. The candidate must
// reference the current chain tip, and the referenced attestation must exist
// and cover the candidate's global root.
func (e *Engine) Create(candidate lineage.Entry, params Params, refs EvidenceRefs, title string, force bool) (*Proposal, error) {
	if params.QuorumRatio <= 0 || params.QuorumRatio > 1 {
		return nil, fmt.Errorf("%w: quorum_ratio %v out of (0,1]", ledgererr.ErrGovernance, params.QuorumRatio)
	}
	if params.ApprovalThresholdRatio <= 0 || params.ApprovalThresholdRatio > 1 {
		return nil, fmt.Errorf("%w: approval_threshold_ratio %v out of (0,1]", ledgererr.ErrGovernance, params.ApprovalThresholdRatio)
	}
	if params.VotingPeriodSeconds <= 0 {
		return nil, fmt.Errorf("%w: voting_period must be positive", ledgererr.ErrGovernance)
	}
	if params.ExecutionDelaySeconds < 0 {
		return nil, fmt.Errorf("%w: execution_delay must not be negative", ledgererr.ErrGovernance)
	}

	if err := e.checkEvidence(candidate, refs); err != nil {
		return nil, err
	}
	if err := e.checkTip(candidate); err != nil {
		return nil, err
	}

	p := &Proposal{
		ProposalID:    "prop_" + uuid.NewString(),
		Title:         title,
		Type:          ProposalType,
		CreatedAt:     e.Now().UTC().Format(time.RFC3339Nano),
		Governance:    params,
		ProposedEntry: candidate,
		Evidence:      refs,
		Force:         force,
		Voting:        VotingState{Status: StatusCreated, Votes: map[string]string{}},
		Execution:     ExecutionState{Status: "pending"},
	}
	if err := e.store.Save(p); err != nil {
		return nil, err
	}
	return p, nil
}

func (e *Engine) checkEvidence(candidate lineage.Entry, refs EvidenceRefs) error {
	if refs.AttestationPath == "" {
		return fmt.Errorf("%w: proposal requires an attestation reference", ledgererr.ErrEvidenceMissing)
	}
	raw, err := os.ReadFile(refs.AttestationPath)
	if err != nil {
		return fmt.Errorf("%w: attestation %s: %v", ledgererr.ErrEvidenceMissing, refs.AttestationPath, err)
	}
	att, err := attest.ParseStrict(raw)
	if err != nil {
		return err
	}
	if att.Payload.GlobalMerkleRoot != candidate.Registry.GlobalMerkleRoot {
		return fmt.Errorf("%w: attestation covers root %s, candidate carries %s",
			ledgererr.ErrEvidenceMissing, att.Payload.GlobalMerkleRoot, candidate.Registry.GlobalMerkleRoot)
	}
	return nil
}

func (e *Engine) checkTip(candidate lineage.Entry) error {
	doc, err := e.chain.Load()
	if err != nil {
		return err
	}
	tip := lineage.Tip(doc)
	if tip == nil {
		if candidate.Chain.PreviousEntryID != nil || candidate.Chain.PreviousMerkleRoot != "" {
			return fmt.Errorf("%w: candidate references a predecessor but the chain is empty", ledgererr.ErrEvidenceMissing)
		}
		return nil
	}
	if candidate.Chain.PreviousEntryID == nil || *candidate.Chain.PreviousEntryID != tip.EntryID ||
		candidate.Chain.PreviousMerkleRoot != tip.Registry.GlobalMerkleRoot {
		return fmt.Errorf("%w: candidate does not reference the current chain tip (entry %d)", ledgererr.ErrEvidenceMissing, tip.EntryID)
	}
	return nil
}

// Validate re-checks a stored proposal's evidence and, for proposals not yet
// executed, its chain tip reference. It returns the list of findings.
func (e *Engine) Validate(id string) ([]string, error) {
	p, err := e.store.Load(id)
	if err != nil {
		return nil, err
	}
	var findings []string
	if err := e.checkEvidence(p.ProposedEntry, p.Evidence); err != nil {
		findings = append(findings, err.Error())
	}
	if p.Voting.Status != StatusExecuted {
		if err := e.checkTip(p.ProposedEntry); err != nil {
			findings = append(findings, err.Error())
		}
	}
	return findings, nil
}

// StartVoting transitions CREATED to VOTING and fixes the voting window.
func (e *Engine) StartVoting(id string) (*Proposal, error) {
	lock := e.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	p, err := e.store.Load(id)
	if err != nil {
		return nil, err
	}
	if p.Voting.Status != StatusCreated {
		return nil, fmt.Errorf("%w: proposal %s is %s, voting can only start from %s", ledgererr.ErrGovernance, id, p.Voting.Status, StatusCreated)
	}
	start := e.Now().UTC()
	p.Voting.Status = StatusVoting
	p.Voting.VotingStart = start.Format(time.RFC3339Nano)
	p.Voting.VotingEnd = start.Add(time.Duration(p.Governance.VotingPeriodSeconds) * time.Second).Format(time.RFC3339Nano)
	if err := e.store.Save(p); err != nil {
		return nil, err
	}
	return p, nil
}

// CastVote records a validator's choice. A later vote from the same validator
// overwrites the earlier one.
func (e *Engine) CastVote(id, validatorID, choice string) (*Proposal, error) {
	lock := e.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	switch choice {
	case VoteYes, VoteNo, VoteAbstain:
	default:
		return nil, fmt.Errorf("%w: invalid choice %q", ledgererr.ErrGovernance, choice)
	}

	p, err := e.store.Load(id)
	if err != nil {
		return nil, err
	}
	if p.Voting.Status != StatusVoting {
		return nil, fmt.Errorf("%w: proposal %s is %s, not open for voting", ledgererr.ErrGovernance, id, p.Voting.Status)
	}
	end, err := time.Parse(time.RFC3339Nano, p.Voting.VotingEnd)
	if err != nil {
		return nil, fmt.Errorf("%w: proposal %s has no valid voting window", ledgererr.ErrIntegrity, id)
	}
	if !e.Now().UTC().Before(end) {
		return nil, fmt.Errorf("%w: voting period for proposal %s has ended", ledgererr.ErrGovernance, id)
	}

	v, ok := e.roster.Get(validatorID)
	if !ok {
		return nil, fmt.Errorf("%w: unknown validator %q", ledgererr.ErrGovernance, validatorID)
	}
	if !v.Active {
		return nil, fmt.Errorf("%w: validator %q is inactive", ledgererr.ErrGovernance, validatorID)
	}

	if p.Voting.Votes == nil {
		p.Voting.Votes = map[string]string{}
	}
	p.Voting.Votes[validatorID] = choice
	if err := e.store.Save(p); err != nil {
		return nil, err
	}
	return p, nil
}

// Tally closes the vote and decides the proposal. Outside of force, it is
// only valid once the voting window has elapsed.
func (e *Engine) Tally(id string, force bool) (*Proposal, error) {
	lock := e.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	p, err := e.store.Load(id)
	if err != nil {
		return nil, err
	}
	if p.Voting.Status != StatusVoting {
		return nil, fmt.Errorf("%w: proposal %s is %s, nothing to tally", ledgererr.ErrGovernance, id, p.Voting.Status)
	}
	if !force {
		end, err := time.Parse(time.RFC3339Nano, p.Voting.VotingEnd)
		if err != nil {
			return nil, fmt.Errorf("%w: proposal %s has no valid voting window", ledgererr.ErrIntegrity, id)
		}
		if e.Now().UTC().Before(end) {
			return nil, fmt.Errorf("%w: voting period for proposal %s is still open until %s", ledgererr.ErrGovernance, id, p.Voting.VotingEnd)
		}
	}

	result := e.computeTally(p)
	p.Voting.Tally = &result
	p.Voting.ClosedAt = e.Now().UTC().Format(time.RFC3339Nano)
	if result.Approved {
		p.Voting.Status = StatusApproved
	} else {
		p.Voting.Status = StatusRejected
	}
	if err := e.store.Save(p); err != nil {
		return nil, err
	}
	return p, nil
}

// TallyPreview computes the tally arithmetic without transitioning the
// proposal.
func (e *Engine) TallyPreview(id string) (*TallyResult, error) {
	p, err := e.store.Load(id)
	if err != nil {
		return nil, err
	}
	result := e.computeTally(p)
	return &result, nil
}

func (e *Engine) computeTally(p *Proposal) TallyResult {
	result := TallyResult{TotalPower: e.roster.TotalPower()}
	for validatorID, choice := range p.Voting.Votes {
		v, ok := e.roster.Get(validatorID)
		if !ok || !v.Active {
			continue
		}
		result.ParticipatingPower += v.VotingPower
		result.Participants++
		switch choice {
		case VoteYes:
			result.YesPower += v.VotingPower
		case VoteNo:
			result.NoPower += v.VotingPower
		case VoteAbstain:
			result.AbstainPower += v.VotingPower
		}
	}

	if result.TotalPower > 0 {
		result.Participation = result.ParticipatingPower / result.TotalPower
	}
	result.QuorumReached = roundRatio(result.Participation) >= p.Governance.QuorumRatio
	if decisive := result.YesPower + result.NoPower; decisive > 0 {
		result.ApprovalRatio = result.YesPower / decisive
	}

	switch {
	case !result.QuorumReached:
		result.RejectReason = RejectQuorumNotReached
	case roundRatio(result.ApprovalRatio) < p.Governance.ApprovalThresholdRatio:
		result.RejectReason = RejectThresholdNotMet
	default:
		result.Approved = true
	}
	return result
}

// roundRatio rounds to the two-decimal precision governance ratios are
// declared with, so a two-thirds majority meets a 0.67 threshold inclusively.
func roundRatio(r float64) float64 {
	return math.Round(r*100) / 100
}

// Execute appends the approved proposal's candidate entry to the chain,
// stamping the governance approval onto it. Any append failure leaves the
// chain untouched and the proposal in EXECUTION_FAILED.
func (e *Engine) Execute(id string) (*Proposal, error) {
	lock := e.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	p, err := e.store.Load(id)
	if err != nil {
		return nil, err
	}
	if p.Voting.Status != StatusApproved {
		return nil, fmt.Errorf("%w: proposal %s is %s, only approved proposals execute", ledgererr.ErrGovernance, id, p.Voting.Status)
	}
	if p.Governance.ExecutionDelaySeconds > 0 {
		closedAt, err := time.Parse(time.RFC3339Nano, p.Voting.ClosedAt)
		if err != nil {
			return nil, fmt.Errorf("%w: proposal %s has no valid approval time", ledgererr.ErrIntegrity, id)
		}
		readyAt := closedAt.Add(time.Duration(p.Governance.ExecutionDelaySeconds) * time.Second)
		if e.Now().UTC().Before(readyAt) {
			return nil, fmt.Errorf("%w: execution delay for proposal %s has not elapsed (ready at %s)",
				ledgererr.ErrGovernance, id, readyAt.Format(time.RFC3339Nano))
		}
	}

	entry := p.ProposedEntry
	entry.DAOApproval = &lineage.DAOApproval{
		ProposalID:       p.ProposalID,
		ApprovedAt:       p.Voting.ClosedAt,
		ApprovalRatio:    p.Voting.Tally.ApprovalRatio,
		Quorum:           p.Voting.Tally.Participants,
		GovernanceLocked: true,
	}

	appended, appendErr := e.chain.Append(entry, p.Force)
	now := e.Now().UTC().Format(time.RFC3339Nano)
	if appendErr != nil {
		p.Voting.Status = StatusExecutionFailed
		p.Execution = ExecutionState{Status: string(StatusExecutionFailed), ExecutedAt: now, Result: appendErr.Error()}
		if saveErr := e.store.Save(p); saveErr != nil {
			return nil, saveErr
		}
		return p, fmt.Errorf("%w: %v", ledgererr.ErrExecution, appendErr)
	}

	p.ProposedEntry = *appended
	p.Voting.Status = StatusExecuted
	p.Execution = ExecutionState{
		Status:     string(StatusExecuted),
		ExecutedAt: now,
		Result:     fmt.Sprintf("appended lineage entry %d", appended.EntryID),
	}
	if err := e.store.Save(p); err != nil {
		return nil, err
	}
	return p, nil
}
