package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/EduBrainBoost/SSID-sub010/internal/archive"
	"github.com/EduBrainBoost/SSID-sub010/internal/attest"
	"github.com/EduBrainBoost/SSID-sub010/internal/attrib"
	"github.com/EduBrainBoost/SSID-sub010/internal/config"
	"github.com/EduBrainBoost/SSID-sub010/internal/governance"
	"github.com/EduBrainBoost/SSID-sub010/internal/lineage"
	"github.com/EduBrainBoost/SSID-sub010/internal/registry"
	"github.com/EduBrainBoost/SSID-sub010/pkg/canonhash"
	"github.com/EduBrainBoost/SSID-sub010/pkg/db"
	"github.com/EduBrainBoost/SSID-sub010/pkg/signature"
)

const usage = "usage: ledgerctl <build-registry|verify-registry|sign-registry|verify-signature|propose-update|validate-proposal|start-voting|cast-vote|tally|execute|verify-lineage> [flags]"

func main() {
	if len(os.Args) < 2 {
		failSummary("", usage)
		os.Exit(2)
	}
	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "build-registry":
		runBuildRegistry(args)
	case "verify-registry":
		runVerifyRegistry(args)
	case "sign-registry":
		runSignRegistry(args)
	case "verify-signature":
		runVerifySignature(args)
	case "propose-update":
		runProposeUpdate(args)
	case "validate-proposal":
		runValidateProposal(args)
	case "start-voting":
		runStartVoting(args)
	case "cast-vote":
		runCastVote(args)
	case "tally":
		runTally(args)
	case "execute":
		runExecute(args)
	case "verify-lineage":
		runVerifyLineage(args)
	default:
		failSummary(cmd, usage)
		os.Exit(2)
	}
}

func newFlagSet(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	cfgPath := fs.String("config", "", "path to ledger config yaml")
	return fs, cfgPath
}

func parseOrUsage(fs *flag.FlagSet, cfgPath *string, args []string) config.Config {
	if err := fs.Parse(args); err != nil {
		failSummary(fs.Name(), err.Error())
		os.Exit(2)
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		failSummary(fs.Name(), err.Error())
		os.Exit(2)
	}
	return cfg
}

func runBuildRegistry(args []string) {
	fs, cfgPath := newFlagSet("build-registry")
	manifestPath := fs.String("manifest", "", "path to scanner manifest json")
	outPath := fs.String("out", "", "path to write the registry json")
	scanRoot := fs.String("scan-root", ".", "directory artifact paths resolve against")
	cfg := parseOrUsage(fs, cfgPath, args)
	if *manifestPath == "" {
		*manifestPath = cfg.Paths.Manifest
	}
	if *outPath == "" {
		*outPath = cfg.Paths.Registry
	}

	raw, err := os.ReadFile(*manifestPath)
	if err != nil {
		failSummary(fs.Name(), "read manifest failed: "+err.Error())
		os.Exit(1)
	}
	manifest, err := registry.ParseManifestStrict(raw)
	if err != nil {
		failSummary(fs.Name(), err.Error())
		os.Exit(1)
	}
	manifest, err = registry.ScanSlots(manifest, *scanRoot)
	if err != nil {
		failSummary(fs.Name(), "artifact scan failed: "+err.Error())
		os.Exit(1)
	}

	builder := registry.NewBuilder(cfg.Registry.SlotCount)
	builder.Version = cfg.Registry.Version
	if manifest.Version != "" {
		builder.Version = manifest.Version
	}
	reg, err := builder.Build(manifest.Standards)
	if err != nil {
		failSummary(fs.Name(), err.Error())
		os.Exit(1)
	}

	doc, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		failSummary(fs.Name(), err.Error())
		os.Exit(1)
	}
	doc = append(doc, '\n')
	if err := os.WriteFile(*outPath, doc, 0o644); err != nil {
		failSummary(fs.Name(), "write registry failed: "+err.Error())
		os.Exit(1)
	}
	mirror(cfg, "registry", reg.GlobalMerkleRoot, doc)

	passSummary(fs.Name(),
		field{"global_merkle_root", reg.GlobalMerkleRoot},
		field{"total_rules", fmt.Sprint(reg.TotalRules)},
		field{"compliance_score", fmt.Sprintf("%.4f", reg.ComplianceScore)},
	)
}

func runVerifyRegistry(args []string) {
	fs, cfgPath := newFlagSet("verify-registry")
	regPath := fs.String("registry", "", "path to registry json")
	cfg := parseOrUsage(fs, cfgPath, args)
	if *regPath == "" {
		*regPath = cfg.Paths.Registry
	}

	reg, ok := loadRegistry(fs.Name(), *regPath)
	if !ok {
		os.Exit(1)
	}
	mismatches, err := registry.Recompute(reg, cfg.Registry.SlotCount)
	if err != nil {
		failSummary(fs.Name(), err.Error())
		os.Exit(1)
	}
	if len(mismatches) > 0 {
		failSummary(fs.Name(), strings.Join(mismatches, "; "),
			field{"global_merkle_root", reg.GlobalMerkleRoot})
		os.Exit(1)
	}
	passSummary(fs.Name(), field{"global_merkle_root", reg.GlobalMerkleRoot})
}

func runSignRegistry(args []string) {
	fs, cfgPath := newFlagSet("sign-registry")
	regPath := fs.String("registry", "", "path to registry json")
	outPath := fs.String("out", "", "path to write the attestation json")
	algorithm := fs.String("algorithm", "", "signature algorithm")
	keyFile := fs.String("key-file", "", "path to the hex-encoded signing seed")
	cfg := parseOrUsage(fs, cfgPath, args)
	if *regPath == "" {
		*regPath = cfg.Paths.Registry
	}
	if *outPath == "" {
		*outPath = cfg.Paths.Attestation
	}
	if *algorithm == "" {
		*algorithm = cfg.Signer.Algorithm
	}
	if *keyFile == "" {
		*keyFile = cfg.Signer.KeyFile
	}

	reg, ok := loadRegistry(fs.Name(), *regPath)
	if !ok {
		os.Exit(1)
	}
	signer, err := signature.NewSignerFromKeyFile(*algorithm, *keyFile)
	if err != nil {
		failSummary(fs.Name(), err.Error())
		os.Exit(1)
	}
	att, err := attest.Sign(reg.Summary(), signer, time.Now().UTC())
	if err != nil {
		failSummary(fs.Name(), err.Error())
		os.Exit(1)
	}

	doc, err := json.MarshalIndent(att, "", "  ")
	if err != nil {
		failSummary(fs.Name(), err.Error())
		os.Exit(1)
	}
	doc = append(doc, '\n')
	if err := os.WriteFile(*outPath, doc, 0o644); err != nil {
		failSummary(fs.Name(), "write attestation failed: "+err.Error())
		os.Exit(1)
	}
	mirror(cfg, "attestation", att.MessageHash, doc)

	passSummary(fs.Name(),
		field{"algorithm", att.Signature.Algorithm},
		field{"message_hash", att.MessageHash},
		field{"global_merkle_root", att.Payload.GlobalMerkleRoot},
	)
}

func runVerifySignature(args []string) {
	fs, cfgPath := newFlagSet("verify-signature")
	regPath := fs.String("registry", "", "path to registry json")
	attPath := fs.String("attestation", "", "path to attestation json")
	cfg := parseOrUsage(fs, cfgPath, args)
	if *regPath == "" {
		*regPath = cfg.Paths.Registry
	}
	if *attPath == "" {
		*attPath = cfg.Paths.Attestation
	}

	reg, ok := loadRegistry(fs.Name(), *regPath)
	if !ok {
		os.Exit(1)
	}
	att, ok := loadAttestation(fs.Name(), *attPath)
	if !ok {
		os.Exit(1)
	}
	if err := attest.Verify(att, reg.Summary()); err != nil {
		failSummary(fs.Name(), err.Error(),
			field{"algorithm", att.Signature.Algorithm},
			field{"message_hash", att.MessageHash})
		os.Exit(1)
	}
	passSummary(fs.Name(),
		field{"algorithm", att.Signature.Algorithm},
		field{"message_hash", att.MessageHash},
	)
}

func runProposeUpdate(args []string) {
	fs, cfgPath := newFlagSet("propose-update")
	regPath := fs.String("registry", "", "path to registry json")
	attPath := fs.String("attestation", "", "path to attestation json")
	title := fs.String("title", "", "proposal title")
	actor := fs.String("actor", "ledgerctl", "attribution actor")
	snapshotRef := fs.String("snapshot-ref", "", "immutable snapshot reference")
	force := fs.Bool("force", false, "allow a no-change entry on execution")
	quorum := fs.Float64("quorum", 0, "quorum ratio override")
	threshold := fs.Float64("threshold", 0, "approval threshold override")
	votingPeriod := fs.Int64("voting-period", 0, "voting period seconds override")
	executionDelay := fs.Int64("execution-delay", -1, "execution delay seconds override")
	cfg := parseOrUsage(fs, cfgPath, args)
	if *regPath == "" {
		*regPath = cfg.Paths.Registry
	}
	if *attPath == "" {
		*attPath = cfg.Paths.Attestation
	}
	if strings.TrimSpace(*title) == "" {
		failSummary(fs.Name(), "--title is required")
		os.Exit(2)
	}

	params := governance.Params{
		QuorumRatio:            cfg.Governance.QuorumRatio,
		ApprovalThresholdRatio: cfg.Governance.ApprovalThresholdRatio,
		VotingPeriodSeconds:    cfg.Governance.VotingPeriodSeconds,
		ExecutionDelaySeconds:  cfg.Governance.ExecutionDelaySeconds,
	}
	if *quorum > 0 {
		params.QuorumRatio = *quorum
	}
	if *threshold > 0 {
		params.ApprovalThresholdRatio = *threshold
	}
	if *votingPeriod > 0 {
		params.VotingPeriodSeconds = *votingPeriod
	}
	if *executionDelay >= 0 {
		params.ExecutionDelaySeconds = *executionDelay
	}

	reg, ok := loadRegistry(fs.Name(), *regPath)
	if !ok {
		os.Exit(1)
	}
	attRaw, err := os.ReadFile(*attPath)
	if err != nil {
		failSummary(fs.Name(), "read attestation failed: "+err.Error())
		os.Exit(1)
	}
	att, err := attest.ParseStrict(attRaw)
	if err != nil {
		failSummary(fs.Name(), err.Error())
		os.Exit(1)
	}
	regRaw, err := os.ReadFile(*regPath)
	if err != nil {
		failSummary(fs.Name(), "read registry failed: "+err.Error())
		os.Exit(1)
	}

	eng, ok := newEngine(fs.Name(), cfg)
	if !ok {
		os.Exit(1)
	}
	candidate := lineage.Entry{
		Registry:    reg.Summary(),
		Attestation: att,
		Attribution: lineage.Attribution{Actor: *actor, Event: "governance_proposal"},
	}
	if rev, present := attrib.NewEnvProvider().Revision(context.Background()); present {
		candidate.Attribution.SourceRevision = rev
	}
	chain := lineage.NewManager(cfg.Paths.Lineage)
	doc, err := chain.Load()
	if err != nil {
		failSummary(fs.Name(), err.Error())
		os.Exit(1)
	}
	if tip := lineage.Tip(doc); tip != nil {
		prev := tip.EntryID
		candidate.Chain.PreviousEntryID = &prev
		candidate.Chain.PreviousMerkleRoot = tip.Registry.GlobalMerkleRoot
	}

	refs := governance.EvidenceRefs{
		RegistryPath:    *regPath,
		RegistryHash:    canonhash.SHA256Hex(regRaw),
		AttestationPath: *attPath,
		AttestationHash: canonhash.SHA256Hex(attRaw),
		SnapshotRef:     *snapshotRef,
	}
	p, err := eng.Create(candidate, params, refs, *title, *force)
	if err != nil {
		failSummary(fs.Name(), err.Error())
		os.Exit(1)
	}
	mirrorProposal(cfg, p)

	passSummary(fs.Name(),
		field{"proposal_id", p.ProposalID},
		field{"status", string(p.Voting.Status)},
		field{"global_merkle_root", p.ProposedEntry.Registry.GlobalMerkleRoot},
	)
}

func runValidateProposal(args []string) {
	fs, cfgPath := newFlagSet("validate-proposal")
	proposalID := fs.String("proposal-id", "", "proposal id")
	cfg := parseOrUsage(fs, cfgPath, args)
	eng, id, ok := engineAndID(fs.Name(), cfg, *proposalID)
	if !ok {
		os.Exit(2)
	}

	findings, err := eng.Validate(id)
	if err != nil {
		failSummary(fs.Name(), err.Error(), field{"proposal_id", id})
		os.Exit(1)
	}
	if len(findings) > 0 {
		failSummary(fs.Name(), strings.Join(findings, "; "), field{"proposal_id", id})
		os.Exit(1)
	}
	passSummary(fs.Name(), field{"proposal_id", id})
}

func runStartVoting(args []string) {
	fs, cfgPath := newFlagSet("start-voting")
	proposalID := fs.String("proposal-id", "", "proposal id")
	cfg := parseOrUsage(fs, cfgPath, args)
	eng, id, ok := engineAndID(fs.Name(), cfg, *proposalID)
	if !ok {
		os.Exit(2)
	}

	p, err := eng.StartVoting(id)
	if err != nil {
		failSummary(fs.Name(), err.Error(), field{"proposal_id", id})
		os.Exit(1)
	}
	mirrorProposal(cfg, p)
	passSummary(fs.Name(),
		field{"proposal_id", id},
		field{"status", string(p.Voting.Status)},
		field{"voting_end", p.Voting.VotingEnd},
	)
}

func runCastVote(args []string) {
	fs, cfgPath := newFlagSet("cast-vote")
	proposalID := fs.String("proposal-id", "", "proposal id")
	validator := fs.String("validator", "", "validator id")
	choice := fs.String("choice", "", "yes, no, or abstain")
	cfg := parseOrUsage(fs, cfgPath, args)
	eng, id, ok := engineAndID(fs.Name(), cfg, *proposalID)
	if !ok {
		os.Exit(2)
	}
	if *validator == "" || *choice == "" {
		failSummary(fs.Name(), "--validator and --choice are required")
		os.Exit(2)
	}

	p, err := eng.CastVote(id, *validator, *choice)
	if err != nil {
		failSummary(fs.Name(), err.Error(), field{"proposal_id", id})
		os.Exit(1)
	}
	mirrorProposal(cfg, p)
	passSummary(fs.Name(),
		field{"proposal_id", id},
		field{"validator", *validator},
		field{"choice", *choice},
	)
}

func runTally(args []string) {
	fs, cfgPath := newFlagSet("tally")
	proposalID := fs.String("proposal-id", "", "proposal id")
	force := fs.Bool("force", false, "close the vote before the window elapses")
	dryRun := fs.Bool("dry-run", false, "compute the tally without transitioning the proposal")
	cfg := parseOrUsage(fs, cfgPath, args)
	eng, id, ok := engineAndID(fs.Name(), cfg, *proposalID)
	if !ok {
		os.Exit(2)
	}

	if *dryRun {
		result, err := eng.TallyPreview(id)
		if err != nil {
			failSummary(fs.Name(), err.Error(), field{"proposal_id", id})
			os.Exit(1)
		}
		passSummary(fs.Name(),
			field{"proposal_id", id},
			field{"participation", fmt.Sprintf("%.4f", result.Participation)},
			field{"approval_ratio", fmt.Sprintf("%.4f", result.ApprovalRatio)},
			field{"approved", fmt.Sprint(result.Approved)},
			field{"dry_run", "true"},
		)
		return
	}

	p, err := eng.Tally(id, *force)
	if err != nil {
		failSummary(fs.Name(), err.Error(), field{"proposal_id", id})
		os.Exit(1)
	}
	mirrorProposal(cfg, p)
	fields := []field{
		{"proposal_id", id},
		{"status", string(p.Voting.Status)},
		{"participation", fmt.Sprintf("%.4f", p.Voting.Tally.Participation)},
		{"approval_ratio", fmt.Sprintf("%.4f", p.Voting.Tally.ApprovalRatio)},
	}
	if p.Voting.Status == governance.StatusRejected {
		failSummary(fs.Name(), p.Voting.Tally.RejectReason, fields...)
		os.Exit(1)
	}
	passSummary(fs.Name(), fields...)
}

func runExecute(args []string) {
	fs, cfgPath := newFlagSet("execute")
	proposalID := fs.String("proposal-id", "", "proposal id")
	cfg := parseOrUsage(fs, cfgPath, args)
	eng, id, ok := engineAndID(fs.Name(), cfg, *proposalID)
	if !ok {
		os.Exit(2)
	}

	p, err := eng.Execute(id)
	if p != nil {
		mirrorProposal(cfg, p)
	}
	if err != nil {
		failSummary(fs.Name(), err.Error(), field{"proposal_id", id})
		os.Exit(1)
	}
	if doc, loadErr := os.ReadFile(cfg.Paths.Lineage); loadErr == nil {
		mirror(cfg, "lineage", "chain", doc)
	}
	passSummary(fs.Name(),
		field{"proposal_id", id},
		field{"status", string(p.Voting.Status)},
		field{"entry_id", fmt.Sprint(p.ProposedEntry.EntryID)},
		field{"entry_hash", p.ProposedEntry.Chain.EntryHash},
	)
}

func runVerifyLineage(args []string) {
	fs, cfgPath := newFlagSet("verify-lineage")
	verifySignatures := fs.Bool("verify-signatures", false, "also verify embedded attestations")
	cfg := parseOrUsage(fs, cfgPath, args)

	chain := lineage.NewManager(cfg.Paths.Lineage)
	report, err := chain.Verify(*verifySignatures)
	if err != nil {
		failSummary(fs.Name(), err.Error())
		os.Exit(1)
	}
	fields := []field{
		{"total_entries", fmt.Sprint(report.TotalEntries)},
		{"signatures_verified", fmt.Sprint(report.SignaturesVerified)},
		{"violations", fmt.Sprint(len(report.Violations))},
	}
	if !report.OK {
		reasons := make([]string, 0, len(report.Violations))
		for _, v := range report.Violations {
			reasons = append(reasons, fmt.Sprintf("entry %d %s: %s", v.EntryID, v.Code, v.Message))
		}
		failSummary(fs.Name(), strings.Join(reasons, "; "), fields...)
		os.Exit(1)
	}
	passSummary(fs.Name(), fields...)
}

func loadRegistry(command, path string) (*registry.GlobalRegistry, bool) {
	raw, err := os.ReadFile(path)
	if err != nil {
		failSummary(command, "read registry failed: "+err.Error())
		return nil, false
	}
	reg, err := registry.ParseRegistryStrict(raw)
	if err != nil {
		failSummary(command, err.Error())
		return nil, false
	}
	return reg, true
}

func loadAttestation(command, path string) (*attest.Attestation, bool) {
	raw, err := os.ReadFile(path)
	if err != nil {
		failSummary(command, "read attestation failed: "+err.Error())
		return nil, false
	}
	att, err := attest.ParseStrict(raw)
	if err != nil {
		failSummary(command, err.Error())
		return nil, false
	}
	return att, true
}

func newEngine(command string, cfg config.Config) (*governance.Engine, bool) {
	roster, err := governance.LoadRoster(cfg.Paths.Roster)
	if err != nil {
		failSummary(command, err.Error())
		return nil, false
	}
	store := governance.NewStore(cfg.Paths.ProposalsDir)
	chain := lineage.NewManager(cfg.Paths.Lineage)
	return governance.NewEngine(roster, store, chain), true
}

func engineAndID(command string, cfg config.Config, proposalID string) (*governance.Engine, string, bool) {
	if strings.TrimSpace(proposalID) == "" {
		failSummary(command, "--proposal-id is required")
		return nil, "", false
	}
	eng, ok := newEngine(command, cfg)
	if !ok {
		return nil, "", false
	}
	return eng, proposalID, true
}

// mirror copies a document to the configured archive sink. Archival is
// best-effort: a failure warns on stderr and never changes the verdict.
func mirror(cfg config.Config, kind, id string, doc []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var sink archive.Sink
	switch cfg.Archive.Driver {
	case config.ArchiveJSONL:
		sink = archive.NewJSONLSink(cfg.Archive.Path)
	case config.ArchivePostgres:
		pool, err := db.Connect(ctx, cfg.ArchiveDSN())
		if err != nil {
			fmt.Fprintf(os.Stderr, "archive: %v\n", err)
			return
		}
		defer pool.Close()
		pg := archive.NewPostgresSink(pool)
		if err := pg.Init(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "archive: %v\n", err)
			return
		}
		sink = pg
	default:
		return
	}
	if err := sink.Mirror(ctx, kind, id, doc); err != nil {
		fmt.Fprintf(os.Stderr, "archive: %v\n", err)
	}
}

func mirrorProposal(cfg config.Config, p *governance.Proposal) {
	doc, err := json.Marshal(p)
	if err != nil {
		fmt.Fprintf(os.Stderr, "archive: %v\n", err)
		return
	}
	mirror(cfg, "proposal", p.ProposalID, doc)
}

type field struct{ k, v string }

func passSummary(command string, fields ...field) {
	printSummary("PASS", command, "", fields)
}

func failSummary(command, reason string, fields ...field) {
	printSummary("FAIL", command, reason, fields)
}

func printSummary(status, command, reason string, fields []field) {
	var b strings.Builder
	b.WriteString("{\"tool\":\"ledgerctl\",\"status\":")
	b.WriteString(jsonQuote(status))
	b.WriteString(",\"command\":")
	b.WriteString(jsonQuote(command))
	for _, f := range fields {
		b.WriteString(",")
		b.WriteString(jsonQuote(f.k))
		b.WriteString(":")
		b.WriteString(jsonQuote(f.v))
	}
	if reason != "" {
		b.WriteString(",\"reason\":")
		b.WriteString(jsonQuote(reason))
	}
	b.WriteString(",\"timestamp_utc\":")
	b.WriteString(jsonQuote(time.Now().UTC().Format(time.RFC3339)))
	b.WriteString("}")
	fmt.Println(b.String())
}

func jsonQuote(v string) string {
	b, _ := json.Marshal(v)
	return string(b)
}
