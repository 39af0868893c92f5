// Package ledgererr defines the error taxonomy shared across the ledger core.
// Callers classify failures with errors.Is against these sentinels; packages
// wrap them with context via fmt.Errorf and %w.
package ledgererr

import "errors"

var (
	// ErrEvidenceMissing reports that a required file, field, or key is absent.
	ErrEvidenceMissing = errors.New("evidence missing")

	// ErrDeterminism reports input that cannot be canonically ordered.
	ErrDeterminism = errors.New("determinism violation")

	// ErrIntegrity reports a recomputed hash or signature that does not match
	// the stored value.
	ErrIntegrity = errors.New("integrity violation")

	// ErrDuplicateState reports a candidate state already represented at the
	// chain tip.
	ErrDuplicateState = errors.New("duplicate state")

	// ErrGovernance reports an invalid vote, a premature tally, or a
	// governance parameter out of range.
	ErrGovernance = errors.New("governance violation")

	// ErrExecution reports an append that failed after approval, such as a
	// stale chain tip.
	ErrExecution = errors.New("execution failed")
)
