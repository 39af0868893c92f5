// Package attrib resolves the optional source revision recorded in lineage
// attribution blocks. Absence of a revision never fails an operation.
package attrib

import (
	"context"
	"os"
	"strings"
)

// DefaultEnvVar is the environment variable consulted by the default provider.
const DefaultEnvVar = "LEDGER_SOURCE_REVISION"

// Provider yields an external revision identifier when one is known.
type Provider interface {
	Revision(ctx context.Context) (string, bool)
}

// EnvProvider reads the revision from an environment variable.
type EnvProvider struct {
	Var string
}

// NewEnvProvider returns a provider over DefaultEnvVar.
func NewEnvProvider() EnvProvider {
	return EnvProvider{Var: DefaultEnvVar}
}

func (p EnvProvider) Revision(context.Context) (string, bool) {
	v := strings.TrimSpace(os.Getenv(p.Var))
	return v, v != ""
}

// StaticProvider always reports a fixed revision, for callers that resolved
// one out of band.
type StaticProvider struct {
	Rev string
}

func (p StaticProvider) Revision(context.Context) (string, bool) {
	return p.Rev, p.Rev != ""
}
