// Package archive mirrors ledger documents to external sinks for audit
// retention. Mirroring is best-effort by contract: callers log failures but
// never let them change the outcome of the operation that produced the
// document.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// Sink receives copies of ledger documents keyed by kind and id.
type Sink interface {
	Mirror(ctx context.Context, kind, id string, doc []byte) error
}

// NoopSink discards everything.
type NoopSink struct{}

func (NoopSink) Mirror(context.Context, string, string, []byte) error { return nil }

// JSONLSink appends one record per mirrored document to a local JSONL file.
type JSONLSink struct {
	mu   sync.Mutex
	path string
}

// NewJSONLSink returns a sink appending to path.
func NewJSONLSink(path string) *JSONLSink {
	return &JSONLSink{path: path}
}

// Mirror appends a single-line record. The document payload is embedded as-is,
// so doc must already be a complete JSON value.
func (s *JSONLSink) Mirror(_ context.Context, kind, id string, doc []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("archive open: %w", err)
	}
	defer f.Close()

	var compact bytes.Buffer
	if err := json.Compact(&compact, doc); err != nil {
		return fmt.Errorf("archive document: %w", err)
	}
	line := fmt.Sprintf("{\"mirrored_at\":%q,\"kind\":%q,\"id\":%q,\"document\":%s}\n",
		time.Now().UTC().Format(time.RFC3339Nano), kind, id, compact.Bytes())
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("archive append: %w", err)
	}
	return nil
}
