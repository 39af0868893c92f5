package archive

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/EduBrainBoost/SSID-sub010/pkg/canonhash"
)

const createArchiveTable = `
CREATE TABLE IF NOT EXISTS ledger_archive (
    kind        TEXT        NOT NULL,
    doc_id      TEXT        NOT NULL,
    doc_hash    TEXT        NOT NULL,
    document    JSONB       NOT NULL,
    mirrored_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (kind, doc_id, doc_hash)
)`

// PostgresSink mirrors documents into an append-only Postgres table. Rows are
// keyed by content hash, so re-mirroring an unchanged document is a no-op and
// nothing is ever updated in place.
type PostgresSink struct {
	pool *pgxpool.Pool
}

// NewPostgresSink wraps an existing connection pool.
func NewPostgresSink(pool *pgxpool.Pool) *PostgresSink {
	return &PostgresSink{pool: pool}
}

// Init creates the archive table if it does not exist.
func (s *PostgresSink) Init(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, createArchiveTable); err != nil {
		return fmt.Errorf("archive schema: %w", err)
	}
	return nil
}

// Mirror inserts the document, silently skipping hashes already archived.
func (s *PostgresSink) Mirror(ctx context.Context, kind, id string, doc []byte) error {
	const q = `INSERT INTO ledger_archive (kind, doc_id, doc_hash, document)
	           VALUES ($1, $2, $3, $4)
	           ON CONFLICT (kind, doc_id, doc_hash) DO NOTHING`
	if _, err := s.pool.Exec(ctx, q, kind, id, canonhash.SHA256Hex(doc), doc); err != nil {
		return fmt.Errorf("archive insert: %w", err)
	}
	return nil
}
