package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/meridianhealth/claimsim/internal/claims"
)

// PostgresStore persists claim lifecycle transitions for audit. Never on
// the critical path — callers ignore its errors, same as NoopStore would.
//
// Grounded on internal/ledger.Ledger's database/sql usage, simplified:
// claim lifecycle rows are insert-then-update only and never contended,
// so no row locking or optimistic versioning is needed here.
type PostgresStore struct {
	db *sql.DB
}

// Open connects to dsn and verifies the connection with a ping. It does
// not check that the tables in Schema exist.
func Open(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("store: ping postgres: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Schema is the DDL PostgresStore expects to already exist (migrations
// are out of scope for the simulator).
const Schema = `
CREATE TABLE IF NOT EXISTS claim_lifecycle (
	claim_id                 TEXT PRIMARY KEY,
	correlation_id           TEXT NOT NULL,
	payer_id                 TEXT,
	payer_name               TEXT,
	status                   TEXT NOT NULL DEFAULT 'ingested',
	paid_amount              NUMERIC(12,2),
	patient_responsibility   NUMERIC(12,2),
	denial_reason            TEXT,
	denial_code              TEXT,
	processing_time_ms       BIGINT,
	created_at               TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at               TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

func (s *PostgresStore) StoreNewClaim(ctx context.Context, envelope claims.ClaimEnvelope) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO claim_lifecycle (claim_id, correlation_id, status, created_at, updated_at)
		 VALUES ($1, $2, 'new', $3, $3)
		 ON CONFLICT (claim_id) DO NOTHING`,
		envelope.Claim.ClaimID, envelope.CorrelationID, time.Now(),
	)
	return err
}

func (s *PostgresStore) MarkIngested(ctx context.Context, claimID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE claim_lifecycle SET status = 'ingested', updated_at = $2 WHERE claim_id = $1`,
		claimID, time.Now(),
	)
	return err
}

func (s *PostgresStore) MarkRouted(ctx context.Context, claimID, payerID, payerName string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE claim_lifecycle SET status = 'routed', payer_id = $2, payer_name = $3, updated_at = $4 WHERE claim_id = $1`,
		claimID, payerID, payerName, time.Now(),
	)
	return err
}

func (s *PostgresStore) MarkAdjudicated(ctx context.Context, claimID string, result AdjudicationResult) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE claim_lifecycle
		 SET status = $2, paid_amount = $3, patient_responsibility = $4,
		     denial_reason = $5, denial_code = $6, processing_time_ms = $7, updated_at = $8
		 WHERE claim_id = $1`,
		claimID, string(result.Status), result.PaidAmount.Float64(), result.PatientResponsibility.Float64(),
		result.DenialReason, result.DenialCode, result.ProcessingTimeMS, time.Now(),
	)
	return err
}

func (s *PostgresStore) MarkBilled(ctx context.Context, claimID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE claim_lifecycle SET status = 'billed', updated_at = $2 WHERE claim_id = $1`,
		claimID, time.Now(),
	)
	return err
}
