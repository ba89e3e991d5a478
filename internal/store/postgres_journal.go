/**
 * @description
 * This file provides the PostgreSQL implementation of the outcome journal.
 * Each terminal outcome becomes one row in the dispatch_outcomes table,
 * keyed by run and request id, so operators can query past runs when
 * deciding what to re-submit. The journal is optional wiring: when no
 * DATABASE_URL is configured the dispatcher simply runs without one.
 *
 * @dependencies
 * - context, fmt: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver.
 */

package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresJournal is a concrete implementation of the Journal interface for
// PostgreSQL.
type PostgresJournal struct {
	db *pgxpool.Pool
}

// NewPostgresJournal creates a journal over the given pool and ensures the
// outcomes table exists.
func NewPostgresJournal(ctx context.Context, db *pgxpool.Pool) (*PostgresJournal, error) {
	_, err := db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS dispatch_outcomes (
			run_id       UUID        NOT NULL,
			request_id   UUID        NOT NULL,
			from_address TEXT        NOT NULL,
			to_address   TEXT        NOT NULL,
			value_eth    DOUBLE PRECISION NOT NULL,
			outcome      TEXT        NOT NULL,
			tx_hash      TEXT,
			attempts     INT         NOT NULL DEFAULT 0,
			reason       TEXT,
			recorded_at  TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (run_id, request_id)
		)`)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure dispatch_outcomes table: %w", err)
	}
	return &PostgresJournal{db: db}, nil
}

// RecordOutcome inserts one terminal outcome row.
func (j *PostgresJournal) RecordOutcome(ctx context.Context, entry JournalEntry) error {
	_, err := j.db.Exec(ctx, `
		INSERT INTO dispatch_outcomes
			(run_id, request_id, from_address, to_address, value_eth, outcome, tx_hash, attempts, reason, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, NULLIF($9, ''), $10)`,
		entry.RunID, entry.RequestID, entry.FromAddress, entry.ToAddress, entry.Value,
		entry.Outcome, entry.TxHash, entry.Attempts, entry.Reason, entry.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert outcome row: %w", err)
	}
	return nil
}
