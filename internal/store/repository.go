/**
 * @description
 * This file defines the persistence contracts consumed by the dispatcher:
 * the sink that durably records the run's failure batch, and the optional
 * journal that records every terminal outcome. Interfaces keep the
 * orchestrator decoupled from the file and PostgreSQL implementations and
 * easy to exercise with stubs in tests.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid: Run and request identifiers.
 * - internal/domain: The failure record model.
 */

package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/layerist/multi-send-eth/internal/domain"
)

// FailureSink persists the subset of requests that ended in terminal
// failure. Implementations must replace the previous batch atomically and
// accept an empty slice (the no-op write still marks a completed run).
type FailureSink interface {
	SaveFailures(records []domain.FailureRecord) error
}

// JournalEntry is one terminal outcome row.
type JournalEntry struct {
	RunID       uuid.UUID
	RequestID   uuid.UUID
	FromAddress string
	ToAddress   string
	Value       float64
	Outcome     string
	TxHash      string
	Attempts    int
	Reason      string
	RecordedAt  time.Time
}

// Journal records terminal outcomes for later operator inspection. The
// dispatcher treats it as best-effort: a failed write is logged, never
// propagated.
type Journal interface {
	RecordOutcome(ctx context.Context, entry JournalEntry) error
}
