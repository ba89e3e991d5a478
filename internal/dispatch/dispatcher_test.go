package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/layerist/multi-send-eth/internal/domain"
	"github.com/layerist/multi-send-eth/internal/store"
)

// memorySink records failure batches handed to SaveFailures.
type memorySink struct {
	mu      sync.Mutex
	calls   int
	records []domain.FailureRecord
}

func (s *memorySink) SaveFailures(records []domain.FailureRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.records = append([]domain.FailureRecord(nil), records...)
	return nil
}

func (s *memorySink) saved() (int, []domain.FailureRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls, s.records
}

// memoryJournal counts recorded outcomes per class.
type memoryJournal struct {
	mu      sync.Mutex
	entries []store.JournalEntry
}

func (j *memoryJournal) RecordOutcome(ctx context.Context, entry store.JournalEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, entry)
	return nil
}

func newTestDispatcher(ledger *stubLedger, sink store.FailureSink, journal store.Journal, workers int) *Dispatcher {
	sender := newTestSender(ledger, nil, 2)
	poller := NewPoller(ledger, PollerConfig{MaxPolls: 2, PollBaseDelay: time.Millisecond})
	return NewDispatcher(sender, poller, sink, journal, nil, &Progress{}, workers)
}

func newTestBatch(t *testing.T, n int) []domain.TransferRequest {
	t.Helper()
	batch := make([]domain.TransferRequest, n)
	for i := range batch {
		batch[i] = newTestRequest(t)
	}
	return batch
}

func TestRun_BoundsConcurrencyAndAccountsForEveryRequest(t *testing.T) {
	const (
		total   = 100
		workers = 5
	)
	ledger := newStubLedger()

	var inFlight, peak atomic.Int64
	ledger.submitFn = func(tx *types.Transaction) (common.Hash, error) {
		cur := inFlight.Add(1)
		for {
			max := peak.Load()
			if cur <= max || peak.CompareAndSwap(max, cur) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		inFlight.Add(-1)
		return tx.Hash(), nil
	}

	sink := &memorySink{}
	dispatcher := newTestDispatcher(ledger, sink, nil, workers)

	summary, err := dispatcher.Run(context.Background(), newTestBatch(t, total))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if summary.Succeeded != total || summary.Failed != 0 {
		t.Fatalf("expected %d/0, got %d/%d", total, summary.Succeeded, summary.Failed)
	}
	if p := peak.Load(); p > workers {
		t.Fatalf("observed %d concurrent submissions; the pool must bound it at %d", p, workers)
	}
	calls, records := sink.saved()
	if calls != 1 {
		t.Fatalf("failure batch must be written exactly once, observed %d writes", calls)
	}
	if len(records) != 0 {
		t.Fatalf("clean run must persist an empty failure batch, got %d records", len(records))
	}
}

func TestRun_RecordsFatalRejectionWithoutRetry(t *testing.T) {
	ledger := newStubLedger()
	ledger.submitFn = func(tx *types.Transaction) (common.Hash, error) {
		return common.Hash{}, errors.New("insufficient funds for gas * price + value")
	}
	sink := &memorySink{}
	dispatcher := newTestDispatcher(ledger, sink, nil, 2)

	summary, err := dispatcher.Run(context.Background(), newTestBatch(t, 1))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if summary.Succeeded != 0 || summary.Failed != 1 {
		t.Fatalf("expected 0/1, got %d/%d", summary.Succeeded, summary.Failed)
	}
	if calls := ledger.submitCalls.Load(); calls != 1 {
		t.Fatalf("fatal rejection must not retry; observed %d submissions", calls)
	}
	_, records := sink.saved()
	if len(records) != 1 || records[0].FailureClass != domain.FailureClassRejected {
		t.Fatalf("expected one %q record, got %+v", domain.FailureClassRejected, records)
	}
}

func TestRun_ConfirmationTimeoutIsADistinctFailureClass(t *testing.T) {
	ledger := newStubLedger()
	ledger.pollFn = func(txHash common.Hash) (*types.Receipt, error) {
		return nil, ethereum.NotFound
	}
	sink := &memorySink{}
	dispatcher := newTestDispatcher(ledger, sink, nil, 2)

	summary, err := dispatcher.Run(context.Background(), newTestBatch(t, 1))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if summary.Failed != 1 {
		t.Fatalf("expected one failure, got %d", summary.Failed)
	}
	_, records := sink.saved()
	if len(records) != 1 {
		t.Fatalf("expected one failure record, got %d", len(records))
	}
	record := records[0]
	if record.FailureClass != domain.FailureClassConfirmationTimeout {
		t.Fatalf("expected class %q, got %q", domain.FailureClassConfirmationTimeout, record.FailureClass)
	}
	if record.TxHash == "" {
		t.Fatal("a timed-out record must carry the submitted transaction hash")
	}
}

func TestRun_CancellationStillPersistsTheFailureBatch(t *testing.T) {
	const total = 20
	ctx, cancel := context.WithCancel(context.Background())

	ledger := newStubLedger()
	ledger.submitFn = func(tx *types.Transaction) (common.Hash, error) {
		cancel()
		return common.Hash{}, errors.New("connection reset by peer")
	}
	sink := &memorySink{}
	dispatcher := newTestDispatcher(ledger, sink, nil, 2)

	summary, err := dispatcher.Run(ctx, newTestBatch(t, total))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if summary.Succeeded+summary.Failed != total {
		t.Fatalf("every request must be accounted for: %d+%d != %d", summary.Succeeded, summary.Failed, total)
	}
	calls, records := sink.saved()
	if calls != 1 {
		t.Fatalf("cancelled run must still write the failure batch exactly once, observed %d writes", calls)
	}
	if len(records) != summary.Failed {
		t.Fatalf("summary and batch disagree: %d vs %d", summary.Failed, len(records))
	}
	for _, record := range records {
		if record.FailureClass != domain.FailureClassInterrupted {
			t.Fatalf("expected class %q for cancelled work, got %q", domain.FailureClassInterrupted, record.FailureClass)
		}
	}
}

func TestRun_JournalsEveryTerminalOutcome(t *testing.T) {
	const total = 6
	ledger := newStubLedger()
	ledger.submitFn = func(tx *types.Transaction) (common.Hash, error) {
		// Reject every third submission outright.
		if ledger.submitCalls.Load()%3 == 0 {
			return common.Hash{}, errors.New("insufficient funds")
		}
		return tx.Hash(), nil
	}
	sink := &memorySink{}
	journal := &memoryJournal{}
	dispatcher := newTestDispatcher(ledger, sink, journal, 1)

	summary, err := dispatcher.Run(context.Background(), newTestBatch(t, total))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	journal.mu.Lock()
	entries := len(journal.entries)
	confirmed := 0
	for _, entry := range journal.entries {
		if entry.Outcome == "confirmed" {
			confirmed++
		}
		if entry.RunID == uuid.Nil {
			t.Error("journal entry missing run id")
		}
	}
	journal.mu.Unlock()

	if entries != total {
		t.Fatalf("expected %d journal entries, got %d", total, entries)
	}
	if confirmed != summary.Succeeded {
		t.Fatalf("journal counts %d confirmations, summary says %d", confirmed, summary.Succeeded)
	}
}
