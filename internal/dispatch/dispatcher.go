/**
 * @description
 * This file contains the dispatch orchestrator: a fixed-size pool of workers
 * consuming the request batch, each running one request's full pipeline
 * (nonce allocation, fee estimation, submission, confirmation) to completion
 * before taking the next. The orchestrator aggregates terminal outcomes into
 * a run summary, journals them when a journal is configured, publishes
 * lifecycle events, and persists the failure batch exactly once per run,
 * even when it is empty or the run was cancelled mid-flight.
 *
 * On cancellation the feeder stops handing out work, in-flight pipelines
 * observe the signal at their next suspension point, and everything that did
 * not reach a terminal state is recorded as interrupted before the failure
 * batch is written.
 *
 * @dependencies
 * - context, errors, log, sync, time: Standard Go libraries.
 * - github.com/google/uuid: Run and request identifiers for the journal.
 * - internal/domain, internal/store: Outcome models and persistence.
 * - pkg/rabbitmq: Lifecycle event publication.
 */

package dispatch

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/layerist/multi-send-eth/internal/domain"
	"github.com/layerist/multi-send-eth/internal/store"
	"github.com/layerist/multi-send-eth/pkg/rabbitmq"
)

const persistTimeout = 10 * time.Second

// Dispatcher runs the bounded worker pool over a request batch.
type Dispatcher struct {
	sender   *Sender
	poller   *Poller
	failures store.FailureSink
	journal  store.Journal
	events   rabbitmq.Publisher
	progress *Progress
	workers  int
	runID    uuid.UUID
}

// NewDispatcher assembles an orchestrator. journal and events may be nil;
// failures must not be, since every run persists its failure batch.
func NewDispatcher(sender *Sender, poller *Poller, failures store.FailureSink, journal store.Journal, events rabbitmq.Publisher, progress *Progress, workers int) *Dispatcher {
	if workers <= 0 {
		workers = 5
	}
	if progress == nil {
		progress = &Progress{}
	}
	return &Dispatcher{
		sender:   sender,
		poller:   poller,
		failures: failures,
		journal:  journal,
		events:   events,
		progress: progress,
		workers:  workers,
		runID:    uuid.New(),
	}
}

// Progress exposes the run's live counters for the status endpoint.
func (d *Dispatcher) Progress() *Progress {
	return d.progress
}

// outcome is one pipeline's terminal result.
type outcome struct {
	req       domain.TransferRequest
	confirmed bool
	txHash    string
	attempts  int
	record    domain.FailureRecord
}

// Run dispatches the batch and returns the terminal tally. The failure batch
// is written exactly once before returning, regardless of how the run ended.
func (d *Dispatcher) Run(ctx context.Context, requests []domain.TransferRequest) (domain.Summary, error) {
	d.progress.setTotal(len(requests))
	log.Printf("level=info component=dispatcher msg=\"run started\" run_id=%s requests=%d workers=%d", d.runID, len(requests), d.workers)

	jobs := make(chan domain.TransferRequest)
	results := make(chan outcome, len(requests))

	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for req := range jobs {
				results <- d.process(ctx, req)
			}
		}()
	}

	// fed counts requests actually handed to a worker; the remainder is
	// recorded as interrupted when the run is cancelled before they start.
	var fed atomic.Int64
	go func() {
		defer close(jobs)
		for _, req := range requests {
			select {
			case jobs <- req:
				fed.Add(1)
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	var summary domain.Summary
	failureRecords := make([]domain.FailureRecord, 0)
	for out := range results {
		d.journalOutcome(out)
		if out.confirmed {
			summary.Succeeded++
			continue
		}
		failureRecords = append(failureRecords, out.record)
	}

	for _, req := range requests[fed.Load():] {
		out := interruptedOutcome(req, "", 0)
		d.journalOutcome(out)
		failureRecords = append(failureRecords, out.record)
	}
	summary.Failed = len(failureRecords)

	// The failure batch is written even when empty, so external tooling can
	// treat its presence as the marker of a completed run.
	if err := d.failures.SaveFailures(failureRecords); err != nil {
		log.Printf("level=error component=dispatcher msg=\"failure batch write failed\" run_id=%s err=%v", d.runID, err)
	} else if len(failureRecords) > 0 {
		log.Printf("level=info component=dispatcher msg=\"failure batch written\" run_id=%s failed=%d", d.runID, len(failureRecords))
	}

	log.Printf("level=info component=dispatcher msg=\"run finished\" run_id=%s succeeded=%d failed=%d", d.runID, summary.Succeeded, summary.Failed)
	return summary, nil
}

// process runs one request's pipeline end to end.
func (d *Dispatcher) process(ctx context.Context, req domain.TransferRequest) outcome {
	d.progress.startPipeline()
	defer d.progress.endPipeline()

	if ctx.Err() != nil {
		return interruptedOutcome(req, "", 0)
	}

	start := time.Now()
	txHash, attempts, err := d.sender.Send(ctx, req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return interruptedOutcome(req, "", attempts)
		}
		class := domain.FailureClassRetriesExhausted
		if errors.Is(err, ErrRejected) {
			class = domain.FailureClassRejected
		}
		d.progress.recordRejected()
		d.publishLifecycle(rabbitmq.RouteFailed, req, "", attempts)
		return outcome{
			req:      req,
			attempts: attempts,
			record: domain.FailureRecord{
				TransferRequest: req,
				FailureClass:    class,
				Reason:          err.Error(),
				Attempts:        attempts,
			},
		}
	}

	receipt, err := d.poller.Await(ctx, txHash)
	if err != nil {
		if errors.Is(err, ErrConfirmationTimeout) {
			d.progress.recordTimedOut()
			d.publishLifecycle(rabbitmq.RouteTimedOut, req, txHash.Hex(), attempts)
			return outcome{
				req:      req,
				txHash:   txHash.Hex(),
				attempts: attempts,
				record: domain.FailureRecord{
					TransferRequest: req,
					FailureClass:    domain.FailureClassConfirmationTimeout,
					Reason:          err.Error(),
					TxHash:          txHash.Hex(),
					Attempts:        attempts,
				},
			}
		}
		return interruptedOutcome(req, txHash.Hex(), attempts)
	}

	d.progress.recordConfirmed()
	d.publishLifecycle(rabbitmq.RouteConfirmed, req, txHash.Hex(), attempts)
	log.Printf("level=info component=dispatcher msg=\"pipeline completed\" tx=%s block=%d elapsed=%.2fs from=%.10s",
		txHash.Hex(), receipt.BlockNumber.Uint64(), time.Since(start).Seconds(), req.FromAddress)
	return outcome{req: req, confirmed: true, txHash: txHash.Hex(), attempts: attempts}
}

// interruptedOutcome records a request that never reached a terminal state
// because the run was cancelled.
func interruptedOutcome(req domain.TransferRequest, txHash string, attempts int) outcome {
	return outcome{
		req:      req,
		txHash:   txHash,
		attempts: attempts,
		record: domain.FailureRecord{
			TransferRequest: req,
			FailureClass:    domain.FailureClassInterrupted,
			Reason:          "run cancelled before a terminal outcome",
			TxHash:          txHash,
			Attempts:        attempts,
		},
	}
}

// journalOutcome records a terminal outcome in the optional journal. The run
// context may already be cancelled, so the write gets its own deadline.
func (d *Dispatcher) journalOutcome(out outcome) {
	if d.journal == nil {
		return
	}
	entry := store.JournalEntry{
		RunID:       d.runID,
		RequestID:   uuid.New(),
		FromAddress: out.req.FromAddress,
		ToAddress:   out.req.ToAddress,
		Value:       out.req.Value,
		Outcome:     "confirmed",
		TxHash:      out.txHash,
		Attempts:    out.attempts,
		RecordedAt:  time.Now().UTC(),
	}
	if !out.confirmed {
		entry.Outcome = out.record.FailureClass
		entry.Reason = out.record.Reason
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := d.journal.RecordOutcome(ctx, entry); err != nil {
		log.Printf("level=warn component=dispatcher msg=\"journal write failed\" run_id=%s outcome=%s err=%v", d.runID, entry.Outcome, err)
	}
}

// publishLifecycle emits a terminal lifecycle event; publish failures never
// affect the run.
func (d *Dispatcher) publishLifecycle(route string, req domain.TransferRequest, txHash string, attempts int) {
	if d.events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	event := rabbitmq.TransferEvent{
		TxHash:      txHash,
		FromAddress: req.FromAddress,
		ToAddress:   req.ToAddress,
		Value:       req.Value,
		Attempts:    attempts,
		Timestamp:   time.Now().UTC(),
	}
	if err := d.events.PublishTransferEvent(ctx, route, event); err != nil {
		log.Printf("level=warn component=dispatcher msg=\"lifecycle event publish failed\" route=%s err=%v", route, err)
	}
}
