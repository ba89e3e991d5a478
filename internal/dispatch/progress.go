/**
 * @description
 * Live progress counters for one dispatch run, safe for concurrent update by
 * the worker pool and concurrent snapshotting by the status endpoint.
 *
 * @dependencies
 * - sync/atomic: Standard Go library.
 */

package dispatch

import "sync/atomic"

// Progress tracks the run's counters. InFlight is also the instrumentation
// hook for verifying the worker-pool ceiling.
type Progress struct {
	total     atomic.Int64
	inFlight  atomic.Int64
	confirmed atomic.Int64
	rejected  atomic.Int64
	timedOut  atomic.Int64
}

// Snapshot is a point-in-time copy of the counters, served by the status API.
type Snapshot struct {
	Total     int64 `json:"total"`
	InFlight  int64 `json:"in_flight"`
	Confirmed int64 `json:"confirmed"`
	Rejected  int64 `json:"rejected"`
	TimedOut  int64 `json:"timed_out"`
}

func (p *Progress) setTotal(n int) { p.total.Store(int64(n)) }

func (p *Progress) startPipeline() { p.inFlight.Add(1) }
func (p *Progress) endPipeline()   { p.inFlight.Add(-1) }

func (p *Progress) recordConfirmed() { p.confirmed.Add(1) }
func (p *Progress) recordRejected()  { p.rejected.Add(1) }
func (p *Progress) recordTimedOut()  { p.timedOut.Add(1) }

// Snapshot returns the current counter values.
func (p *Progress) Snapshot() Snapshot {
	return Snapshot{
		Total:     p.total.Load(),
		InFlight:  p.inFlight.Load(),
		Confirmed: p.confirmed.Load(),
		Rejected:  p.rejected.Load(),
		TimedOut:  p.timedOut.Load(),
	}
}
