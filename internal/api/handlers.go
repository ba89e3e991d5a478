/**
 * @description
 * This file defines the HTTP handlers for the in-run status surface: a
 * health probe and a JSON snapshot of the dispatcher's live progress
 * counters. The surface is operational tooling for watching a long batch
 * run; it exposes no mutating operations.
 *
 * @dependencies
 * - encoding/json, net/http: Standard Go libraries.
 * - internal/dispatch: The progress counters.
 */

package api

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/layerist/multi-send-eth/internal/dispatch"
)

// StatusHandlers serves the run's progress counters.
type StatusHandlers struct {
	progress *dispatch.Progress
}

// NewStatusHandlers creates handlers over the given progress counters.
func NewStatusHandlers(progress *dispatch.Progress) *StatusHandlers {
	return &StatusHandlers{progress: progress}
}

// StatusHandler writes the current progress snapshot as JSON.
func (h *StatusHandlers) StatusHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.progress.Snapshot()); err != nil {
		log.Printf("level=warn component=status_api msg=\"snapshot encode failed\" err=%v", err)
	}
}
