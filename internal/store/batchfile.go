/**
 * @description
 * This file handles the batch files on disk: loading the wallet file of
 * transfer requests and writing the failure batch back out. Malformed
 * entries in the input are skipped with a diagnostic rather than failing the
 * batch. The failure batch is written to a temporary file in the target
 * directory and renamed into place, so a crash mid-write never corrupts an
 * existing failure log; its schema is a superset of the input schema and can
 * be re-fed as a future run's wallet file.
 *
 * @dependencies
 * - encoding/json, fmt, os, path/filepath: Standard Go libraries.
 * - internal/domain: The request and failure record models.
 */

package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/layerist/multi-send-eth/internal/domain"
)

// ErrNoValidRequests is returned when the wallet file yields zero usable entries.
var ErrNoValidRequests = errors.New("no valid transfer requests in batch file")

// LoadRequests reads the wallet file and returns the validated requests.
// Entries that fail validation are skipped with a warning; only an unreadable
// or unparsable file, or a batch with zero valid entries, is an error.
func LoadRequests(path string) ([]domain.TransferRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read batch file %s: %w", path, err)
	}

	var raw []domain.TransferRequest
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse batch file %s: %w", path, err)
	}

	requests := make([]domain.TransferRequest, 0, len(raw))
	for i, req := range raw {
		if err := req.Validate(); err != nil {
			log.Printf("level=warn component=batch_store msg=\"invalid entry skipped\" index=%d from=%q to=%q err=%v", i, req.FromAddress, req.ToAddress, err)
			continue
		}
		requests = append(requests, req)
	}

	log.Printf("level=info component=batch_store msg=\"batch loaded\" path=%s total=%d valid=%d", path, len(raw), len(requests))
	if len(requests) == 0 {
		return nil, ErrNoValidRequests
	}
	return requests, nil
}

// FailureFile writes the failure batch atomically to a fixed path.
type FailureFile struct {
	Path string
}

// NewFailureFile creates a sink writing to the given path.
func NewFailureFile(path string) *FailureFile {
	return &FailureFile{Path: path}
}

// SaveFailures replaces the failure batch on disk. An empty slice still
// writes an empty array, so downstream tooling sees exactly one batch per run.
func (f *FailureFile) SaveFailures(records []domain.FailureRecord) error {
	if records == nil {
		records = []domain.FailureRecord{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal failure batch: %w", err)
	}

	dir := filepath.Dir(f.Path)
	tmp, err := os.CreateTemp(dir, ".failed_tx_*.json")
	if err != nil {
		return fmt.Errorf("failed to create temporary failure file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temporary failure file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temporary failure file: %w", err)
	}

	if err := os.Rename(tmpName, f.Path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace failure file: %w", err)
	}
	return nil
}
