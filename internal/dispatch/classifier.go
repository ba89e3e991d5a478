/**
 * @description
 * This file classifies submission errors returned by the remote ledger into
 * a closed set of outcome tags. Classification happens here, as close to the
 * remote call as possible; the orchestrator only ever sees the resulting
 * class, never the raw error text.
 *
 * The classifier is a plain function value so tests and alternative
 * endpoints can swap it without touching the network layer.
 *
 * @dependencies
 * - strings: Standard Go library.
 */

package dispatch

import "strings"

// Class is the outcome tag for one submission error.
type Class int

const (
	// ClassFatal terminates the request with no retry: insufficient balance
	// or an explicit policy rejection.
	ClassFatal Class = iota
	// ClassSequencing is a nonce conflict: resynchronize the allocator and
	// retry with a freshly queried nonce.
	ClassSequencing
	// ClassTransient is a network/timeout/unclassified remote error: retry
	// unchanged.
	ClassTransient
)

// Classifier maps a submission error to its outcome class.
type Classifier func(err error) Class

// Substrings matched case-insensitively against node error messages. The
// node does not return structured error codes for txpool rejections, so
// message matching is the only available signal; the lists are kept here,
// in one place, to stay extensible.
var (
	fatalMessages = []string{
		"insufficient funds",
		"invalid sender",
		"exceeds block gas limit",
		"intrinsic gas too low",
	}
	sequencingMessages = []string{
		"nonce too low",
		"nonce too high",
		"already known",
		"replacement transaction underpriced",
	}
)

// DefaultClassifier implements the standard mapping for Ethereum txpool
// errors. Anything unrecognized is treated as transient and retried.
func DefaultClassifier(err error) Class {
	if err == nil {
		return ClassTransient
	}
	msg := strings.ToLower(err.Error())
	for _, m := range fatalMessages {
		if strings.Contains(msg, m) {
			return ClassFatal
		}
	}
	for _, m := range sequencingMessages {
		if strings.Contains(msg, m) {
			return ClassSequencing
		}
	}
	return ClassTransient
}

// String returns the class name used in logs and journal rows.
func (c Class) String() string {
	switch c {
	case ClassFatal:
		return "fatal"
	case ClassSequencing:
		return "sequencing"
	default:
		return "transient"
	}
}
