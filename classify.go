// Copyright 2016-present Oliver Eilhard. All rights reserved.
// Use of this source code is governed by a MIT-license.
// See http://olivere.mit-license.org/license.txt for details.

package docpipe

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"
)

// Downstream capabilities under our control return tagged errors so the
// handler does not have to guess. Transient wraps conditions that may heal
// on retry; Permanent wraps conditions that never will.

type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Transient tags err as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// Permanent tags err as not retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Substring heuristics for errors from uncontrolled third parties. This is
// fragile to upstream wording changes; tagged errors always win over it.
var (
	transientHints = []string{
		"timeout",
		"timed out",
		"connection refused",
		"connection reset",
		"temporarily unavailable",
		"service unavailable",
		"too many requests",
		"eof",
	}
	permanentHints = []string{
		"not found",
		"unsupported",
		"access denied",
		"access is denied",
		"forbidden",
		"unauthorized",
		"missing configuration",
		"not configured",
		"invalid",
	}
)

// Classify maps an arbitrary downstream error to StatusFailed (retry) or
// StatusPoisoned (dead-letter).
//
// Order matters: explicit tags first, then connectivity-shaped errors, then
// string heuristics. Anything unrecognized is poisoned; an unexpected error
// is more likely a bug than a blip, and retrying bugs only amplifies load.
func Classify(err error) string {
	var te *transientError
	if errors.As(err, &te) {
		return StatusFailed
	}
	var pe *permanentError
	if errors.As(err, &pe) {
		return StatusPoisoned
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		// Lease expiry or shutdown; let the message redeliver.
		return StatusFailed
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return StatusFailed
	}
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return StatusFailed
	}

	msg := strings.ToLower(err.Error())
	for _, hint := range permanentHints {
		if strings.Contains(msg, hint) {
			return StatusPoisoned
		}
	}
	for _, hint := range transientHints {
		if strings.Contains(msg, hint) {
			return StatusFailed
		}
	}
	return StatusPoisoned
}

// codeForPermanent picks the caller-facing code for a permanent error.
func codeForPermanent(err error) Code {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "not found"):
		return CodeNotFound
	case strings.Contains(msg, "access denied"),
		strings.Contains(msg, "access is denied"),
		strings.Contains(msg, "forbidden"),
		strings.Contains(msg, "unauthorized"):
		return CodeAccessDenied
	case strings.Contains(msg, "conflict"):
		return CodeConflict
	case strings.Contains(msg, "invalid"),
		strings.Contains(msg, "unsupported"):
		return CodeInvalidInput
	default:
		return CodeUpstreamError
	}
}
