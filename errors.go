// Copyright 2016-present Oliver Eilhard. All rights reserved.
// Use of this source code is governed by a MIT-license.
// See http://olivere.mit-license.org/license.txt for details.

package docpipe

import "errors"

var (
	// ErrNotFound is returned when a job or status record does not exist.
	ErrNotFound = errors.New("docpipe: not found")

	// ErrQueueClosed is returned by queue operations after Close.
	ErrQueueClosed = errors.New("docpipe: queue closed")
)

// Code is a stable, machine-readable error category. Codes are part of the
// external contract: they are surfaced to callers together with the
// correlation id and must not change once published.
type Code string

const (
	CodeInvalidInput  Code = "invalid_input"
	CodeNotFound      Code = "not_found"
	CodeAccessDenied  Code = "access_denied"
	CodeConflict      Code = "conflict"
	CodeUpstreamError Code = "upstream_error"
	CodeUnavailable   Code = "unavailable"
)
