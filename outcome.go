// Copyright 2016-present Oliver Eilhard. All rights reserved.
// Use of this source code is governed by a MIT-license.
// See http://olivere.mit-license.org/license.txt for details.

package docpipe

import "fmt"

// Status is the transport-level result of processing a delivery.
const (
	// StatusCompleted means the work is done, was already done (idempotent
	// skip), or another instance currently holds the lock. The transport
	// acks the message and never redelivers it.
	StatusCompleted = "completed"
	// StatusFailed marks a transient condition. The transport redelivers
	// until MaxAttempts is exhausted, then dead-letters.
	StatusFailed = "failed"
	// StatusPoisoned marks a permanent condition. The transport dead-letters
	// the message without further retries.
	StatusPoisoned = "poisoned"
)

// Outcome is what a handler returns to the dispatcher. It governs the
// ack/retry/dead-letter decision and carries the caller-facing error code.
type Outcome struct {
	Status  string `json:"status"`
	Code    Code   `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// Completed returns the success outcome.
func Completed() Outcome {
	return Outcome{Status: StatusCompleted}
}

// Failed returns a retryable outcome for a transient condition.
func Failed(code Code, err error) Outcome {
	o := Outcome{Status: StatusFailed, Code: code}
	if err != nil {
		o.Message = err.Error()
	}
	return o
}

// Poisoned returns a terminal outcome for a permanent condition.
func Poisoned(code Code, err error) Outcome {
	o := Outcome{Status: StatusPoisoned, Code: code}
	if err != nil {
		o.Message = err.Error()
	}
	return o
}

// Poisonedf is like Poisoned with a formatted message.
func Poisonedf(code Code, format string, args ...interface{}) Outcome {
	return Outcome{Status: StatusPoisoned, Code: code, Message: fmt.Sprintf(format, args...)}
}

// FromError classifies err into Failed or Poisoned (see Classify) and picks
// a matching error code. A nil err yields Completed.
func FromError(err error) Outcome {
	if err == nil {
		return Completed()
	}
	if Classify(err) == StatusFailed {
		return Failed(CodeUnavailable, err)
	}
	return Poisoned(codeForPermanent(err), err)
}

// Terminal reports whether the outcome ends the retry cycle.
func (o Outcome) Terminal() bool {
	return o.Status == StatusCompleted || o.Status == StatusPoisoned
}
