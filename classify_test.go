// Copyright 2016-present Oliver Eilhard. All rights reserved.
// Use of this source code is governed by a MIT-license.
// See http://olivere.mit-license.org/license.txt for details.

package docpipe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
	"time"
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "dial tcp: i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

var _ net.Error = timeoutError{}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"tagged transient", Transient(errors.New("backend hiccup")), StatusFailed},
		{"tagged permanent", Permanent(errors.New("schema rejected")), StatusPoisoned},
		{"wrapped tag survives", fmt.Errorf("call failed: %w", Transient(errors.New("x"))), StatusFailed},
		{"net timeout", timeoutError{}, StatusFailed},
		{"connection refused", &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}, StatusFailed},
		{"context deadline", context.DeadlineExceeded, StatusFailed},
		{"not found message", errors.New("drive item not found"), StatusPoisoned},
		{"unsupported message", errors.New("unsupported content type"), StatusPoisoned},
		{"access denied message", errors.New("access denied for principal"), StatusPoisoned},
		{"missing configuration", errors.New("missing configuration: endpoint"), StatusPoisoned},
		{"service unavailable message", errors.New("503 service unavailable"), StatusFailed},
		{"unknown error", errors.New("weird things happened"), StatusPoisoned},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if have := Classify(tt.err); have != tt.want {
				t.Fatalf("Classify(%v) = %v, want %v", tt.err, have, tt.want)
			}
		})
	}
}

func TestClassifyPermanentHintBeatsTransientHint(t *testing.T) {
	// "not found" must win even when the wording also smells transient.
	err := errors.New("timeout while checking: item not found")
	if have, want := Classify(err), StatusPoisoned; have != want {
		t.Fatalf("Classify = %v, want %v", have, want)
	}
}

func TestFromError(t *testing.T) {
	if have, want := FromError(nil).Status, StatusCompleted; have != want {
		t.Fatalf("Status = %v, want %v", have, want)
	}

	out := FromError(Transient(errors.New("queue busy")))
	if have, want := out.Status, StatusFailed; have != want {
		t.Fatalf("Status = %v, want %v", have, want)
	}
	if have, want := out.Code, CodeUnavailable; have != want {
		t.Fatalf("Code = %v, want %v", have, want)
	}

	out = FromError(errors.New("document not found"))
	if have, want := out.Status, StatusPoisoned; have != want {
		t.Fatalf("Status = %v, want %v", have, want)
	}
	if have, want := out.Code, CodeNotFound; have != want {
		t.Fatalf("Code = %v, want %v", have, want)
	}

	out = FromError(errors.New("access denied"))
	if have, want := out.Code, CodeAccessDenied; have != want {
		t.Fatalf("Code = %v, want %v", have, want)
	}
}

func TestTransientNil(t *testing.T) {
	if Transient(nil) != nil {
		t.Fatal("Transient(nil) should be nil")
	}
	if Permanent(nil) != nil {
		t.Fatal("Permanent(nil) should be nil")
	}
}

func TestExponentialBackoffGrows(t *testing.T) {
	d1 := exponentialBackoff(1)
	d5 := exponentialBackoff(5)
	if d1 <= 0 {
		t.Fatalf("backoff(1) = %v, want > 0", d1)
	}
	if d5 <= d1 {
		t.Fatalf("backoff(5) = %v, want > backoff(1) = %v", d5, d1)
	}
	if max := 6 * time.Minute; exponentialBackoff(50) > max {
		t.Fatalf("backoff(50) exceeds cap %v", max)
	}
}
