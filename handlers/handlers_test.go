// Copyright 2016-present Oliver Eilhard. All rights reserved.
// Use of this source code is governed by a MIT-license.
// See http://olivere.mit-license.org/license.txt for details.

package handlers

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/docpipe/docpipe"
)

// fakeQueue records enqueued envelopes and can be told to reject them.
type fakeQueue struct {
	mu       sync.Mutex
	enqueued []*docpipe.Envelope
	fail     error
}

func (q *fakeQueue) Enqueue(ctx context.Context, e *docpipe.Envelope) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.fail != nil {
		return q.fail
	}
	q.enqueued = append(q.enqueued, e)
	return nil
}

func (q *fakeQueue) Receive(ctx context.Context) (*docpipe.Delivery, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (q *fakeQueue) Ack(ctx context.Context, d *docpipe.Delivery) error { return nil }

func (q *fakeQueue) Retry(ctx context.Context, d *docpipe.Delivery, delay time.Duration) error {
	return nil
}

func (q *fakeQueue) DeadLetter(ctx context.Context, d *docpipe.Delivery, reason string) error {
	return nil
}

func (q *fakeQueue) Enqueued() []*docpipe.Envelope {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*docpipe.Envelope, len(q.enqueued))
	copy(out, q.enqueued)
	return out
}

// testDeps wires the handler collaborators on in-memory backends.
func testDeps(q docpipe.Queue) Deps {
	return Deps{
		Guard:   docpipe.NewGuard(docpipe.NewInMemoryCoordinator(), nil),
		Chain:   NewChainer(q, nil),
		Tracker: docpipe.NewTracker(docpipe.NewInMemoryStatusStore(), nil),
	}
}

func envelopeWith(t *testing.T, jobType, subjectID string, payload interface{}) *docpipe.Envelope {
	t.Helper()
	e := docpipe.NewEnvelope(jobType, subjectID)
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatal(err)
		}
		e.Payload = data
	}
	return e
}

// -- Downstream fakes --

type fakeUploadStore struct {
	mu    sync.Mutex
	calls int
	err   error
	res   FinalizeResult
}

func (s *fakeUploadStore) Finalize(ctx context.Context, req FinalizeRequest) (*FinalizeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	res := s.res
	return &res, nil
}

func (s *fakeUploadStore) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type fakeIndexer struct {
	mu    sync.Mutex
	calls int
	err   error
	last  IndexRequest
}

func (s *fakeIndexer) Index(ctx context.Context, req IndexRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.last = req
	return s.err
}

func (s *fakeIndexer) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type fakeExtractor struct {
	mu    sync.Mutex
	calls int
	err   error
	res   ProfileResult
}

func (s *fakeExtractor) Extract(ctx context.Context, req ProfileRequest) (*ProfileResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	res := s.res
	return &res, nil
}

type fakeAnalyzer struct {
	mu    sync.Mutex
	calls int
	err   error
	res   AnalyzeResult
}

func (s *fakeAnalyzer) Analyze(ctx context.Context, req AnalyzeRequest) (*AnalyzeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	res := s.res
	return &res, nil
}

type fakeSummarizer struct {
	mu    sync.Mutex
	calls int
	err   error
	res   SummarizeResult
}

func (s *fakeSummarizer) Summarize(ctx context.Context, req SummarizeRequest) (*SummarizeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	res := s.res
	return &res, nil
}
