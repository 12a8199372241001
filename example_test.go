// Copyright 2016-present Oliver Eilhard. All rights reserved.
// Use of this source code is governed by a MIT-license.
// See http://olivere.mit-license.org/license.txt for details.

package docpipe_test

import (
	"context"
	"fmt"
	"time"

	"github.com/docpipe/docpipe"
)

type exampleHandler struct {
	guard docpipe.Guard
	done  chan struct{}
}

func (h exampleHandler) JobType() string { return docpipe.JobTypeRagIndexing }

func (h exampleHandler) Process(ctx context.Context, e *docpipe.Envelope) docpipe.Outcome {
	return h.guard.Run(ctx, e.Key(), func(ctx context.Context) docpipe.Outcome {
		fmt.Printf("Index %s\n", e.SubjectID)
		h.done <- struct{}{}
		return docpipe.Completed()
	})
}

func ExampleManager() {
	// Create a new manager with 2 concurrent workers
	m := docpipe.New(docpipe.SetConcurrency(2))

	// Register the handler for RagIndexing jobs; the guard makes a
	// redelivered duplicate a no-op
	jobDone := make(chan struct{}, 1)
	h := exampleHandler{
		guard: docpipe.NewGuard(docpipe.NewInMemoryCoordinator(), nil),
		done:  jobDone,
	}
	if err := m.Register(h); err != nil {
		fmt.Println("Register failed")
		return
	}

	// Start the manager
	if err := m.Start(); err != nil {
		fmt.Println("Start failed")
		return
	}
	fmt.Println("Started")

	// Submit an indexing job
	e := docpipe.NewEnvelope(docpipe.JobTypeRagIndexing, "doc-1")
	e.IdempotencyKey = docpipe.DeriveKey("rag-index", "drive1", "doc-1")
	if err := m.Enqueue(context.Background(), e); err != nil {
		fmt.Println("Enqueue failed")
		return
	}
	fmt.Println("Job queued")

	// Wait for the job to complete
	select {
	case <-jobDone:
	case <-time.After(5 * time.Second):
		fmt.Println("Job timed out")
		return
	}

	// Stop the manager
	if err := m.Close(); err != nil {
		fmt.Println("Close failed")
		return
	}
	fmt.Println("Stopped")

	// Output:
	// Started
	// Job queued
	// Index doc-1
	// Stopped
}
