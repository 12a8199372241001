// Copyright 2016-present Oliver Eilhard. All rights reserved.
// Use of this source code is governed by a MIT-license.
// See http://olivere.mit-license.org/license.txt for details.

package mysql

import (
	"context"
	"os"
	"testing"

	"github.com/docpipe/docpipe"
)

// The tests in this file need a running MySQL instance. Set MYSQL_DSN
// (e.g. root@tcp(127.0.0.1:3306)/docpipe_test?loc=UTC&parseTime=true)
// to enable them.
func setupArchive(t *testing.T) *Archive {
	t.Helper()
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		t.Skip("MYSQL_DSN not set")
	}
	a, err := NewArchive(dsn)
	if err != nil {
		t.Fatalf("NewArchive returned %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func TestArchiveRecordAndQuery(t *testing.T) {
	a := setupArchive(t)
	ctx := context.Background()

	entry := docpipe.NewEnvelope(docpipe.JobTypeUploadFinalization, "doc-1")
	if err := a.Record(ctx, entry, docpipe.Completed()); err != nil {
		t.Fatal(err)
	}

	poisoned := entry.NextStage(docpipe.JobTypeRagIndexing, "rag-index-d1-i1", nil)
	out := docpipe.Poisonedf(docpipe.CodeNotFound, "drive item not found")
	if err := a.Record(ctx, poisoned, out); err != nil {
		t.Fatal(err)
	}

	jobs, err := a.ByCorrelationID(ctx, entry.CorrelationID)
	if err != nil {
		t.Fatal(err)
	}
	if have, want := len(jobs), 2; have != want {
		t.Fatalf("len(jobs) = %d, want %d", have, want)
	}
	if have, want := jobs[0].JobID, entry.JobID; have != want {
		t.Fatalf("jobs[0].JobID = %q, want %q", have, want)
	}
	if have, want := jobs[0].Outcome, docpipe.StatusCompleted; have != want {
		t.Fatalf("jobs[0].Outcome = %q, want %q", have, want)
	}
	if have, want := jobs[1].Outcome, docpipe.StatusPoisoned; have != want {
		t.Fatalf("jobs[1].Outcome = %q, want %q", have, want)
	}
	if have, want := jobs[1].ErrorCode, docpipe.CodeNotFound; have != want {
		t.Fatalf("jobs[1].ErrorCode = %q, want %q", have, want)
	}
}

func TestArchiveDuplicateSettlementOverwrites(t *testing.T) {
	a := setupArchive(t)
	ctx := context.Background()

	e := docpipe.NewEnvelope(docpipe.JobTypeSummarization, "doc-2")
	if err := a.Record(ctx, e, docpipe.Failed(docpipe.CodeUnavailable, nil)); err != nil {
		t.Fatal(err)
	}
	e.Attempt = 2
	if err := a.Record(ctx, e, docpipe.Completed()); err != nil {
		t.Fatal(err)
	}

	jobs, err := a.ByCorrelationID(ctx, e.CorrelationID)
	if err != nil {
		t.Fatal(err)
	}
	if have, want := len(jobs), 1; have != want {
		t.Fatalf("len(jobs) = %d, want %d", have, want)
	}
	if have, want := jobs[0].Outcome, docpipe.StatusCompleted; have != want {
		t.Fatalf("Outcome = %q, want %q", have, want)
	}
	if have, want := jobs[0].Attempt, 2; have != want {
		t.Fatalf("Attempt = %d, want %d", have, want)
	}
}

func TestArchiveDeadLetters(t *testing.T) {
	a := setupArchive(t)
	ctx := context.Background()

	e := docpipe.NewEnvelope(docpipe.JobTypeProfileSummary, "doc-3")
	out := docpipe.Poisonedf(docpipe.CodeInvalidInput, "malformed profile payload")
	if err := a.Record(ctx, e, out); err != nil {
		t.Fatal(err)
	}

	jobs, err := a.DeadLetters(ctx, 50)
	if err != nil {
		t.Fatal(err)
	}
	var found bool
	for _, j := range jobs {
		if j.JobID == e.JobID {
			found = true
			if have, want := j.ErrorMessage, "malformed profile payload"; have != want {
				t.Fatalf("ErrorMessage = %q, want %q", have, want)
			}
		}
		if j.Outcome == docpipe.StatusCompleted {
			t.Fatal("DeadLetters must not return completed jobs")
		}
	}
	if !found {
		t.Fatal("poisoned job missing from dead letters")
	}
}
