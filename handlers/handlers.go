// Copyright 2016-present Oliver Eilhard. All rights reserved.
// Use of this source code is governed by a MIT-license.
// See http://olivere.mit-license.org/license.txt for details.

package handlers

import (
	"context"

	"go.uber.org/zap"

	"github.com/docpipe/docpipe"
)

// Stage-scoped idempotency key prefixes. Redelivery of the same logical
// work always derives the same key.
const (
	keyPrefixEmailDoc    = "email-doc"
	keyPrefixSummary     = "summary"
	keyPrefixRagIndex    = "rag-index"
	keyPrefixUploadFinal = "upload-final"
	keyPrefixProfile     = "profile"
)

// Pipeline phase labels reported to the status tracker.
const (
	phaseAnalysis    = "document-analysis"
	phaseSummarize   = "summarization"
	phaseRagIndexing = "rag-indexing"
	phaseUpload      = "upload-finalization"
	phaseProfile     = "profile-extraction"
)

// Deps bundles the collaborators every stage handler needs.
type Deps struct {
	Guard   docpipe.Guard
	Chain   *Chainer
	Tracker *docpipe.Tracker
	Log     *zap.Logger
}

func (d Deps) logger() *zap.Logger {
	if d.Log == nil {
		return zap.NewNop()
	}
	return d.Log
}

// nopStatusStore discards every record; it backs the tracker fallback so
// handlers wired without a tracker stay functional.
type nopStatusStore struct{}

func (nopStatusStore) Put(ctx context.Context, rec docpipe.StatusRecord) error { return nil }
func (nopStatusStore) Get(ctx context.Context, jobID string) (docpipe.StatusRecord, error) {
	return docpipe.StatusRecord{}, docpipe.ErrNotFound
}

var nopTracker = docpipe.NewTracker(nopStatusStore{}, nil)

func (d Deps) tracker() *docpipe.Tracker {
	if d.Tracker == nil {
		return nopTracker
	}
	return d.Tracker
}

// failStatus mirrors a non-success outcome into the status tracker.
func failStatus(ctx context.Context, tr *docpipe.Tracker, trackID string, out docpipe.Outcome) {
	if out.Status == docpipe.StatusCompleted {
		return
	}
	tr.Fail(ctx, trackID, out.Code, out.Message, out.Status == docpipe.StatusFailed)
}
