// Copyright 2016-present Oliver Eilhard. All rights reserved.
// Use of this source code is governed by a MIT-license.
// See http://olivere.mit-license.org/license.txt for details.

package handlers

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/docpipe/docpipe"
)

// IndexPayload is the payload schema for RagIndexing jobs.
type IndexPayload struct {
	DriveID     string `json:"drive_id"`
	ItemID      string `json:"item_id"`
	ContentType string `json:"content_type,omitempty"`
}

// RagIndexing pushes a finalized document into the retrieval index. It is
// the last pipeline stage, so success completes the status record.
type RagIndexing struct {
	indexer SearchIndexer
	deps    Deps
}

// NewRagIndexing creates the handler.
func NewRagIndexing(indexer SearchIndexer, deps Deps) *RagIndexing {
	return &RagIndexing{indexer: indexer, deps: deps}
}

// JobType implements docpipe.Handler.
func (h *RagIndexing) JobType() string { return docpipe.JobTypeRagIndexing }

// Process implements docpipe.Handler.
func (h *RagIndexing) Process(ctx context.Context, e *docpipe.Envelope) docpipe.Outcome {
	log := h.deps.logger().With(
		zap.String("job_id", e.JobID),
		zap.String("correlation_id", e.CorrelationID),
	)
	trackID := e.TrackID()
	tracker := h.deps.tracker()

	var p IndexPayload
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		out := docpipe.Poisonedf(docpipe.CodeInvalidInput, "malformed index payload: %v", err)
		failStatus(ctx, tracker, trackID, out)
		return out
	}
	if p.DriveID == "" || p.ItemID == "" {
		out := docpipe.Poisonedf(docpipe.CodeInvalidInput, "index payload needs drive_id and item_id")
		failStatus(ctx, tracker, trackID, out)
		return out
	}

	key := e.IdempotencyKey
	if key == "" {
		key = docpipe.DeriveKey(keyPrefixRagIndex, p.DriveID, p.ItemID)
	}

	tracker.UpdatePhase(ctx, trackID, phaseRagIndexing, docpipe.PhaseRunning, "")

	out := h.deps.Guard.Run(ctx, key, func(ctx context.Context) docpipe.Outcome {
		err := h.indexer.Index(ctx, IndexRequest{
			DriveID:       p.DriveID,
			ItemID:        p.ItemID,
			ContentType:   p.ContentType,
			CorrelationID: e.CorrelationID,
		})
		if err != nil {
			log.Warn("indexing failed", zap.Error(err))
			return docpipe.FromError(err)
		}
		tracker.Complete(ctx, trackID, "", "")
		log.Info("document indexed", zap.String("item_id", p.ItemID))
		return docpipe.Completed()
	})

	failStatus(ctx, tracker, trackID, out)
	return out
}
