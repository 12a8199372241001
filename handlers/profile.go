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

// ProfilePayload is the payload schema for ProfileSummary jobs.
type ProfilePayload struct {
	DriveID       string `json:"drive_id"`
	ItemID        string `json:"item_id"`
	QueueIndexing bool   `json:"queue_indexing"`
}

// ProfileSummary extracts profile data from a document and, gated by the
// queue_indexing flag, chains the indexing stage.
type ProfileSummary struct {
	extractor ProfileExtractor
	deps      Deps
}

// NewProfileSummary creates the handler.
func NewProfileSummary(extractor ProfileExtractor, deps Deps) *ProfileSummary {
	return &ProfileSummary{extractor: extractor, deps: deps}
}

// JobType implements docpipe.Handler.
func (h *ProfileSummary) JobType() string { return docpipe.JobTypeProfileSummary }

// Process implements docpipe.Handler.
func (h *ProfileSummary) Process(ctx context.Context, e *docpipe.Envelope) docpipe.Outcome {
	log := h.deps.logger().With(
		zap.String("job_id", e.JobID),
		zap.String("correlation_id", e.CorrelationID),
	)
	trackID := e.TrackID()
	tracker := h.deps.tracker()

	var p ProfilePayload
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		out := docpipe.Poisonedf(docpipe.CodeInvalidInput, "malformed profile payload: %v", err)
		failStatus(ctx, tracker, trackID, out)
		return out
	}
	if p.DriveID == "" || p.ItemID == "" {
		out := docpipe.Poisonedf(docpipe.CodeInvalidInput, "profile payload needs drive_id and item_id")
		failStatus(ctx, tracker, trackID, out)
		return out
	}

	key := e.IdempotencyKey
	if key == "" {
		key = docpipe.DeriveKey(keyPrefixProfile, p.DriveID, p.ItemID)
	}

	tracker.UpdatePhase(ctx, trackID, phaseProfile, docpipe.PhaseRunning, "")

	out := h.deps.Guard.Run(ctx, key, func(ctx context.Context) docpipe.Outcome {
		res, err := h.extractor.Extract(ctx, ProfileRequest{
			DriveID:       p.DriveID,
			ItemID:        p.ItemID,
			UserID:        e.UserID,
			CorrelationID: e.CorrelationID,
		})
		if err != nil {
			log.Warn("profile extraction failed", zap.Error(err))
			return docpipe.FromError(err)
		}
		tracker.UpdateProgress(ctx, trackID, 70)

		if p.QueueIndexing {
			h.deps.Chain.Next(ctx, e, docpipe.JobTypeRagIndexing,
				docpipe.DeriveKey(keyPrefixRagIndex, p.DriveID, p.ItemID),
				IndexPayload{DriveID: p.DriveID, ItemID: p.ItemID})
		} else {
			tracker.MarkSkipped(ctx, trackID, phaseRagIndexing)
			tracker.Complete(ctx, trackID, "", "")
		}
		log.Info("profile extracted",
			zap.String("profile_id", res.ProfileID),
			zap.Bool("indexing", p.QueueIndexing))
		return docpipe.Completed()
	})

	failStatus(ctx, tracker, trackID, out)
	return out
}
