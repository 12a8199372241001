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

// AnalysisPayload is the payload schema for ProcessEmailToDocument jobs.
type AnalysisPayload struct {
	MailboxID    string `json:"mailbox_id"`
	MessageID    string `json:"message_id"`
	TargetFolder string `json:"target_folder,omitempty"`
}

// EmailToDocument analyzes an inbound email and files it as a document.
type EmailToDocument struct {
	analyzer DocumentAnalyzer
	deps     Deps
}

// NewEmailToDocument creates the handler.
func NewEmailToDocument(analyzer DocumentAnalyzer, deps Deps) *EmailToDocument {
	return &EmailToDocument{analyzer: analyzer, deps: deps}
}

// JobType implements docpipe.Handler.
func (h *EmailToDocument) JobType() string { return docpipe.JobTypeProcessEmailToDocument }

// Process implements docpipe.Handler.
func (h *EmailToDocument) Process(ctx context.Context, e *docpipe.Envelope) docpipe.Outcome {
	log := h.deps.logger().With(
		zap.String("job_id", e.JobID),
		zap.String("correlation_id", e.CorrelationID),
	)
	trackID := e.TrackID()
	tracker := h.deps.tracker()

	var p AnalysisPayload
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		out := docpipe.Poisonedf(docpipe.CodeInvalidInput, "malformed analysis payload: %v", err)
		failStatus(ctx, tracker, trackID, out)
		return out
	}
	if p.MailboxID == "" || p.MessageID == "" {
		out := docpipe.Poisonedf(docpipe.CodeInvalidInput, "analysis payload needs mailbox_id and message_id")
		failStatus(ctx, tracker, trackID, out)
		return out
	}

	key := e.IdempotencyKey
	if key == "" {
		key = docpipe.DeriveKey(keyPrefixEmailDoc, p.MailboxID, p.MessageID)
	}

	tracker.UpdatePhase(ctx, trackID, phaseAnalysis, docpipe.PhaseRunning, "")

	out := h.deps.Guard.Run(ctx, key, func(ctx context.Context) docpipe.Outcome {
		res, err := h.analyzer.Analyze(ctx, AnalyzeRequest{
			MailboxID:     p.MailboxID,
			MessageID:     p.MessageID,
			TargetFolder:  p.TargetFolder,
			CorrelationID: e.CorrelationID,
		})
		if err != nil {
			log.Warn("email analysis failed", zap.Error(err))
			return docpipe.FromError(err)
		}
		tracker.Complete(ctx, trackID, res.DocumentID, res.DocumentURL)
		log.Info("email filed as document", zap.String("document_id", res.DocumentID))
		return docpipe.Completed()
	})

	failStatus(ctx, tracker, trackID, out)
	return out
}
