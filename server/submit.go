// Copyright 2016-present Oliver Eilhard. All rights reserved.
// Use of this source code is governed by a MIT-license.
// See http://olivere.mit-license.org/license.txt for details.

package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/docpipe/docpipe"
	"github.com/docpipe/docpipe/handlers"
)

type submitRequest struct {
	DriveID             string `json:"driveId"`
	FileName            string `json:"fileName,omitempty"`
	UserID              string `json:"userId,omitempty"`
	TriggerAIProcessing bool   `json:"triggerAiProcessing"`
	QueueIndexing       bool   `json:"queueIndexing"`
}

type submitResponse struct {
	JobID     string `json:"jobId"`
	StatusURL string `json:"statusUrl"`
	StreamURL string `json:"streamUrl"`
}

// handleSubmit is the UI-triggered save: it starts the upload-finalization
// pipeline for a document and hands back polling and streaming URLs.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "documentID")
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, docpipe.CodeInvalidInput, "malformed request", "")
		return
	}
	if req.DriveID == "" {
		writeError(w, http.StatusBadRequest, docpipe.CodeInvalidInput, "driveId is required", "")
		return
	}

	e := docpipe.NewEnvelope(docpipe.JobTypeUploadFinalization, documentID)
	e.UserID = req.UserID
	e.IdempotencyKey = docpipe.DeriveKey("upload-final", req.DriveID, documentID)
	payload, _ := json.Marshal(handlers.UploadPayload{
		DriveID:             req.DriveID,
		ItemID:              documentID,
		FileName:            req.FileName,
		TriggerAIProcessing: req.TriggerAIProcessing,
		QueueIndexing:       req.QueueIndexing,
	})
	e.Payload = payload

	s.tracker.Begin(r.Context(), e.JobID, e.CorrelationID)
	if err := s.manager.Enqueue(r.Context(), e); err != nil {
		s.log.Error("submit enqueue failed",
			zap.String("document_id", documentID),
			zap.String("correlation_id", e.CorrelationID),
			zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, docpipe.CodeUnavailable,
			"could not accept job", e.CorrelationID)
		return
	}

	writeJSON(w, http.StatusAccepted, submitResponse{
		JobID:     e.JobID,
		StatusURL: "/jobs/" + e.JobID,
		StreamURL: "/jobs/" + e.JobID + "/stream",
	})
}
