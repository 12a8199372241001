// Copyright 2016-present Oliver Eilhard. All rights reserved.
// Use of this source code is governed by a MIT-license.
// See http://olivere.mit-license.org/license.txt for details.

package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/docpipe/docpipe"
)

const maxWebhookBody = 1 << 20 // 1 MiB

// Routes from external event types to pipeline job types. Events the
// pipeline does not care about are acknowledged but not enqueued.
var eventRoutes = map[string]string{
	"email.received":    docpipe.JobTypeProcessEmailToDocument,
	"document.uploaded": docpipe.JobTypeUploadFinalization,
	"document.reindex":  docpipe.JobTypeRagIndexing,
	"profile.requested": docpipe.JobTypeProfileSummary,
}

type webhookEvent struct {
	EventID       string          `json:"eventId"`
	EventType     string          `json:"eventType"`
	SubjectID     string          `json:"subjectId"`
	CorrelationID string          `json:"correlationId,omitempty"`
	Data          json.RawMessage `json:"data,omitempty"`
}

type webhookResponse struct {
	Accepted      bool   `json:"accepted"`
	JobID         string `json:"jobId,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`
	Message       string `json:"message,omitempty"`
}

// handleWebhook maps an externally-triggered event into a job envelope.
// The idempotency key derives from the event id, so a source system that
// redelivers the same event cannot double-enqueue.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, docpipe.CodeInvalidInput, "unreadable body", "")
		return
	}

	if !s.authorizeWebhook(r, body) {
		writeError(w, http.StatusUnauthorized, docpipe.CodeAccessDenied, "signature mismatch", "")
		return
	}

	var ev webhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		writeError(w, http.StatusBadRequest, docpipe.CodeInvalidInput, "malformed event", "")
		return
	}
	if ev.EventID == "" || ev.EventType == "" || ev.SubjectID == "" {
		writeError(w, http.StatusBadRequest, docpipe.CodeInvalidInput,
			"eventId, eventType and subjectId are required", ev.CorrelationID)
		return
	}

	jobType, found := eventRoutes[ev.EventType]
	if !found {
		writeJSON(w, http.StatusAccepted, webhookResponse{
			Accepted: false,
			Message:  "event type not handled: " + ev.EventType,
		})
		return
	}

	e := docpipe.NewEnvelope(jobType, ev.SubjectID)
	if ev.CorrelationID != "" {
		e.CorrelationID = ev.CorrelationID
	}
	e.IdempotencyKey = docpipe.DeriveKey("webhook", ev.EventType, ev.EventID)
	e.Payload = ev.Data

	s.tracker.Begin(r.Context(), e.JobID, e.CorrelationID)
	if err := s.manager.Enqueue(r.Context(), e); err != nil {
		s.log.Error("webhook enqueue failed",
			zap.String("event_id", ev.EventID),
			zap.String("correlation_id", e.CorrelationID),
			zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, docpipe.CodeUnavailable,
			"could not accept event", e.CorrelationID)
		return
	}

	writeJSON(w, http.StatusAccepted, webhookResponse{
		Accepted:      true,
		JobID:         e.JobID,
		CorrelationID: e.CorrelationID,
		Message:       "queued",
	})
}

// authorizeWebhook accepts either the shared secret verbatim in
// X-Webhook-Secret or a hex HMAC-SHA256 of the raw body in
// X-Webhook-Signature. Both comparisons are constant time.
func (s *Server) authorizeWebhook(r *http.Request, body []byte) bool {
	if s.secret == "" {
		return false
	}
	if header := r.Header.Get("X-Webhook-Secret"); header != "" {
		return subtle.ConstantTimeCompare([]byte(header), []byte(s.secret)) == 1
	}
	if header := r.Header.Get("X-Webhook-Signature"); header != "" {
		provided, err := hex.DecodeString(header)
		if err != nil {
			return false
		}
		mac := hmac.New(sha256.New, []byte(s.secret))
		_, _ = mac.Write(body)
		return hmac.Equal(provided, mac.Sum(nil))
	}
	return false
}

// SignBody computes the hex HMAC-SHA256 signature webhook callers send.
// Exported for tests and tooling.
func SignBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
