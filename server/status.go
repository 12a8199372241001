// Copyright 2016-present Oliver Eilhard. All rights reserved.
// Use of this source code is governed by a MIT-license.
// See http://olivere.mit-license.org/license.txt for details.

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/docpipe/docpipe"
)

// handleJobStatus is the polling endpoint for one job's status record.
func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	rec, err := s.tracker.Get(r.Context(), jobID)
	if errors.Is(err, docpipe.ErrNotFound) {
		writeError(w, http.StatusNotFound, docpipe.CodeNotFound, "job not found", "")
		return
	}
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, docpipe.CodeUnavailable, "status unavailable", "")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleJobStream pushes status changes as server-sent events until the job
// reaches a terminal state or the client disconnects.
func (s *Server) handleJobStream(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, docpipe.CodeUnavailable, "streaming unsupported", "")
		return
	}

	// Subscribe before the snapshot read so no update can slip between.
	updates, cancel := s.tracker.Subscribe(jobID)
	defer cancel()

	rec, err := s.tracker.Get(r.Context(), jobID)
	if errors.Is(err, docpipe.ErrNotFound) {
		writeError(w, http.StatusNotFound, docpipe.CodeNotFound, "job not found", "")
		return
	}
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, docpipe.CodeUnavailable, "status unavailable", "")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	writeEvent(w, rec)
	flusher.Flush()
	if rec.Terminal {
		return
	}

	// An update published between Subscribe and the snapshot read arrives on
	// the channel as well; skip records the client has already seen.
	last := rec
	for {
		select {
		case <-r.Context().Done():
			return
		case rec, more := <-updates:
			if !more {
				return
			}
			if rec == last {
				continue
			}
			writeEvent(w, rec)
			flusher.Flush()
			last = rec
			if rec.Terminal {
				return
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, rec docpipe.StatusRecord) {
	data, err := json.Marshal(rec)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: status\ndata: %s\n\n", data)
}
