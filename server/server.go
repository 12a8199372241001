// Copyright 2016-present Oliver Eilhard. All rights reserved.
// Use of this source code is governed by a MIT-license.
// See http://olivere.mit-license.org/license.txt for details.

// Package server exposes the ingestion gates and the job status surface
// over HTTP. Gates only validate, enqueue, and return a trackable job id;
// they never block on the job actually running.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/docpipe/docpipe"
)

// Server routes HTTP traffic into the job engine.
type Server struct {
	manager  *docpipe.Manager
	tracker  *docpipe.Tracker
	batches  *BatchTracker
	subjects SubjectSource
	secret   string
	ceiling  int64
	log      *zap.Logger
}

// Option is an options provider for Server.
type Option func(*Server)

// SetWebhookSecret sets the shared secret webhook callers sign with.
func SetWebhookSecret(secret string) Option {
	return func(s *Server) {
		s.secret = secret
	}
}

// SetSubjectSource sets the upstream system the batch gate queries.
func SetSubjectSource(src SubjectSource) Option {
	return func(s *Server) {
		s.subjects = src
	}
}

// SetBatchConcurrency caps how many batch enqueues run concurrently.
func SetBatchConcurrency(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.ceiling = n
		}
	}
}

// SetLogger sets the structured logger.
func SetLogger(log *zap.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// New creates a server and registers its batch observer with the manager.
func New(manager *docpipe.Manager, tracker *docpipe.Tracker, options ...Option) *Server {
	s := &Server{
		manager: manager,
		tracker: tracker,
		batches: NewBatchTracker(),
		ceiling: 8,
		log:     zap.NewNop(),
	}
	for _, opt := range options {
		opt(s)
	}
	manager.Observe(s.batches.Observer())
	return s
}

// Router builds the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post("/webhook-trigger", s.handleWebhook)
	r.Post("/documents/{documentID}/process", s.handleSubmit)
	r.Route("/admin", func(r chi.Router) {
		r.Post("/batch-process", s.handleBatch)
		r.Get("/batch-process/{jobID}/status", s.handleBatchStatus)
	})
	r.Route("/jobs/{jobID}", func(r chi.Router) {
		r.Get("/", s.handleJobStatus)
		r.Get("/stream", s.handleJobStream)
		r.Get("/feed", s.handleJobFeed)
	})
	r.Get("/stats", s.handleStats)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	return r
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.manager.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, docpipe.CodeUnavailable, "stats unavailable", "")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
