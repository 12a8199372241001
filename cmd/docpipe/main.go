// Copyright 2016-present Oliver Eilhard. All rights reserved.
// Use of this source code is governed by a MIT-license.
// See http://olivere.mit-license.org/license.txt for details.

// Command docpipe runs the document-automation job service: HTTP ingestion
// gates in front of a Redis-backed at-least-once queue, a pool of stage
// handlers with idempotency guarantees, and the job status surface.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	r "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/docpipe/docpipe"
	"github.com/docpipe/docpipe/config"
	"github.com/docpipe/docpipe/handlers"
	"github.com/docpipe/docpipe/mysql"
	dpredis "github.com/docpipe/docpipe/redis"
	"github.com/docpipe/docpipe/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("config", zap.Error(err))
	}

	var log *zap.Logger
	if cfg.AppEnv == "production" {
		log, err = zap.NewProduction()
	} else {
		log, err = zap.NewDevelopment()
	}
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	engineLog := zapPrintf{log.Sugar()}

	rdb := r.NewClient(&r.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(ctx).Err(); err != nil {
		cancel()
		log.Fatal("redis unreachable", zap.String("addr", cfg.RedisAddr), zap.Error(err))
	}
	cancel()

	queue := dpredis.NewQueue(rdb, cfg.QueueName,
		dpredis.SetVisibility(cfg.Visibility),
		dpredis.SetQueueLogger(engineLog),
	)
	defer queue.Close()

	coordinator := dpredis.NewCoordinator(rdb, cfg.QueueName)
	tracker := docpipe.NewTracker(dpredis.NewStatusStore(rdb, cfg.QueueName), engineLog)

	guard := docpipe.Guard{
		Coordinator:  coordinator,
		LockTTL:      cfg.LockTTL,
		ProcessedTTL: cfg.ProcessedTTL,
		Logger:       engineLog,
	}

	m := docpipe.New(
		docpipe.SetLogger(engineLog),
		docpipe.SetQueue(queue),
		docpipe.SetConcurrency(cfg.Concurrency),
	)

	chain := handlers.NewChainer(queue, log)
	deps := handlers.Deps{Guard: guard, Chain: chain, Tracker: tracker, Log: log}

	// Downstream providers are wired as no-ops until the real AI, search,
	// and storage clients are plugged in.
	for _, h := range []docpipe.Handler{
		handlers.NewEmailToDocument(handlers.NopAnalyzer{}, deps),
		handlers.NewSummarization(handlers.NopSummarizer{}, deps),
		handlers.NewRagIndexing(handlers.NopIndexer{}, deps),
		handlers.NewUploadFinalization(handlers.NopUploadStore{}, deps),
		handlers.NewProfileSummary(handlers.NopProfileExtractor{}, deps),
	} {
		if err := m.Register(h); err != nil {
			log.Fatal("register handler", zap.Error(err))
		}
	}

	if cfg.MySQLDSN != "" {
		archive, err := mysql.NewArchive(cfg.MySQLDSN, mysql.SetLogger(engineLog))
		if err != nil {
			log.Fatal("mysql archive", zap.Error(err))
		}
		defer archive.Close()
		m.Observe(archive.Observer())
	}

	if err := m.Start(); err != nil {
		log.Fatal("start manager", zap.Error(err))
	}

	srv := server.New(m, tracker,
		server.SetWebhookSecret(cfg.WebhookSecret),
		server.SetBatchConcurrency(cfg.BatchCeiling),
		server.SetLogger(log),
	)

	httpSrv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", cfg.Addr))
		errc <- httpSrv.ListenAndServe()
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigc:
		log.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errc:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server", zap.Error(err))
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	if err := m.CloseWithTimeout(30 * time.Second); err != nil {
		log.Warn("manager shutdown", zap.Error(err))
	}
}

// zapPrintf adapts zap to the engine's Logger interface.
type zapPrintf struct {
	s *zap.SugaredLogger
}

func (l zapPrintf) Printf(format string, v ...interface{}) {
	l.s.Infof(format, v...)
}
