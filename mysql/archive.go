// Copyright 2016-present Oliver Eilhard. All rights reserved.
// Use of this source code is governed by a MIT-license.
// See http://olivere.mit-license.org/license.txt for details.

// Package mysql archives terminally settled jobs for audit and dead-letter
// review. The archive is write-behind and advisory: the queue, not the
// archive, is the execution authority.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"time"

	sq "github.com/Masterminds/squirrel"
	mysqldriver "github.com/go-sql-driver/mysql"

	"github.com/docpipe/docpipe"
)

const archiveSchema = `CREATE TABLE IF NOT EXISTS docpipe_archive (
job_id varchar(36) primary key,
job_type varchar(64),
subject_id varchar(255),
batch_id varchar(36),
correlation_id varchar(36),
idempotency_key varchar(255),
outcome varchar(16),
error_code varchar(32),
error_message text,
attempt integer,
created bigint,
archived bigint,
index ix_archive_job_type (job_type),
index ix_archive_outcome (outcome),
index ix_archive_correlation_id (correlation_id),
index ix_archive_batch_id (batch_id),
index ix_archive_archived (archived));`

// ArchivedJob is one terminally settled job as stored in the archive.
type ArchivedJob struct {
	JobID          string       `json:"jobId"`
	JobType        string       `json:"jobType"`
	SubjectID      string       `json:"subjectId"`
	BatchID        string       `json:"batchId,omitempty"`
	CorrelationID  string       `json:"correlationId"`
	IdempotencyKey string       `json:"idempotencyKey,omitempty"`
	Outcome        string       `json:"outcome"`
	ErrorCode      docpipe.Code `json:"errorCode,omitempty"`
	ErrorMessage   string       `json:"errorMessage,omitempty"`
	Attempt        int          `json:"attempt"`
	Created        int64        `json:"created"`  // envelope creation (UnixNano)
	Archived       int64        `json:"archived"` // settlement time (UnixNano)
}

// Archive represents the MySQL-backed terminal-job archive.
type Archive struct {
	db     *sql.DB
	logger docpipe.Logger
}

// ArchiveOption is an options provider for Archive.
type ArchiveOption func(*Archive)

// SetLogger sets the logger used when the observer drops a write.
func SetLogger(logger docpipe.Logger) ArchiveOption {
	return func(a *Archive) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewArchive connects to MySQL and creates the schema if needed.
func NewArchive(dsn string, options ...ArchiveOption) (*Archive, error) {
	cfg, err := mysqldriver.ParseDSN(dsn)
	if err != nil {
		return nil, err
	}
	if cfg.DBName == "" {
		return nil, errors.New("mysql: no database specified")
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	a := &Archive{db: db, logger: stdLogger{}}
	for _, opt := range options {
		opt(a)
	}
	if _, err := db.Exec(archiveSchema); err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

type stdLogger struct{}

func (stdLogger) Printf(format string, v ...interface{}) {
	log.Printf(format, v...)
}

// Record inserts one terminal settlement. Re-settlement of the same job id
// (a redelivered duplicate that short-circuited) overwrites the row.
func (a *Archive) Record(ctx context.Context, e *docpipe.Envelope, out docpipe.Outcome) error {
	_, err := sq.Insert("docpipe_archive").
		Columns("job_id", "job_type", "subject_id", "batch_id", "correlation_id",
			"idempotency_key", "outcome", "error_code", "error_message",
			"attempt", "created", "archived").
		Values(e.JobID, e.JobType, e.SubjectID, e.BatchID, e.CorrelationID,
			e.Key(), out.Status, string(out.Code), out.Message,
			e.Attempt, e.CreatedAt.UnixNano(), time.Now().UnixNano()).
		Suffix("ON DUPLICATE KEY UPDATE outcome = VALUES(outcome), " +
			"error_code = VALUES(error_code), error_message = VALUES(error_message), " +
			"attempt = VALUES(attempt), archived = VALUES(archived)").
		RunWith(a.db).
		ExecContext(ctx)
	return err
}

// ByCorrelationID returns the archived jobs of one causal chain, oldest
// settlement first.
func (a *Archive) ByCorrelationID(ctx context.Context, correlationID string) ([]ArchivedJob, error) {
	rows, err := sq.Select("job_id", "job_type", "subject_id", "batch_id", "correlation_id",
		"idempotency_key", "outcome", "error_code", "error_message",
		"attempt", "created", "archived").
		From("docpipe_archive").
		Where(sq.Eq{"correlation_id": correlationID}).
		OrderBy("archived ASC").
		RunWith(a.db).
		QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var jobs []ArchivedJob
	for rows.Next() {
		var j ArchivedJob
		var code string
		if err := rows.Scan(&j.JobID, &j.JobType, &j.SubjectID, &j.BatchID, &j.CorrelationID,
			&j.IdempotencyKey, &j.Outcome, &code, &j.ErrorMessage,
			&j.Attempt, &j.Created, &j.Archived); err != nil {
			return nil, err
		}
		j.ErrorCode = docpipe.Code(code)
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// DeadLetters returns the most recently poisoned jobs, up to limit.
func (a *Archive) DeadLetters(ctx context.Context, limit uint64) ([]ArchivedJob, error) {
	if limit == 0 {
		limit = 100
	}
	rows, err := sq.Select("job_id", "job_type", "subject_id", "batch_id", "correlation_id",
		"idempotency_key", "outcome", "error_code", "error_message",
		"attempt", "created", "archived").
		From("docpipe_archive").
		Where(sq.NotEq{"outcome": docpipe.StatusCompleted}).
		OrderBy("archived DESC").
		Limit(limit).
		RunWith(a.db).
		QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var jobs []ArchivedJob
	for rows.Next() {
		var j ArchivedJob
		var code string
		if err := rows.Scan(&j.JobID, &j.JobType, &j.SubjectID, &j.BatchID, &j.CorrelationID,
			&j.IdempotencyKey, &j.Outcome, &code, &j.ErrorMessage,
			&j.Attempt, &j.Created, &j.Archived); err != nil {
			return nil, err
		}
		j.ErrorCode = docpipe.Code(code)
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// Observer adapts the archive to a manager observer. Write failures are
// logged, never propagated: archiving is advisory.
func (a *Archive) Observer() docpipe.Observer {
	return func(e *docpipe.Envelope, out docpipe.Outcome) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.Record(ctx, e, out); err != nil {
			a.logger.Printf("docpipe/mysql: archive %s failed: %v", e.JobID, err)
		}
	}
}

// Close closes the underlying database handle.
func (a *Archive) Close() error {
	return a.db.Close()
}
