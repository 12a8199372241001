// Copyright 2016-present Oliver Eilhard. All rights reserved.
// Use of this source code is governed by a MIT-license.
// See http://olivere.mit-license.org/license.txt for details.

// Package handlers contains the stage handlers of the document pipeline and
// the chainer that links them. Each handler consumes one opaque downstream
// capability; the real providers live outside this module and are injected
// through the interfaces below.
package handlers

import "context"

// Downstream capabilities are expected to return tagged errors
// (docpipe.Transient / docpipe.Permanent) where they can tell; untagged
// errors fall back to classification heuristics.

// AnalyzeRequest asks for an email to be analyzed into a document.
type AnalyzeRequest struct {
	MailboxID     string
	MessageID     string
	TargetFolder  string
	CorrelationID string
}

// AnalyzeResult is the outcome of a successful analysis.
type AnalyzeResult struct {
	DocumentID  string
	DocumentURL string
}

// DocumentAnalyzer turns an inbound email into a filed document.
type DocumentAnalyzer interface {
	Analyze(ctx context.Context, req AnalyzeRequest) (*AnalyzeResult, error)
}

// SummarizeRequest asks for a document summary.
type SummarizeRequest struct {
	DriveID       string
	ItemID        string
	Locale        string
	CorrelationID string
}

// SummarizeResult is the outcome of a successful summarization.
type SummarizeResult struct {
	Summary string
}

// Summarizer produces a document summary.
type Summarizer interface {
	Summarize(ctx context.Context, req SummarizeRequest) (*SummarizeResult, error)
}

// IndexRequest asks for a document to be indexed for retrieval.
type IndexRequest struct {
	DriveID       string
	ItemID        string
	ContentType   string
	CorrelationID string
}

// SearchIndexer pushes a document into the search index.
type SearchIndexer interface {
	Index(ctx context.Context, req IndexRequest) error
}

// FinalizeRequest asks for an uploaded file to be finalized into a document.
type FinalizeRequest struct {
	DriveID       string
	ItemID        string
	FileName      string
	UserID        string
	CorrelationID string
}

// FinalizeResult is the outcome of a successful finalization.
type FinalizeResult struct {
	DocumentID  string
	DocumentURL string
}

// UploadStore finalizes an uploaded blob into a stored document.
type UploadStore interface {
	Finalize(ctx context.Context, req FinalizeRequest) (*FinalizeResult, error)
}

// ProfileRequest asks for profile data to be extracted from a document.
type ProfileRequest struct {
	DriveID       string
	ItemID        string
	UserID        string
	CorrelationID string
}

// ProfileResult is the outcome of a successful extraction.
type ProfileResult struct {
	ProfileID string
	Summary   string
}

// ProfileExtractor extracts profile data from a document.
type ProfileExtractor interface {
	Extract(ctx context.Context, req ProfileRequest) (*ProfileResult, error)
}
