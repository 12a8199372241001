// Copyright 2016-present Oliver Eilhard. All rights reserved.
// Use of this source code is governed by a MIT-license.
// See http://olivere.mit-license.org/license.txt for details.

package handlers

import "context"

// No-op downstream implementations. They stand in for the real providers
// in development wiring until those are plugged in, and double as simple
// success fakes in tests.

// NopAnalyzer acknowledges every analysis request.
type NopAnalyzer struct{}

// Analyze implements DocumentAnalyzer.
func (NopAnalyzer) Analyze(ctx context.Context, req AnalyzeRequest) (*AnalyzeResult, error) {
	return &AnalyzeResult{
		DocumentID:  "doc-" + req.MessageID,
		DocumentURL: "https://docs.local/" + req.MessageID,
	}, nil
}

// NopSummarizer returns an empty summary.
type NopSummarizer struct{}

// Summarize implements Summarizer.
func (NopSummarizer) Summarize(ctx context.Context, req SummarizeRequest) (*SummarizeResult, error) {
	return &SummarizeResult{}, nil
}

// NopIndexer acknowledges every index request.
type NopIndexer struct{}

// Index implements SearchIndexer.
func (NopIndexer) Index(ctx context.Context, req IndexRequest) error {
	return nil
}

// NopUploadStore acknowledges every finalize request.
type NopUploadStore struct{}

// Finalize implements UploadStore.
func (NopUploadStore) Finalize(ctx context.Context, req FinalizeRequest) (*FinalizeResult, error) {
	return &FinalizeResult{
		DocumentID:  "doc-" + req.ItemID,
		DocumentURL: "https://docs.local/" + req.DriveID + "/" + req.ItemID,
	}, nil
}

// NopProfileExtractor acknowledges every extract request.
type NopProfileExtractor struct{}

// Extract implements ProfileExtractor.
func (NopProfileExtractor) Extract(ctx context.Context, req ProfileRequest) (*ProfileResult, error) {
	return &ProfileResult{ProfileID: "profile-" + req.ItemID}, nil
}
