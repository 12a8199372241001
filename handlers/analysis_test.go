// Copyright 2016-present Oliver Eilhard. All rights reserved.
// Use of this source code is governed by a MIT-license.
// See http://olivere.mit-license.org/license.txt for details.

package handlers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docpipe/docpipe"
)

func TestEmailToDocumentCompletes(t *testing.T) {
	deps := testDeps(&fakeQueue{})
	analyzer := &fakeAnalyzer{res: AnalyzeResult{DocumentID: "doc-1", DocumentURL: "https://example.com/doc-1"}}
	h := NewEmailToDocument(analyzer, deps)

	e := envelopeWith(t, docpipe.JobTypeProcessEmailToDocument, "msg-1", AnalysisPayload{
		MailboxID: "mbx-1",
		MessageID: "msg-1",
	})
	out := h.Process(context.Background(), e)
	require.Equal(t, docpipe.StatusCompleted, out.Status)

	rec, err := deps.Tracker.Get(context.Background(), e.JobID)
	require.NoError(t, err)
	assert.True(t, rec.Terminal)
	assert.Equal(t, "doc-1", rec.DocumentID)
	assert.Equal(t, "https://example.com/doc-1", rec.DocumentURL)
}

func TestEmailToDocumentDuplicateDelivery(t *testing.T) {
	deps := testDeps(&fakeQueue{})
	analyzer := &fakeAnalyzer{res: AnalyzeResult{DocumentID: "doc-1"}}
	h := NewEmailToDocument(analyzer, deps)

	e := envelopeWith(t, docpipe.JobTypeProcessEmailToDocument, "msg-1", AnalysisPayload{
		MailboxID: "mbx-1",
		MessageID: "msg-1",
	})
	for i := 0; i < 3; i++ {
		out := h.Process(context.Background(), e)
		require.Equal(t, docpipe.StatusCompleted, out.Status)
	}
	assert.Equal(t, 1, analyzer.calls)
}

func TestEmailToDocumentMissingFieldsIsPoisoned(t *testing.T) {
	deps := testDeps(&fakeQueue{})
	analyzer := &fakeAnalyzer{}
	h := NewEmailToDocument(analyzer, deps)

	e := envelopeWith(t, docpipe.JobTypeProcessEmailToDocument, "msg-1", AnalysisPayload{MailboxID: "mbx-1"})
	out := h.Process(context.Background(), e)
	require.Equal(t, docpipe.StatusPoisoned, out.Status)
	assert.Equal(t, docpipe.CodeInvalidInput, out.Code)
	assert.Zero(t, analyzer.calls)
}

func TestSummarizationCompletes(t *testing.T) {
	deps := testDeps(&fakeQueue{})
	summarizer := &fakeSummarizer{res: SummarizeResult{Summary: "short version"}}
	h := NewSummarization(summarizer, deps)

	e := envelopeWith(t, docpipe.JobTypeSummarization, "i1", SummarizePayload{
		DriveID: "d1",
		ItemID:  "i1",
		Locale:  "de-DE",
	})
	out := h.Process(context.Background(), e)
	require.Equal(t, docpipe.StatusCompleted, out.Status)
	assert.Equal(t, 1, summarizer.calls)

	rec, err := deps.Tracker.Get(context.Background(), e.JobID)
	require.NoError(t, err)
	assert.True(t, rec.Terminal)
}
