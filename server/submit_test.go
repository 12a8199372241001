// Copyright 2016-present Oliver Eilhard. All rights reserved.
// Use of this source code is governed by a MIT-license.
// See http://olivere.mit-license.org/license.txt for details.

package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docpipe/docpipe"
)

func TestSubmitAccepts(t *testing.T) {
	s, _, tracker := newTestServer(t)
	body := `{"driveId":"d1","fileName":"report.pdf","userId":"user-7","queueIndexing":true}`
	req := httptest.NewRequest(http.MethodPost, "/documents/doc-1/process", strings.NewReader(body))
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusAccepted, w.Code)

	var resp submitResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.JobID)
	assert.Equal(t, "/jobs/"+resp.JobID, resp.StatusURL)
	assert.Equal(t, "/jobs/"+resp.JobID+"/stream", resp.StreamURL)

	rec, err := tracker.Get(context.Background(), resp.JobID)
	require.NoError(t, err)
	assert.Equal(t, docpipe.PhaseRunning, rec.Status)
}

func TestSubmitValidation(t *testing.T) {
	s, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/documents/doc-1/process", strings.NewReader(`{not json`))
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/documents/doc-1/process", strings.NewReader(`{"fileName":"x"}`))
	w = httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
