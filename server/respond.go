// Copyright 2016-present Oliver Eilhard. All rights reserved.
// Use of this source code is governed by a MIT-license.
// See http://olivere.mit-license.org/license.txt for details.

package server

import (
	"encoding/json"
	"net/http"

	"github.com/docpipe/docpipe"
)

type errorResponse struct {
	Error         string       `json:"error"`
	Code          docpipe.Code `json:"code"`
	CorrelationID string       `json:"correlationId,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError reports a stable code, a human-readable detail, and the
// correlation id. Never internals, never a stack trace.
func writeError(w http.ResponseWriter, status int, code docpipe.Code, msg, correlationID string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: code, CorrelationID: correlationID})
}
