// Copyright 2016-present Oliver Eilhard. All rights reserved.
// Use of this source code is governed by a MIT-license.
// See http://olivere.mit-license.org/license.txt for details.

package docpipe

// Stats returns statistics about the job queue.
type Stats struct {
	Waiting      int `json:"waiting"`      // number of envelopes waiting for delivery
	Working      int `json:"working"`      // number of envelopes currently leased
	Succeeded    int `json:"succeeded"`    // number of acked envelopes
	DeadLettered int `json:"deadLettered"` // number of envelopes removed from the retry path
}
