// Copyright 2016-present Oliver Eilhard. All rights reserved.
// Use of this source code is governed by a MIT-license.
// See http://olivere.mit-license.org/license.txt for details.

package docpipe

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// BackoffFunc returns the delay before redelivering a failed envelope.
// attempt is the 1-based attempt that just failed. It is configurable via
// the SetBackoffFunc option on the manager.
type BackoffFunc func(attempt int) time.Duration

// exponentialBackoff is the default backoff function: jittered exponential
// growth capped at five minutes.
func exponentialBackoff(attempt int) time.Duration {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 1 * time.Second
	bo.MaxInterval = 5 * time.Minute
	bo.Multiplier = 2.0
	bo.RandomizationFactor = 0.2

	d := bo.NextBackOff()
	for i := 1; i < attempt; i++ {
		d = bo.NextBackOff()
	}
	if d == backoff.Stop {
		d = bo.MaxInterval
	}
	return d
}
