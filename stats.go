// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package entropy

import (
	"strings"

	"go.uber.org/zap/zapcore"

	"github.com/siderolabs/sdr-entropy/fips"
)

// Stats are the pipeline counters.
type Stats struct {
	SamplesRead int64

	BlocksValidated int64
	BlocksPassed    int64
	BlocksFailed    int64
	BlocksEmitted   int64

	// TestFailures counts failures per test, indexed by fips.Test.
	TestFailures [fips.NumTests]int64

	BlocksDropped uint64
	BlocksHeld    int

	BytesWritten int64
	Disconnects  int64

	PoolPrimed bool
}

// MarshalLogObject implements zapcore.ObjectMarshaler.
func (s Stats) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddInt64("samples_read", s.SamplesRead)
	enc.AddInt64("blocks_validated", s.BlocksValidated)
	enc.AddInt64("blocks_passed", s.BlocksPassed)
	enc.AddInt64("blocks_failed", s.BlocksFailed)
	enc.AddInt64("blocks_emitted", s.BlocksEmitted)
	enc.AddUint64("blocks_dropped", s.BlocksDropped)
	enc.AddInt("blocks_held", s.BlocksHeld)
	enc.AddInt64("bytes_written", s.BytesWritten)
	enc.AddInt64("disconnects", s.Disconnects)
	enc.AddBool("pool_primed", s.PoolPrimed)

	for _, t := range fips.AllTests() {
		if s.TestFailures[t] > 0 {
			enc.AddInt64("failed_"+strings.ReplaceAll(t.String(), " ", "_"), s.TestFailures[t])
		}
	}

	return nil
}
