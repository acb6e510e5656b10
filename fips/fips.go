// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package fips implements the FIPS 140-2 statistical random number generator tests.
package fips

import (
	"encoding/binary"
	"fmt"
	"math/bits"
)

// BlockSize is the size in bytes of a single test window (20000 bits).
const BlockSize = 2500

// Acceptance bounds, FIPS 140-2 change notice 1.
const (
	// monobit: ones must be strictly within (monobitMin, monobitMax)
	monobitMin = 9725
	monobitMax = 10275

	// poker: sum of squared nibble frequencies must be strictly within (pokerMin, pokerMax),
	// which is 2.16 < X < 46.17 for X = 16/5000 * sum - 5000
	pokerMin = 1563176
	pokerMax = 1576928

	// LongRunLength is the shortest run which fails the long run test.
	LongRunLength = 26

	numRunBuckets = 6
)

// runBounds holds inclusive [min, max] counts for runs of length 1, 2, 3, 4, 5 and 6+.
var runBounds = [numRunBuckets][2]int{
	{2315, 2685},
	{1114, 1386},
	{527, 723},
	{240, 384},
	{103, 209},
	{103, 209},
}

// Validator runs the test battery over full blocks.
//
// Validator keeps the last 32-bit word of the previous block for the continuous run test,
// so it should be used for a single stream of blocks. Validator is not safe for concurrent use.
type Validator struct {
	last32 uint32
}

// NewValidator creates a Validator, seeding the continuous run test with the given word.
func NewValidator(seed uint32) *Validator {
	return &Validator{
		last32: seed,
	}
}

// Validate runs all tests over the block, which should be a positive multiple of BlockSize.
//
// Every BlockSize window is tested separately, the result is the union of failures.
func (v *Validator) Validate(block []byte) (Result, error) {
	if len(block) == 0 || len(block)%BlockSize != 0 {
		return Result{}, fmt.Errorf("block size should be a positive multiple of %d: %d", BlockSize, len(block))
	}

	var result Result

	for off := 0; off < len(block); off += BlockSize {
		result = result.union(v.validateWindow(block[off : off+BlockSize]))
	}

	return result, nil
}

//nolint:gocognit
func (v *Validator) validateWindow(data []byte) Result {
	var (
		result  Result
		ones    int
		poker   [16]int
		runs    [2][numRunBuckets]int
		longRun bool

		// current run, lastBit is only valid when runLen > 0
		lastBit byte
		runLen  int
	)

	closeRun := func() {
		if runLen == 0 {
			return
		}

		if runLen >= LongRunLength {
			longRun = true
		}

		runs[lastBit][min(runLen, numRunBuckets)-1]++
	}

	for _, c := range data {
		ones += bits.OnesCount8(c)

		poker[c>>4]++
		poker[c&0x0f]++

		for j := 7; j >= 0; j-- {
			bit := (c >> j) & 1

			if runLen > 0 && bit == lastBit {
				runLen++

				continue
			}

			closeRun()

			lastBit = bit
			runLen = 1
		}
	}

	closeRun()

	if ones <= monobitMin || ones >= monobitMax {
		result = result.with(Monobit)
	}

	var pokerSum int

	for _, f := range poker {
		pokerSum += f * f
	}

	if pokerSum <= pokerMin || pokerSum >= pokerMax {
		result = result.with(Poker)
	}

runsLoop:
	for bit := range runs {
		for i, count := range runs[bit] {
			if count < runBounds[i][0] || count > runBounds[i][1] {
				result = result.with(Runs)

				break runsLoop
			}
		}
	}

	if longRun {
		result = result.with(LongRun)
	}

	for i := 0; i+4 <= len(data); i += 4 {
		word := binary.BigEndian.Uint32(data[i:])

		if word == v.last32 {
			result = result.with(ContinuousRun)
		}

		v.last32 = word
	}

	return result
}
