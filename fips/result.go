// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package fips

import (
	"fmt"
	"strings"
)

// Test identifies a single test of the battery.
type Test uint8

// Tests of the battery.
const (
	Monobit Test = iota
	Poker
	Runs
	LongRun
	ContinuousRun

	// NumTests is the number of tests in the battery.
	NumTests = iota
)

// AllTests returns all tests of the battery in order.
func AllTests() []Test {
	return []Test{Monobit, Poker, Runs, LongRun, ContinuousRun}
}

// String implements fmt.Stringer.
func (t Test) String() string {
	switch t {
	case Monobit:
		return "monobit"
	case Poker:
		return "poker"
	case Runs:
		return "runs"
	case LongRun:
		return "long run"
	case ContinuousRun:
		return "continuous run"
	default:
		return fmt.Sprintf("Test(%d)", uint8(t))
	}
}

// Result is the set of tests which failed for a block.
//
// Zero value is an all-clear result.
type Result struct {
	failed uint8
}

// Passed reports whether every test passed.
func (r Result) Passed() bool {
	return r.failed == 0
}

// Failed reports whether the given test failed.
func (r Result) Failed(t Test) bool {
	return r.failed&(1<<t) != 0
}

// Tests returns failed tests in battery order.
func (r Result) Tests() []Test {
	var failed []Test

	for _, t := range AllTests() {
		if r.Failed(t) {
			failed = append(failed, t)
		}
	}

	return failed
}

// String implements fmt.Stringer.
func (r Result) String() string {
	if r.Passed() {
		return "passed"
	}

	names := make([]string, 0, NumTests)

	for _, t := range r.Tests() {
		names = append(names, t.String())
	}

	return "failed: " + strings.Join(names, ", ")
}

func (r Result) with(t Test) Result {
	r.failed |= 1 << t

	return r
}

func (r Result) union(other Result) Result {
	r.failed |= other.failed

	return r
}
