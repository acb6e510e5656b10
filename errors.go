// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package entropy

import "errors"

var (
	// ErrClosed is returned when writing to a closed Channel.
	ErrClosed = errors.New("channel closed")

	// ErrReaderGone is returned when the reader of a pipe went away and the channel is not allowed to wait for a new one.
	ErrReaderGone = errors.New("reader went away")

	// ErrBlockFull is returned when writing to a Block which is already full.
	ErrBlockFull = errors.New("block is full")

	// ErrNotPrimed is returned when key material is requested from a Pool which was never filled completely.
	ErrNotPrimed = errors.New("discard pool is not primed")
)
