// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package entropy

import (
	"encoding/binary"
	"hash"
)

// Pool is a fixed-size bit ring collecting discarded bits.
//
// The pool is never handed out as output: its contents are only used as
// key material through DeriveKey. Pool is not safe for concurrent use.
type Pool struct {
	data []byte

	// write offset in bits, always goes up, actual bit position in data
	// is (off % (len(data) * 8))
	off int64

	// set once the ring wrapped around at least once
	primed bool
}

// NewPool creates a Pool of the given size in bytes.
func NewPool(size int) *Pool {
	return &Pool{
		data: make([]byte, size),
	}
}

// WriteBit stores a single bit in the ring, overwriting the oldest bit once the ring is full.
func (p *Pool) WriteBit(bit byte) {
	capacity := int64(len(p.data)) * 8

	i := p.off % capacity
	mask := byte(1) << (i % 8)

	if bit&1 != 0 {
		p.data[i/8] |= mask
	} else {
		p.data[i/8] &^= mask
	}

	p.off++

	if p.off%capacity == 0 {
		p.primed = true
	}
}

// Primed reports whether the ring has been completely filled at least once.
func (p *Pool) Primed() bool {
	return p.primed
}

// Offset returns the number of bits ever written to the pool.
func (p *Pool) Offset() int64 {
	return p.off
}

// Size returns pool capacity in bytes.
func (p *Pool) Size() int {
	return len(p.data)
}

// DeriveKey hashes the whole pool followed by the big-endian key sequence number.
//
// The pool is not cleared: bits keep flowing in and refresh future keys.
func (p *Pool) DeriveKey(newHash func() hash.Hash, seq uint64) ([]byte, error) {
	if !p.primed {
		return nil, ErrNotPrimed
	}

	var seqBuf [8]byte

	binary.BigEndian.PutUint64(seqBuf[:], seq)

	h := newHash()
	h.Write(p.data)    //nolint:errcheck
	h.Write(seqBuf[:]) //nolint:errcheck

	return h.Sum(nil), nil
}
