// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package entropy

// Block accumulates accepted bits until it reaches its fixed capacity.
//
// Once full, the block is immutable until Reset.
type Block struct {
	data []byte

	// write cursor: byte index and bit index within the byte
	byteIdx int
	bitIdx  int
}

// NewBlock creates a zeroed Block of the given size in bytes.
func NewBlock(size int) *Block {
	return &Block{
		data: make([]byte, size),
	}
}

// WriteBit appends a single bit (LSB-first within a byte) and reports whether the block became full.
func (b *Block) WriteBit(bit byte) (bool, error) {
	if b.Full() {
		return true, ErrBlockFull
	}

	b.data[b.byteIdx] |= (bit & 1) << b.bitIdx
	b.bitIdx++

	if b.bitIdx == 8 {
		b.bitIdx = 0
		b.byteIdx++
	}

	return b.Full(), nil
}

// Full reports whether every byte of the block has been written.
func (b *Block) Full() bool {
	return b.byteIdx >= len(b.data)
}

// Len returns the number of bits written so far.
func (b *Block) Len() int {
	return b.byteIdx*8 + b.bitIdx
}

// Size returns block capacity in bytes.
func (b *Block) Size() int {
	return len(b.data)
}

// Bytes returns the block contents.
//
// The returned slice is only valid until the next Reset.
func (b *Block) Bytes() []byte {
	return b.data
}

// Reset zeroes the block and rewinds the cursor.
func (b *Block) Reset() {
	clear(b.data)

	b.byteIdx = 0
	b.bitIdx = 0
}
