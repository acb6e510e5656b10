// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package entropy

import (
	"bytes"
	"fmt"
	"slices"

	"github.com/siderolabs/gen/optional"
	"go.uber.org/zap"
)

// Encoder turns validated blocks into output blocks.
//
// In whitening mode every output block is the XOR of a validated block and the
// previous validated block; the first validated block only seeds the previous block.
//
// In encrypted mode every output block is a validated block encrypted with key
// material derived from the discard pool.
type Encoder struct {
	pool *Pool

	// previous validated block, whitening mode only
	prev optional.Optional[[]byte]

	// blocks validated before the pool was primed, KeyPolicyHold only
	held [][]byte

	opt Options

	// sequence number of the next derived key
	keySeq uint64

	dropped uint64
}

// NewEncoder creates new Encoder.
//
// Pool is required for encrypted mode only. Options not related to encoding are ignored.
func NewEncoder(pool *Pool, opts ...OptionFunc) (*Encoder, error) {
	opt, err := applyOptions(opts)
	if err != nil {
		return nil, err
	}

	return newEncoder(pool, opt)
}

func newEncoder(pool *Pool, opt Options) (*Encoder, error) {
	if opt.Cipher != nil {
		if pool == nil {
			return nil, fmt.Errorf("discard pool is required for encryption")
		}

		if pool.Size() < opt.Cipher.KeyMaterialSize() {
			return nil, fmt.Errorf("key hash digest (%d) is shorter than cipher key material (%d)", pool.Size(), opt.Cipher.KeyMaterialSize())
		}
	}

	return &Encoder{
		pool: pool,
		opt:  opt,
	}, nil
}

// Encode returns zero or more output blocks for a validated block.
//
// Returned blocks never alias the input block.
func (e *Encoder) Encode(block []byte) ([][]byte, error) {
	if e.opt.Cipher == nil {
		return e.whiten(block)
	}

	return e.encrypt(block)
}

// Dropped returns the number of validated blocks dropped by the key policy.
func (e *Encoder) Dropped() uint64 {
	return e.dropped
}

// Held returns the number of blocks waiting for the discard pool to be primed.
func (e *Encoder) Held() int {
	return len(e.held)
}

func (e *Encoder) whiten(block []byte) ([][]byte, error) {
	if !e.prev.IsPresent() {
		e.prev = optional.Some(bytes.Clone(block))

		e.opt.Logger.Debug("first validated block seeded whitening")

		return nil, nil
	}

	prev := e.prev.ValueOrZero()

	if len(prev) != len(block) {
		return nil, fmt.Errorf("block size changed: %d != %d", len(block), len(prev))
	}

	out := make([]byte, len(block))

	for i := range block {
		out[i] = block[i] ^ prev[i]
	}

	copy(prev, block)

	return [][]byte{out}, nil
}

func (e *Encoder) encrypt(block []byte) ([][]byte, error) {
	if !e.pool.Primed() {
		switch e.opt.KeyPolicy {
		case KeyPolicyHold:
			if len(e.held) >= e.opt.HoldLimit {
				e.held = slices.Delete(e.held, 0, 1)
				e.dropped++

				e.opt.Logger.Warn("discard pool not primed, hold limit reached, dropping oldest block", zap.Int("hold_limit", e.opt.HoldLimit))
			}

			e.held = append(e.held, bytes.Clone(block))

			e.opt.Logger.Debug("discard pool not primed, holding block", zap.Int("held", len(e.held)))

			return nil, nil
		case KeyPolicyPassThrough:
			e.opt.Logger.Warn("discard pool not primed, emitting block unencrypted")

			return [][]byte{bytes.Clone(block)}, nil
		default:
			e.dropped++

			e.opt.Logger.Warn("discard pool not primed, dropping block", zap.Uint64("dropped", e.dropped))

			return nil, nil
		}
	}

	pending := append(e.held, block)
	e.held = nil

	if len(pending) > 1 {
		e.opt.Logger.Info("discard pool primed, flushing held blocks", zap.Int("held", len(pending)-1))
	}

	out := make([][]byte, 0, len(pending))

	for _, p := range pending {
		material, err := e.pool.DeriveKey(e.opt.KeyHash, e.keySeq)
		if err != nil {
			return out, err
		}

		e.keySeq++

		ciphertext, err := e.opt.Cipher.Encrypt(material, p, make([]byte, 0, e.opt.Cipher.CiphertextSize(len(p))))

		clear(material)

		if err != nil {
			return out, fmt.Errorf("failed to encrypt block: %w", err)
		}

		out = append(out, ciphertext)
	}

	return out, nil
}
