// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package entropy

import (
	"crypto/sha512"
	"fmt"
	"hash"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/siderolabs/sdr-entropy/fips"
)

// Options defines settings for Pipeline.
type Options struct {
	// Cipher enables encrypted output mode, nil selects whitening mode.
	Cipher Cipher

	// KeyHash hashes the discard pool into key material, pool size is the digest size.
	KeyHash func() hash.Hash

	// Validator is the statistical gate for full blocks.
	Validator Validator

	Logger *zap.Logger

	BlockSize int
	ChunkSize int

	KeyPolicy KeyPolicy
	HoldLimit int

	// StatsInterval is the period of statistics logging, zero disables it.
	StatsInterval time.Duration

	FailureLogLimit rate.Limit
	FailureLogBurst int
}

// Cipher encrypts validated blocks with key material derived from the discard pool.
//
// Encrypt appends the ciphertext to the dest slice and returns the result.
type Cipher interface {
	KeyMaterialSize() int
	CiphertextSize(n int) int
	Encrypt(material, src, dest []byte) ([]byte, error)
}

// Validator runs the statistical test battery over full blocks.
type Validator interface {
	Validate(block []byte) (fips.Result, error)
}

// KeyPolicy defines how encrypted mode handles blocks validated before the discard pool is primed.
type KeyPolicy int

// Key policies.
const (
	// KeyPolicyDrop drops such blocks and logs them.
	KeyPolicyDrop KeyPolicy = iota
	// KeyPolicyHold keeps up to HoldLimit blocks and encrypts them once the pool is primed.
	KeyPolicyHold
	// KeyPolicyPassThrough emits such blocks unencrypted.
	KeyPolicyPassThrough
)

// String implements fmt.Stringer.
func (p KeyPolicy) String() string {
	switch p {
	case KeyPolicyDrop:
		return "drop"
	case KeyPolicyHold:
		return "hold"
	case KeyPolicyPassThrough:
		return "pass-through"
	default:
		return fmt.Sprintf("KeyPolicy(%d)", int(p))
	}
}

// ParseKeyPolicy parses the String representation of a KeyPolicy.
func ParseKeyPolicy(s string) (KeyPolicy, error) {
	for _, p := range []KeyPolicy{KeyPolicyDrop, KeyPolicyHold, KeyPolicyPassThrough} {
		if p.String() == s {
			return p, nil
		}
	}

	return 0, fmt.Errorf("unknown key policy %q", s)
}

// defaultOptions returns default initial values.
func defaultOptions() Options {
	return Options{
		KeyHash:         sha512.New,
		Logger:          zap.NewNop(),
		BlockSize:       fips.BlockSize,
		ChunkSize:       262144,
		KeyPolicy:       KeyPolicyDrop,
		HoldLimit:       16,
		StatsInterval:   time.Minute,
		FailureLogLimit: rate.Every(time.Second),
		FailureLogBurst: 5,
	}
}

// OptionFunc allows setting Pipeline options.
type OptionFunc func(*Options) error

// WithBlockSize sets the size of a validated block in bytes.
func WithBlockSize(size int) OptionFunc {
	return func(opt *Options) error {
		if size <= 0 || size%fips.BlockSize != 0 {
			return fmt.Errorf("block size should be a positive multiple of %d: %d", fips.BlockSize, size)
		}

		opt.BlockSize = size

		return nil
	}
}

// WithChunkSize sets the number of raw sample bytes requested from the source per read.
func WithChunkSize(size int) OptionFunc {
	return func(opt *Options) error {
		if size <= 0 {
			return fmt.Errorf("chunk size should be positive: %d", size)
		}

		opt.ChunkSize = size

		return nil
	}
}

// WithEncryption enables encrypted output mode.
//
// Default is whitening mode.
func WithEncryption(c Cipher) OptionFunc {
	return func(opt *Options) error {
		if c == nil {
			return fmt.Errorf("cipher should be set")
		}

		opt.Cipher = c

		return nil
	}
}

// WithKeyHash sets the hash used to derive key material from the discard pool.
func WithKeyHash(newHash func() hash.Hash) OptionFunc {
	return func(opt *Options) error {
		if newHash == nil {
			return fmt.Errorf("key hash should be set")
		}

		opt.KeyHash = newHash

		return nil
	}
}

// WithKeyPolicy sets the policy for blocks validated before the discard pool is primed.
func WithKeyPolicy(policy KeyPolicy) OptionFunc {
	return func(opt *Options) error {
		switch policy {
		case KeyPolicyDrop, KeyPolicyHold, KeyPolicyPassThrough:
		default:
			return fmt.Errorf("unknown key policy: %s", policy)
		}

		opt.KeyPolicy = policy

		return nil
	}
}

// WithHoldLimit sets the maximum number of blocks kept by KeyPolicyHold.
func WithHoldLimit(limit int) OptionFunc {
	return func(opt *Options) error {
		if limit <= 0 {
			return fmt.Errorf("hold limit should be positive: %d", limit)
		}

		opt.HoldLimit = limit

		return nil
	}
}

// WithValidator replaces the FIPS 140-2 validator.
func WithValidator(v Validator) OptionFunc {
	return func(opt *Options) error {
		opt.Validator = v

		return nil
	}
}

// WithStatsInterval sets the period of statistics logging, zero disables it.
func WithStatsInterval(interval time.Duration) OptionFunc {
	return func(opt *Options) error {
		if interval < 0 {
			return fmt.Errorf("stats interval should be non-negative: %s", interval)
		}

		opt.StatsInterval = interval

		return nil
	}
}

// WithFailureLogLimit throttles logging of failed blocks.
//
// Failures are always counted in Stats.
func WithFailureLogLimit(limit rate.Limit, burst int) OptionFunc {
	return func(opt *Options) error {
		if burst < 0 {
			return fmt.Errorf("burst should be non-negative: %d", burst)
		}

		opt.FailureLogLimit = limit
		opt.FailureLogBurst = burst

		return nil
	}
}

// WithLogger sets logger for Pipeline.
func WithLogger(logger *zap.Logger) OptionFunc {
	return func(opt *Options) error {
		opt.Logger = logger

		return nil
	}
}
