// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package entropy turns raw radio samples into statistically validated random output.
//
// Raw samples are debiased with a Von Neumann extractor, accepted bits are
// accumulated into fixed-size blocks, and bits discarded by the extractor are
// kept in a ring used only as key material. Every full block passes through
// the FIPS 140-2 test battery; blocks which pass are whitened or encrypted and
// written to the output channel.
package entropy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/siderolabs/gen/xslices"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/siderolabs/sdr-entropy/fips"
)

// Pipeline drives raw samples from the source through extraction, validation and
// encoding into the output channel.
//
// Pipeline owns all of its buffers and runs in a single goroutine.
type Pipeline struct {
	source  io.Reader
	channel *Channel

	block   *Block
	pool    *Pool
	encoder *Encoder

	failureLog *rate.Limiter

	lastStats time.Time

	stats Stats

	opt Options
}

// NewPipeline creates new Pipeline reading from the source and writing to the channel.
func NewPipeline(source io.Reader, channel *Channel, opts ...OptionFunc) (*Pipeline, error) {
	opt, err := applyOptions(opts)
	if err != nil {
		return nil, err
	}

	if opt.Validator == nil {
		opt.Validator = fips.NewValidator(0)
	}

	pool := NewPool(opt.KeyHash().Size())

	encoder, err := newEncoder(pool, opt)
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		source:     source,
		channel:    channel,
		block:      NewBlock(opt.BlockSize),
		pool:       pool,
		encoder:    encoder,
		failureLog: rate.NewLimiter(opt.FailureLogLimit, opt.FailureLogBurst),
		opt:        opt,
	}, nil
}

func applyOptions(opts []OptionFunc) (Options, error) {
	opt := defaultOptions()

	for _, o := range opts {
		if err := o(&opt); err != nil {
			return opt, err
		}
	}

	return opt, nil
}

// Run processes samples until ctx is canceled or the source is exhausted.
//
// Cancellation is only observed between sample chunks, so a block is never
// emitted partially. Run returns nil on cancellation and on source EOF,
// ErrReaderGone if the reader of a non-daemon pipe went away.
func (p *Pipeline) Run(ctx context.Context) error {
	mode := "whitening"
	if p.opt.Cipher != nil {
		mode = "encrypted"
	}

	p.opt.Logger.Info("pipeline started",
		zap.String("mode", mode),
		zap.Int("block_size", p.opt.BlockSize),
		zap.Int("pool_size", p.pool.Size()),
		zap.Stringer("key_policy", p.opt.KeyPolicy),
	)

	p.lastStats = time.Now()

	defer func() {
		p.opt.Logger.Info("pipeline stopped", zap.Object("stats", p.Stats()))
	}()

	chunk := make([]byte, p.opt.ChunkSize)

	for {
		if ctx.Err() != nil {
			p.opt.Logger.Info("shutdown requested")

			return nil
		}

		if err := p.channel.Reconnect(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}

			return err
		}

		p.maybeLogStats()

		n, err := p.source.Read(chunk)
		if n > 0 {
			p.stats.SamplesRead += int64(n)

			if procErr := p.Process(ctx, chunk[:n]); procErr != nil {
				if ctx.Err() != nil && !errors.Is(procErr, ErrReaderGone) {
					return nil
				}

				return procErr
			}
		}

		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				p.opt.Logger.Info("sample source exhausted")

				return nil
			case ctx.Err() != nil:
				return nil
			default:
				return fmt.Errorf("failed to read samples: %w", err)
			}
		}
	}
}

// Process runs a chunk of raw samples through the extractor, validating and emitting every block filled.
func (p *Pipeline) Process(ctx context.Context, samples []byte) error {
	for _, sample := range samples {
		e := Extract(sample)

		for i := range e.NumDiscarded() {
			p.pool.WriteBit(e.Discarded(i))
		}

		for i := range e.NumAccepted() {
			full, err := p.block.WriteBit(e.Accepted(i))
			if err != nil {
				return err
			}

			if full {
				if err = p.cycle(ctx); err != nil {
					return err
				}
			}
		}
	}

	return nil
}

// cycle validates the full block, emits it if it passes, and resets the block.
func (p *Pipeline) cycle(ctx context.Context) error {
	defer p.block.Reset()

	p.stats.BlocksValidated++

	result, err := p.opt.Validator.Validate(p.block.Bytes())
	if err != nil {
		return fmt.Errorf("failed to validate block: %w", err)
	}

	if !result.Passed() {
		p.stats.BlocksFailed++

		for _, t := range result.Tests() {
			p.stats.TestFailures[t]++
		}

		if p.failureLog.Allow() {
			p.opt.Logger.Warn("block failed statistical tests",
				zap.Strings("failed", xslices.Map(result.Tests(), fips.Test.String)),
				zap.Int64("failed_blocks", p.stats.BlocksFailed),
			)
		}

		return nil
	}

	p.stats.BlocksPassed++

	outputs, err := p.encoder.Encode(p.block.Bytes())
	if err != nil {
		return err
	}

	for _, out := range outputs {
		if err = p.channel.Write(ctx, out); err != nil {
			return err
		}

		if p.channel.State() != StateWaitingForReader {
			p.stats.BlocksEmitted++
		}
	}

	return nil
}

func (p *Pipeline) maybeLogStats() {
	if p.opt.StatsInterval == 0 || time.Since(p.lastStats) < p.opt.StatsInterval {
		return
	}

	p.lastStats = time.Now()

	p.opt.Logger.Info("pipeline statistics", zap.Object("stats", p.Stats()))
}

// Stats returns a snapshot of pipeline counters.
func (p *Pipeline) Stats() Stats {
	s := p.stats

	s.BlocksDropped = p.encoder.Dropped()
	s.BlocksHeld = p.encoder.Held()
	s.BytesWritten = p.channel.Written()
	s.Disconnects = p.channel.Disconnects()
	s.PoolPrimed = p.pool.Primed()

	return s
}
