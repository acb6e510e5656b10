// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package entropy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"syscall"

	"go.uber.org/zap"
)

// State of the Channel.
type State int

// Channel states.
const (
	// StateDirect is a plain file without reconnect semantics.
	StateDirect State = iota
	// StateWaitingForReader is a pipe waiting for a reader to attach.
	StateWaitingForReader
	// StateStreaming is a pipe with an attached reader.
	StateStreaming
	// StateClosed is a closed channel.
	StateClosed
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateDirect:
		return "direct"
	case StateWaitingForReader:
		return "waiting for reader"
	case StateStreaming:
		return "streaming"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Opener opens the pipe sink, blocking until a reader attaches or ctx is canceled.
type Opener func(ctx context.Context) (io.WriteCloser, error)

// Channel delivers output blocks to the consumer and keeps track of the consumer attachment.
//
// Channel is not safe for concurrent use.
type Channel struct {
	w      io.WriteCloser
	open   Opener
	logger *zap.Logger

	state State

	// wait for a new reader when the current one goes away
	daemon bool

	written     int64
	disconnects int64
}

// NewDirectChannel creates a Channel writing to a plain file.
func NewDirectChannel(w io.WriteCloser, logger *zap.Logger) *Channel {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Channel{
		w:      w,
		logger: logger,
		state:  StateDirect,
	}
}

// NewPipeChannel creates a Channel writing to a pipe, and opens the pipe.
//
// In daemon mode the channel waits for a new reader each time the current one goes away,
// otherwise reader going away terminates the channel.
func NewPipeChannel(ctx context.Context, open Opener, daemon bool, logger *zap.Logger) (*Channel, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Channel{
		open:   open,
		logger: logger,
		state:  StateWaitingForReader,
		daemon: daemon,
	}

	if err := c.Reconnect(ctx); err != nil {
		return nil, err
	}

	return c, nil
}

// State returns current channel state.
func (c *Channel) State() State {
	return c.state
}

// Written returns the number of bytes written to all readers.
func (c *Channel) Written() int64 {
	return c.written
}

// Disconnects returns the number of times a reader went away.
func (c *Channel) Disconnects() int64 {
	return c.disconnects
}

// Write writes a whole output block.
//
// If the reader goes away during the write, the block is dropped: in daemon mode
// the channel starts waiting for a new reader and Write returns nil, otherwise
// the channel is closed and Write returns ErrReaderGone.
func (c *Channel) Write(ctx context.Context, p []byte) error {
	switch c.state { //nolint:exhaustive
	case StateClosed:
		return ErrClosed
	case StateWaitingForReader:
		if err := c.Reconnect(ctx); err != nil {
			return err
		}
	}

	n, err := c.w.Write(p)
	c.written += int64(n)

	if err == nil {
		return nil
	}

	if c.state == StateDirect || !errors.Is(err, syscall.EPIPE) {
		return fmt.Errorf("failed to write output: %w", err)
	}

	c.disconnects++

	c.logger.Info("reader went away, closing pipe", zap.Int("partial_bytes", n))

	if closeErr := c.w.Close(); closeErr != nil {
		c.logger.Debug("failed to close pipe", zap.Error(closeErr))
	}

	c.w = nil

	if !c.daemon {
		c.state = StateClosed

		return ErrReaderGone
	}

	c.state = StateWaitingForReader

	return nil
}

// Reconnect waits for a reader to attach if the channel is waiting for one.
func (c *Channel) Reconnect(ctx context.Context) error {
	switch c.state { //nolint:exhaustive
	case StateClosed:
		return ErrClosed
	case StateWaitingForReader:
	default:
		return nil
	}

	c.logger.Info("waiting for a reader")

	w, err := c.open(ctx)
	if err != nil {
		return fmt.Errorf("failed to open output: %w", err)
	}

	c.w = w
	c.state = StateStreaming

	c.logger.Info("reader attached")

	return nil
}

// Close closes the sink.
func (c *Channel) Close() error {
	if c.state == StateClosed {
		return nil
	}

	c.state = StateClosed

	if c.w == nil {
		return nil
	}

	w := c.w
	c.w = nil

	return w.Close()
}
