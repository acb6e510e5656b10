// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

//go:build unix

package entropy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// MakeFIFO creates a named pipe unless it already exists.
func MakeFIFO(path string) error {
	if err := unix.Mkfifo(path, 0o644); err != nil && !errors.Is(err, unix.EEXIST) {
		return fmt.Errorf("failed to create FIFO %q: %w", path, err)
	}

	return nil
}

// OpenFIFO returns an Opener for a named pipe, creating the pipe if it doesn't exist.
//
// The pipe is opened in non-blocking mode, which fails until a reader attaches,
// so the opener polls every pollInterval until it succeeds or ctx is canceled.
func OpenFIFO(path string, pollInterval time.Duration) Opener {
	return func(ctx context.Context) (io.WriteCloser, error) {
		if err := MakeFIFO(path); err != nil {
			return nil, err
		}

		timer := time.NewTimer(pollInterval)
		defer timer.Stop()

		for {
			f, err := os.OpenFile(path, os.O_WRONLY|unix.O_NONBLOCK, 0)
			if err == nil {
				return f, nil
			}

			if !errors.Is(err, unix.ENXIO) {
				return nil, err
			}

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-timer.C:
				timer.Reset(pollInterval)
			}
		}
	}
}
