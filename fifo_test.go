// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

//go:build unix

package entropy_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sync/errgroup"

	"github.com/siderolabs/sdr-entropy"
)

func readFIFO(path string, n int, out *[]byte) func() error {
	return func() error {
		f, err := os.Open(path)
		if err != nil {
			return err
		}

		defer f.Close() //nolint:errcheck

		data := make([]byte, n)

		if _, err = io.ReadFull(f, data); err != nil {
			return err
		}

		*out = data

		return nil
	}
}

func TestFIFOReaderReattach(t *testing.T) {
	t.Parallel()

	req := require.New(t)
	ctx := t.Context()

	path := filepath.Join(t.TempDir(), "entropy.fifo")
	opener := entropy.OpenFIFO(path, 10*time.Millisecond)

	var (
		eg             errgroup.Group
		first, second  []byte
		readerAttached = make(chan struct{})
	)

	eg.Go(func() error {
		// wait for the FIFO to be created by the opener
		for {
			if _, err := os.Stat(path); err == nil {
				break
			}

			time.Sleep(5 * time.Millisecond)
		}

		close(readerAttached)

		return readFIFO(path, 4, &first)()
	})

	ch, err := entropy.NewPipeChannel(ctx, opener, true, zaptest.NewLogger(t))
	req.NoError(err)

	<-readerAttached

	req.NoError(ch.Write(ctx, []byte("abcd")))
	req.NoError(eg.Wait())
	req.Equal("abcd", string(first))

	// no readers left: the write is dropped and the channel waits for a reader
	req.NoError(ch.Write(ctx, []byte("efgh")))
	req.Equal(entropy.StateWaitingForReader, ch.State())

	eg.Go(readFIFO(path, 4, &second))

	req.NoError(ch.Write(ctx, []byte("ijkl")))
	req.Equal(entropy.StateStreaming, ch.State())
	req.NoError(eg.Wait())
	req.Equal("ijkl", string(second))

	req.NoError(ch.Close())
}

func TestFIFOCancel(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "entropy.fifo")

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()

	_, err := entropy.OpenFIFO(path, 10*time.Millisecond)(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.ModeNamedPipe, info.Mode().Type())
}
