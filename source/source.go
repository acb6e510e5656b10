// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package source provides raw sample sources.
package source

import (
	"errors"
	"io"
	"os"

	"github.com/siderolabs/sdr-entropy/zstd"
)

type fileSource struct {
	io.Reader

	dec  io.Closer
	file *os.File
}

func (s *fileSource) Close() error {
	return errors.Join(s.dec.Close(), s.file.Close())
}

// OpenFile opens a raw sample capture for replay.
//
// zstd-compressed captures are decompressed transparently.
func OpenFile(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	r, err := zstd.Sniff(f)
	if err != nil {
		f.Close() //nolint:errcheck

		return nil, err
	}

	return &fileSource{
		Reader: r,
		dec:    r,
		file:   f,
	}, nil
}

// Capture passes samples through while recording them into a zstd-compressed capture.
type Capture struct {
	r  io.Reader
	zw *zstd.Writer
}

// Tee creates a Capture reading from src and recording to w.
func Tee(src io.Reader, w io.Writer) (*Capture, error) {
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return nil, err
	}

	return &Capture{
		r:  io.TeeReader(src, zw),
		zw: zw,
	}, nil
}

// Read implements io.Reader.
func (c *Capture) Read(p []byte) (int, error) {
	return c.r.Read(p)
}

// Close flushes the capture.
//
// Neither the source nor the capture writer are closed.
func (c *Capture) Close() error {
	return c.zw.Close()
}
