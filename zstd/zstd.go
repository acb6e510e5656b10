// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package zstd implements zstd-compressed sample captures.
package zstd

import (
	"bufio"
	"bytes"
	"errors"
	"io"

	"github.com/klauspost/compress/zstd"
)

// Magic is the zstd frame magic number as it appears on the wire.
var Magic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// IsCompressed reports whether the data starts with a zstd frame.
func IsCompressed(header []byte) bool {
	return bytes.HasPrefix(header, Magic)
}

// Reader decompresses a capture stream.
type Reader struct {
	dec *zstd.Decoder
}

// NewReader creates new Reader.
func NewReader(r io.Reader, opts ...zstd.DOption) (*Reader, error) {
	dec, err := zstd.NewReader(r, append([]zstd.DOption{zstd.WithDecoderConcurrency(1)}, opts...)...)
	if err != nil {
		return nil, err
	}

	return &Reader{
		dec: dec,
	}, nil
}

// Read implements io.Reader.
func (r *Reader) Read(p []byte) (int, error) {
	return r.dec.Read(p)
}

// Close releases decoder resources.
func (r *Reader) Close() error {
	r.dec.Close()

	return nil
}

// Writer compresses a capture stream.
type Writer struct {
	enc *zstd.Encoder
}

// NewWriter creates new Writer.
func NewWriter(w io.Writer, opts ...zstd.EOption) (*Writer, error) {
	enc, err := zstd.NewWriter(w, append([]zstd.EOption{zstd.WithEncoderLevel(zstd.SpeedFastest)}, opts...)...)
	if err != nil {
		return nil, err
	}

	return &Writer{
		enc: enc,
	}, nil
}

// Write implements io.Writer.
func (w *Writer) Write(p []byte) (int, error) {
	return w.enc.Write(p)
}

// Close flushes the last frame.
//
// Close doesn't close the underlying writer.
func (w *Writer) Close() error {
	return w.enc.Close()
}

// Sniff peeks at the beginning of the stream and returns a reader which
// transparently decompresses it if it is a zstd stream.
//
// Closing the returned reader releases the decoder, the underlying reader is left open.
func Sniff(r io.Reader) (io.ReadCloser, error) {
	br := bufio.NewReader(r)

	header, err := br.Peek(len(Magic))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	if !IsCompressed(header) {
		return io.NopCloser(br), nil
	}

	return NewReader(br)
}
