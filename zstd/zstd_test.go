// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package zstd_test

import (
	"bytes"
	"crypto/rand"
	"io"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/siderolabs/sdr-entropy/zstd"
)

func TestCapture(t *testing.T) {
	t.Parallel()

	for _, test := range []struct {
		size int
	}{
		{
			size: 0,
		},
		{
			size: 1024,
		},
		{
			size: 1024 * 1024,
		},
	} {
		t.Run(strconv.Itoa(test.size), func(t *testing.T) {
			t.Parallel()

			data, err := io.ReadAll(io.LimitReader(rand.Reader, int64(test.size)))
			require.NoError(t, err)

			var compressed bytes.Buffer

			w, err := zstd.NewWriter(&compressed)
			require.NoError(t, err)

			_, err = w.Write(data)
			require.NoError(t, err)
			require.NoError(t, w.Close())

			if test.size > 0 {
				require.True(t, zstd.IsCompressed(compressed.Bytes()))
			}

			r, err := zstd.NewReader(bytes.NewReader(compressed.Bytes()))
			require.NoError(t, err)

			decompressed, err := io.ReadAll(r)
			require.NoError(t, err)
			require.NoError(t, r.Close())

			require.Equal(t, len(data), len(decompressed))
			require.True(t, bytes.Equal(data, decompressed))
		})
	}
}

func TestSniff(t *testing.T) {
	t.Parallel()

	raw := []byte("raw samples, not a zstd stream")

	var compressed bytes.Buffer

	w, err := zstd.NewWriter(&compressed)
	require.NoError(t, err)

	_, err = w.Write(raw)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	for _, test := range []struct {
		name  string
		input []byte

		expected []byte
	}{
		{
			name:     "plain",
			input:    raw,
			expected: raw,
		},
		{
			name:     "compressed",
			input:    compressed.Bytes(),
			expected: raw,
		},
		{
			name:     "short",
			input:    []byte{0x28, 0xb5},
			expected: []byte{0x28, 0xb5},
		},
		{
			name:  "empty",
			input: nil,
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			r, err := zstd.Sniff(bytes.NewReader(test.input))
			require.NoError(t, err)

			data, err := io.ReadAll(r)
			require.NoError(t, err)
			require.NoError(t, r.Close())

			require.Equal(t, len(test.expected), len(data))
			require.True(t, bytes.Equal(test.expected, data))
		})
	}
}
