// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package entropy_test

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha512"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/siderolabs/sdr-entropy"
	"github.com/siderolabs/sdr-entropy/crypt"
)

func TestEncoderWhitening(t *testing.T) {
	t.Parallel()

	req := require.New(t)

	enc, err := entropy.NewEncoder(nil, entropy.WithLogger(zaptest.NewLogger(t)))
	req.NoError(err)

	first := []byte{0x0f, 0x0f, 0x0f, 0x0f}
	second := []byte{0xff, 0x00, 0xff, 0x00}
	third := []byte{0x12, 0x34, 0x56, 0x78}

	// the first block only seeds whitening
	out, err := enc.Encode(first)
	req.NoError(err)
	req.Empty(out)

	out, err = enc.Encode(second)
	req.NoError(err)
	req.Len(out, 1)
	req.Equal([]byte{0xf0, 0x0f, 0xf0, 0x0f}, out[0])

	// XOR with the previous block recovers the plaintext
	recovered := make([]byte, 4)
	for i := range recovered {
		recovered[i] = out[0][i] ^ first[i]
	}

	req.Equal(second, recovered)

	// output doesn't alias the input
	second[0] = 0xaa
	req.Equal(byte(0xf0), out[0][0])

	out, err = enc.Encode(third)
	req.NoError(err)
	req.Len(out, 1)
	req.Equal([]byte{0x12 ^ 0xff, 0x34, 0x56 ^ 0xff, 0x78}, out[0])

	_, err = enc.Encode([]byte{1, 2, 3})
	req.Error(err)
}

func primedPool(t *testing.T) *entropy.Pool {
	t.Helper()

	p := entropy.NewPool(sha512.Size)

	for i := range sha512.Size * 8 {
		p.WriteBit(byte(i*7) % 3)
	}

	require.True(t, p.Primed())

	return p
}

func decryptAESCBC(t *testing.T, material, ciphertext []byte) []byte {
	t.Helper()

	block, err := aes.NewCipher(material[:32])
	require.NoError(t, err)

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, material[32:48]).CryptBlocks(plaintext, ciphertext)

	return plaintext[:len(plaintext)-int(plaintext[len(plaintext)-1])]
}

func TestEncoderEncrypted(t *testing.T) {
	t.Parallel()

	req := require.New(t)

	pool := primedPool(t)

	enc, err := entropy.NewEncoder(pool,
		entropy.WithEncryption(crypt.NewAESCBC()),
		entropy.WithLogger(zaptest.NewLogger(t)),
	)
	req.NoError(err)

	block := bytes.Repeat([]byte{0x5a}, 2500)

	out, err := enc.Encode(block)
	req.NoError(err)
	req.Len(out, 1)
	req.Len(out[0], 2512)

	key0, err := pool.DeriveKey(sha512.New, 0)
	req.NoError(err)

	req.Equal(block, decryptAESCBC(t, key0, out[0]))

	// every block gets its own key even if the pool didn't change
	out2, err := enc.Encode(block)
	req.NoError(err)
	req.Len(out2, 1)
	req.NotEqual(out[0], out2[0])

	key1, err := pool.DeriveKey(sha512.New, 1)
	req.NoError(err)

	req.Equal(block, decryptAESCBC(t, key1, out2[0]))

	// key material never shows up in the output
	req.False(bytes.Contains(out[0], key0[:32]))
}

func TestEncoderKeyPolicy(t *testing.T) {
	t.Parallel()

	for _, test := range []struct {
		name string

		policy entropy.KeyPolicy

		expectedOutputsBefore int
		expectedOutputsAfter  int
		expectedDropped       uint64
		expectedHeld          int
	}{
		{
			name:   "drop",
			policy: entropy.KeyPolicyDrop,

			expectedOutputsBefore: 0,
			expectedOutputsAfter:  1,
			expectedDropped:       3,
		},
		{
			name:   "hold",
			policy: entropy.KeyPolicyHold,

			expectedOutputsBefore: 0,
			expectedOutputsAfter:  3, // hold limit 2 + current block
			expectedDropped:       1,
			expectedHeld:          2,
		},
		{
			name:   "pass-through",
			policy: entropy.KeyPolicyPassThrough,

			expectedOutputsBefore: 1,
			expectedOutputsAfter:  1,
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			req := require.New(t)

			pool := entropy.NewPool(sha512.Size)

			enc, err := entropy.NewEncoder(pool,
				entropy.WithEncryption(crypt.NewChaCha20()),
				entropy.WithKeyPolicy(test.policy),
				entropy.WithHoldLimit(2),
				entropy.WithLogger(zaptest.NewLogger(t)),
			)
			req.NoError(err)

			blocks := [][]byte{
				bytes.Repeat([]byte{1}, 16),
				bytes.Repeat([]byte{2}, 16),
				bytes.Repeat([]byte{3}, 16),
			}

			for _, block := range blocks {
				out, err := enc.Encode(block)
				req.NoError(err)
				req.Len(out, test.expectedOutputsBefore)

				if test.policy == entropy.KeyPolicyPassThrough {
					req.Equal(block, out[0])
				}
			}

			req.Equal(test.expectedDropped, enc.Dropped())
			req.Equal(test.expectedHeld, enc.Held())

			for i := range sha512.Size * 8 {
				pool.WriteBit(byte(i))
			}

			last := bytes.Repeat([]byte{4}, 16)

			out, err := enc.Encode(last)
			req.NoError(err)
			req.Len(out, test.expectedOutputsAfter)
			req.Equal(0, enc.Held())

			// held blocks are flushed in order, each with its own key
			expected := append(blocks[len(blocks)-test.expectedHeld:], last)

			for i, ciphertext := range out {
				key, err := pool.DeriveKey(sha512.New, uint64(i))
				req.NoError(err)

				plaintext, err := crypt.NewChaCha20().Encrypt(key, ciphertext, nil)
				req.NoError(err)

				req.Equal(expected[i], plaintext)
			}
		})
	}
}

func TestEncoderOptions(t *testing.T) {
	t.Parallel()

	_, err := entropy.NewEncoder(nil, entropy.WithEncryption(crypt.NewAESCBC()))
	assert.Error(t, err)

	// digest too short for the key material
	_, err = entropy.NewEncoder(entropy.NewPool(32), entropy.WithEncryption(crypt.NewAESCBC()))
	assert.Error(t, err)

	_, err = entropy.NewEncoder(nil, entropy.WithKeyPolicy(entropy.KeyPolicy(42)))
	assert.Error(t, err)

	_, err = entropy.NewEncoder(nil, entropy.WithHoldLimit(0))
	assert.Error(t, err)
}

func TestKeyPolicyString(t *testing.T) {
	t.Parallel()

	for _, policy := range []entropy.KeyPolicy{entropy.KeyPolicyDrop, entropy.KeyPolicyHold, entropy.KeyPolicyPassThrough} {
		parsed, err := entropy.ParseKeyPolicy(policy.String())
		require.NoError(t, err)
		assert.Equal(t, policy, parsed)
	}

	_, err := entropy.ParseKeyPolicy("encrypt-later")
	assert.Error(t, err)
}
