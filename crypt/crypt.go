// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package crypt provides ciphers and key hashes for output encryption.
package crypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha512"
	"fmt"
	"hash"
	"slices"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/chacha20"
)

// AESCBC implements Cipher using AES-256 in CBC mode with PKCS#7 padding.
//
// Key material is the 32-byte key followed by the 16-byte IV.
type AESCBC struct{}

// NewAESCBC creates new AESCBC.
func NewAESCBC() *AESCBC {
	return &AESCBC{}
}

// KeyMaterialSize implements Cipher.
func (c *AESCBC) KeyMaterialSize() int {
	return 32 + aes.BlockSize
}

// CiphertextSize implements Cipher.
//
// Padding is always added, so aligned input grows by a full block.
func (c *AESCBC) CiphertextSize(n int) int {
	return (n/aes.BlockSize + 1) * aes.BlockSize
}

// Encrypt implements Cipher.
func (c *AESCBC) Encrypt(material, src, dest []byte) ([]byte, error) {
	if len(material) < c.KeyMaterialSize() {
		return nil, fmt.Errorf("not enough key material: %d < %d", len(material), c.KeyMaterialSize())
	}

	block, err := aes.NewCipher(material[:32])
	if err != nil {
		return nil, err
	}

	padLen := aes.BlockSize - len(src)%aes.BlockSize

	start := len(dest)
	dest = slices.Grow(dest, len(src)+padLen)
	dest = append(dest, src...)

	for range padLen {
		dest = append(dest, byte(padLen))
	}

	out := dest[start:]

	cipher.NewCBCEncrypter(block, material[32:32+aes.BlockSize]).CryptBlocks(out, out)

	return dest, nil
}

// ChaCha20 implements Cipher using the ChaCha20 stream cipher.
//
// Key material is the 32-byte key followed by the 12-byte nonce.
type ChaCha20 struct{}

// NewChaCha20 creates new ChaCha20.
func NewChaCha20() *ChaCha20 {
	return &ChaCha20{}
}

// KeyMaterialSize implements Cipher.
func (c *ChaCha20) KeyMaterialSize() int {
	return chacha20.KeySize + chacha20.NonceSize
}

// CiphertextSize implements Cipher.
func (c *ChaCha20) CiphertextSize(n int) int {
	return n
}

// Encrypt implements Cipher.
func (c *ChaCha20) Encrypt(material, src, dest []byte) ([]byte, error) {
	if len(material) < c.KeyMaterialSize() {
		return nil, fmt.Errorf("not enough key material: %d < %d", len(material), c.KeyMaterialSize())
	}

	stream, err := chacha20.NewUnauthenticatedCipher(material[:chacha20.KeySize], material[chacha20.KeySize:c.KeyMaterialSize()])
	if err != nil {
		return nil, err
	}

	start := len(dest)
	dest = append(dest, src...)

	stream.XORKeyStream(dest[start:], dest[start:])

	return dest, nil
}

// SHA512 returns a new SHA-512 key hash.
func SHA512() hash.Hash {
	return sha512.New()
}

// BLAKE2b512 returns a new unkeyed BLAKE2b-512 key hash.
func BLAKE2b512() hash.Hash {
	h, err := blake2b.New512(nil)
	if err != nil {
		// unkeyed construction can't fail
		panic(err)
	}

	return h
}
