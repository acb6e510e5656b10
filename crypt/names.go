// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package crypt

import (
	"fmt"
	"hash"

	"github.com/siderolabs/sdr-entropy"
)

// Cipher and hash names accepted by CipherByName and HashByName.
const (
	CipherAESCBC   = "aes-256-cbc"
	CipherChaCha20 = "chacha20"

	HashSHA512     = "sha512"
	HashBLAKE2b512 = "blake2b-512"
)

// CipherByName returns the cipher registered under the name.
func CipherByName(name string) (entropy.Cipher, error) {
	switch name {
	case CipherAESCBC:
		return NewAESCBC(), nil
	case CipherChaCha20:
		return NewChaCha20(), nil
	default:
		return nil, fmt.Errorf("unknown cipher %q", name)
	}
}

// HashByName returns the key hash constructor registered under the name.
func HashByName(name string) (func() hash.Hash, error) {
	switch name {
	case HashSHA512:
		return SHA512, nil
	case HashBLAKE2b512:
		return BLAKE2b512, nil
	default:
		return nil, fmt.Errorf("unknown hash %q", name)
	}
}
