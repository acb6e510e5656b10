// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siderolabs/sdr-entropy/internal/config"
	"github.com/siderolabs/sdr-entropy/source"
)

func TestParseDefaults(t *testing.T) {
	t.Parallel()

	req := require.New(t)

	cfg, err := config.Parse("sdr-entropy", nil)
	req.NoError(err)

	req.Equal("127.0.0.1:1234", cfg.Source)
	req.Empty(cfg.Output)
	req.False(cfg.Daemon)
	req.EqualValues(70_000_000, cfg.Frequency)
	req.EqualValues(3_200_000, cfg.SampleRate)
	req.Equal("aes-256-cbc", cfg.Cipher)
	req.Equal("sha512", cfg.Hash)
	req.Equal("drop", cfg.KeyPolicy)
	req.Equal(2500, cfg.BlockSize)
	req.Equal(time.Minute, cfg.StatsInterval)

	req.Equal(source.Tuning{Frequency: 70_000_000, SampleRate: 3_200_000, Gain: -1}, cfg.Tuning())

	_, isFile := cfg.CaptureFile()
	req.False(isFile)
}

func TestParseFlags(t *testing.T) {
	t.Parallel()

	req := require.New(t)

	cfg, err := config.Parse("sdr-entropy", []string{
		"-a", "49.6",
		"-d", "2",
		"-e",
		"-f", "433.92M",
		"-s", "2.4M",
		"-b",
		"-u", "nobody",
		"-g", "nogroup",
		"-key-policy", "hold",
	})
	req.NoError(err)

	req.Equal("127.0.0.1:1236", cfg.Source)
	req.Equal(config.DefaultFIFOPath, cfg.Output)
	req.Equal(config.DefaultPIDFile, cfg.PIDFile)
	req.True(cfg.Encrypt)
	req.True(cfg.Daemon)
	req.Equal("nobody", cfg.User)
	req.Equal("nogroup", cfg.Group)
	req.Equal("hold", cfg.KeyPolicy)

	req.Equal(source.Tuning{Frequency: 433_920_000, SampleRate: 2_400_000, Gain: 496}, cfg.Tuning())
}

func TestParseConfigFile(t *testing.T) {
	t.Parallel()

	req := require.New(t)

	path := filepath.Join(t.TempDir(), "sdr-entropy.yaml")
	req.NoError(os.WriteFile(path, []byte(`
source: file:/tmp/capture.raw.zst
frequency: 100M
sampleRate: 2048000
daemon: true
output: /run/entropy.fifo
encrypt: true
cipher: chacha20
hash: blake2b-512
statsInterval: 30s
`), 0o644))

	// explicit flags win over the file
	cfg, err := config.Parse("sdr-entropy", []string{"-config", path, "-f", "101.1M", "-cipher", "aes-256-cbc"})
	req.NoError(err)

	req.Equal(path, cfg.ConfigPath)
	req.EqualValues(101_100_000, cfg.Frequency)
	req.EqualValues(2_048_000, cfg.SampleRate)
	req.True(cfg.Daemon)
	req.True(cfg.Encrypt)
	req.Equal("/run/entropy.fifo", cfg.Output)
	req.Equal("aes-256-cbc", cfg.Cipher)
	req.Equal("blake2b-512", cfg.Hash)
	req.Equal(30*time.Second, cfg.StatsInterval)

	// defaults survive a partial file
	req.Equal("drop", cfg.KeyPolicy)
	req.Equal(2500, cfg.BlockSize)

	capture, isFile := cfg.CaptureFile()
	req.True(isFile)
	req.Equal("/tmp/capture.raw.zst", capture)
}

func TestParseErrors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	unknownKey := filepath.Join(dir, "unknown.yaml")
	require.NoError(t, os.WriteFile(unknownKey, []byte("frequncy: 70M\n"), 0o644))

	for _, test := range []struct {
		name string
		args []string
	}{
		{
			name: "bad frequency",
			args: []string{"-f", "70X"},
		},
		{
			name: "negative device",
			args: []string{"-d", "-1"},
		},
		{
			name: "zero sample rate",
			args: []string{"-s", "0"},
		},
		{
			name: "positional",
			args: []string{"extra"},
		},
		{
			name: "missing config",
			args: []string{"-config", filepath.Join(dir, "missing.yaml")},
		},
		{
			name: "unknown config key",
			args: []string{"-config", unknownKey},
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			_, err := config.Parse("sdr-entropy", test.args)
			assert.Error(t, err)
		})
	}
}

func TestHertz(t *testing.T) {
	t.Parallel()

	for _, test := range []struct {
		input    string
		expected config.Hertz
	}{
		{input: "70000000", expected: 70_000_000},
		{input: "70M", expected: 70_000_000},
		{input: "3.2M", expected: 3_200_000},
		{input: "2.048m", expected: 2_048_000},
		{input: "433.92e6", expected: 433_920_000},
		{input: "1.5G", expected: 1_500_000_000},
		{input: "250k", expected: 250_000},
	} {
		t.Run(test.input, func(t *testing.T) {
			t.Parallel()

			var h config.Hertz

			require.NoError(t, h.Set(test.input))
			assert.Equal(t, test.expected, h)

			// round-trips through String
			var again config.Hertz

			require.NoError(t, again.Set(h.String()))
			assert.Equal(t, h, again)
		})
	}

	var h config.Hertz

	assert.Error(t, h.Set("5G"))
	assert.Error(t, h.Set("-1"))
	assert.Error(t, h.Set("fast"))
}
