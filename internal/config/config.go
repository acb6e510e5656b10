// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package config implements the daemon configuration: command line flags and an optional YAML file.
package config

import (
	"flag"
	"fmt"
	"math"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/siderolabs/sdr-entropy/crypt"
	"github.com/siderolabs/sdr-entropy/fips"
	"github.com/siderolabs/sdr-entropy/source"
)

// Default paths.
const (
	DefaultFIFOPath = "/var/run/sdr-entropy.fifo"
	DefaultPIDFile  = "/var/run/sdr-entropy.pid"
)

// FilePrefix marks a capture file in the sample source setting.
const FilePrefix = "file:"

// Config is the daemon configuration.
type Config struct {
	Source  string `yaml:"source"`
	Capture string `yaml:"capture"`

	Frequency  Hertz   `yaml:"frequency"`
	SampleRate Hertz   `yaml:"sampleRate"`
	Gain       float64 `yaml:"gain"`
	AGC        bool    `yaml:"agc"`
	Device     int     `yaml:"device"`

	Output  string `yaml:"output"`
	Daemon  bool   `yaml:"daemon"`
	PIDFile string `yaml:"pidFile"`
	User    string `yaml:"user"`
	Group   string `yaml:"group"`

	Encrypt   bool   `yaml:"encrypt"`
	Cipher    string `yaml:"cipher"`
	Hash      string `yaml:"hash"`
	KeyPolicy string `yaml:"keyPolicy"`
	HoldLimit int    `yaml:"holdLimit"`
	BlockSize int    `yaml:"blockSize"`

	StatsInterval time.Duration `yaml:"statsInterval"`
	Debug         bool          `yaml:"debug"`

	// ConfigPath is the YAML file the configuration was loaded from.
	ConfigPath string `yaml:"-"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Frequency:     source.DefaultFrequency,
		SampleRate:    source.DefaultSampleRate,
		Gain:          -1,
		PIDFile:       DefaultPIDFile,
		Cipher:        crypt.CipherAESCBC,
		Hash:          crypt.HashSHA512,
		KeyPolicy:     "drop",
		HoldLimit:     16,
		BlockSize:     fips.BlockSize,
		StatsInterval: time.Minute,
	}
}

// RegisterFlags binds the command line flags to the configuration fields.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.Float64Var(&c.Gain, "a", c.Gain, "gain in dB, negative selects automatic gain")
	fs.IntVar(&c.Device, "d", c.Device, "device index, selects rtl_tcp port 1234+index when -source is not set")
	fs.BoolVar(&c.Encrypt, "e", c.Encrypt, "encrypt output with a key derived from discarded bits")
	fs.Var(&c.Frequency, "f", "frequency to listen on, SI suffixes allowed")
	fs.Var(&c.SampleRate, "s", "sample rate, SI suffixes allowed")
	fs.BoolVar(&c.AGC, "agc", c.AGC, "enable RTL2832 automatic gain control")
	fs.StringVar(&c.Output, "o", c.Output, "output file (default: stdout, "+DefaultFIFOPath+" in daemon mode)")
	fs.BoolVar(&c.Daemon, "b", c.Daemon, "daemon mode: serve a FIFO and wait for new readers")
	fs.StringVar(&c.PIDFile, "p", c.PIDFile, "PID file in daemon mode")
	fs.StringVar(&c.User, "u", c.User, "user to run as after opening the device")
	fs.StringVar(&c.Group, "g", c.Group, "group to run as after opening the device")

	fs.StringVar(&c.Source, "source", c.Source, "rtl_tcp address, or "+FilePrefix+"PATH to replay a capture")
	fs.StringVar(&c.Capture, "capture", c.Capture, "record raw samples into a zstd-compressed capture")
	fs.StringVar(&c.Cipher, "cipher", c.Cipher, "cipher for encrypted output ("+crypt.CipherAESCBC+", "+crypt.CipherChaCha20+")")
	fs.StringVar(&c.Hash, "hash", c.Hash, "hash deriving keys from the discard pool ("+crypt.HashSHA512+", "+crypt.HashBLAKE2b512+")")
	fs.StringVar(&c.KeyPolicy, "key-policy", c.KeyPolicy, "blocks validated before the key pool is primed: drop, hold, pass-through")
	fs.IntVar(&c.HoldLimit, "hold-limit", c.HoldLimit, "blocks kept by the hold key policy")
	fs.IntVar(&c.BlockSize, "block-size", c.BlockSize, "validated block size in bytes, multiple of 2500")
	fs.DurationVar(&c.StatsInterval, "stats-interval", c.StatsInterval, "statistics logging interval, 0 disables")
	fs.BoolVar(&c.Debug, "debug", c.Debug, "enable debug logging")
	fs.StringVar(&c.ConfigPath, "config", c.ConfigPath, "YAML configuration file")
}

// Parse parses the command line.
//
// If a configuration file is given, it is loaded first and explicitly set flags override its values.
func Parse(name string, args []string) (Config, error) {
	cfg := Default()

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	cfg.RegisterFlags(fs)

	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	if fs.NArg() > 0 {
		return cfg, fmt.Errorf("unexpected arguments: %q", fs.Args())
	}

	if cfg.ConfigPath == "" {
		return cfg.resolve()
	}

	fileCfg, err := Load(cfg.ConfigPath)
	if err != nil {
		return cfg, err
	}

	overlay := flag.NewFlagSet(name, flag.ContinueOnError)
	fileCfg.RegisterFlags(overlay)

	var overlayErr error

	fs.Visit(func(f *flag.Flag) {
		if overlayErr == nil {
			overlayErr = overlay.Set(f.Name, f.Value.String())
		}
	})

	if overlayErr != nil {
		return cfg, overlayErr
	}

	fileCfg.ConfigPath = cfg.ConfigPath

	return fileCfg.resolve()
}

// Load reads the YAML configuration file on top of the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	if err = yaml.UnmarshalStrict(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %q: %w", path, err)
	}

	return cfg, nil
}

func (c Config) resolve() (Config, error) {
	if c.Output == "" && c.Daemon {
		c.Output = DefaultFIFOPath
	}

	if c.Source == "" {
		if c.Device < 0 {
			return c, fmt.Errorf("device index should be non-negative: %d", c.Device)
		}

		c.Source = net.JoinHostPort("127.0.0.1", strconv.Itoa(source.DefaultPort+c.Device))
	}

	if c.Frequency == 0 || c.SampleRate == 0 {
		return c, fmt.Errorf("frequency and sample rate should be set")
	}

	return c, nil
}

// CaptureFile returns the capture path if the source replays a capture.
func (c Config) CaptureFile() (string, bool) {
	return strings.CutPrefix(c.Source, FilePrefix)
}

// Tuning returns the receiver configuration.
func (c Config) Tuning() source.Tuning {
	gain := -1
	if c.Gain >= 0 {
		gain = int(math.Round(c.Gain * 10))
	}

	return source.Tuning{
		Frequency:  uint32(c.Frequency),
		SampleRate: uint32(c.SampleRate),
		Gain:       gain,
		AGC:        c.AGC,
	}
}
