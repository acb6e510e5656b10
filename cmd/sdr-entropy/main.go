// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package main implements the sdr-entropy daemon.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	entropy "github.com/siderolabs/sdr-entropy"
	"github.com/siderolabs/sdr-entropy/crypt"
	"github.com/siderolabs/sdr-entropy/internal/config"
	"github.com/siderolabs/sdr-entropy/internal/daemon"
	"github.com/siderolabs/sdr-entropy/source"
)

const fifoPollInterval = 100 * time.Millisecond

func main() {
	cfg, err := config.Parse(os.Args[0], os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}

		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	defer logger.Sync() //nolint:errcheck

	// broken pipes are reported as EPIPE write errors
	signal.Ignore(syscall.SIGPIPE)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	err = run(ctx, cfg, logger, os.Stdout)

	stop()

	if err != nil {
		logger.Error("sdr-entropy failed", zap.Error(err))
		logger.Sync() //nolint:errcheck

		os.Exit(1)
	}
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	var zapCfg zap.Config

	if cfg.Daemon {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	if cfg.Debug {
		zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}

	return zapCfg.Build()
}

// run is the daemon body, it returns nil on clean shutdown.
//
//nolint:gocognit,gocyclo,cyclop
func run(ctx context.Context, cfg config.Config, logger *zap.Logger, stdout *os.File) error {
	opts, err := pipelineOptions(cfg, logger)
	if err != nil {
		return err
	}

	src, err := openSource(ctx, cfg, logger)
	if err != nil {
		return err
	}

	closeSource := sync.OnceValue(src.Close)
	defer closeSource() //nolint:errcheck

	// unblock a pending read on shutdown
	stopClose := context.AfterFunc(ctx, func() { closeSource() }) //nolint:errcheck
	defer stopClose()

	var samples io.Reader = src

	if cfg.Capture != "" {
		f, err := os.Create(cfg.Capture)
		if err != nil {
			return fmt.Errorf("failed to create capture: %w", err)
		}

		defer f.Close() //nolint:errcheck

		capture, err := source.Tee(src, f)
		if err != nil {
			return err
		}

		defer func() {
			if err := capture.Close(); err != nil {
				logger.Error("failed to flush capture", zap.Error(err))
			}
		}()

		samples = capture
	}

	var creds *daemon.Credentials

	if cfg.User != "" {
		c, err := daemon.LookupCredentials(cfg.User, cfg.Group)
		if err != nil {
			return err
		}

		creds = &c
	}

	if cfg.Daemon {
		if err = entropy.MakeFIFO(cfg.Output); err != nil {
			return err
		}

		if creds != nil {
			// the FIFO is reopened for every new reader after privileges are dropped
			if err = os.Chown(cfg.Output, creds.UID, creds.GID); err != nil {
				return fmt.Errorf("failed to change FIFO owner: %w", err)
			}
		}

		if cfg.PIDFile != "" {
			if err = daemon.WritePIDFile(cfg.PIDFile); err != nil {
				return err
			}

			defer func() {
				if err := daemon.RemovePIDFile(cfg.PIDFile); err != nil {
					logger.Warn("failed to remove PID file", zap.String("path", cfg.PIDFile), zap.Error(err))
				}
			}()
		}
	}

	if creds != nil {
		if err = daemon.DropPrivileges(*creds, logger); err != nil {
			return err
		}
	}

	channel, err := openChannel(ctx, cfg, logger, stdout)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}

		return err
	}

	defer channel.Close() //nolint:errcheck

	pipeline, err := entropy.NewPipeline(samples, channel, opts...)
	if err != nil {
		return err
	}

	err = pipeline.Run(ctx)
	if errors.Is(err, entropy.ErrReaderGone) {
		logger.Info("reader went away, exiting")

		return nil
	}

	return err
}

func pipelineOptions(cfg config.Config, logger *zap.Logger) ([]entropy.OptionFunc, error) {
	keyPolicy, err := entropy.ParseKeyPolicy(cfg.KeyPolicy)
	if err != nil {
		return nil, err
	}

	keyHash, err := crypt.HashByName(cfg.Hash)
	if err != nil {
		return nil, err
	}

	opts := []entropy.OptionFunc{
		entropy.WithLogger(logger),
		entropy.WithBlockSize(cfg.BlockSize),
		entropy.WithKeyHash(keyHash),
		entropy.WithKeyPolicy(keyPolicy),
		entropy.WithHoldLimit(cfg.HoldLimit),
		entropy.WithStatsInterval(cfg.StatsInterval),
	}

	if cfg.Encrypt {
		cipher, err := crypt.CipherByName(cfg.Cipher)
		if err != nil {
			return nil, err
		}

		opts = append(opts, entropy.WithEncryption(cipher))
	}

	return opts, nil
}

func openSource(ctx context.Context, cfg config.Config, logger *zap.Logger) (io.ReadCloser, error) {
	if path, ok := cfg.CaptureFile(); ok {
		logger.Info("replaying capture", zap.String("path", path))

		return source.OpenFile(path)
	}

	return source.DialRTLTCP(ctx, cfg.Source, cfg.Tuning(), logger)
}

func openChannel(ctx context.Context, cfg config.Config, logger *zap.Logger, stdout *os.File) (*entropy.Channel, error) {
	if cfg.Daemon {
		return entropy.NewPipeChannel(ctx, entropy.OpenFIFO(cfg.Output, fifoPollInterval), true, logger)
	}

	if cfg.Output == "" || cfg.Output == "-" {
		info, err := stdout.Stat()
		if err != nil {
			return nil, err
		}

		if info.Mode().Type() == os.ModeNamedPipe {
			return entropy.NewPipeChannel(ctx, func(context.Context) (io.WriteCloser, error) {
				return stdout, nil
			}, false, logger)
		}

		return entropy.NewDirectChannel(stdout, logger), nil
	}

	if info, err := os.Stat(cfg.Output); err == nil && info.Mode().Type() == os.ModeNamedPipe {
		return entropy.NewPipeChannel(ctx, entropy.OpenFIFO(cfg.Output, fifoPollInterval), false, logger)
	}

	f, err := os.Create(cfg.Output)
	if err != nil {
		return nil, fmt.Errorf("failed to create output: %w", err)
	}

	return entropy.NewDirectChannel(f, logger), nil
}
