// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package source

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"

	"go.uber.org/zap"
)

// rtl_tcp command codes.
const (
	cmdSetFrequency  = 0x01
	cmdSetSampleRate = 0x02
	cmdSetGainMode   = 0x03
	cmdSetGain       = 0x04
	cmdSetAGCMode    = 0x08
)

// Default tuning, 70 MHz at 3.2 Msps.
const (
	DefaultFrequency  = 70_000_000
	DefaultSampleRate = 3_200_000
	DefaultPort       = 1234
)

var rtlMagic = []byte("RTL0")

// Tuning is the receiver configuration sent to rtl_tcp on connect.
type Tuning struct {
	Frequency  uint32
	SampleRate uint32

	// Gain in tenths of dB, negative selects tuner automatic gain.
	Gain int

	AGC bool
}

// DefaultTuning returns the default receiver configuration.
func DefaultTuning() Tuning {
	return Tuning{
		Frequency:  DefaultFrequency,
		SampleRate: DefaultSampleRate,
		Gain:       -1,
	}
}

// RTLTCP is a connection to an rtl_tcp server streaming raw 8-bit samples.
type RTLTCP struct {
	conn net.Conn

	TunerType uint32
	GainCount uint32
}

// DialRTLTCP connects to the rtl_tcp server at addr and tunes the receiver.
//
// ctx bounds the connection setup only.
func DialRTLTCP(ctx context.Context, addr string, tuning Tuning, logger *zap.Logger) (*RTLTCP, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var d net.Dialer

	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rtl_tcp: %w", err)
	}

	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Now()) //nolint:errcheck
	})

	r := &RTLTCP{conn: conn}

	err = r.handshake(tuning)

	if !stop() {
		err = ctx.Err()
	}

	if err != nil {
		conn.Close() //nolint:errcheck

		return nil, err
	}

	logger.Info("connected to rtl_tcp",
		zap.String("addr", addr),
		zap.Uint32("tuner_type", r.TunerType),
		zap.Uint32("gain_count", r.GainCount),
		zap.Uint32("frequency", tuning.Frequency),
		zap.Uint32("sample_rate", tuning.SampleRate),
		zap.Int("gain", tuning.Gain),
	)

	return r, nil
}

func (r *RTLTCP) handshake(tuning Tuning) error {
	var header [12]byte

	if _, err := io.ReadFull(r.conn, header[:]); err != nil {
		return fmt.Errorf("failed to read rtl_tcp header: %w", err)
	}

	if !bytes.Equal(header[:4], rtlMagic) {
		return fmt.Errorf("unexpected rtl_tcp magic %q", header[:4])
	}

	r.TunerType = binary.BigEndian.Uint32(header[4:8])
	r.GainCount = binary.BigEndian.Uint32(header[8:12])

	commands := [][2]uint32{
		{cmdSetSampleRate, tuning.SampleRate},
		{cmdSetFrequency, tuning.Frequency},
	}

	if tuning.Gain < 0 {
		commands = append(commands, [2]uint32{cmdSetGainMode, 0})
	} else {
		commands = append(commands, [2]uint32{cmdSetGainMode, 1}, [2]uint32{cmdSetGain, uint32(tuning.Gain)})
	}

	var agc uint32
	if tuning.AGC {
		agc = 1
	}

	commands = append(commands, [2]uint32{cmdSetAGCMode, agc})

	buf := make([]byte, 0, 5*len(commands))

	for _, cmd := range commands {
		buf = append(buf, byte(cmd[0]))
		buf = binary.BigEndian.AppendUint32(buf, cmd[1])
	}

	if _, err := r.conn.Write(buf); err != nil {
		return fmt.Errorf("failed to tune receiver: %w", err)
	}

	return nil
}

// Read implements io.Reader.
func (r *RTLTCP) Read(p []byte) (int, error) {
	return r.conn.Read(p)
}

// Close implements io.Closer.
func (r *RTLTCP) Close() error {
	return r.conn.Close()
}
