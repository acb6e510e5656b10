// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package config

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Hertz is a frequency which parses SI suffixes: 70M, 3.2M, 433.92e6.
type Hertz uint32

// String implements flag.Value.
func (h Hertz) String() string {
	return strconv.FormatUint(uint64(h), 10)
}

// Set implements flag.Value.
func (h *Hertz) Set(value string) error {
	var (
		mantissa float64
		suffix   string
	)

	mantissa, err := strconv.ParseFloat(value, 64)
	if err != nil {
		if _, err = fmt.Sscanf(value, "%f%s", &mantissa, &suffix); err != nil {
			return fmt.Errorf("invalid frequency %q", value)
		}

		switch strings.ToLower(suffix) {
		case "k":
			mantissa *= 1e3
		case "m":
			mantissa *= 1e6
		case "g":
			mantissa *= 1e9
		default:
			return fmt.Errorf("invalid frequency suffix %q", suffix)
		}
	}

	mantissa = math.Round(mantissa)

	if mantissa < 0 || mantissa > math.MaxUint32 {
		return fmt.Errorf("frequency out of range: %s", value)
	}

	*h = Hertz(mantissa)

	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (h *Hertz) UnmarshalYAML(unmarshal func(any) error) error {
	var s string

	if err := unmarshal(&s); err != nil {
		return err
	}

	return h.Set(s)
}
