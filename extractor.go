// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package entropy

// ExaminedBits is the number of least significant bits of every raw sample which are examined
// by the extractor, as three adjacent pairs: [0,1], [2,3], [4,5].
//
// The two most significant bits of a sample are never looked at. This is kept for
// compatibility with the historical output of the daemon and is subject to operator review.
const ExaminedBits = 6

// Extraction is the result of Von Neumann debiasing of a single raw sample.
//
// Bits are stored LSB-first in examination order.
type Extraction struct {
	accepted   uint8
	discarded  uint8
	nAccepted  uint8
	nDiscarded uint8
}

// NumAccepted returns the number of accepted bits (0..3).
func (e Extraction) NumAccepted() int {
	return int(e.nAccepted)
}

// NumDiscarded returns the number of discarded bits (0..6, always even).
func (e Extraction) NumDiscarded() int {
	return int(e.nDiscarded)
}

// Accepted returns i-th accepted bit.
func (e Extraction) Accepted(i int) byte {
	return (e.accepted >> i) & 1
}

// Discarded returns i-th discarded bit.
func (e Extraction) Discarded(i int) byte {
	return (e.discarded >> i) & 1
}

// extractionLUT holds pre-computed extractions for every possible sample value.
var extractionLUT = newExtractionLUT()

func newExtractionLUT() (lut [256]Extraction) {
	for sample := range lut {
		var e Extraction

		for shift := 0; shift < ExaminedBits; shift += 2 {
			b0 := uint8(sample>>shift) & 1
			b1 := uint8(sample>>(shift+1)) & 1

			if b0 != b1 {
				// keep the first bit of a differing pair
				e.accepted |= b0 << e.nAccepted
				e.nAccepted++
			} else {
				e.discarded |= b0<<e.nDiscarded | b1<<(e.nDiscarded+1)
				e.nDiscarded += 2
			}
		}

		lut[sample] = e
	}

	return lut
}

// Extract applies Von Neumann debiasing to the examined bit pairs of the sample.
//
// Differing pairs contribute their first bit to the accepted bits, equal pairs
// contribute both bits to the discarded bits.
func Extract(sample byte) Extraction {
	return extractionLUT[sample]
}
