// SPDX-License-Identifier: MIT

package dsp

import (
	"fmt"
	"math"
)

// Pitch fold bounds: C1 through B7. Bins outside carry rumble and cymbal
// wash, not pitch content.
const (
	chromaMinHz = 32.70
	chromaMaxHz = 3951.07
)

// ChromaDistribution folds a harmonic spectrogram into the 12 pitch classes
// and reduces it to a distribution. Each frame's chroma vector is normalized
// to its peak, values below 1.0 are zeroed so only the dominant class of
// each frame counts, and the per-class sums over all frames are divided by
// their total. The result has 12 channels summing to 1, C first.
func ChromaDistribution(spec *Spectrogram) ([]float64, error) {
	sums := make([]float64, 12)
	frame := make([]float64, 12)

	for f := 0; f < spec.Frames(); f++ {
		for c := range frame {
			frame[c] = 0
		}
		for k, mag := range spec.Mag[f] {
			freq := spec.BinFreq(k)
			if freq < chromaMinHz || freq > chromaMaxHz {
				continue
			}
			frame[pitchClass(freq)] += mag * mag
		}

		peak := 0.0
		for _, v := range frame {
			if v > peak {
				peak = v
			}
		}
		if peak == 0 {
			continue
		}
		for c, v := range frame {
			if v/peak >= 1.0 {
				sums[c] += v / peak
			}
		}
	}

	var total float64
	for _, v := range sums {
		total += v
	}
	if total == 0 {
		return nil, fmt.Errorf("dsp: no pitched content")
	}
	dist := make([]float64, 12)
	for c, v := range sums {
		dist[c] = v / total
	}
	return dist, nil
}

// pitchClass maps a frequency to its class, 0 = C.
func pitchClass(freq float64) int {
	midi := int(math.Round(69 + 12*math.Log2(freq/440)))
	return ((midi % 12) + 12) % 12
}
