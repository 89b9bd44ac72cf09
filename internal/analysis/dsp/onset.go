// SPDX-License-Identifier: MIT

package dsp

import "math"

// OnsetEnvelope computes the spectral-flux onset strength per frame: the
// sum of positive log-magnitude increases across bins, normalized to peak
// at 1. Run it on the percussive spectrogram so sustained notes do not
// register as onsets.
func OnsetEnvelope(spec *Spectrogram) []float64 {
	frames := spec.Frames()
	env := make([]float64, frames)
	for f := 1; f < frames; f++ {
		var flux float64
		prev, cur := spec.Mag[f-1], spec.Mag[f]
		for k := range cur {
			d := math.Log1p(cur[k]) - math.Log1p(prev[k])
			if d > 0 {
				flux += d
			}
		}
		env[f] = flux
	}

	peak := 0.0
	for _, v := range env {
		if v > peak {
			peak = v
		}
	}
	if peak > 0 {
		for f := range env {
			env[f] /= peak
		}
	}
	return env
}
