// SPDX-License-Identifier: MIT

package dsp

import "sort"

// Median filter width for the harmonic/percussive split. Odd so the window
// centers on the element; 17 frames is ~200 ms of context at the default
// hop.
const medianKernel = 17

// HPSS splits a magnitude spectrogram into harmonic and percussive parts.
// Harmonic energy is smooth across time, percussive energy across frequency;
// median filtering along each axis isolates one and soft masks carve the
// original magnitudes apart.
func HPSS(spec *Spectrogram) (harmonic, percussive *Spectrogram) {
	frames := spec.Frames()
	hMag := make([][]float64, frames)
	pMag := make([][]float64, frames)

	timeMedian := medianAcrossTime(spec.Mag)
	for f := 0; f < frames; f++ {
		freqMedian := medianAcrossFreq(spec.Mag[f])
		hRow := make([]float64, len(spec.Mag[f]))
		pRow := make([]float64, len(spec.Mag[f]))
		for k := range spec.Mag[f] {
			h := timeMedian[f][k]
			p := freqMedian[k]
			h2, p2 := h*h, p*p
			if h2+p2 == 0 {
				continue
			}
			hRow[k] = spec.Mag[f][k] * (h2 / (h2 + p2))
			pRow[k] = spec.Mag[f][k] * (p2 / (h2 + p2))
		}
		hMag[f] = hRow
		pMag[f] = pRow
	}
	return &Spectrogram{Rate: spec.Rate, Mag: hMag}, &Spectrogram{Rate: spec.Rate, Mag: pMag}
}

// medianAcrossTime filters each bin's trajectory over frames.
func medianAcrossTime(mag [][]float64) [][]float64 {
	frames := len(mag)
	bins := len(mag[0])
	out := make([][]float64, frames)
	for f := range out {
		out[f] = make([]float64, bins)
	}
	column := make([]float64, frames)
	scratch := make([]float64, 0, medianKernel)
	for k := 0; k < bins; k++ {
		for f := 0; f < frames; f++ {
			column[f] = mag[f][k]
		}
		for f := 0; f < frames; f++ {
			out[f][k] = windowMedian(column, f, scratch)
		}
	}
	return out
}

// medianAcrossFreq filters one frame's spectrum over bins.
func medianAcrossFreq(row []float64) []float64 {
	out := make([]float64, len(row))
	scratch := make([]float64, 0, medianKernel)
	for k := range row {
		out[k] = windowMedian(row, k, scratch)
	}
	return out
}

// windowMedian returns the median of the kernel window centered at i,
// shrunk at the edges.
func windowMedian(values []float64, i int, scratch []float64) float64 {
	lo := i - medianKernel/2
	if lo < 0 {
		lo = 0
	}
	hi := i + medianKernel/2 + 1
	if hi > len(values) {
		hi = len(values)
	}
	scratch = append(scratch[:0], values[lo:hi]...)
	sort.Float64s(scratch)
	return scratch[len(scratch)/2]
}
