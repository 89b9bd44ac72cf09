// SPDX-License-Identifier: MIT

package dsp

import (
	"fmt"
	"math/cmplx"
)

// Analysis frame geometry. A 2048-sample window at 44.1 kHz is ~46 ms with
// ~12 ms hops, fine enough for beat positions and coarse enough to keep
// spectrogram passes cheap.
const (
	frameLen = 2048
	hopLen   = 512
	specBins = frameLen/2 + 1
)

// Spectrogram is a magnitude short-time spectrum: Mag[frame][bin].
type Spectrogram struct {
	Rate int
	Mag  [][]float64
}

// Frames returns the frame count.
func (s *Spectrogram) Frames() int {
	return len(s.Mag)
}

// BinFreq returns the center frequency of a bin in Hz.
func (s *Spectrogram) BinFreq(bin int) float64 {
	return float64(bin) * float64(s.Rate) / frameLen
}

// FrameSeconds returns the hop duration in seconds.
func (s *Spectrogram) FrameSeconds() float64 {
	return float64(hopLen) / float64(s.Rate)
}

// STFT computes the magnitude spectrogram of a signal. The signal must span
// at least one analysis frame.
func STFT(sig *Signal) (*Spectrogram, error) {
	if len(sig.Samples) < frameLen {
		return nil, fmt.Errorf("dsp: signal shorter than one analysis frame (%d < %d samples)", len(sig.Samples), frameLen)
	}
	window := hannWindow(frameLen)
	frames := 1 + (len(sig.Samples)-frameLen)/hopLen

	mag := make([][]float64, frames)
	buf := make([]complex128, frameLen)
	for f := 0; f < frames; f++ {
		start := f * hopLen
		for i := 0; i < frameLen; i++ {
			buf[i] = complex(sig.Samples[start+i]*window[i], 0)
		}
		fft(buf)
		row := make([]float64, specBins)
		for k := 0; k < specBins; k++ {
			row[k] = cmplx.Abs(buf[k])
		}
		mag[f] = row
	}
	return &Spectrogram{Rate: sig.Rate, Mag: mag}, nil
}
