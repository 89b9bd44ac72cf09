// SPDX-License-Identifier: MIT

package dsp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

// tone renders a sine at freq Hz, amp peak, for n samples.
func tone(freq, amp float64, rate, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = amp * math.Sin(2*math.Pi*freq*float64(i)/float64(rate))
	}
	return out
}

// withClicks overlays short alternating-sign bursts every period samples.
func withClicks(samples []float64, period int) []float64 {
	out := make([]float64, len(samples))
	copy(out, samples)
	for start := 0; start < len(out); start += period {
		for i := 0; i < 64 && start+i < len(out); i++ {
			if i%2 == 0 {
				out[start+i] += 0.8
			} else {
				out[start+i] -= 0.8
			}
		}
	}
	return out
}

func TestSTFTPeaksAtToneBin(t *testing.T) {
	rate := 22050
	// Center the tone exactly on bin 100 so leakage stays negligible.
	freq := 100.0 * float64(rate) / frameLen
	sig := &Signal{Rate: rate, Samples: tone(freq, 0.9, rate, rate)}

	spec, err := STFT(sig)
	require.NoError(t, err)
	require.Greater(t, spec.Frames(), 0)

	peak := 0
	for k, v := range spec.Mag[spec.Frames()/2] {
		if v > spec.Mag[spec.Frames()/2][peak] {
			peak = k
		}
	}
	require.Equal(t, 100, peak)
	require.InDelta(t, freq, spec.BinFreq(peak), 1e-9)
}

func TestSTFTRejectsShortSignal(t *testing.T) {
	_, err := STFT(&Signal{Rate: 22050, Samples: make([]float64, frameLen-1)})
	require.Error(t, err)
}

func TestHPSSSeparatesToneFromClicks(t *testing.T) {
	rate := 22050
	freq := 80.0 * float64(rate) / frameLen
	samples := withClicks(tone(freq, 0.6, rate, 2*rate), rate/2)
	spec, err := STFT(&Signal{Rate: rate, Samples: samples})
	require.NoError(t, err)

	harmonic, percussive := HPSS(spec)

	// The tone bin keeps most of its energy on the harmonic side.
	var hTone, pTone float64
	for f := 0; f < spec.Frames(); f++ {
		hTone += harmonic.Mag[f][80]
		pTone += percussive.Mag[f][80]
	}
	require.Greater(t, hTone, pTone)

	// Flux around a click towers over flux in the steady tone between
	// clicks.
	env := OnsetEnvelope(percussive)
	clickFrame := (rate / 2) / hopLen
	var clicky, quiet float64
	for f := clickFrame - 3; f <= clickFrame+3; f++ {
		clicky = math.Max(clicky, env[f])
	}
	for f := clickFrame + 8; f <= clickFrame+14; f++ {
		quiet = math.Max(quiet, env[f])
	}
	require.Greater(t, clicky, 3*quiet)
}

func TestTrackBeatsOnImpulseTrain(t *testing.T) {
	// 120 BPM at a 25 ms hop is one beat every 20 frames.
	fd := 0.025
	env := make([]float64, 400)
	for i := 0; i < len(env); i += 20 {
		env[i] = 1.0
	}

	tempo, beats := TrackBeats(env, fd)
	require.InDelta(t, 120.0, tempo, 0.5)
	require.Len(t, beats, 20)
	require.Equal(t, 0, beats[0])
	for i := 1; i < len(beats); i++ {
		require.Equal(t, 20, beats[i]-beats[i-1])
	}
}

func TestTrackBeatsSilence(t *testing.T) {
	tempo, beats := TrackBeats(make([]float64, 200), 0.025)
	require.Zero(t, tempo)
	require.Empty(t, beats)
}

func TestDisambiguateOctave(t *testing.T) {
	cases := []struct {
		measured float64
		want     float64
	}{
		{128, 128}, // already in the narrow range
		{170, 85},  // halved into 80-140
		{60, 120},  // doubled into 80-140
		{200, 100}, // halved
		{30, 60},   // doubled into 60-180
		{300, 150}, // halved into 60-180
		{120, 120}, // prior center stays put
	}
	for _, c := range cases {
		require.InDelta(t, c.want, disambiguateOctave(c.measured), 1e-9, "measured %v", c.measured)
	}
}

func TestChromaDistributionOfPureTone(t *testing.T) {
	rate := 22050
	sig := &Signal{Rate: rate, Samples: tone(440, 0.8, rate, 2*rate)}
	spec, err := STFT(sig)
	require.NoError(t, err)

	dist, err := ChromaDistribution(spec)
	require.NoError(t, err)
	require.Len(t, dist, 12)

	var sum float64
	for _, v := range dist {
		require.GreaterOrEqual(t, v, 0.0)
		sum += v
	}
	require.InDelta(t, 1.0, sum, 1e-9)
	// A440 is pitch class 9.
	require.Greater(t, dist[9], 0.9)
}

func TestChromaDistributionRejectsSilence(t *testing.T) {
	spec, err := STFT(&Signal{Rate: 22050, Samples: make([]float64, 3*frameLen)})
	require.NoError(t, err)
	_, err = ChromaDistribution(spec)
	require.Error(t, err)
}

func TestAnalyzeEndToEnd(t *testing.T) {
	rate := 22050
	// Five seconds of A440 with clicks every half second: 120 BPM.
	samples := withClicks(tone(440, 0.5, rate, 5*rate), rate/2)
	res, err := Analyze(&Signal{Rate: rate, Samples: samples})
	require.NoError(t, err)

	require.InDelta(t, 5.0, res.Duration, 1e-6)
	require.InDelta(t, 120.0, res.Tempo, 5.0)
	require.NotEmpty(t, res.BeatFrames)
	for i := 1; i < len(res.BeatFrames); i++ {
		require.Greater(t, res.BeatFrames[i], res.BeatFrames[i-1])
	}
	require.Len(t, res.Chroma, 12)
	require.Greater(t, res.Chroma[9], 0.5)
}
