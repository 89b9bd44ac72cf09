// SPDX-License-Identifier: MIT

package dsp

// Result carries every measure of one signal.
type Result struct {
	Duration   float64
	Tempo      float64
	BeatFrames []int
	Chroma     []float64
}

// Analyze runs the full measurement chain on a decoded signal: spectrogram,
// harmonic/percussive split, tempo and beats from the percussive part,
// chroma distribution from the harmonic part.
func Analyze(sig *Signal) (*Result, error) {
	spec, err := STFT(sig)
	if err != nil {
		return nil, err
	}
	harmonic, percussive := HPSS(spec)

	tempo, beats := TrackBeats(OnsetEnvelope(percussive), spec.FrameSeconds())
	chroma, err := ChromaDistribution(harmonic)
	if err != nil {
		return nil, err
	}
	return &Result{
		Duration:   sig.Duration(),
		Tempo:      tempo,
		BeatFrames: beats,
		Chroma:     chroma,
	}, nil
}
