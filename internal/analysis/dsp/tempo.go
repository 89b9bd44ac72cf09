// SPDX-License-Identifier: MIT

package dsp

import "math"

// Tempo search bounds in BPM. The prior centers on 120, one octave of
// standard deviation, so autocorrelation peaks near common tempos win over
// their half/double aliases.
const (
	tempoMin   = 30
	tempoMax   = 300
	tempoPrior = 120
)

// Octave disambiguation ranges, narrowest first. When exactly one of the
// half/base/double candidates falls in a range, that candidate is the tempo.
var octaveRanges = [3][2]float64{{80, 140}, {60, 180}, {40, 240}}

// TrackBeats estimates the tempo of an onset envelope and places beats on
// it. frameSeconds is the envelope's hop duration. A signal with no onsets
// reports tempo 0 and no beats.
func TrackBeats(env []float64, frameSeconds float64) (tempo float64, beats []int) {
	var energy float64
	for _, v := range env {
		energy += v
	}
	if energy == 0 {
		return 0, nil
	}

	minLag := int(math.Ceil(60 / (tempoMax * frameSeconds)))
	if minLag < 1 {
		minLag = 1
	}
	maxLag := int(math.Floor(60 / (tempoMin * frameSeconds)))
	if maxLag >= len(env) {
		maxLag = len(env) - 1
	}
	if maxLag < minLag {
		return 0, nil
	}

	bestLag, bestScore := 0, 0.0
	for lag := minLag; lag <= maxLag; lag++ {
		var ac float64
		for t := 0; t+lag < len(env); t++ {
			ac += env[t] * env[t+lag]
		}
		bpm := 60 / (float64(lag) * frameSeconds)
		octaves := math.Log2(bpm / tempoPrior)
		score := ac * math.Exp(-0.5*octaves*octaves)
		if score > bestScore {
			bestLag, bestScore = lag, score
		}
	}
	if bestLag == 0 {
		return 0, nil
	}

	tempo = disambiguateOctave(60 / (float64(bestLag) * frameSeconds))
	period := int(math.Round(60 / (tempo * frameSeconds)))
	if period < 1 {
		period = 1
	}
	return tempo, placeBeats(env, period)
}

// disambiguateOctave resolves half/double tempo aliases: the candidate that
// is alone inside a range wins, trying the narrowest range first. No unique
// winner keeps the measured tempo.
func disambiguateOctave(measured float64) float64 {
	var candidates []float64
	for _, c := range [3]float64{measured / 2, measured, measured * 2} {
		if c >= tempoMin && c <= tempoMax {
			candidates = append(candidates, c)
		}
	}
	for _, r := range octaveRanges {
		matched, count := 0.0, 0
		for _, c := range candidates {
			if c >= r[0] && c <= r[1] {
				matched = c
				count++
			}
		}
		if count == 1 {
			return matched
		}
	}
	return measured
}

// placeBeats walks outward from the strongest onset in period-sized steps,
// snapping each beat to the local envelope maximum so small tempo drift does
// not accumulate.
func placeBeats(env []float64, period int) []int {
	anchor := 0
	for i, v := range env {
		if v > env[anchor] {
			anchor = i
		}
	}

	tolerance := period / 5
	if tolerance < 1 {
		tolerance = 1
	}

	var reversed []int
	for pos := anchor - period; pos >= 0; pos -= period {
		reversed = append(reversed, snapToMax(env, pos, tolerance))
	}
	beats := make([]int, 0, len(reversed)+1+(len(env)-anchor)/period)
	for i := len(reversed) - 1; i >= 0; i-- {
		beats = append(beats, reversed[i])
	}
	beats = append(beats, anchor)
	for pos := anchor + period; pos < len(env); pos += period {
		beats = append(beats, snapToMax(env, pos, tolerance))
	}
	return dedupeAscending(beats)
}

// dedupeAscending drops repeats produced by snap windows overlapping at
// very short periods.
func dedupeAscending(beats []int) []int {
	out := beats[:0]
	for i, b := range beats {
		if i > 0 && b <= out[len(out)-1] {
			continue
		}
		out = append(out, b)
	}
	return out
}

func snapToMax(env []float64, pos, tolerance int) int {
	lo := pos - tolerance
	if lo < 0 {
		lo = 0
	}
	hi := pos + tolerance
	if hi > len(env)-1 {
		hi = len(env) - 1
	}
	best := pos
	for i := lo; i <= hi; i++ {
		if env[i] > env[best] {
			best = i
		}
	}
	return best
}
