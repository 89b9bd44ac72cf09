// SPDX-License-Identifier: MIT

package pathparse

import (
	"reflect"
	"testing"
)

func TestParseLabelledTempoAndKey(t *testing.T) {
	got := Parse("Label - Title/Drums 128bpm/01 F#min Kick.wav")
	if got.Tempo != "128" {
		t.Errorf("tempo = %q, want 128", got.Tempo)
	}
	if got.Key != "F#min" {
		t.Errorf("key = %q, want F#min", got.Key)
	}
	if !reflect.DeepEqual(got.Tokens, []string{"drums", "kick"}) {
		t.Errorf("tokens = %v, want [drums kick]", got.Tokens)
	}
}

func TestParseTempo(t *testing.T) {
	cases := []struct {
		path string
		want string
	}{
		{"A - B/loops/tight 140 bpm groove.wav", "140"},
		{"A - B/bpm128 kick.wav", "128"},
		{"A - B/drums/groove 95.wav", "95"},
		{"A - B/takes/take 999.wav", ""},       // single candidate out of bounds
		{"A - B/90 to 160 set.wav", "90"},      // only 90 in 80-140
		{"A - B/100 120 set.wav", ""},          // ambiguous in every range
		{"A - B/bpmx 128 kick.wav", ""},        // bpm label present but unmatched
		{"A - B/drums/kick808loop 45.wav", "45"}, // embedded digits are not candidates
		{"A - B/texture.wav", ""},
	}
	for _, tc := range cases {
		if got := Parse(tc.path); got.Tempo != tc.want {
			t.Errorf("Parse(%q).Tempo = %q, want %q", tc.path, got.Tempo, tc.want)
		}
	}
}

func TestParseKeySignature(t *testing.T) {
	cases := []struct {
		path string
		want string
	}{
		{"A - B/pads/warm a min pad.wav", "Amin"},
		{"A - B/keys/c sharp stabs.wav", "C#"},
		{"A - B/b major riff.wav", "B"},
		{"A - B/keys/dflat stab.wav", "Db"},
		{"A - B/leads/goodflat lead.wav", ""}, // no boundary inside a word
		{"A - B/keys/e flat min arp.wav", "Ebmin"},
		{"A - B/gb7 voicing.wav", "Gb7"},
		{"A - B/texture.wav", ""},
	}
	for _, tc := range cases {
		if got := Parse(tc.path); got.Key != tc.want {
			t.Errorf("Parse(%q).Key = %q, want %q", tc.path, got.Key, tc.want)
		}
	}
}

func TestParseTokenFilters(t *testing.T) {
	got := Parse("A - B/@producer xxx aa kick fire.wav")
	want := []string{"kick", "fire"}
	if !reflect.DeepEqual(got.Tokens, want) {
		t.Errorf("tokens = %v, want %v", got.Tokens, want)
	}
}

func TestParseAlphanumericSplitKeepsAllowlist(t *testing.T) {
	got := Parse("A - B/drums/kick808loop 45.wav")
	want := []string{"drums", "kick", "808", "loop"}
	if !reflect.DeepEqual(got.Tokens, want) {
		t.Errorf("tokens = %v, want %v", got.Tokens, want)
	}
}

func TestParseVocabularyFolding(t *testing.T) {
	got := Parse("A - B/hi hat loops/lo fi hh groove.wav")
	want := []string{"hihat", "loops", "lofi", "hihat", "groove"}
	if !reflect.DeepEqual(got.Tokens, want) {
		t.Errorf("tokens = %v, want %v", got.Tokens, want)
	}
}

func TestParseFoldsDiacritics(t *testing.T) {
	got := Parse("A - B/café $ound.wav")
	want := []string{"cafe", "sound"}
	if !reflect.DeepEqual(got.Tokens, want) {
		t.Errorf("tokens = %v, want %v", got.Tokens, want)
	}
}

func TestParseDropsExtensionAndRoot(t *testing.T) {
	got := Parse("Label - Title/kick.wav")
	if got.Path != "kick" {
		t.Errorf("path = %q, want kick", got.Path)
	}
	if !reflect.DeepEqual(got.Tokens, []string{"kick"}) {
		t.Errorf("tokens = %v, want [kick]", got.Tokens)
	}
}

func TestTempoDisambiguationUniqueness(t *testing.T) {
	cases := []struct {
		candidates []string
		want       string
	}{
		{[]string{"90", "160"}, "90"},        // unique in 80-140
		{[]string{"150", "42"}, "150"},       // unique in 60-180
		{[]string{"200", "30", "35"}, "200"}, // unique in 40-240... 30,35 below 40
		{[]string{"100", "120"}, ""},         // two in the narrowest range
		{[]string{"310", "19"}, ""},          // nothing in any range
	}
	for _, tc := range cases {
		if _, got := tempoFromCandidates(tc.candidates); got != tc.want {
			t.Errorf("tempoFromCandidates(%v) = %q, want %q", tc.candidates, got, tc.want)
		}
	}
}
