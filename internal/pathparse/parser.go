// SPDX-License-Identifier: MIT

// Package pathparse mines tempo, key signature, and descriptive tokens from
// audio file paths. Producers name samples with conventions like
// "Drums 128bpm/01 F#min Kick.wav"; the parser splits the labelled values
// off first so they never pollute the token stream, then tokenizes what
// remains.
package pathparse

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// AudioExtensions are the filetypes whose paths are worth parsing.
var AudioExtensions = []string{"aif", "aiff", "flac", "mid", "midi", "mp3", "ogg", "wav"}

// Parsed is the outcome of parsing one audio path.
type Parsed struct {
	Path   string
	Key    string
	Tempo  string
	Tokens []string
}

const minTokenLen = 3

// Disambiguation ranges for unlabelled tempo candidates, narrowest first,
// plus the absolute bounds a lone candidate must satisfy.
var tempoRanges = [3][2]int{{80, 140}, {60, 180}, {40, 240}}

const (
	tempoFloor = 20
	tempoCeil  = 300
)

var (
	tempoPostfixRe = regexp.MustCompile(`\d{2,3} ?bpm`)
	tempoPrefixRe  = regexp.MustCompile(`bpm ?\d{2,3}\b`)
	tempoBareRe    = regexp.MustCompile(`\b\d{2,3}\b`)
	tempoDigitsRe  = regexp.MustCompile(`\d{2,3}`)

	// keyWindowRe matches a whole candidate window: tonic, optional
	// accidental, optional mode with decorations. Windows are one to three
	// space-normalized tokens, so boundary assertions are implicit.
	keyWindowRe = regexp.MustCompile(`^[a-g] ?(?:b|#|sharp|flat)? ?(?:m(?:in|aj)?)?(?:or)?[2-9]?(?:b|#)?(?:(?:sus|dim)[2-9]?)?$`)
	keyMinorRe  = regexp.MustCompile(`m($|[2-9])`)

	linguisticRe = regexp.MustCompile(`[a-z]`)
)

// spaceAlts are separator characters producers use interchangeably with
// spaces.
var spaceAlts = strings.NewReplacer(
	"/", " ", "_", " ",
	"-", " ", "‒", " ", "–", " ", "—", " ", "−", " ",
	"~", " ", "=", " ", "+", " ", ",", " ", ".", " ", ":", " ",
	"|", " ", "︱", " ",
	"(", " ", ")", " ", "[", " ", "]", " ", "{", " ", "}", " ", "<", " ", ">", " ",
)

var dropChars = strings.NewReplacer(
	"'", "", `"`, "", "!", "", "?", "", ";", "", "^", "", "°", "", "*", "", "`", "", "’", "", "#", "",
)

// decorChars substitutes decorative characters with no combining-mark
// decomposition.
var decorChars = strings.NewReplacer("$", "s", "§", "s")

// stringSubs fold vocabulary variants onto one spelling; applied in order
// after space normalization.
var stringSubs = [...][2]string{
	{"grv", "groove"},
	{"gtr", "guitar"},
	{"hi hat", "hihat"},
	{"hh", "hihat"},
	{"hip hop", "hiphop"},
	{"lo fi", "lofi"},
	{"one shot", "oneshot"},
	{"&amp", ""},
	{"&quot", ""},
}

// allowedNumeric are the purely numeric tokens with domain meaning (drum
// machines, tempo decades) that survive the non-linguistic filter.
var allowedNumeric = map[string]struct{}{
	"50": {}, "60": {}, "70": {}, "80": {}, "90": {},
	"303": {}, "404": {}, "505": {}, "606": {}, "707": {}, "808": {}, "909": {},
}

// Parse extracts tempo, key, and tokens from one audio file path. The first
// path segment is the asset name and is dropped; so is the file extension.
func Parse(path string) Parsed {
	trimmed := trim(strings.ToLower(path))
	spaceNormal := normalSpaces(spaceAlts.Replace(trimmed))

	rawTempo, tempo := parseTempo(spaceNormal)
	rawKey, key := parseKey(spaceNormal)

	stripped := trimmed
	if rawTempo != "" {
		stripped = strings.ReplaceAll(stripped, rawTempo, "")
	}
	if rawKey != "" {
		stripped = strings.ReplaceAll(stripped, rawKey, "")
	}

	normal := normalSpaces(spaceAlts.Replace(cleanse(stripped)))
	var tokens []string
	for _, tok := range strings.Fields(normal) {
		tokens = append(tokens, splitAlphanumeric(tok)...)
	}
	return Parsed{
		Path:   trimmed,
		Key:    key,
		Tempo:  tempo,
		Tokens: filterTokens(tokens),
	}
}

// trim removes the file extension and the leading path segment. Extensions
// carry no token value and the root segment is the asset name, parsed once
// elsewhere.
func trim(path string) string {
	if i := strings.LastIndex(path, "."); i >= 0 {
		path = path[:i]
	}
	if i := strings.Index(path, "/"); i >= 0 {
		path = path[i+1:]
	}
	return path
}

func normalSpaces(s string) string {
	for strings.Contains(s, "  ") {
		s = strings.ReplaceAll(s, "  ", " ")
	}
	return strings.TrimSpace(s)
}

func cleanse(s string) string {
	s = dropChars.Replace(s)
	s = foldMarks(s)
	s = decorChars.Replace(s)
	for _, sub := range stringSubs {
		s = strings.ReplaceAll(s, sub[0], sub[1])
	}
	return s
}

// foldMarks strips diacritics via NFKD decomposition, so "ché" and "che"
// tokenize identically.
func foldMarks(s string) string {
	decomposed := norm.NFKD.String(s)
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// parseTempo returns the raw matched substring and the normalized BPM.
// Labelled forms take precedence: postfix ("128bpm"), then prefix
// ("bpm 128"). A path containing "bpm" never falls back to unlabelled
// guessing.
func parseTempo(spaceNormal string) (raw, tempo string) {
	if strings.Contains(spaceNormal, "bpm") {
		if raw = tempoPostfixRe.FindString(spaceNormal); raw != "" {
			return raw, tempoDigitsRe.FindString(raw)
		}
		if raw = tempoPrefixRe.FindString(spaceNormal); raw != "" {
			return raw, tempoDigitsRe.FindString(raw)
		}
		return "", ""
	}

	candidates := dedupe(tempoBareRe.FindAllString(spaceNormal, -1))
	switch len(candidates) {
	case 0:
		return "", ""
	case 1:
		n, _ := strconv.Atoi(candidates[0])
		if n < tempoFloor || n > tempoCeil {
			return "", ""
		}
		return candidates[0], candidates[0]
	default:
		return tempoFromCandidates(candidates)
	}
}

// tempoFromCandidates picks the candidate that is alone inside a
// disambiguation range, trying the narrowest range first. Zero or several
// candidates in every range means the path stays tempoless.
func tempoFromCandidates(candidates []string) (string, string) {
	for _, r := range tempoRanges {
		matched := ""
		count := 0
		for _, c := range candidates {
			n, _ := strconv.Atoi(c)
			if n >= r[0] && n <= r[1] {
				matched = c
				count++
			}
		}
		if count == 1 {
			return matched, matched
		}
	}
	return "", ""
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := values[:0]
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// parseKey scans token windows left to right for a key signature. Windows
// span up to three tokens so spaced forms ("a min", "f # min") match like
// their compact spellings.
func parseKey(spaceNormal string) (raw, key string) {
	tokens := strings.Split(spaceNormal, " ")
	for i := range tokens {
		for width := 3; width >= 1; width-- {
			if i+width > len(tokens) {
				continue
			}
			window := strings.Join(tokens[i:i+width], " ")
			if keyWindowRe.MatchString(window) {
				return window, normalKeySignature(window)
			}
		}
	}
	return "", ""
}

// normalKeySignature canonicalizes a raw key match: tonic uppercased,
// spelled-out accidentals to symbols, minor marks to "min", major marks
// reduced to the bare tonic ("b major" -> "B").
func normalKeySignature(raw string) string {
	if utf8.RuneCountInString(raw) < 2 {
		return strings.ToUpper(raw)
	}
	sig := strings.ToUpper(raw[:1]) + strings.ToLower(raw[1:])
	sig = strings.ReplaceAll(sig, " ", "")
	sig = strings.ReplaceAll(sig, "sharp", "#")
	sig = strings.ReplaceAll(sig, "flat", "b")
	sig = strings.ReplaceAll(sig, "or", "")
	sig = strings.ReplaceAll(sig, "maj", "")
	return keyMinorRe.ReplaceAllString(sig, "min")
}

// splitAlphanumeric splits a token at digit boundaries: "kick808loop"
// becomes ["kick", "808", "loop"].
func splitAlphanumeric(tok string) []string {
	isDigit := func(b byte) bool { return b >= '0' && b <= '9' }
	var out []string
	start := 0
	for i := 1; i <= len(tok); i++ {
		if i == len(tok) || isDigit(tok[i]) != isDigit(tok[i-1]) {
			out = append(out, tok[start:i])
			start = i
		}
	}
	return out
}

func filterTokens(tokens []string) []string {
	kept := tokens[:0]
	for _, t := range tokens {
		if keepToken(t) {
			kept = append(kept, t)
		}
	}
	return kept
}

// keepToken drops attribution handles, short tokens, non-linguistic noise
// (numerics outside the allowlist), and single-character spam runs.
func keepToken(t string) bool {
	if strings.HasPrefix(t, "@") {
		return false
	}
	if utf8.RuneCountInString(t) < minTokenLen {
		return false
	}
	if !linguisticRe.MatchString(t) {
		if _, ok := allowedNumeric[t]; !ok {
			return false
		}
	}
	first, _ := utf8.DecodeRuneInString(t)
	repeated := true
	for _, r := range t {
		if r != first {
			repeated = false
			break
		}
	}
	return !repeated
}
