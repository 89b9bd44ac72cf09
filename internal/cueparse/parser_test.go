// SPDX-License-Identifier: MIT

package cueparse

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleSheet = `REM GENRE Electronic
REM DATE 1998
PERFORMER "Acme Collective"
TITLE "Greatest Cuts"
FILE "Greatest Cuts.wav" WAVE
  TRACK 01 AUDIO
    TITLE "Opener"
    PERFORMER "Acme Collective"
    INDEX 01 00:00:00
  TRACK 02 AUDIO
    TITLE "Closer"
    INDEX 00 03:56:60
    INDEX 01 04:00:33
`

func TestParseSheet(t *testing.T) {
	sheet, err := Parse(strings.NewReader(sampleSheet))
	require.NoError(t, err)
	require.Equal(t, "Greatest Cuts", sheet.Title)
	require.Equal(t, "Acme Collective", sheet.Performer)
	require.Equal(t, "Greatest Cuts.wav", sheet.AudioFile)
	require.Len(t, sheet.Tracks, 2)

	require.Equal(t, 1, sheet.Tracks[0].Number)
	require.Equal(t, "Opener", sheet.Tracks[0].Title)
	require.Equal(t, "Acme Collective", sheet.Tracks[0].Performer)
	require.Equal(t, "00:00:00", sheet.Tracks[0].Index)

	require.Equal(t, 2, sheet.Tracks[1].Number)
	require.Equal(t, "Closer", sheet.Tracks[1].Title)
	require.Empty(t, sheet.Tracks[1].Performer, "track without performer inherits nothing")
	require.Equal(t, "04:00:33", sheet.Tracks[1].Index, "index 00 pregap is not the track start")
}

func TestParseUnquotedValues(t *testing.T) {
	sheet, err := Parse(strings.NewReader(
		"TITLE Mix\nFILE mix.wav WAVE\nTRACK 01 AUDIO\nINDEX 01 00:00:00\n"))
	require.NoError(t, err)
	require.Equal(t, "Mix", sheet.Title)
	require.Equal(t, "mix.wav", sheet.AudioFile)
}

func TestParseRejectsEmptySheet(t *testing.T) {
	_, err := Parse(strings.NewReader("REM nothing here\n"))
	require.ErrorContains(t, err, "no tracks")
}

func TestParseRejectsIndexOutsideTrack(t *testing.T) {
	_, err := Parse(strings.NewReader("INDEX 01 00:00:00\n"))
	require.ErrorContains(t, err, "index outside a track")
}

func TestParseRejectsMalformedIndex(t *testing.T) {
	_, err := Parse(strings.NewReader("TRACK 01 AUDIO\nINDEX 01 99\n"))
	require.ErrorContains(t, err, "malformed index")
}

func TestIndexSeconds(t *testing.T) {
	s, err := IndexSeconds("04:00:33")
	require.NoError(t, err)
	require.InDelta(t, 240.44, s, 0.01)

	_, err = IndexSeconds("4:0:0")
	require.Error(t, err)
}
