// SPDX-License-Identifier: MIT

// Package cueparse implements the cue_parser worker. A cue sheet indexes a
// single-file rip into its tracks; the worker parses every cue file of an
// extracted asset and rides the sheets back for the app_data commit.
package cueparse

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/jdswan/sonicat/internal/task"
)

var (
	indexPattern = regexp.MustCompile(`^\d{1,3}:[0-5]\d:[0-7]\d$`)
	trackPattern = regexp.MustCompile(`^(\d+)\s+AUDIO$`)
)

// Parse reads one cue sheet. Disc-level TITLE and PERFORMER precede the
// first FILE command; everything after a TRACK command belongs to that
// track until the next one. Unknown commands (REM, CATALOG, FLAGS, ...)
// are skipped. A sheet without tracks is an error.
func Parse(r io.Reader) (task.CueSheet, error) {
	var (
		sheet   task.CueSheet
		current *task.CueTrack
		lineNo  int
	)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		command, rest := splitCommand(line)
		switch command {
		case "TITLE":
			if current != nil {
				current.Title = unquote(rest)
			} else {
				sheet.Title = unquote(rest)
			}
		case "PERFORMER":
			if current != nil {
				current.Performer = unquote(rest)
			} else {
				sheet.Performer = unquote(rest)
			}
		case "FILE":
			// FILE "name.wav" WAVE: the trailing type token is dropped.
			sheet.AudioFile = unquote(strings.TrimSpace(trimLastField(rest)))
		case "TRACK":
			m := trackPattern.FindStringSubmatch(rest)
			if m == nil {
				return sheet, fmt.Errorf("cue: line %d: malformed track %q", lineNo, rest)
			}
			number, _ := strconv.Atoi(m[1])
			sheet.Tracks = append(sheet.Tracks, task.CueTrack{Number: number})
			current = &sheet.Tracks[len(sheet.Tracks)-1]
		case "INDEX":
			if current == nil {
				return sheet, fmt.Errorf("cue: line %d: index outside a track", lineNo)
			}
			fields := strings.Fields(rest)
			if len(fields) != 2 || !indexPattern.MatchString(fields[1]) {
				return sheet, fmt.Errorf("cue: line %d: malformed index %q", lineNo, rest)
			}
			// INDEX 00 is the pregap; INDEX 01 is where the track starts.
			if fields[0] == "01" {
				current.Index = fields[1]
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return sheet, fmt.Errorf("cue: read: %w", err)
	}
	if len(sheet.Tracks) == 0 {
		return sheet, fmt.Errorf("cue: no tracks")
	}
	return sheet, nil
}

// IndexSeconds converts an mm:ss:ff cue timestamp to seconds.
func IndexSeconds(index string) (float64, error) {
	if !indexPattern.MatchString(index) {
		return 0, fmt.Errorf("cue: malformed index %q", index)
	}
	parts := strings.SplitN(index, ":", 3)
	minutes, _ := strconv.Atoi(parts[0])
	seconds, _ := strconv.Atoi(parts[1])
	frames, _ := strconv.Atoi(parts[2])
	return float64(minutes)*60 + float64(seconds) + float64(frames)/75, nil
}

func splitCommand(line string) (command, rest string) {
	command, rest, _ = strings.Cut(line, " ")
	return strings.ToUpper(command), strings.TrimSpace(rest)
}

// unquote strips the surrounding double quotes cue sheets put around
// values with spaces. Unquoted values pass through.
func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// trimLastField drops the trailing whitespace-separated token.
func trimLastField(s string) string {
	i := strings.LastIndexAny(s, " \t")
	if i < 0 {
		return s
	}
	return s[:i]
}
