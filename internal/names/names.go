// SPDX-License-Identifier: MIT

// Package names implements the canonical asset naming grammar:
//
//	cname := Label " - " Title [" (" Note ")"]
//
// Every asset in the catalog is identified by its cname; the label's
// filesystem directory (label_dir) is derived from it. All checks operate on
// the name with any ".rar" suffix removed, so archive filenames and catalog
// rows validate identically.
package names

import (
	"errors"
	"regexp"
	"strings"
)

// ErrNotCanonical is returned when a name does not satisfy the cname grammar.
var ErrNotCanonical = errors.New("names: not a canonical asset name")

const separator = " - "

// Strip removes a trailing ".rar" from an archive filename.
func Strip(name string) string {
	return strings.TrimSuffix(name, ".rar")
}

// IsCanonical reports whether name conforms to the cname grammar: at least
// one " - " separator, no leading or trailing space, no dot, no double
// space. A ".rar" suffix is ignored.
func IsCanonical(name string) bool {
	name = Strip(name)
	if len(strings.Split(name, separator)) < 2 {
		return false
	}
	if strings.HasPrefix(name, " ") || strings.HasSuffix(name, " ") {
		return false
	}
	if strings.Contains(name, ".") || strings.Contains(name, "  ") {
		return false
	}
	return true
}

// Divide splits a cname into its label, title, and optional note. The note
// is the content of a trailing parenthesized group; the returned title does
// not include it. Divide does not validate; callers gate on IsCanonical.
func Divide(cname string) (label, title, note string) {
	cname = Strip(cname)
	parts := strings.Split(cname, separator)
	label = parts[0]
	title = strings.Join(parts[1:], separator)
	if strings.HasSuffix(title, ")") {
		if i := strings.LastIndex(title, " ("); i >= 0 {
			note = title[i+2 : len(title)-1]
			title = title[:i]
		}
	}
	return label, title, note
}

// Join reassembles a cname from the parts produced by Divide.
func Join(label, title, note string) string {
	if note == "" {
		return label + separator + title
	}
	return label + separator + title + " (" + note + ")"
}

// LabelDir derives the label's filesystem directory: the label lowercased
// with spaces replaced by underscores.
func LabelDir(label string) string {
	return strings.ReplaceAll(strings.ToLower(label), " ", "_")
}

// LabelDirFromCname is LabelDir applied to the cname's label part.
func LabelDirFromCname(cname string) string {
	label, _, _ := Divide(cname)
	return LabelDir(label)
}

// Year returns the cname note when it reads as a four-digit year, else "".
// Metadata searches use it to narrow query argument sets.
func Year(note string) string {
	if len(note) != 4 {
		return ""
	}
	for _, r := range note {
		if r < '0' || r > '9' {
			return ""
		}
	}
	return note
}

// FileExtension returns the lowercased extension of basename without the
// dot, or "" for dotfiles and extensionless names.
func FileExtension(basename string) string {
	i := strings.LastIndex(basename, ".")
	if i <= 0 || i == len(basename)-1 {
		return ""
	}
	return strings.ToLower(basename[i+1:])
}

// mediaLabelMarks are the raw substrings that flag a title as carrying a
// media-type label worth a trimmed retry.
var mediaLabelMarks = []string{" CD", " EP", " LP"}

// mediaLabelRes match the label forms that are actually stripped.
var mediaLabelRes = []*regexp.Regexp{
	regexp.MustCompile(`\b(MCD|CD(M|M?S|R))\d?\b`),
	regexp.MustCompile(`\b[EL]P\d?\b`),
}

// HasMediaLabel reports whether a title carries a media-type label
// (CD/EP/LP variants). Metadata searches retry with the label stripped;
// the tracker scraper drops it before token matching.
func HasMediaLabel(title string) bool {
	for _, mark := range mediaLabelMarks {
		if strings.Contains(title, mark) {
			return true
		}
	}
	return false
}

// TrimMediaLabels strips media-type labels from a title and collapses the
// whitespace they leave behind.
func TrimMediaLabels(title string) string {
	for _, re := range mediaLabelRes {
		title = re.ReplaceAllString(title, "")
	}
	return strings.Join(strings.Fields(title), " ")
}
