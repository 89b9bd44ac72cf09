// SPDX-License-Identifier: MIT

package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/dhowden/tag"
)

// runInspect prints the embedded tags of one audio file. It is a local
// debugging aid and touches no configuration.
func runInspect(args []string) int {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: sonicat inspect <file> [file...]")
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	code := 0
	for _, path := range fs.Args() {
		if err := inspectFile(path); err != nil {
			fmt.Fprintf(os.Stderr, "sonicat: inspect %s: %v\n", path, err)
			code = 1
		}
	}
	return code
}

func inspectFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() {
		_ = f.Close()
	}()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return err
	}
	fmt.Printf("%s\n", path)
	fmt.Printf("  format    %s (%s)\n", m.Format(), m.FileType())
	printTag("title", m.Title())
	printTag("artist", m.Artist())
	printTag("album", m.Album())
	printTag("genre", m.Genre())
	if year := m.Year(); year != 0 {
		fmt.Printf("  %-9s %d\n", "year", year)
	}
	if n, total := m.Track(); n != 0 {
		fmt.Printf("  %-9s %d/%d\n", "track", n, total)
	}
	return nil
}

func printTag(name, value string) {
	if value != "" {
		fmt.Printf("  %-9s %s\n", name, value)
	}
}
