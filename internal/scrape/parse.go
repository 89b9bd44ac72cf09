// SPDX-License-Identifier: MIT

package scrape

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/jdswan/sonicat/internal/task"
)

// ResultRows extracts every result row from a tracker search page. Rows
// live under the search-results div; header and filler rows carry no
// topic id and are skipped.
func ResultRows(doc *html.Node) []task.PageResult {
	wrapper := findNode(doc, func(n *html.Node) bool {
		return isElem(n, "div") && attrVal(n, "id") == "search-results"
	})
	if wrapper == nil {
		return nil
	}
	var rows []task.PageResult
	for _, tr := range findAll(wrapper, func(n *html.Node) bool {
		return isElem(n, "tr") && attrVal(n, "data-topic_id") != ""
	}) {
		rows = append(rows, parseRow(tr))
	}
	return rows
}

func parseRow(tr *html.Node) task.PageResult {
	row := task.PageResult{SiteID: attrVal(tr, "data-topic_id")}
	if n := findNode(tr, classMatch("div", "t-title")); n != nil {
		row.Name = textOf(n)
	}
	if wrapper := findNode(tr, classMatch("div", "t-tags")); wrapper != nil {
		for _, tag := range findAll(wrapper, classMatch("span", "tg")) {
			row.Tags = append(row.Tags, textOf(tag))
		}
	}
	if n := findNode(tr, classMatch("td", "number-format")); n != nil {
		row.Downloads = textOf(n)
	}
	if n := findNode(tr, classMatch("td", "tor-size")); n != nil {
		if a := findNode(n, func(n *html.Node) bool { return isElem(n, "a") }); a != nil {
			row.Size = megabytes(textOf(a))
		}
	}
	return row
}

// PageLinks returns the hrefs of the numbered pagination links, deduped
// (the tracker repeats the pagination block top and bottom). Non-numeric
// links (next/previous arrows) are ignored.
func PageLinks(doc *html.Node) []string {
	var hrefs []string
	seen := make(map[string]bool)
	for _, a := range findAll(doc, classMatch("a", "pg")) {
		if !isPageNumber(textOf(a)) {
			continue
		}
		href := attrVal(a, "href")
		if href == "" || seen[href] {
			continue
		}
		seen[href] = true
		hrefs = append(hrefs, href)
	}
	return hrefs
}

// megabytes normalizes a row's size text to megabytes. The tracker prints
// "370.6 MB" or "1.51 GB"; gigabytes shift the decimal point three places
// so fractions stay exact.
func megabytes(sizeText string) string {
	fields := strings.Fields(sizeText)
	if len(fields) == 0 {
		return ""
	}
	num := fields[0]
	if !strings.Contains(sizeText, "GB") || !isDecimal(num) {
		return num
	}
	intPart, fracPart, _ := strings.Cut(num, ".")
	for len(fracPart) < 3 {
		fracPart += "0"
	}
	whole := strings.TrimLeft(intPart+fracPart[:3], "0")
	if whole == "" {
		whole = "0"
	}
	if frac := strings.TrimRight(fracPart[3:], "0"); frac != "" {
		return whole + "." + frac
	}
	return whole
}

func isDecimal(s string) bool {
	if s == "" {
		return false
	}
	dots := 0
	for _, r := range s {
		switch {
		case r == '.':
			dots++
		case r < '0' || r > '9':
			return false
		}
	}
	return dots <= 1
}

func isPageNumber(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isElem(n *html.Node, tag string) bool {
	return n.Type == html.ElementNode && n.Data == tag
}

func attrVal(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func classMatch(tag, class string) func(*html.Node) bool {
	return func(n *html.Node) bool {
		if !isElem(n, tag) {
			return false
		}
		for _, c := range strings.Fields(attrVal(n, "class")) {
			if c == class {
				return true
			}
		}
		return false
	}
}

func findNode(n *html.Node, match func(*html.Node) bool) *html.Node {
	if match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findNode(c, match); found != nil {
			return found
		}
	}
	return nil
}

func findAll(n *html.Node, match func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if match(n) {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

// textOf concatenates a node's text content with runs of whitespace,
// non-breaking spaces included, collapsed to single spaces.
func textOf(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}
