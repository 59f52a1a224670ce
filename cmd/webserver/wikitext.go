// SPDX-FileCopyrightText: 2024 SPI Tools contributors
// SPDX-License-Identifier: MIT

package main

import (
	"regexp"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
)

// Caser is stateless and safe to use concurrently by multiple goroutines.
// https://pkg.go.dev/golang.org/x/text/cases#Fold
var caser = cases.Fold()

// Old SPI reports used level-5 headers with <big> markup. We map them
// to level-3 headers before looking for sections. For history, see
// en.wikipedia.org/w/index.php?oldid=1039087434#Header_levels_on_SPI_report_template
var oldHeaderRegexp = regexp.MustCompile(`(?m)^=====<big>([a-zA-Z 0-9]*)</big>=====$`)

var headingRegexp = regexp.MustCompile(`(?m)^(={1,6})(.+?)(={1,6})[ \t]*$`)

var (
	linkRegexp   = regexp.MustCompile(`\[\[(?:[^\]|]*\|)?([^\]]*)\]\]`)
	htmlRegexp   = regexp.MustCompile(`</?[a-zA-Z][^>]*>`)
	quotesRegexp = regexp.MustCompile(`'{2,}`)
)

// CaseDay is one level-3 section of an SPI case page. Each section
// holds the report and the clerk notes of one day.
type caseDay struct {
	Date      string
	PageTitle string
	Text      string
}

type wikiTemplate struct {
	Name   string
	Params []templateParam
}

// Positional parameters get their position ("1", "2", ...) as Name.
type templateParam struct {
	Name       string
	Value      string
	Positional bool
}

// SplitDays cuts the wikitext of an SPI case page into its days.
// Text before the first level-3 heading is ignored. A heading without
// any text gives a day with an empty date.
func splitDays(pageTitle, wikitext string) []caseDay {
	text := oldHeaderRegexp.ReplaceAllString(wikitext, "===$1===")

	type heading struct {
		level      int
		title      string
		start, end int
	}
	var headings []heading
	for _, m := range headingRegexp.FindAllStringSubmatchIndex(text, -1) {
		left, right := m[3]-m[2], m[7]-m[6]
		level := min(left, right)
		title := text[m[4]:m[5]]
		if left > level {
			title = strings.Repeat("=", left-level) + title
		}
		if right > level {
			title = title + strings.Repeat("=", right-level)
		}
		headings = append(headings, heading{level, title, m[0], m[1]})
	}

	var days []caseDay
	for i, h := range headings {
		if h.level != 3 {
			continue
		}
		end := len(text)
		for _, next := range headings[i+1:] {
			if next.level <= 3 {
				end = next.start
				break
			}
		}
		days = append(days, caseDay{
			Date:      stripMarkup(h.title),
			PageTitle: pageTitle,
			Text:      text[h.end:end],
		})
	}

	return days
}

// StripMarkup removes links, HTML tags and bold/italic quotes,
// leaving the displayed text.
func stripMarkup(s string) string {
	s = linkRegexp.ReplaceAllString(s, "$1")
	s = htmlRegexp.ReplaceAllString(s, "")
	s = quotesRegexp.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// ParseTemplates finds all template invocations in wikitext, in the
// order in which they start. Templates nested inside parameters of
// another template are returned as well as the outer template.
func parseTemplates(wikitext string) []wikiTemplate {
	type span struct{ start, end int }
	var open []int
	var found []span
	for i := 0; i+1 < len(wikitext); {
		switch wikitext[i : i+2] {
		case "{{":
			open = append(open, i+2)
			i += 2
		case "}}":
			if len(open) > 0 {
				found = append(found, span{open[len(open)-1], i})
				open = open[:len(open)-1]
			}
			i += 2
		default:
			i++
		}
	}
	slices.SortFunc(found, func(a, b span) int { return a.start - b.start })

	result := make([]wikiTemplate, 0, len(found))
	for _, sp := range found {
		result = append(result, parseTemplate(wikitext[sp.start:sp.end]))
	}
	return result
}

// ParseTemplate parses the inside of one template invocation.
// Pipes inside nested templates and links do not separate parameters.
func parseTemplate(body string) wikiTemplate {
	parts := splitParams(body)
	t := wikiTemplate{Name: strings.TrimSpace(parts[0])}
	pos := 0
	for _, p := range parts[1:] {
		name, value, found := strings.Cut(p, "=")
		if found && !strings.Contains(name, "{{") && !strings.Contains(name, "[[") {
			t.Params = append(t.Params, templateParam{
				Name:  strings.TrimSpace(name),
				Value: strings.TrimSpace(value),
			})
			continue
		}
		pos++
		t.Params = append(t.Params, templateParam{
			Name:       strconv.Itoa(pos),
			Value:      strings.TrimSpace(p),
			Positional: true,
		})
	}
	return t
}

func splitParams(body string) []string {
	var parts []string
	depth, last := 0, 0
	for i := 0; i < len(body); i++ {
		switch {
		case strings.HasPrefix(body[i:], "{{"), strings.HasPrefix(body[i:], "[["):
			depth++
			i++
		case depth > 0 && (strings.HasPrefix(body[i:], "}}") || strings.HasPrefix(body[i:], "]]")):
			depth--
			i++
		case depth == 0 && body[i] == '|':
			parts = append(parts, body[last:i])
			last = i + 1
		}
	}
	return append(parts, body[last:])
}

// Get returns the value of the last parameter with the given name,
// the way MediaWiki resolves duplicates.
func (t wikiTemplate) Get(name string) (string, bool) {
	value, found := "", false
	for _, p := range t.Params {
		if p.Name == name {
			value, found = p.Value, true
		}
	}
	return value, found
}

// Matches reports whether the template has one of the given names.
// Like MediaWiki, we treat underscores as spaces and ignore the case
// of the first letter.
func (t wikiTemplate) Matches(names ...string) bool {
	n := normalizeTemplateName(t.Name)
	for _, name := range names {
		if n == normalizeTemplateName(name) {
			return true
		}
	}
	return false
}

func normalizeTemplateName(name string) string {
	name = strings.Join(strings.Fields(strings.ReplaceAll(name, "_", " ")), " ")
	r, size := utf8.DecodeRuneInString(name)
	if r == utf8.RuneError {
		return name
	}
	return caser.String(name[:size]) + name[size:]
}

// FindIPs returns the IPv4 addresses mentioned in checkip templates
// and in sock lists of the day, in the order they appear. Parameters
// that are not IPv4 addresses, such as account names in a sock list,
// are skipped. Duplicates are kept.
func (d caseDay) findIPs() []IPInfo {
	var result []IPInfo
	templates := parseTemplates(d.Text)
	for _, t := range templates {
		if !t.Matches("checkip", "checkIP") {
			continue
		}
		if value, ok := t.Get("1"); ok {
			if ip, err := ParseIPv4(value); err == nil {
				result = append(result, IPInfo{ip, d.Date, d.PageTitle})
			}
		}
	}
	for _, account := range parseSockList(templates) {
		if ip, err := ParseIPv4(account); err == nil {
			result = append(result, IPInfo{ip, d.Date, d.PageTitle})
		}
	}
	return result
}

// ParseSockList returns the positional parameters of all sock list
// templates. Positional parameters may or may not have an explicit
// "1=" prefix.
func parseSockList(templates []wikiTemplate) []string {
	var result []string
	for _, t := range templates {
		if !t.Matches("sock list", "socklist") {
			continue
		}
		for _, p := range t.Params {
			if p.Positional || isDigits(p.Name) {
				result = append(result, p.Value)
			}
		}
	}
	return result
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
