// Package timestamp parses the date-time formats written by journal files.
package timestamp

import (
	"regexp"
	"strings"
	"time"
)

// Result is the outcome of ParseFromText.
type Result struct {
	Found     bool
	Timestamp time.Time
	Remaining string // text after the timestamp, leading spaces trimmed
}

type pattern struct {
	re      *regexp.Regexp
	layouts []string
}

// Parser recognizes journal date-times. Times carry no zone and are
// returned in UTC. A Parser is safe for concurrent use.
type Parser struct {
	patterns []pattern
}

// NewParser returns a parser for the block stamp form ("20-Jun-2019
// 14:25:36.442") and the ISO-like form used by worksharing entries
// ("2019-06-20 14:25:36.442").
func NewParser() *Parser {
	return &Parser{patterns: []pattern{
		{
			re: regexp.MustCompile(`^\d{1,2}-[A-Za-z]{3}-\d{4} \d{1,2}:\d{2}:\d{2}(?:\.\d{1,3})?`),
			layouts: []string{
				"2-Jan-2006 15:04:05.000",
				"2-Jan-2006 15:04:05.00",
				"2-Jan-2006 15:04:05.0",
				"2-Jan-2006 15:04:05",
			},
		},
		{
			re: regexp.MustCompile(`^\d{4}-\d{2}-\d{2}[ T]\d{2}:\d{2}:\d{2}(?:[.,]\d{1,9})?`),
			layouts: []string{
				"2006-01-02 15:04:05.000",
				"2006-01-02 15:04:05.999999999",
				"2006-01-02T15:04:05.999999999",
				"2006-01-02 15:04:05",
				"2006-01-02T15:04:05",
			},
		},
	}}
}

// ParseFromText looks for a date-time at the start of text.
func (p *Parser) ParseFromText(text string) Result {
	trimmed := strings.TrimLeft(text, " \t")
	for _, pt := range p.patterns {
		m := pt.re.FindString(trimmed)
		if m == "" {
			continue
		}
		if ts, ok := parseLayouts(strings.Replace(m, ",", ".", 1), pt.layouts); ok {
			return Result{
				Found:     true,
				Timestamp: ts,
				Remaining: strings.TrimLeft(trimmed[len(m):], " \t"),
			}
		}
	}
	return Result{Remaining: text}
}

// ParseTimestamp parses s, which must consist of a date-time only.
func (p *Parser) ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	r := p.ParseFromText(s)
	if !r.Found || r.Remaining != "" {
		return time.Time{}, false
	}
	return r.Timestamp, true
}

func parseLayouts(s string, layouts []string) (time.Time, bool) {
	for _, layout := range layouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}
