package main

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

var (
	weekdayPrefix  = regexp.MustCompile(`(?i)^\s*(mon|tue|wed|thu|fri|sat|sun)[a-z]*\.?,?\s+`)
	ordinalSuffix  = regexp.MustCompile(`(?i)\b(\d{1,2})(st|nd|rd|th)\b`)
	collapseSpaces = regexp.MustCompile(`\s+`)
)

// parseForcedDate accepts human dates such as "Monday, March 3rd, 2025" or "2025-03-03".
// Dates without a zone are read in loc.
func parseForcedDate(raw string, loc *time.Location) (time.Time, error) {
	s := weekdayPrefix.ReplaceAllString(raw, "")
	s = ordinalSuffix.ReplaceAllString(s, "$1")
	s = strings.TrimSpace(collapseSpaces.ReplaceAllString(s, " "))
	if s == "" {
		return time.Time{}, fmt.Errorf("empty forced date %q", raw)
	}

	t, err := dateparse.ParseIn(s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("could not parse forced date %q: %w", raw, err)
	}
	return t.In(loc), nil
}
