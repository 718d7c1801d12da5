package validator

import (
	"fmt"
	"strings"
	"time"
)

const isoDate = "2006-01-02"

// Unambiguous layouts: year first or month spelled out.
var namedLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"2006-01-02T15:04:05Z07:00",
	"02 Jan 2006",
	"2 Jan 2006",
	"2 January 2006",
	"Jan 2, 2006",
	"Jan 02, 2006",
	"January 2, 2006",
	"January 02, 2006",
	"January 2 2006",
}

// Numeric day/month layouts. When a value parses under both orders to
// different days it is ambiguous.
var (
	dayFirstLayouts   = []string{"02/01/2006", "2/1/2006", "02-01-2006", "02.01.2006"}
	monthFirstLayouts = []string{"01/02/2006", "1/2/2006", "01-02-2006"}
)

// NormalizeDate converts an unambiguous date to YYYY-MM-DD. Numeric dates that
// read as different days in day-first and month-first order, such as
// 03/04/2025, are returned unchanged with an error.
func NormalizeDate(s string) (string, error) {
	v := strings.TrimSpace(s)
	for _, layout := range namedLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.Format(isoDate), nil
		}
	}

	dayFirst, dfOK := parseAny(dayFirstLayouts, v)
	monthFirst, mfOK := parseAny(monthFirstLayouts, v)
	switch {
	case dfOK && mfOK && !dayFirst.Equal(monthFirst):
		return v, fmt.Errorf("date %q is ambiguous: %s or %s", s, dayFirst.Format(isoDate), monthFirst.Format(isoDate))
	case dfOK:
		return dayFirst.Format(isoDate), nil
	case mfOK:
		return monthFirst.Format(isoDate), nil
	}
	return "", fmt.Errorf("date %q is not parseable", s)
}

func parseAny(layouts []string, v string) (time.Time, bool) {
	for _, layout := range layouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
