package validator

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	currencySymbols = strings.NewReplacer("$", "", "€", "", "£", "", "¥", "", "₹", "", ",", "", " ", "")
	currencyCode    = regexp.MustCompile(`(?i)^(usd|eur|gbp|cad|aud|inr)\s*|\s*(usd|eur|gbp|cad|aud|inr)$`)
)

// ParseNumber parses a plain or money-formatted number: currency symbols,
// three-letter currency codes and thousands separators are ignored.
func ParseNumber(s string) (float64, error) {
	clean := strings.TrimSpace(s)
	clean = currencyCode.ReplaceAllString(clean, "")
	neg := false
	if strings.HasPrefix(clean, "(") && strings.HasSuffix(clean, ")") {
		neg = true
		clean = clean[1 : len(clean)-1]
	}
	clean = currencySymbols.Replace(clean)
	if clean == "" {
		return 0, fmt.Errorf("not a number: %q", s)
	}
	f, err := strconv.ParseFloat(clean, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("not a number: %q", s)
	}
	if neg {
		f = -f
	}
	return f, nil
}

// FormatNumber renders f with the fewest digits that round-trip.
func FormatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// NormalizeMoney strips currency decoration from a money value.
func NormalizeMoney(s string) (string, error) {
	f, err := ParseNumber(s)
	if err != nil {
		return "", fmt.Errorf("money value %q is not numeric", s)
	}
	return FormatNumber(f), nil
}

// NormalizePercent keeps the number of a percentage ("3.5%" -> "3.5").
func NormalizePercent(s string) (string, error) {
	trimmed := strings.TrimSpace(s)
	trimmed = strings.TrimSpace(strings.TrimSuffix(strings.TrimSuffix(trimmed, "%"), " percent"))
	f, err := strconv.ParseFloat(trimmed, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return "", fmt.Errorf("percentage %q is not numeric", s)
	}
	return FormatNumber(f), nil
}
