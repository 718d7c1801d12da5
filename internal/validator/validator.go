package validator

import (
	"strings"

	"leasesum/internal/domain"
)

// Rule is a single built-in field rule.
type Rule interface {
	RuleKey() string
	RuleName() string
	// Applies reports whether the rule handles a snake_case field name.
	Applies(field string) bool
	// Normalize returns the canonical form of value. Values the rule cannot
	// interpret are returned unchanged with an invalid check.
	Normalize(value string) (string, domain.FieldCheck)
}

// fieldRule matches fields by snake_case name token. Tokens match anywhere in
// the name; heads match only as the last token.
type fieldRule struct {
	key       string
	name      string
	tokens    map[string]bool
	heads     map[string]bool
	normalize func(string) (string, error)
}

func (f *fieldRule) RuleKey() string  { return f.key }
func (f *fieldRule) RuleName() string { return f.name }

func (f *fieldRule) Applies(field string) bool {
	toks := strings.Split(strings.ToLower(field), "_")
	if f.heads[toks[len(toks)-1]] {
		return true
	}
	for _, tok := range toks {
		if f.tokens[tok] {
			return true
		}
	}
	return false
}

func (f *fieldRule) Normalize(value string) (string, domain.FieldCheck) {
	out, err := f.normalize(value)
	if err != nil {
		return value, domain.FieldCheck{Rule: f.key, Valid: false, Message: err.Error()}
	}
	return out, domain.FieldCheck{Rule: f.key, Valid: true}
}

func tokenSet(tokens ...string) map[string]bool {
	m := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		m[t] = true
	}
	return m
}

// BuiltinRules returns the date, percent and money rules in that order, so
// "rent_commencement_date" is a date and "rent_increase_percent" a percentage.
func BuiltinRules() []Rule {
	return []Rule{
		&fieldRule{
			key:       "fmt.date",
			name:      "Format: Date",
			tokens:    tokenSet("date", "dated"),
			heads:     tokenSet("commencement", "expiration", "expiry", "termination"),
			normalize: NormalizeDate,
		},
		&fieldRule{
			key:  "fmt.percent",
			name: "Format: Percentage",
			tokens: tokenSet(
				"percent", "percentage", "pct", "escalation", "rate",
			),
			normalize: NormalizePercent,
		},
		&fieldRule{
			key:  "fmt.money",
			name: "Format: Money",
			tokens: tokenSet(
				"rent", "deposit", "fee", "fees", "amount", "price", "cost",
				"charge", "charges", "payment", "cam", "tax", "taxes",
			),
			normalize: NormalizeMoney,
		},
	}
}
