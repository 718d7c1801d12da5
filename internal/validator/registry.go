package validator

import (
	"leasesum/internal/domain"
)

// Registry holds field rules in registration order. The first rule that
// applies to a field name normalizes its value.
type Registry struct {
	rules []Rule
	byKey map[string]Rule
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byKey: make(map[string]Rule)}
}

// DefaultRegistry returns a registry with the built-in money, date and percent rules.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, rule := range BuiltinRules() {
		r.Register(rule)
	}
	return r
}

// Register adds a rule to the registry. A rule with an existing key replaces it in place.
func (r *Registry) Register(rule Rule) {
	if _, exists := r.byKey[rule.RuleKey()]; exists {
		for i := range r.rules {
			if r.rules[i].RuleKey() == rule.RuleKey() {
				r.rules[i] = rule
			}
		}
	} else {
		r.rules = append(r.rules, rule)
	}
	r.byKey[rule.RuleKey()] = rule
}

// Get returns the rule for a given key, or nil if not found.
func (r *Registry) Get(key string) Rule {
	return r.byKey[key]
}

// All returns all registered rules in registration order.
func (r *Registry) All() []Rule {
	out := make([]Rule, len(r.rules))
	copy(out, r.rules)
	return out
}

// Normalize runs the first applicable rule for field over value. Fields no
// rule claims pass through unchanged and valid.
func (r *Registry) Normalize(field, value string) (string, domain.FieldCheck) {
	for _, rule := range r.rules {
		if rule.Applies(field) {
			return rule.Normalize(value)
		}
	}
	return value, domain.FieldCheck{Valid: true}
}
