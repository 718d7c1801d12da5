package extractor

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// RefusalText is the service's canned refusal. A response containing it carries no fields.
const RefusalText = "I'm sorry, I can't assist with that."

var (
	errEmptyResponse = errors.New("empty response")
	errRefusal       = errors.New("service refused the request")
	errNoFields      = errors.New("no fields recognized in response")
)

var (
	jsonFence     = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*\\n(.*?)```")
	sectionHeader = regexp.MustCompile(`(?m)^##\s+(.+?)\s*$`)
	keyValueLine  = regexp.MustCompile(`^(?:[-*+]\s+|\d+[.)]\s+)?([A-Za-z][A-Za-z0-9 _\-/().&']{0,79}?)\s*:\s*(.+)$`)
	nonWord       = regexp.MustCompile(`[^a-z0-9]+`)
)

// skippedSections never carry lease terms.
var skippedSections = map[string]bool{
	"STATUS":     true,
	"ASSESSMENT": true,
}

// Pair is one field recognized in a response, before normalization.
type Pair struct {
	Name  string
	Value string
}

// ParseResponse maps a free-text response to field pairs. It tries a JSON
// object first, then markdown "## HEADER" sections when the response has any,
// then "key: value" lines. Field names are lower snake_case; nested JSON keys
// are joined with ".".
func ParseResponse(raw string) ([]Pair, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil, errEmptyResponse
	}
	if strings.Contains(text, RefusalText) {
		return nil, errRefusal
	}

	if pairs := parseJSON(text); len(pairs) > 0 {
		return pairs, nil
	}
	if sectionHeader.MatchString(text) {
		if pairs := parseSections(text); len(pairs) > 0 {
			return pairs, nil
		}
	}
	if pairs := parseKeyValues(text); len(pairs) > 0 {
		return pairs, nil
	}
	return nil, errNoFields
}

func parseJSON(text string) []Pair {
	candidate := text
	if m := jsonFence.FindStringSubmatch(text); m != nil {
		candidate = strings.TrimSpace(m[1])
	}
	if !strings.HasPrefix(candidate, "{") {
		// Models often lead with a line of prose before an unfenced object.
		start, end := strings.Index(candidate, "{"), strings.LastIndex(candidate, "}")
		if start < 0 || end < start {
			return nil
		}
		candidate = candidate[start : end+1]
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(candidate)))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil
	}

	var c collector
	flatten(&c, "", obj)
	return c.pairs()
}

func flatten(c *collector, prefix string, obj map[string]any) {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		name := FieldName(k)
		if name == "" {
			continue
		}
		if prefix != "" {
			name = prefix + "." + name
		}
		switch v := obj[k].(type) {
		case map[string]any:
			flatten(c, name, v)
		case []any:
			var parts []string
			for _, item := range v {
				if s, ok := scalar(item); ok {
					parts = append(parts, s)
				}
			}
			c.add(name, strings.Join(parts, "; "))
		default:
			if s, ok := scalar(v); ok {
				c.add(name, s)
			}
		}
	}
}

func scalar(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x), true
	case json.Number:
		return x.String(), true
	case bool:
		return strconv.FormatBool(x), true
	case nil:
		return "", false
	case map[string]any, []any:
		b, err := json.Marshal(x)
		if err != nil {
			return "", false
		}
		return string(b), true
	default:
		return fmt.Sprint(x), true
	}
}

func parseSections(text string) []Pair {
	var c collector
	locs := sectionHeader.FindAllStringSubmatchIndex(text, -1)
	for i, loc := range locs {
		header := strings.TrimSpace(text[loc[2]:loc[3]])
		if skippedSections[strings.ToUpper(header)] {
			continue
		}
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		c.add(FieldName(header), sectionBody(text[loc[1]:end]))
	}
	return c.pairs()
}

func sectionBody(body string) string {
	var items []string
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*+ \t")
		line = strings.Trim(line, `"`)
		line = strings.TrimSpace(line)
		if line == "" || isNotApplicable(line) {
			continue
		}
		items = append(items, line)
	}
	return strings.Join(items, "; ")
}

func parseKeyValues(text string) []Pair {
	var c collector
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.ReplaceAll(line, "**", ""))
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		m := keyValueLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		value := strings.Trim(strings.TrimSpace(m[2]), `"`)
		if strings.HasPrefix(value, "//") {
			continue
		}
		c.add(FieldName(m[1]), value)
	}
	return c.pairs()
}

// FieldName converts a label such as "Monthly Rent ($)" to "monthly_rent".
func FieldName(label string) string {
	name := nonWord.ReplaceAllString(strings.ToLower(strings.TrimSpace(label)), "_")
	return strings.Trim(name, "_")
}

func isNotApplicable(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "n/a", "na", "none", "null", "not applicable", "not specified":
		return true
	}
	return false
}

// collector keeps first-seen field order; a repeated name keeps its last value.
type collector struct {
	order  []string
	values map[string]string
}

func (c *collector) add(name, value string) {
	value = strings.TrimSpace(value)
	if name == "" || isNotApplicable(value) {
		return
	}
	if c.values == nil {
		c.values = make(map[string]string)
	}
	if _, seen := c.values[name]; !seen {
		c.order = append(c.order, name)
	}
	c.values[name] = value
}

func (c *collector) pairs() []Pair {
	out := make([]Pair, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, Pair{Name: name, Value: c.values[name]})
	}
	return out
}
