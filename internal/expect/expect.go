// Package expect checks response bodies against configured expectations.
//
// A response may be required to match a regular expression, to contain a
// JSON path, and to carry an exact value at that path (or overall when no
// path is set).
package expect

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrMismatch is wrapped by every failed check.
var ErrMismatch = errors.New("response did not match expectation")

// Rule describes what a response must satisfy. Empty fields are ignored.
type Rule struct {
	Regex    string
	JSONPath string
	Equals   string
}

// IsZero reports whether the rule has no checks.
func (r Rule) IsZero() bool {
	return strings.TrimSpace(r.Regex) == "" && strings.TrimSpace(r.JSONPath) == "" && r.Equals == ""
}

// Matcher is a compiled Rule.
type Matcher struct {
	rule  Rule
	regex *regexp.Regexp
}

// Compile validates rule. It returns nil when the rule has no checks.
func Compile(rule Rule) (*Matcher, error) {
	if rule.IsZero() {
		return nil, nil
	}
	m := &Matcher{rule: rule}
	if pattern := strings.TrimSpace(rule.Regex); pattern != "" {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("expect: invalid regex %q: %w", pattern, err)
		}
		m.regex = re
	}
	return m, nil
}

// Check returns nil when body satisfies every configured check.
func (m *Matcher) Check(body []byte) error {
	if m == nil {
		return nil
	}
	if m.regex != nil && !m.regex.Match(body) {
		return fmt.Errorf("%w: regex %q not found", ErrMismatch, m.regex.String())
	}

	value := string(body)
	if path := strings.TrimSpace(m.rule.JSONPath); path != "" {
		found, ok := findJSONPath(body, path)
		if !ok {
			return fmt.Errorf("%w: json path %q not found", ErrMismatch, path)
		}
		value = found
	}
	if m.rule.Equals != "" && value != m.rule.Equals {
		return fmt.Errorf("%w: got %q, want %q", ErrMismatch, truncate(value, 64), m.rule.Equals)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
