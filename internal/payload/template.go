// Package payload renders per-request message text from a template.
package payload

import (
	"regexp"
	"strconv"
	"strings"
)

// DefaultTemplate matches the message each client sends by default.
const DefaultTemplate = "Client {{id}} message {{i}}"

var placeholderRegex = regexp.MustCompile(`\{\{([^}|]+)(?:\|([^}]*))?\}\}`)

// Template renders messages containing {{key}} or {{key|default}} placeholders.
// The keys id (session id) and i (request index) are always available.
type Template struct {
	raw  string
	vars map[string]string
}

// New creates a template. vars supplies extra placeholder values.
func New(raw string, vars map[string]string) Template {
	if raw == "" {
		raw = DefaultTemplate
	}
	copied := make(map[string]string, len(vars))
	for k, v := range vars {
		copied[k] = v
	}
	return Template{raw: raw, vars: copied}
}

// String returns the raw template text.
func (t Template) String() string {
	if t.raw == "" {
		return DefaultTemplate
	}
	return t.raw
}

// Render produces the payload for request index i of session id.
// Unknown placeholders without a default are left as-is.
func (t Template) Render(id, i int) []byte {
	return []byte(placeholderRegex.ReplaceAllStringFunc(t.String(), func(match string) string {
		parts := placeholderRegex.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		switch parts[1] {
		case "id":
			return strconv.Itoa(id)
		case "i":
			return strconv.Itoa(i)
		}
		if val, ok := t.vars[parts[1]]; ok {
			return val
		}
		if strings.Contains(match, "|") {
			return parts[2]
		}
		return match
	}))
}
