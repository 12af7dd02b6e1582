// Package parse implements the shared output-parsing utility of
// spec.md §4.6: extracting a primary field from agent/verifier stdout,
// classifying verifier recommendations, counting critical issues, and a
// small JSON-extraction-plus-schema-validation toolkit.
package parse

import (
	"encoding/json"
	"regexp"
	"strings"
)

// PrimaryField extracts the primary field from a parsed JSON payload:
// "result" on success, "error" on agent-level failure, falling back to
// "content", else the raw text (spec.md §4.3 output handling).
func PrimaryField(raw string) string {
	obj, ok := ExtractJSON(raw)
	if !ok {
		return raw
	}
	m, ok := obj.(map[string]any)
	if !ok {
		return raw
	}
	for _, key := range []string{"result", "error", "content"} {
		if v, ok := m[key]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return raw
}

// IsAgentError reports whether a parsed JSON payload declares
// is_error=true.
func IsAgentError(raw string) bool {
	obj, ok := ExtractJSON(raw)
	if !ok {
		return false
	}
	m, ok := obj.(map[string]any)
	if !ok {
		return false
	}
	v, ok := m["is_error"].(bool)
	return ok && v
}

// recommendationPattern matches "recommendation: APPROVE" and its
// verdict/decision synonyms, case-insensitively.
var recommendationPattern = regexp.MustCompile(`(?i)(recommendation|verdict|decision)\s*[:]\s*(approve|iterate|reject)`)

// Recommendation extracts the uppercased recommendation enum from
// verifier output, or "" if none is found.
func Recommendation(text string) string {
	m := recommendationPattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.ToUpper(m[2])
}

var (
	criticalMarkerPattern = regexp.MustCompile(`(?i)^\s*[-*]\s*.*?(critical|severe|blocker)\s*[:]|(?i)\[(critical|major)\]`)
	clearedPhrasePattern  = regexp.MustCompile(`(?i)no issues|looks good|approved`)
)

// CountCriticalIssues scans bulleted lines of text for critical/severe/
// blocker markers or [critical]/[major] tags, excluding lines that
// explicitly clear the artifact ("no issues", "looks good", "approved").
func CountCriticalIssues(text string) int {
	count := 0
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if !strings.HasPrefix(trimmed, "-") && !strings.HasPrefix(trimmed, "*") {
			continue
		}
		if clearedPhrasePattern.MatchString(trimmed) {
			continue
		}
		if criticalMarkerPattern.MatchString(trimmed) {
			count++
		}
	}
	return count
}

// Passed applies the verifier pass/fail heuristic of spec.md §4.6:
// recommendation==APPROVE, or explicit passed/approved language with no
// failed/issues language and zero critical issues.
func Passed(text string) bool {
	if Recommendation(text) == "APPROVE" {
		return true
	}
	lower := strings.ToLower(text)
	hasPositive := strings.Contains(lower, "passed") || strings.Contains(lower, "approved")
	hasNegative := strings.Contains(lower, "failed") || strings.Contains(lower, "issues")
	return hasPositive && !hasNegative && CountCriticalIssues(text) == 0
}

var fencedJSONPattern = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")

// ExtractJSON tries, in order: (1) the whole string as JSON, (2) a
// fenced ```json``` block, (3) the first balanced {...} or [...]
// substring. Returns (nil, false) if nothing parses.
func ExtractJSON(raw string) (any, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, false
	}

	var v any
	if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
		return v, true
	}

	if m := fencedJSONPattern.FindStringSubmatch(raw); m != nil {
		if err := json.Unmarshal([]byte(m[1]), &v); err == nil {
			return v, true
		}
	}

	if sub, ok := firstBalanced(raw); ok {
		if err := json.Unmarshal([]byte(sub), &v); err == nil {
			return v, true
		}
	}

	return nil, false
}

// firstBalanced returns the first balanced {...} or [...] substring.
func firstBalanced(s string) (string, bool) {
	for i, c := range s {
		if c != '{' && c != '[' {
			continue
		}
		open, close := byte('{'), byte('}')
		if c == '[' {
			open, close = '[', ']'
		}
		depth := 0
		inString := false
		escaped := false
		for j := i; j < len(s); j++ {
			ch := s[j]
			if inString {
				switch {
				case escaped:
					escaped = false
				case ch == '\\':
					escaped = true
				case ch == '"':
					inString = false
				}
				continue
			}
			switch ch {
			case '"':
				inString = true
			case open:
				depth++
			case close:
				depth--
				if depth == 0 {
					return s[i : j+1], true
				}
			}
		}
		// unbalanced starting here; try the next candidate start
	}
	return "", false
}

// Schema is a minimal JSON-schema-like validator supporting
// object/array/string/number/boolean with "required" and recursion
// (spec.md §4.6).
type Schema struct {
	Type       string             `json:"type"`
	Required   []string           `json:"required,omitempty"`
	Properties map[string]*Schema `json:"properties,omitempty"`
	Items      *Schema            `json:"items,omitempty"`
}

// Validate reports whether value conforms to s.
func Validate(value any, s *Schema) bool {
	if s == nil {
		return true
	}
	switch s.Type {
	case "object":
		m, ok := value.(map[string]any)
		if !ok {
			return false
		}
		for _, req := range s.Required {
			if _, ok := m[req]; !ok {
				return false
			}
		}
		for k, sub := range s.Properties {
			v, ok := m[k]
			if !ok {
				continue
			}
			if !Validate(v, sub) {
				return false
			}
		}
		return true
	case "array":
		arr, ok := value.([]any)
		if !ok {
			return false
		}
		if s.Items == nil {
			return true
		}
		for _, e := range arr {
			if !Validate(e, s.Items) {
				return false
			}
		}
		return true
	case "string":
		_, ok := value.(string)
		return ok
	case "number":
		_, ok := value.(float64)
		return ok
	case "boolean":
		_, ok := value.(bool)
		return ok
	default:
		return true
	}
}
