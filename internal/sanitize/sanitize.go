// Package sanitize applies ordered redaction patterns to payload values
// before they're sent to the monitoring endpoint.
package sanitize

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/joeycumines/jsonenc"
)

// Pattern is one compiled redaction rule. Exactly one of Regex or Key is
// set: Regex patterns match against the stringified value of a leaf; Key
// patterns match only when the leaf's containing object key equals Key,
// regardless of the leaf's type.
type Pattern struct {
	Regex       *regexp.Regexp
	Key         string
	Replacement string
}

// Source mirrors olakai.SanitizePattern without importing the root package,
// avoiding an import cycle.
type Source struct {
	Regex       string
	Key         string
	Replacement string
}

// Compile builds the ordered Pattern list from SDK configuration.
func Compile(sources []Source) ([]Pattern, error) {
	patterns := make([]Pattern, 0, len(sources))
	for _, s := range sources {
		p := Pattern{Key: s.Key, Replacement: s.Replacement}
		if p.Replacement == "" {
			p.Replacement = "[REDACTED]"
		}
		if s.Regex != "" {
			re, err := regexp.Compile(s.Regex)
			if err != nil {
				return nil, fmt.Errorf("sanitize: invalid pattern %q: %w", s.Regex, err)
			}
			p.Regex = re
		}
		patterns = append(patterns, p)
	}
	return patterns, nil
}

// Value recursively converts v to a JSON-compatible tree (via a
// marshal/unmarshal round trip) and applies every pattern, in order, to
// each leaf. On any failure, it returns "[SANITIZED]" instead of v, and
// reports the failure via onError (which may be nil).
func Value(v any, patterns []Pattern, onError func(error)) any {
	if len(patterns) == 0 {
		return v
	}

	b, err := json.Marshal(v)
	if err != nil {
		if onError != nil {
			onError(fmt.Errorf("sanitize: marshal failed: %w", err))
		}
		return "[SANITIZED]"
	}

	var tree any
	if err := json.Unmarshal(b, &tree); err != nil {
		if onError != nil {
			onError(fmt.Errorf("sanitize: unmarshal failed: %w", err))
		}
		return "[SANITIZED]"
	}

	return walk(tree, "", patterns)
}

func walk(node any, containingKey string, patterns []Pattern) any {
	switch t := node.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, v := range t {
			out[k] = walk(v, k, patterns)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, v := range t {
			out[i] = walk(v, containingKey, patterns)
		}
		return out
	default:
		return leaf(node, containingKey, patterns)
	}
}

// leaf applies every pattern to one scalar (string/number/bool/nil) value.
// A matching {key} pattern redacts the whole leaf, regardless of type. A
// {regex} pattern applies to string leaves and to float64 (JSON number)
// leaves, the latter matched against their JSON number text; a number leaf
// comes out as a string whether or not the pattern matched. Bool and null
// leaves are left unchanged by {regex} patterns.
func leaf(v any, containingKey string, patterns []Pattern) any {
	for _, p := range patterns {
		if p.Key != "" {
			if p.Key == containingKey {
				v = p.Replacement
			}
			continue
		}
		if p.Regex == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			if f, isFloat := v.(float64); isFloat {
				s = string(jsonenc.AppendFloat64(nil, f))
			} else {
				continue
			}
		}
		v = p.Regex.ReplaceAllString(s, p.Replacement)
	}
	return v
}
