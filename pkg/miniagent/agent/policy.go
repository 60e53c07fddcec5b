// Package agent – policy.go implements the allow/deny filter over tool
// names. The policy decides which registered tools are exposed to the model;
// it is not an execution-time permission system.
package agent

import (
	"path/filepath"
	"strings"
)

// ToolPolicy filters tool names with glob patterns. Deny always wins over
// allow. An empty allow list admits every tool not denied.
type ToolPolicy struct {
	Allow []string `yaml:"allow"`
	Deny  []string `yaml:"deny"`
}

// Allows reports whether the policy admits the tool name. Matching is
// case-insensitive; patterns use path.Match syntax ("*", "?", character
// classes).
func (p ToolPolicy) Allows(name string) bool {
	name = strings.ToLower(name)
	for _, pat := range p.Deny {
		if globMatch(pat, name) {
			return false
		}
	}
	if len(p.Allow) == 0 {
		return true
	}
	for _, pat := range p.Allow {
		if globMatch(pat, name) {
			return true
		}
	}
	return false
}

// Merge combines p with an override policy. Deny lists accumulate; a
// non-empty override allow list replaces the base allow list, so a narrower
// caller can restrict the exposed tool set but never widen past the
// accumulated denies.
func (p ToolPolicy) Merge(override ToolPolicy) ToolPolicy {
	merged := ToolPolicy{
		Deny: append(append([]string(nil), p.Deny...), override.Deny...),
	}
	if len(override.Allow) > 0 {
		merged.Allow = append([]string(nil), override.Allow...)
	} else {
		merged.Allow = append([]string(nil), p.Allow...)
	}
	return merged
}

// FilterNames returns the subset of names the policy admits, preserving
// order.
func (p ToolPolicy) FilterNames(names []string) []string {
	var out []string
	for _, n := range names {
		if p.Allows(n) {
			out = append(out, n)
		}
	}
	return out
}

func globMatch(pattern, name string) bool {
	matched, err := filepath.Match(strings.ToLower(pattern), name)
	if err != nil {
		// Invalid pattern: fall back to exact comparison.
		return strings.EqualFold(pattern, name)
	}
	return matched
}
