package runner

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

// MatchAll is the pattern matching every variable name.
const MatchAll = "*"

// EnvFilter selects environment variables by name using glob patterns.
// A variable is kept when it matches at least one allow pattern and matches
// no deny pattern. With no allow patterns nothing is kept.
type EnvFilter struct {
	allow []glob.Glob
	deny  []glob.Glob
}

// NewEnvFilter compiles the allow and deny patterns.
func NewEnvFilter(allow, deny []string) (*EnvFilter, error) {
	f := &EnvFilter{}
	var err error
	if f.allow, err = compileAll(allow); err != nil {
		return nil, err
	}
	if f.deny, err = compileAll(deny); err != nil {
		return nil, err
	}
	return f, nil
}

func compileAll(patterns []string) ([]glob.Glob, error) {
	out := make([]glob.Glob, 0, len(patterns))
	for _, pattern := range patterns {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid env pattern %q: %w", pattern, err)
		}
		out = append(out, g)
	}
	return out, nil
}

// Keep reports whether the variable name passes the filter.
func (f *EnvFilter) Keep(name string) bool {
	return matchAny(f.allow, name) && !matchAny(f.deny, name)
}

// Apply returns the KEY=VALUE entries of src whose keys pass the filter, in
// their original order.
func (f *EnvFilter) Apply(src []string) []string {
	out := make([]string, 0, len(src))
	for _, kv := range src {
		name, _, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			continue
		}
		if f.Keep(name) {
			out = append(out, kv)
		}
	}
	return out
}

// FilterEnv compiles allow and deny and applies them to src.
func FilterEnv(src, allow, deny []string) ([]string, error) {
	f, err := NewEnvFilter(allow, deny)
	if err != nil {
		return nil, err
	}
	return f.Apply(src), nil
}

func matchAny(globs []glob.Glob, name string) bool {
	for _, g := range globs {
		if g.Match(name) {
			return true
		}
	}
	return false
}
