package ignore

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

// Matcher evaluates slash-separated relative paths against a set of
// shell-style glob patterns. Patterns match segment-wise from the right:
// "*.log" matches a file named like that at any depth, "temp/*" matches any
// file directly inside a directory named temp.
type Matcher struct {
	patterns [][]glob.Glob
}

// New compiles the given patterns into a matcher. Blank patterns are dropped,
// so an empty or all-blank set ignores nothing.
func New(patterns []string) (*Matcher, error) {
	m := &Matcher{}
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}

		segments := strings.Split(strings.Trim(p, "/"), "/")
		compiled := make([]glob.Glob, 0, len(segments))
		for _, segment := range segments {
			g, err := glob.Compile(segment)
			if err != nil {
				return nil, fmt.Errorf("invalid ignore pattern %q: %w", p, err)
			}
			compiled = append(compiled, g)
		}
		m.patterns = append(m.patterns, compiled)
	}
	return m, nil
}

// Parse compiles a comma-separated pattern list. An empty string yields a
// matcher that ignores nothing.
func Parse(patterns string) (*Matcher, error) {
	return New(strings.Split(patterns, ","))
}

// Match reports whether relPath matches any pattern in the set.
func (m *Matcher) Match(relPath string) bool {
	parts := strings.Split(relPath, "/")
	for _, pattern := range m.patterns {
		if len(pattern) > len(parts) {
			continue
		}
		tail := parts[len(parts)-len(pattern):]
		matched := true
		for i, g := range pattern {
			if !g.Match(tail[i]) {
				matched = false
				break
			}
		}
		if matched {
			return true
		}
	}
	return false
}
