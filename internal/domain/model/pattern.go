package model

import (
	"fmt"
	"regexp"
	"strings"
)

// Pattern matches names either exactly or, when written as /expr/, by regular expression.
type Pattern struct {
	raw string
	re  *regexp.Regexp
}

// ParsePattern compiles a single pattern.
func ParsePattern(s string) (Pattern, error) {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && strings.HasPrefix(s, "/") && strings.HasSuffix(s, "/") {
		re, err := regexp.Compile(s[1 : len(s)-1])
		if err != nil {
			return Pattern{}, fmt.Errorf("invalid pattern %q: %w", s, err)
		}
		return Pattern{raw: s, re: re}, nil
	}
	return Pattern{raw: s}, nil
}

// ParsePatterns compiles every non-empty pattern.
func ParsePatterns(in []string) ([]Pattern, error) {
	out := make([]Pattern, 0, len(in))
	for _, s := range in {
		if strings.TrimSpace(s) == "" {
			continue
		}
		p, err := ParsePattern(s)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Match reports whether name matches.
func (p Pattern) Match(name string) bool {
	if p.re != nil {
		return p.re.MatchString(name)
	}
	return p.raw == name
}

// String returns the pattern as written.
func (p Pattern) String() string { return p.raw }

// MatchAny reports whether any pattern matches name.
func MatchAny(patterns []Pattern, name string) bool {
	for _, p := range patterns {
		if p.Match(name) {
			return true
		}
	}
	return false
}
