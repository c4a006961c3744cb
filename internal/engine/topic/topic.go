// Package topic implements matching of dot-segmented topic strings against
// patterns containing at most one {{name}} placeholder. Matching is anchored:
// the literal segments before the placeholder must equal the topic's leading
// segments and the literal segments after it must equal the trailing ones;
// everything in between is captured, joined with dots.
package topic

import (
	"fmt"
	"strings"
)

const (
	placeholderOpen  = "{{"
	placeholderClose = "}}"
)

// Match is the result of testing one topic against one pattern.
type Match struct {
	Matched bool
	Param   string
	Value   string
}

// First is the result of MatchFirst: the pattern that won plus its capture.
type First struct {
	Pattern string
	Param   string
	Value   string
}

// Test reports whether topic matches pattern and returns the placeholder
// capture when it does.
func Test(topic, pattern string) Match {
	topicSegs := strings.Split(topic, ".")
	patternSegs := strings.Split(pattern, ".")

	pos := placeholderIndex(patternSegs)
	if pos < 0 {
		if len(topicSegs) != len(patternSegs) {
			return Match{}
		}
		for i := range patternSegs {
			if topicSegs[i] != patternSegs[i] {
				return Match{}
			}
		}
		return Match{Matched: true}
	}

	prefixLen := pos
	suffixLen := len(patternSegs) - pos - 1
	if len(topicSegs) < prefixLen+suffixLen {
		return Match{}
	}

	for i := 0; i < prefixLen; i++ {
		if topicSegs[i] != patternSegs[i] {
			return Match{}
		}
	}
	for i := 0; i < suffixLen; i++ {
		if topicSegs[len(topicSegs)-suffixLen+i] != patternSegs[pos+1+i] {
			return Match{}
		}
	}

	captured := strings.Join(topicSegs[prefixLen:len(topicSegs)-suffixLen], ".")
	return Match{
		Matched: true,
		Param:   paramName(patternSegs[pos]),
		Value:   captured,
	}
}

// MatchFirst evaluates patterns in slice order and returns the first that
// matches. First-match-wins is deliberate: callers control routing priority
// purely through registration order, never through specificity scoring.
func MatchFirst(topic string, patterns []string) (First, bool) {
	for _, pattern := range patterns {
		if m := Test(topic, pattern); m.Matched {
			return First{Pattern: pattern, Param: m.Param, Value: m.Value}, true
		}
	}
	return First{}, false
}

// Validate rejects patterns the matcher is not defined for: empty patterns,
// empty segments, and more than one placeholder.
func Validate(pattern string) error {
	if pattern == "" {
		return fmt.Errorf("topic pattern cannot be empty")
	}

	segments := strings.Split(pattern, ".")
	placeholders := 0
	for _, seg := range segments {
		if seg == "" {
			return fmt.Errorf("topic pattern %q contains an empty segment", pattern)
		}
		if isPlaceholder(seg) {
			if paramName(seg) == "" {
				return fmt.Errorf("topic pattern %q contains an unnamed placeholder", pattern)
			}
			placeholders++
		}
	}
	if placeholders > 1 {
		return fmt.Errorf("topic pattern %q contains %d placeholders, at most one is supported", pattern, placeholders)
	}
	return nil
}

// ParamName returns the placeholder name declared in pattern, or "" when the
// pattern is fully literal.
func ParamName(pattern string) string {
	segments := strings.Split(pattern, ".")
	if pos := placeholderIndex(segments); pos >= 0 {
		return paramName(segments[pos])
	}
	return ""
}

func placeholderIndex(segments []string) int {
	for i, seg := range segments {
		if isPlaceholder(seg) {
			return i
		}
	}
	return -1
}

func isPlaceholder(segment string) bool {
	return strings.HasPrefix(segment, placeholderOpen) && strings.HasSuffix(segment, placeholderClose)
}

func paramName(segment string) string {
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(segment, placeholderOpen), placeholderClose))
}
