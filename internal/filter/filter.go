// Package filter decides whether a message should be marked read on arrival,
// based on phrases in its subject.
package filter

import "strings"

// Parse splits a "|"-separated filter expression into trimmed, non-empty
// phrases.
func Parse(expr string) []string {
	var phrases []string
	for _, p := range strings.Split(expr, "|") {
		if p = strings.TrimSpace(p); p != "" {
			phrases = append(phrases, p)
		}
	}
	return phrases
}

// Matches reports whether subject contains any phrase of expr. Matching is
// case-sensitive. An empty expression matches nothing.
func Matches(subject, expr string) bool {
	for _, p := range Parse(expr) {
		if strings.Contains(subject, p) {
			return true
		}
	}
	return false
}
