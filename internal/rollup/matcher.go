// Package rollup is the financial rollup engine: product classification, refund cost,
// aggregation, derived metrics and sort/pagination. Everything here is pure and synchronous.
package rollup

import (
	"strings"

	"affrollup/internal/domain"
)

// Matches reports whether a single rule matches the candidate product name.
// Empty candidates, blank rule values and unknown rule types never match.
func Matches(rule domain.MatchRule, candidate string) bool {
	if candidate == "" || strings.TrimSpace(rule.Value) == "" {
		return false
	}

	switch rule.Type {
	case domain.MatchContains:
		if rule.CaseSensitive {
			return strings.Contains(candidate, rule.Value)
		}
		return strings.Contains(strings.ToLower(candidate), strings.ToLower(rule.Value))
	default:
		return false
	}
}

// MatchesAny is the OR across a rule list. An empty list matches nothing.
func MatchesAny(rules []domain.MatchRule, candidate string) bool {
	for _, rule := range rules {
		if Matches(rule, candidate) {
			return true
		}
	}
	return false
}
