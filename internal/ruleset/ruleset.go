// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package ruleset

import "l7classd/internal/markval"

// RuleSet is an ordered, immutable sequence of compiled rules.
// Matching scans in declaration order and returns the first hit.
type RuleSet struct {
	rules []*Rule
}

// New builds a RuleSet from already-compiled rules, preserving order.
func New(rules []*Rule) *RuleSet {
	return &RuleSet{rules: append([]*Rule(nil), rules...)}
}

// Rules returns the rule set in declaration order. The slice is a
// copy; callers must not rely on sharing the underlying array.
func (rs *RuleSet) Rules() []*Rule {
	return append([]*Rule(nil), rs.rules...)
}

// Match returns the mark of the first rule matching protocol/method/url,
// or markval.NoMatch if none match (spec.md §4.5).
func (rs *RuleSet) Match(proto Protocol, method, url string) markval.Mark {
	for _, r := range rs.rules {
		if r.Match(proto, method, url) {
			return r.Mark
		}
	}
	return markval.NoMatch
}
