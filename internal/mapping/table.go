// Package mapping implements ordered longest-prefix path rewriting.
package mapping

import (
	"sort"
	"strings"
)

// Rule rewrites paths beginning with Source so that the matched prefix is
// replaced by Target.
type Rule struct {
	Source string
	Target string
}

// Table is an ordered set of rules. Rules are held sorted by descending
// source length with equal lengths broken lexically, so the most specific
// rule always wins and resolution is deterministic.
type Table struct {
	rules []Rule
}

// NewTable builds a Table from the given rules. Rules with an empty source
// prefix are dropped; they would match every path.
func NewTable(rules []Rule) Table {
	sorted := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if r.Source == "" {
			continue
		}
		sorted = append(sorted, r)
	}

	sort.SliceStable(sorted, func(i, j int) bool {
		if len(sorted[i].Source) != len(sorted[j].Source) {
			return len(sorted[i].Source) > len(sorted[j].Source)
		}
		return sorted[i].Source < sorted[j].Source
	})

	return Table{rules: sorted}
}

// Len returns the number of active rules.
func (t Table) Len() int {
	return len(t.rules)
}

// Resolve applies the first rule whose source is a literal prefix of path,
// replacing only that leading occurrence. It returns ok=false when no rule
// matches; the caller decides whether that degrades or aborts resolution.
func (t Table) Resolve(path string) (string, bool) {
	for _, r := range t.rules {
		if strings.HasPrefix(path, r.Source) {
			return r.Target + path[len(r.Source):], true
		}
	}
	return "", false
}
