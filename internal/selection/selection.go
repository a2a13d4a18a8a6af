// Package selection decides which tables a run touches.
package selection

import (
	"sort"
	"strings"
)

// NeedsListing reports whether resolving include requires the full list of
// table names from the connector.
func NeedsListing(include []string) bool {
	if len(include) == 0 {
		return true
	}
	for _, p := range include {
		if isPattern(p) {
			return true
		}
	}
	return false
}

// Resolve returns the tables to process and the tables skipped by ignore.
//
// Literal include entries are used verbatim, even when absent from available,
// so a misspelled name surfaces as that table's failure. Pattern entries
// ("order_*", "*_log", "*") expand against available. An empty include selects
// everything in available. Ignore entries may also be patterns and always win.
func Resolve(include, available, ignore []string) (selected, skipped []string) {
	var candidates []string
	if len(include) == 0 {
		candidates = append(candidates, available...)
		sort.Strings(candidates)
	} else {
		for _, p := range include {
			if !isPattern(p) {
				candidates = append(candidates, p)
				continue
			}
			candidates = append(candidates, FilterByPattern(available, p)...)
		}
	}

	seen := make(map[string]bool, len(candidates))
	for _, name := range candidates {
		if seen[name] {
			continue
		}
		seen[name] = true
		if Ignored(name, ignore) {
			skipped = append(skipped, name)
			continue
		}
		selected = append(selected, name)
	}
	return selected, skipped
}

// Ignored reports whether name matches any ignore entry.
func Ignored(name string, ignore []string) bool {
	for _, p := range ignore {
		if matchGlob(name, p) {
			return true
		}
	}
	return false
}

// FilterByPattern returns the names matching a glob-like pattern (e.g., "order_*"),
// sorted.
func FilterByPattern(names []string, pattern string) []string {
	var matched []string
	for _, n := range names {
		if matchGlob(n, pattern) {
			matched = append(matched, n)
		}
	}
	sort.Strings(matched)
	return matched
}

func isPattern(p string) bool {
	return strings.Contains(p, "*")
}

func matchGlob(name, pattern string) bool {
	if pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(name, pattern[:len(pattern)-1])
	}
	if strings.HasPrefix(pattern, "*") {
		return strings.HasSuffix(name, pattern[1:])
	}
	return name == pattern
}
