// Match - the pure event → hooks function.
//
// DESIGN: Matching is side-effect-free and depends only on the event and
// a store snapshot. A hook matches when its event type equals the
// event's (or is the wildcard) and its pattern passes. Patterns are
// case-insensitive: "*" always passes; "|" separates alternatives;
// otherwise a substring test against the tool name and file paths, with
// a glob fallback ("*" → ".*", "?" → ".") against file paths. An event
// with no tool name and no file paths fails every non-wildcard pattern
// rather than vacuously succeeding.
package hooks

import (
	"regexp"
	"sort"
	"strings"
)

// MatchedHook is one hook selected for an event, annotated with its
// originating partition.
type MatchedHook struct {
	Hook
}

// Match enumerates every enabled hook across the snapshot and returns
// those whose trigger condition the event satisfies. Order is user
// partition first, then projects, insertion order within each.
func Match(ev Event, snap Snapshot) []MatchedHook {
	var matched []MatchedHook
	appendMatches := func(part []Hook) {
		for _, h := range part {
			if h.Enabled && Matches(h, ev) {
				matched = append(matched, MatchedHook{Hook: h})
			}
		}
	}
	appendMatches(snap.User)
	for _, name := range sortedKeys(snap.Projects) {
		appendMatches(snap.Projects[name])
	}
	return matched
}

// Matches reports whether a single hook's trigger condition is satisfied
// by the event. Enabled is not consulted here.
func Matches(h Hook, ev Event) bool {
	if h.EventType != Wildcard && h.EventType != ev.EventType {
		return false
	}
	if h.Pattern == Wildcard || h.Pattern == "" {
		return true
	}
	return patternTest(h.Pattern, ev)
}

// patternTest evaluates a non-wildcard pattern. "|" separates
// alternatives ("Write|Edit"); the pattern passes when any alternative
// does.
func patternTest(pattern string, ev Event) bool {
	if ev.ToolName == "" && len(ev.FilePaths) == 0 {
		return false
	}
	for _, alt := range strings.Split(pattern, "|") {
		if alt != "" && alternativeTest(alt, ev) {
			return true
		}
	}
	return false
}

func alternativeTest(pattern string, ev Event) bool {
	needle := strings.ToLower(pattern)
	if ev.ToolName != "" && strings.Contains(strings.ToLower(ev.ToolName), needle) {
		return true
	}
	for _, p := range ev.FilePaths {
		if strings.Contains(strings.ToLower(p), needle) {
			return true
		}
	}
	if re := globRegexp(pattern); re != nil {
		for _, p := range ev.FilePaths {
			if re.MatchString(p) {
				return true
			}
		}
	}
	return false
}

// globRegexp compiles pattern as an anchored case-insensitive glob where
// "*" matches any run and "?" any single character. Returns nil when the
// pattern contains no wildcards (the substring test already covered it).
func globRegexp(pattern string) *regexp.Regexp {
	if !strings.ContainsAny(pattern, "*?") {
		return nil
	}
	quoted := regexp.QuoteMeta(pattern)
	quoted = strings.ReplaceAll(quoted, `\*`, ".*")
	quoted = strings.ReplaceAll(quoted, `\?`, ".")
	re, err := regexp.Compile("(?i)^" + quoted + "$")
	if err != nil {
		return nil
	}
	return re
}

func sortedKeys(m map[string][]Hook) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// Insertion order within a partition is the contract; across
	// projects a stable enumeration keeps repeated dispatches
	// deterministic.
	sort.Strings(keys)
	return keys
}
