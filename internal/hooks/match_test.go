package hooks

// Matcher tests - pure trigger evaluation over store snapshots.

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hook(id, eventType, pattern string, enabled bool) Hook {
	return Hook{ID: id, Name: id, EventType: eventType, Pattern: pattern, Code: "return;", Enabled: enabled}
}

// TestMatches_EventType verifies exact and wildcard event type matching.
func TestMatches_EventType(t *testing.T) {
	ev := Event{EventType: EventPostToolUse, ToolName: "Edit"}

	assert.True(t, Matches(hook("h", EventPostToolUse, Wildcard, true), ev))
	assert.True(t, Matches(hook("h", Wildcard, Wildcard, true), ev))
	assert.False(t, Matches(hook("h", EventPreToolUse, Wildcard, true), ev))
}

// TestMatches_UnknownEventType verifies unknown types still match hooks
// registered for them verbatim.
func TestMatches_UnknownEventType(t *testing.T) {
	ev := Event{EventType: "SessionStart"}
	assert.True(t, Matches(hook("h", "SessionStart", Wildcard, true), ev))
	assert.True(t, Matches(hook("h", Wildcard, Wildcard, true), ev))
	assert.False(t, Matches(hook("h", EventStop, Wildcard, true), ev))
}

// TestMatches_WildcardPattern verifies "*" and "" patterns pass even for
// events with no tool name or paths.
func TestMatches_WildcardPattern(t *testing.T) {
	ev := Event{EventType: EventNotification}
	assert.True(t, Matches(hook("h", EventNotification, Wildcard, true), ev))
	assert.True(t, Matches(hook("h", EventNotification, "", true), ev))
}

// TestMatches_SubstringPattern verifies case-insensitive substring tests
// against tool name and file paths.
func TestMatches_SubstringPattern(t *testing.T) {
	ev := Event{EventType: EventPostToolUse, ToolName: "Edit", FilePaths: []string{"/src/main.go"}}

	assert.True(t, Matches(hook("h", EventPostToolUse, "edit", true), ev))
	assert.True(t, Matches(hook("h", EventPostToolUse, "main.go", true), ev))
	assert.False(t, Matches(hook("h", EventPostToolUse, "write", true), ev))
}

// TestMatches_Alternation verifies "|" separates alternative patterns.
func TestMatches_Alternation(t *testing.T) {
	ev := Event{EventType: EventPostToolUse, ToolName: "Write"}

	assert.True(t, Matches(hook("h", EventPostToolUse, "Write|Edit", true), ev))
	assert.True(t, Matches(hook("h", EventPostToolUse, "Edit|Write", true), ev))
	assert.False(t, Matches(hook("h", EventPostToolUse, "Read|Bash", true), ev))
}

// TestMatches_GlobPattern verifies the glob fallback against file paths.
func TestMatches_GlobPattern(t *testing.T) {
	ev := Event{EventType: EventPostToolUse, FilePaths: []string{"/src/handlers.go"}}

	assert.True(t, Matches(hook("h", EventPostToolUse, "*.go", true), ev))
	assert.False(t, Matches(hook("h", EventPostToolUse, "*.py", true), ev))
	assert.True(t, Matches(hook("h", EventPostToolUse, "/src/*.GO", true), ev), "glob is case-insensitive")
}

// TestMatches_NoTargets verifies a non-wildcard pattern fails when the
// event carries neither tool name nor file paths.
func TestMatches_NoTargets(t *testing.T) {
	ev := Event{EventType: EventNotification}
	assert.False(t, Matches(hook("h", EventNotification, "deploy", true), ev))
	assert.False(t, Matches(hook("h", EventNotification, "*.go", true), ev))
}

// TestMatch_SkipsDisabled verifies disabled hooks never match.
func TestMatch_SkipsDisabled(t *testing.T) {
	snap := Snapshot{User: []Hook{
		hook("on", EventStop, Wildcard, true),
		hook("off", EventStop, Wildcard, false),
	}}

	matched := Match(Event{EventType: EventStop}, snap)
	require.Len(t, matched, 1)
	assert.Equal(t, "on", matched[0].ID)
}

// TestMatch_Order verifies user hooks come first, then projects in a
// stable order, insertion order within each partition.
func TestMatch_Order(t *testing.T) {
	snap := Snapshot{
		User: []Hook{
			hook("u1", Wildcard, Wildcard, true),
			hook("u2", Wildcard, Wildcard, true),
		},
		Projects: map[string][]Hook{
			"zeta":  {hook("z1", Wildcard, Wildcard, true)},
			"alpha": {hook("a1", Wildcard, Wildcard, true)},
		},
	}

	matched := Match(Event{EventType: EventNotification}, snap)
	require.Len(t, matched, 4)
	ids := []string{matched[0].ID, matched[1].ID, matched[2].ID, matched[3].ID}
	assert.Equal(t, []string{"u1", "u2", "a1", "z1"}, ids)
}

// TestMatch_NoMatches verifies an empty result for an event nothing
// listens to.
func TestMatch_NoMatches(t *testing.T) {
	snap := Snapshot{User: []Hook{hook("h", EventPreToolUse, Wildcard, true)}}
	assert.Empty(t, Match(Event{EventType: EventStop}, snap))
}
