// Package hooks provides the hook data model, the scope-partitioned hook
// store, and the pure event matcher.
//
// DESIGN: Hooks are user-authored automation scripts keyed by scope
// (user-level or per-project) and a trigger condition (event type +
// pattern). The store owns the persisted representation; hook code is
// opaque text here and is interpreted only by the sandbox runtime.
//
// FILES:
//   - hooks.go:  Hook, Event, ExecutionResult types and event constants
//   - store.go:  Store with CRUD and per-scope JSON persistence
//   - match.go:  Match(), the pure event → hooks function
//   - errors.go: error taxonomy surfaced to CRUD callers
package hooks

import "time"

// Scope partitions hooks into user-level and per-project collections.
type Scope string

const (
	ScopeUser    Scope = "user"
	ScopeProject Scope = "project"

	// ScopeAll is accepted by List only; it spans every partition.
	ScopeAll Scope = "all"
)

// Known event types emitted by the agent forwarder. Unknown values are
// accepted as opaque strings for forward compatibility.
const (
	EventPreToolUse   = "PreToolUse"
	EventPostToolUse  = "PostToolUse"
	EventNotification = "Notification"
	EventStop         = "Stop"
	EventSubagentStop = "SubagentStop"

	// Wildcard matches any event type (and, as a pattern, any tool/path).
	Wildcard = "*"
)

// Hook is a stored automation unit.
type Hook struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Scope       Scope  `json:"scope"`
	ProjectName string `json:"projectName,omitempty"`
	EventType   string `json:"eventType"`
	Pattern     string `json:"pattern"`
	Code        string `json:"code"`
	Enabled     bool   `json:"enabled"`
	Description string `json:"description,omitempty"`
	GeneratedBy string `json:"generatedBy,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Draft is the caller-supplied portion of a new hook. Name, EventType and
// Code are required; Pattern defaults to the wildcard and Enabled defaults
// to true when unset.
type Draft struct {
	Name        string `json:"name"`
	EventType   string `json:"eventType"`
	Pattern     string `json:"pattern"`
	Code        string `json:"code"`
	Enabled     *bool  `json:"enabled"`
	Description string `json:"description"`
	GeneratedBy string `json:"generatedBy"`
}

// Event is a normalized description of something that happened on the
// agent side. Events are transient; they are never persisted here.
type Event struct {
	EventType   string         `json:"eventType"`
	ToolName    string         `json:"toolName,omitempty"`
	FilePaths   []string       `json:"filePaths,omitempty"`
	Context     map[string]any `json:"context,omitempty"`
	ProjectName string         `json:"projectName,omitempty"`
	ProjectPath string         `json:"projectPath,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

// ExecutionResult is the outcome of running one hook against one event.
// Created by the sandbox runtime, streamed to the log sink and broadcast
// subscribers, then discarded.
type ExecutionResult struct {
	HookID          string    `json:"hookId"`
	HookName        string    `json:"hookName"`
	Scope           Scope     `json:"scope"`
	ProjectName     string    `json:"projectName,omitempty"`
	Success         bool      `json:"success"`
	Result          string    `json:"result,omitempty"`
	Error           string    `json:"error,omitempty"`
	ExecutionTimeMs int64     `json:"executionTimeMs"`
	Timestamp       time.Time `json:"timestamp"`
}

// Snapshot is a point-in-time copy of every partition, taken for one
// dispatch so in-flight matching is isolated from concurrent CRUD.
type Snapshot struct {
	User     []Hook
	Projects map[string][]Hook
}

// Stats aggregates hook counts for the dashboard.
type Stats struct {
	TotalHooks   int            `json:"totalHooks"`
	EnabledHooks int            `json:"enabledHooks"`
	ByEventType  map[string]int `json:"byEventType"`
}
