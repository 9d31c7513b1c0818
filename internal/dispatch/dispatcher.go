// Package dispatch orchestrates matcher → sandbox runtime → log sink for
// inbound events.
//
// DESIGN: One HandleEvent call processes one inbound event fully:
// normalize the payload, match against a store snapshot, then run each
// matched hook sequentially with a short inter-hook delay that bounds
// burst load on the shared capability services. Results stream to the
// sink and broadcast hub as they complete. Failures local to one hook
// never stop the rest and never escape the dispatcher; only store or
// payload failures surface to the caller. Independent events may be
// dispatched concurrently - the dispatcher keeps no per-event state and
// the runtime builds a fresh context per run.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/hookmux/hook-gateway/internal/hooks"
	"github.com/hookmux/hook-gateway/internal/projects"
	"github.com/hookmux/hook-gateway/internal/sandbox"
	"github.com/hookmux/hook-gateway/internal/sink"
)

// DefaultInterHookDelay throttles back-to-back hook executions for one
// event. A backpressure knob, not a correctness requirement.
const DefaultInterHookDelay = 100 * time.Millisecond

// ErrMissingEventType is returned for payloads with no recognizable
// event type under any accepted key.
var ErrMissingEventType = errors.New("payload has no eventType")

// Broadcaster receives each result as it completes. Implemented by the
// gateway's WebSocket hub.
type Broadcaster interface {
	Publish(envelope ResultEnvelope)
}

// ResultEnvelope pairs a result with the event that produced it.
type ResultEnvelope struct {
	EventID   string                `json:"eventId"`
	EventType string                `json:"eventType"`
	Result    hooks.ExecutionResult `json:"result"`
}

// Summary is the response for one dispatched event.
type Summary struct {
	EventID      string                  `json:"eventId"`
	EventType    string                  `json:"eventType"`
	MatchedCount int                     `json:"matchedCount"`
	Results      []hooks.ExecutionResult `json:"results"`
}

// Dispatcher wires the store, runtime, project registry, sink and
// broadcast hub. All collaborators are injected; the dispatcher owns
// none of them.
type Dispatcher struct {
	store     *hooks.Store
	runtime   *sandbox.Runtime
	projects  *projects.Registry
	sink      sink.Sink
	broadcast Broadcaster
	delay     time.Duration
}

// New creates a Dispatcher. A nil broadcaster disables live streaming; a
// negative delay falls back to the default.
func New(store *hooks.Store, runtime *sandbox.Runtime, registry *projects.Registry, resultSink sink.Sink, broadcast Broadcaster, delay time.Duration) *Dispatcher {
	if resultSink == nil {
		resultSink = sink.NopSink{}
	}
	if delay < 0 {
		delay = DefaultInterHookDelay
	}
	return &Dispatcher{
		store:     store,
		runtime:   runtime,
		projects:  registry,
		sink:      resultSink,
		broadcast: broadcast,
		delay:     delay,
	}
}

// HandleEvent normalizes a raw webhook payload, matches it against the
// current store snapshot and runs every matched hook. The returned
// summary is best-effort: hook failures are inside it, not errors.
func (d *Dispatcher) HandleEvent(ctx context.Context, payload []byte) (*Summary, error) {
	ev, err := NormalizeEvent(payload)
	if err != nil {
		return nil, err
	}

	eventID := uuid.New().String()
	matched := hooks.Match(ev, d.store.Snapshot())

	log.Debug().
		Str("event_id", eventID).
		Str("event_type", ev.EventType).
		Str("tool", ev.ToolName).
		Int("matched", len(matched)).
		Msg("event dispatched")

	summary := &Summary{
		EventID:      eventID,
		EventType:    ev.EventType,
		MatchedCount: len(matched),
		Results:      make([]hooks.ExecutionResult, 0, len(matched)),
	}

	for i, m := range matched {
		res := d.runOne(ctx, m.Hook, ev)
		d.emit(ctx, eventID, ev.EventType, res)
		summary.Results = append(summary.Results, res)

		if i < len(matched)-1 && d.delay > 0 {
			select {
			case <-time.After(d.delay):
			case <-ctx.Done():
				return summary, nil
			}
		}
	}
	return summary, nil
}

// TestHook runs exactly one named hook through the production sandbox
// path with a synthetic event, bypassing the matcher.
func (d *Dispatcher) TestHook(ctx context.Context, scope hooks.Scope, projectName, id string, mockPayload []byte) (hooks.ExecutionResult, error) {
	h, ok := d.store.Get(scope, projectName, id)
	if !ok {
		return hooks.ExecutionResult{}, hooks.ErrNotFound
	}

	ev, err := NormalizeEvent(mockPayload)
	if err != nil {
		if !errors.Is(err, ErrMissingEventType) {
			return hooks.ExecutionResult{}, err
		}
		// A bare mock event borrows the hook's own trigger.
		ev = hooks.Event{EventType: h.EventType, Timestamp: time.Now()}
		if ev.EventType == hooks.Wildcard {
			ev.EventType = hooks.EventNotification
		}
	}

	res := d.runOne(ctx, h, ev)
	d.emit(ctx, "test-"+uuid.New().String(), ev.EventType, res)
	return res, nil
}

func (d *Dispatcher) runOne(ctx context.Context, h hooks.Hook, ev hooks.Event) hooks.ExecutionResult {
	var project *projects.Info
	if h.Scope == hooks.ScopeProject {
		if info, ok := d.projects.Resolve(h.ProjectName); ok {
			project = &info
		} else {
			log.Warn().Str("hook", h.ID).Str("project", h.ProjectName).Msg("project not registered, running without projectInfo")
		}
	}
	return d.runtime.Run(ctx, h, ev, project)
}

// emit streams one result to the sink and broadcast hub. Sink failures
// are logged, never propagated: history must not block dispatch.
func (d *Dispatcher) emit(ctx context.Context, eventID, eventType string, res hooks.ExecutionResult) {
	if err := d.sink.Append(ctx, eventID, res); err != nil {
		log.Warn().Err(err).Str("event_id", eventID).Str("hook", res.HookID).Msg("failed to record execution result")
	}
	if d.broadcast != nil {
		d.broadcast.Publish(ResultEnvelope{EventID: eventID, EventType: eventType, Result: res})
	}
}

// NormalizeEvent builds an Event from an inbound webhook payload.
// Alternate key spellings from different forwarders are accepted
// (eventType/hook_event_name, toolName/tool_name, filePaths/file_paths,
// context/originalHookData). Unknown event type values pass through
// verbatim; missing optional fields default to empty.
func NormalizeEvent(payload []byte) (hooks.Event, error) {
	if len(payload) == 0 {
		return hooks.Event{}, ErrMissingEventType
	}
	if !gjson.ValidBytes(payload) {
		return hooks.Event{}, fmt.Errorf("payload is not valid JSON")
	}
	parsed := gjson.ParseBytes(payload)

	eventType := firstString(parsed, "eventType", "hook_event_name", "event_type")
	if eventType == "" {
		return hooks.Event{}, ErrMissingEventType
	}

	ev := hooks.Event{
		EventType:   eventType,
		ToolName:    firstString(parsed, "toolName", "tool_name"),
		ProjectName: firstString(parsed, "projectName", "project_name"),
		ProjectPath: firstString(parsed, "projectPath", "project_path"),
		Timestamp:   time.Now(),
	}

	if paths := first(parsed, "filePaths", "file_paths"); paths.IsArray() {
		for _, p := range paths.Array() {
			if s := p.String(); s != "" {
				ev.FilePaths = append(ev.FilePaths, s)
			}
		}
	} else if single := firstString(parsed, "filePath", "file_path"); single != "" {
		ev.FilePaths = []string{single}
	}

	if ctx := first(parsed, "context", "originalHookData", "original_hook_data"); ctx.IsObject() {
		if m, ok := ctx.Value().(map[string]any); ok {
			ev.Context = m
		}
	}

	if ts := parsed.Get("timestamp"); ts.Exists() {
		if parsedTime, err := time.Parse(time.RFC3339, ts.String()); err == nil {
			ev.Timestamp = parsedTime
		}
	}
	return ev, nil
}

func first(parsed gjson.Result, keys ...string) gjson.Result {
	for _, key := range keys {
		if v := parsed.Get(key); v.Exists() {
			return v
		}
	}
	return gjson.Result{}
}

func firstString(parsed gjson.Result, keys ...string) string {
	return first(parsed, keys...).String()
}
