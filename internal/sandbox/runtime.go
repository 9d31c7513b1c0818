// Package sandbox runs hook code inside an isolated, capability-restricted,
// time-bounded JavaScript context.
//
// DESIGN: Each invocation builds a fresh goja interpreter with exactly
// the injected surface - the normalized event, project info, a filtered
// environment copy, hook metadata, the utils capability object and an
// output-only console. There is no ambient access to the host: no
// require, no process, no filesystem. The wall-clock timeout is enforced
// twice over: goja's Interrupt terminates the JS loop, and the
// invocation context cancels any capability call the hook is suspended
// in. The runtime holds no mutable state between invocations, which is
// what makes concurrent execution across unrelated events safe without
// locking.
//
// FILES:
//   - runtime.go:      Runtime, Run(), outcome normalization
//   - capabilities.go: the utils object (log, sleep, fetch, speak, ...)
//   - env.go:          sensitive environment variable filtering
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/dop251/goja"
	"github.com/rs/zerolog/log"

	"github.com/hookmux/hook-gateway/internal/hooks"
	"github.com/hookmux/hook-gateway/internal/projects"
)

// DefaultTimeout is the wall-clock budget for one hook invocation.
const DefaultTimeout = 30 * time.Second

// TimeoutMessage is reported when the budget is exceeded.
const TimeoutMessage = "Hook execution timed out"

// defaultSuccessMessage is synthesized when the hook returns nothing.
const defaultSuccessMessage = "Hook executed successfully"

// cancelledMessage is reported when the caller's context is cancelled
// before the budget elapses.
const cancelledMessage = "Hook execution cancelled"

// DomainNotAllowedError is thrown inside the sandbox when a hook calls
// utils.fetch against a host outside the allowlist. Hook code may catch
// it; uncaught it fails the run without crashing anything else.
type DomainNotAllowedError struct {
	Host string
}

func (e *DomainNotAllowedError) Error() string {
	return fmt.Sprintf("DomainNotAllowedError: host %q is not in the fetch allowlist", e.Host)
}

// Speech is the injected text-to-speech collaborator.
type Speech interface {
	Speak(ctx context.Context, text, voice string) error
	PlaySound(ctx context.Context, name string) error
}

// Completer is the injected LLM collaborator behind utils.askOllama.
type Completer interface {
	Complete(ctx context.Context, prompt, model string) (string, error)
}

// Notifier is the injected notification collaborator.
type Notifier interface {
	Notify(ctx context.Context, title, message string) error
}

// Config wires a Runtime. Collaborators may be nil; the corresponding
// capability then logs a warning and does nothing.
type Config struct {
	Timeout      time.Duration // zero means DefaultTimeout
	AllowedHosts []string      // fetch allowlist; loopback is always allowed
	HTTPClient   *http.Client  // client behind utils.fetch
	Speech       Speech
	Ollama       Completer
	Notifier     Notifier
	OllamaModel  string // default model for utils.askOllama
}

// Runtime executes hook code. It is safe for concurrent use; every Run
// gets an independent interpreter and context.
type Runtime struct {
	timeout      time.Duration
	allowedHosts map[string]bool
	httpClient   *http.Client
	speech       Speech
	ollama       Completer
	notifier     Notifier
	ollamaModel  string

	environ func() []string
	now     func() time.Time
}

// New creates a Runtime from cfg.
func New(cfg Config) *Runtime {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	allowed := map[string]bool{
		"localhost": true,
		"127.0.0.1": true,
		"::1":       true,
	}
	for _, host := range cfg.AllowedHosts {
		allowed[strings.ToLower(host)] = true
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	client = redirectGuardedClient(client, allowed)
	return &Runtime{
		timeout:      timeout,
		allowedHosts: allowed,
		httpClient:   client,
		speech:       cfg.Speech,
		ollama:       cfg.Ollama,
		notifier:     cfg.Notifier,
		ollamaModel:  cfg.OllamaModel,
		environ:      os.Environ,
		now:          time.Now,
	}
}

// Timeout returns the configured wall-clock budget.
func (r *Runtime) Timeout() time.Duration { return r.timeout }

// redirectGuardedClient returns a copy of client whose CheckRedirect
// re-validates every redirect target against the allowlist. Without it
// an allowlisted host could 302 the hook to an arbitrary one.
func redirectGuardedClient(client *http.Client, allowed map[string]bool) *http.Client {
	inner := client.CheckRedirect
	guarded := *client
	guarded.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		host := strings.ToLower(req.URL.Hostname())
		if !allowed[host] {
			return &DomainNotAllowedError{Host: host}
		}
		if inner != nil {
			return inner(req, via)
		}
		if len(via) >= 10 {
			return errors.New("stopped after 10 redirects")
		}
		return nil
	}
	return &guarded
}

// invocation is the per-run state shared by the capability closures.
type invocation struct {
	rt   *Runtime
	vm   *goja.Runtime
	ctx  context.Context
	hook hooks.Hook
}

// Run executes one hook against one event and normalizes the outcome
// into an ExecutionResult. It never panics and never returns an error:
// every failure mode (throw, timeout, capability misuse) is contained in
// the result.
func (r *Runtime) Run(ctx context.Context, h hooks.Hook, ev hooks.Event, project *projects.Info) (res hooks.ExecutionResult) {
	res = hooks.ExecutionResult{
		HookID:      h.ID,
		HookName:    h.Name,
		Scope:       h.Scope,
		ProjectName: h.ProjectName,
	}

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	vm := goja.New()
	inv := &invocation{rt: r, vm: vm, ctx: runCtx, hook: h}

	vm.Set("hookEvent", normalizeEvent(ev))
	if project != nil {
		vm.Set("projectInfo", map[string]any{
			"name":   project.Name,
			"path":   project.Path,
			"config": project.Config,
		})
	} else {
		vm.Set("projectInfo", goja.Null())
	}
	vm.Set("userEnv", FilterEnv(r.environ()))
	vm.Set("hookMeta", map[string]any{
		"id":    h.ID,
		"name":  h.Name,
		"scope": string(h.Scope),
	})
	vm.Set("utils", inv.utilsObject())
	vm.Set("console", inv.consoleObject())

	// Interrupt fires when the budget elapses or the caller's context
	// is cancelled; either way the JS loop terminates on its next
	// instruction. The watcher never outlives the call.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-runCtx.Done():
			if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
				vm.Interrupt(TimeoutMessage)
			} else {
				vm.Interrupt(cancelledMessage)
			}
		case <-done:
		}
	}()

	// A native capability that panics with a non-goja value would
	// otherwise escape RunString; the host process must survive it.
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Str("hook", h.ID).Interface("panic", rec).Msg("sandbox panic contained")
			res.Success = false
			res.Error = fmt.Sprintf("internal sandbox error: %v", rec)
			res.Timestamp = r.now().UTC()
		}
	}()

	start := time.Now()
	value, err := vm.RunString(wrapCode(h.Code))
	res.ExecutionTimeMs = time.Since(start).Milliseconds()
	res.Timestamp = r.now().UTC()

	switch {
	case err == nil:
		res.Success = true
		res.Result = resultMessage(value)
	default:
		res.Success = false
		res.Error = normalizeRunError(err)
	}
	return res
}

// wrapCode places the hook body inside a function so a bare `return`
// yields the hook's status message.
func wrapCode(code string) string {
	return "(function() {\n" + code + "\n})();"
}

func resultMessage(value goja.Value) string {
	if value == nil || goja.IsUndefined(value) || goja.IsNull(value) {
		return defaultSuccessMessage
	}
	msg := value.String()
	if msg == "" {
		return defaultSuccessMessage
	}
	return msg
}

// normalizeRunError maps goja's error types onto the result error string.
func normalizeRunError(err error) string {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if msg, ok := interrupted.Value().(string); ok && (msg == TimeoutMessage || msg == cancelledMessage) {
			return msg
		}
		return fmt.Sprintf("execution interrupted: %v", interrupted.Value())
	}
	var exception *goja.Exception
	if errors.As(err, &exception) {
		return exception.Value().String()
	}
	return err.Error()
}

// normalizeEvent shapes the event exactly as hook code sees it.
func normalizeEvent(ev hooks.Event) map[string]any {
	filePaths := ev.FilePaths
	if filePaths == nil {
		filePaths = []string{}
	}
	ctx := ev.Context
	if ctx == nil {
		ctx = map[string]any{}
	}
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return map[string]any{
		"type":      ev.EventType,
		"toolName":  ev.ToolName,
		"filePaths": filePaths,
		"context":   ctx,
		"timestamp": ts.UTC().Format(time.RFC3339),
	}
}
