// Capabilities - the fixed utils surface injected into every sandbox.
//
// DESIGN: utils is the only way hook code reaches the outside world.
// fetch enforces the hostname allowlist and throws DomainNotAllowedError
// on violation (catchable by the hook, contained by the runtime).
// speak, playSound, askOllama and notify proxy the injected
// collaborators and never throw: a capability outage is logged as a
// warning, not turned into a failed hook. sleep and fetch honor the
// invocation context so a suspended hook still dies at the wall-clock
// budget.
package sandbox

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dop251/goja"
	"github.com/rs/zerolog/log"
)

// maxFetchResponseSize bounds what utils.fetch hands back to hook code (4MB).
const maxFetchResponseSize = 4 * 1024 * 1024

func (inv *invocation) utilsObject() *goja.Object {
	utils := inv.vm.NewObject()
	utils.Set("log", inv.logFn)
	utils.Set("sleep", inv.sleepFn)
	utils.Set("fetch", inv.fetchFn)
	utils.Set("speak", inv.speakFn)
	utils.Set("playSound", inv.playSoundFn)
	utils.Set("askOllama", inv.askOllamaFn)
	utils.Set("notify", inv.notifyFn)
	return utils
}

func (inv *invocation) consoleObject() *goja.Object {
	console := inv.vm.NewObject()
	console.Set("log", func(call goja.FunctionCall) goja.Value {
		log.Debug().Str("hook", inv.hook.ID).Str("source", "console").Msg(formatArgs(call))
		return goja.Undefined()
	})
	console.Set("warn", func(call goja.FunctionCall) goja.Value {
		log.Warn().Str("hook", inv.hook.ID).Str("source", "console").Msg(formatArgs(call))
		return goja.Undefined()
	})
	console.Set("error", func(call goja.FunctionCall) goja.Value {
		log.Error().Str("hook", inv.hook.ID).Str("source", "console").Msg(formatArgs(call))
		return goja.Undefined()
	})
	return console
}

func (inv *invocation) logFn(call goja.FunctionCall) goja.Value {
	log.Info().Str("hook", inv.hook.ID).Str("source", "utils").Msg(formatArgs(call))
	return goja.Undefined()
}

// sleepFn blocks for the requested milliseconds or until the invocation
// context is cancelled, whichever comes first. After a cancellation the
// pending interrupt terminates the hook on its next JS instruction.
func (inv *invocation) sleepFn(call goja.FunctionCall) goja.Value {
	ms := call.Argument(0).ToFloat()
	if ms < 0 {
		ms = 0
	}
	timer := time.NewTimer(time.Duration(ms) * time.Millisecond)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-inv.ctx.Done():
	}
	return goja.Undefined()
}

// fetchFn performs an HTTP request against an allowlisted host and
// returns {status, ok, headers, body} to the hook.
func (inv *invocation) fetchFn(call goja.FunctionCall) goja.Value {
	rawURL := call.Argument(0).String()
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		panic(inv.vm.NewTypeError("fetch: invalid URL %q", rawURL))
	}
	host := strings.ToLower(parsed.Hostname())
	if !inv.rt.allowedHosts[host] {
		panic(inv.vm.NewGoError(&DomainNotAllowedError{Host: host}))
	}

	method := http.MethodGet
	var body io.Reader
	headers := map[string]string{}
	if opts := call.Argument(1); !goja.IsUndefined(opts) && !goja.IsNull(opts) {
		o := opts.ToObject(inv.vm)
		if v := o.Get("method"); v != nil && !goja.IsUndefined(v) {
			method = strings.ToUpper(v.String())
		}
		if v := o.Get("body"); v != nil && !goja.IsUndefined(v) && !goja.IsNull(v) {
			body = strings.NewReader(v.String())
		}
		if v := o.Get("headers"); v != nil && !goja.IsUndefined(v) && !goja.IsNull(v) {
			ho := v.ToObject(inv.vm)
			for _, key := range ho.Keys() {
				headers[key] = ho.Get(key).String()
			}
		}
	}

	req, err := http.NewRequestWithContext(inv.ctx, method, rawURL, body)
	if err != nil {
		panic(inv.vm.NewGoError(fmt.Errorf("fetch: %w", err)))
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := inv.rt.httpClient.Do(req)
	if err != nil {
		// A redirect to a non-allowlisted host surfaces wrapped in a
		// url.Error; the hook sees the same throw as a direct violation.
		var domainErr *DomainNotAllowedError
		if errors.As(err, &domainErr) {
			panic(inv.vm.NewGoError(domainErr))
		}
		panic(inv.vm.NewGoError(fmt.Errorf("fetch: %w", err)))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchResponseSize))
	if err != nil {
		panic(inv.vm.NewGoError(fmt.Errorf("fetch: read body: %w", err)))
	}

	respHeaders := map[string]string{}
	for key := range resp.Header {
		respHeaders[key] = resp.Header.Get(key)
	}

	result := inv.vm.NewObject()
	result.Set("status", resp.StatusCode)
	result.Set("ok", resp.StatusCode >= 200 && resp.StatusCode < 300)
	result.Set("headers", respHeaders)
	result.Set("body", string(respBody))
	return result
}

func (inv *invocation) speakFn(call goja.FunctionCall) goja.Value {
	text := call.Argument(0).String()
	voice := ""
	if v := call.Argument(1); !goja.IsUndefined(v) && !goja.IsNull(v) {
		voice = v.String()
	}
	if inv.rt.speech == nil {
		inv.capabilityWarn("speak", fmt.Errorf("speech service not configured"))
		return goja.Undefined()
	}
	if err := inv.rt.speech.Speak(inv.ctx, text, voice); err != nil {
		inv.capabilityWarn("speak", err)
	}
	return goja.Undefined()
}

func (inv *invocation) playSoundFn(call goja.FunctionCall) goja.Value {
	name := call.Argument(0).String()
	if inv.rt.speech == nil {
		inv.capabilityWarn("playSound", fmt.Errorf("speech service not configured"))
		return goja.Undefined()
	}
	if err := inv.rt.speech.PlaySound(inv.ctx, name); err != nil {
		inv.capabilityWarn("playSound", err)
	}
	return goja.Undefined()
}

// askOllamaFn returns the completion text, or an empty string when the
// collaborator is unavailable or fails.
func (inv *invocation) askOllamaFn(call goja.FunctionCall) goja.Value {
	prompt := call.Argument(0).String()
	model := inv.rt.ollamaModel
	if opts := call.Argument(1); !goja.IsUndefined(opts) && !goja.IsNull(opts) {
		o := opts.ToObject(inv.vm)
		if v := o.Get("model"); v != nil && !goja.IsUndefined(v) {
			model = v.String()
		}
	}
	if inv.rt.ollama == nil {
		inv.capabilityWarn("askOllama", fmt.Errorf("ollama service not configured"))
		return inv.vm.ToValue("")
	}
	response, err := inv.rt.ollama.Complete(inv.ctx, prompt, model)
	if err != nil {
		inv.capabilityWarn("askOllama", err)
		return inv.vm.ToValue("")
	}
	return inv.vm.ToValue(response)
}

func (inv *invocation) notifyFn(call goja.FunctionCall) goja.Value {
	title := call.Argument(0).String()
	message := ""
	if v := call.Argument(1); !goja.IsUndefined(v) && !goja.IsNull(v) {
		message = v.String()
	}
	if inv.rt.notifier == nil {
		inv.capabilityWarn("notify", fmt.Errorf("notification service not configured"))
		return goja.Undefined()
	}
	if err := inv.rt.notifier.Notify(inv.ctx, title, message); err != nil {
		inv.capabilityWarn("notify", err)
	}
	return goja.Undefined()
}

// capabilityWarn records a capability failure without propagating it
// into the hook.
func (inv *invocation) capabilityWarn(capability string, err error) {
	log.Warn().
		Str("hook", inv.hook.ID).
		Str("capability", capability).
		Err(err).
		Msg("capability call failed")
}

func formatArgs(call goja.FunctionCall) string {
	parts := make([]string, 0, len(call.Arguments))
	for _, arg := range call.Arguments {
		parts = append(parts, arg.String())
	}
	return strings.Join(parts, " ")
}
