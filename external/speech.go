// Package external contains HTTP clients for the capability collaborators
// injected into the sandbox: text-to-speech, Ollama completion, and
// desktop notifications.
//
// DESIGN: These clients call remote services (unlike internal/ packages,
// which run inside the gateway). Each client takes an injectable
// *http.Client for testing and connection pooling, bounds response
// reads, and returns plain errors - the sandbox capability wrappers
// decide what is fatal (nothing is: capability failures are swallowed
// and logged so an outage cannot break a hook).
package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultTimeout for capability service calls.
	DefaultTimeout = 15 * time.Second

	// maxResponseSize prevents OOM on unexpectedly large responses (2MB).
	maxResponseSize = 2 * 1024 * 1024

	// maxErrorBodyLen limits error body in error messages to avoid log bloat.
	maxErrorBodyLen = 500
)

// SpeechClient talks to a text-to-speech service exposing POST /speak and
// POST /play.
type SpeechClient struct {
	baseURL string
	http    *http.Client
}

// NewSpeechClient creates a speech client. A nil httpClient gets a
// default with DefaultTimeout.
func NewSpeechClient(baseURL string, httpClient *http.Client) *SpeechClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &SpeechClient{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// Speak asks the service to speak text aloud. Voice may be empty.
func (c *SpeechClient) Speak(ctx context.Context, text, voice string) error {
	body := map[string]string{"text": text}
	if voice != "" {
		body["voice"] = voice
	}
	return postJSON(ctx, c.http, c.baseURL+"/speak", body)
}

// PlaySound asks the service to play a named sound.
func (c *SpeechClient) PlaySound(ctx context.Context, name string) error {
	return postJSON(ctx, c.http, c.baseURL+"/play", map[string]string{"sound": name})
}

// postJSON posts a JSON body and treats any non-2xx status as an error.
func postJSON(ctx context.Context, client *http.Client, url string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s returned %d: %s", url, resp.StatusCode, readErrorBody(resp.Body))
	}
	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize))
	return nil
}

func readErrorBody(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, maxErrorBodyLen))
	return strings.TrimSpace(string(data))
}
