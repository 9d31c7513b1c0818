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

// DefaultOllamaTimeout is longer than the generic capability timeout
// because local model inference is slow.
const DefaultOllamaTimeout = 60 * time.Second

// OllamaClient calls a local Ollama server's generate API.
type OllamaClient struct {
	baseURL      string
	defaultModel string
	http         *http.Client
}

type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
}

// NewOllamaClient creates an Ollama client. A nil httpClient gets a
// default with DefaultOllamaTimeout.
func NewOllamaClient(baseURL, defaultModel string, httpClient *http.Client) *OllamaClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultOllamaTimeout}
	}
	return &OllamaClient{
		baseURL:      strings.TrimRight(baseURL, "/"),
		defaultModel: defaultModel,
		http:         httpClient,
	}
}

// Complete sends prompt to the model and returns the generated text.
// An empty model falls back to the client's default.
func (c *OllamaClient) Complete(ctx context.Context, prompt, model string) (string, error) {
	if model == "" {
		model = c.defaultModel
	}
	if model == "" {
		return "", fmt.Errorf("no model configured")
	}

	reqBody, err := json.Marshal(ollamaGenerateRequest{Model: model, Prompt: prompt})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama returned %d: %s", resp.StatusCode, truncateBody(data))
	}

	var parsed ollamaGenerateResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	if parsed.Error != "" {
		return "", fmt.Errorf("ollama error: %s", parsed.Error)
	}
	return parsed.Response, nil
}

func truncateBody(data []byte) string {
	if len(data) > maxErrorBodyLen {
		data = data[:maxErrorBodyLen]
	}
	return strings.TrimSpace(string(data))
}
