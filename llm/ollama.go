package llm

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

// ollamaClient calls the single-prompt /api/generate endpoint. The assembled
// prompt already carries history, so the chat endpoint adds nothing.
type ollamaClient struct {
	endpoint string
	model    string
	http     *http.Client
}

type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Error    string `json:"error"`
}

func NewOllamaClient(opts Options) Client {
	host := strings.TrimRight(opts.OllamaHost, "/")
	if host == "" {
		host = "http://localhost:11434"
	}
	return &ollamaClient{
		endpoint: host + "/api/generate",
		model:    opts.Model,
		http:     &http.Client{Timeout: 2 * time.Minute},
	}
}

func (c *ollamaClient) Generate(ctx context.Context, prompt string, params Params) (string, error) {
	options := map[string]any{"temperature": params.Temperature}
	if params.MaxTokens > 0 {
		options["num_predict"] = params.MaxTokens
	}
	body, err := json.Marshal(ollamaGenerateRequest{
		Model:   c.model,
		Prompt:  prompt,
		Options: options,
	})
	if err != nil {
		return "", fmt.Errorf("encode ollama request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", Unavailable("ollama", 0, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return "", Unavailable("ollama", resp.StatusCode, fmt.Errorf("read ollama response: %w", err))
	}

	var parsed ollamaGenerateResponse
	decodeErr := json.Unmarshal(raw, &parsed)

	if resp.StatusCode >= http.StatusBadRequest {
		detail := parsed.Error
		if detail == "" {
			detail = strings.TrimSpace(string(raw))
		}
		if detail == "" {
			detail = resp.Status
		}
		return "", Unavailable("ollama", resp.StatusCode, fmt.Errorf("ollama generate: %s", detail))
	}
	if decodeErr != nil {
		return "", Unavailable("ollama", 0, fmt.Errorf("decode ollama response: %w", decodeErr))
	}
	if parsed.Error != "" {
		return "", Unavailable("ollama", 0, fmt.Errorf("ollama generate: %s", parsed.Error))
	}
	return parsed.Response, nil
}
