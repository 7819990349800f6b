package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// OpenAICompatible talks to any /v1/chat/completions endpoint, Ollama included.
type OpenAICompatible struct {
	name        string
	baseURL     string
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
	httpClient  *http.Client
}

// NewOllama targets a local Ollama instance.
func NewOllama(host, model string, maxTokens int, temperature float64) *OpenAICompatible {
	if host == "" {
		host = "http://localhost:11434"
	}
	c := NewOpenAICompatible(strings.TrimRight(host, "/")+"/v1", "", model, maxTokens, temperature)
	c.name = "ollama"
	return c
}

func NewOpenAICompatible(baseURL, apiKey, model string, maxTokens int, temperature float64) *OpenAICompatible {
	return &OpenAICompatible{
		name:        "openai",
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      apiKey,
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
		httpClient:  http.DefaultClient,
	}
}

func (c *OpenAICompatible) Name() string { return c.name }

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
	Stream      bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

func (c *OpenAICompatible) Generate(ctx context.Context, prompt string, timeout time.Duration) (string, error) {
	return bounded(ctx, timeout, func(ctx context.Context) (string, error) {
		body, err := json.Marshal(chatRequest{
			Model:       c.model,
			Messages:    []chatMessage{{Role: "user", Content: prompt}},
			MaxTokens:   c.maxTokens,
			Temperature: c.temperature,
		})
		if err != nil {
			return "", fmt.Errorf("%s: marshal request: %w", c.name, err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return "", fmt.Errorf("%s: create request: %w", c.name, err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return "", fmt.Errorf("%s: request failed: %w", c.name, err)
		}
		defer resp.Body.Close()

		var out chatResponse
		decodeErr := json.NewDecoder(resp.Body).Decode(&out)
		if resp.StatusCode != http.StatusOK {
			if decodeErr == nil && out.Error != nil {
				return "", fmt.Errorf("%s: HTTP %d: %s", c.name, resp.StatusCode, out.Error.Message)
			}
			return "", fmt.Errorf("%s: HTTP %d", c.name, resp.StatusCode)
		}
		if decodeErr != nil {
			return "", fmt.Errorf("%s: decode response: %w", c.name, decodeErr)
		}
		if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
			return "", errors.New(c.name + ": empty response")
		}
		return out.Choices[0].Message.Content, nil
	})
}
