package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/param"
)

// Anthropic calls the Messages API. An empty key falls back to ANTHROPIC_API_KEY.
type Anthropic struct {
	client      anthropic.Client
	model       string
	maxTokens   int
	temperature float64
}

func NewAnthropic(apiKey, model string, maxTokens int, temperature float64, opts ...option.RequestOption) *Anthropic {
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	// ретраи делает сам SDK, у нас таймаут на весь вызов
	opts = append(opts, option.WithMaxRetries(1))
	return &Anthropic{
		client:      anthropic.NewClient(opts...),
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
	}
}

func (a *Anthropic) Name() string { return "anthropic" }

func (a *Anthropic) Generate(ctx context.Context, prompt string, timeout time.Duration) (string, error) {
	return bounded(ctx, timeout, func(ctx context.Context) (string, error) {
		params := anthropic.MessageNewParams{
			Model:     anthropic.Model(a.model),
			MaxTokens: int64(a.maxTokens),
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
			},
			Temperature: param.NewOpt(a.temperature),
		}

		msg, err := a.client.Messages.New(ctx, params)
		if err != nil {
			return "", fmt.Errorf("anthropic: %w", err)
		}

		var sb strings.Builder
		for _, block := range msg.Content {
			if block.Type == "text" {
				sb.WriteString(block.Text)
			}
		}
		if sb.Len() == 0 {
			return "", errors.New("anthropic: empty response")
		}
		return sb.String(), nil
	})
}
