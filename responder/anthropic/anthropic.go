// Package anthropic implements responder.Generator over the Anthropic
// Messages API. Single-shot, non-streaming.
package anthropic

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/intelhive/intelhive/core"
	"github.com/intelhive/intelhive/responder"
)

// Options configure the Anthropic generator (model id, temperature, max
// tokens, API key).
type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int64
	APIKey      string
}

// Generator wraps the Anthropic client behind responder.Generator.
type Generator struct {
	client *anthropic.Client
	opts   Options
}

// New creates a Generator using the official client.
func New(optFns ...func(o *Options)) *Generator {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := anthropic.NewClient(clientOpts...)
	return &Generator{client: &client, opts: opts}
}

// NewFromClient creates a Generator from an existing client.
func NewFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Generator {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Generator{client: client, opts: opts}
}

func defaultOptions() Options {
	return Options{
		Model:       string(anthropic.ModelClaude3_5Sonnet20241022),
		Temperature: 0.9,
		MaxTokens:   256,
	}
}

// Generate implements responder.Generator.
func (g *Generator) Generate(ctx context.Context, req responder.Request) (string, error) {
	messages := make([]anthropic.MessageParam, 0, len(req.History))
	for _, turn := range req.History {
		block := anthropic.NewTextBlock(turn.Content)
		switch turn.Sender {
		case core.SenderAgent:
			messages = append(messages, anthropic.NewAssistantMessage(block))
		default:
			messages = append(messages, anthropic.NewUserMessage(block))
		}
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(g.opts.Model),
		Messages:    messages,
		MaxTokens:   g.opts.MaxTokens,
		Temperature: anthropic.Float(g.opts.Temperature),
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}

	resp, err := g.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic api error: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.AsText().Text)
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("anthropic: empty completion")
	}
	return text.String(), nil
}

// Info implements responder.Generator.
func (g *Generator) Info() responder.Info {
	return responder.Info{Name: g.opts.Model, Provider: "anthropic"}
}
