// Package openai implements responder.Generator over the OpenAI Chat
// Completions API. Single-shot, non-streaming: the engine wants exactly one
// reply string per call with bounded latency.
package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"

	"github.com/intelhive/intelhive/core"
	"github.com/intelhive/intelhive/responder"
)

// Options configure the OpenAI generator. Fields mirror a minimal subset of
// Chat Completion parameters; extend via functional options without breaking
// callers.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
}

// Generator wraps the OpenAI client behind responder.Generator.
type Generator struct {
	client *openai.Client
	opts   Options
}

// New creates a Generator using the default client (API key from env).
func New(optFns ...func(o *Options)) *Generator {
	client := openai.NewClient()
	return NewFromClient(&client, optFns...)
}

// NewFromClient creates a Generator from an existing client.
func NewFromClient(client *openai.Client, optFns ...func(o *Options)) *Generator {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.9,
		MaxCompletionTokens: 256,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Generator{client: client, opts: opts}
}

// Generate implements responder.Generator.
func (g *Generator) Generate(ctx context.Context, req responder.Request) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.History)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}
	for _, turn := range req.History {
		switch turn.Sender {
		case core.SenderAgent:
			messages = append(messages, openai.AssistantMessage(turn.Content))
		default:
			messages = append(messages, openai.UserMessage(turn.Content))
		}
	}

	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages:            messages,
		Model:               g.opts.Model,
		Temperature:         openai.Float(g.opts.Temperature),
		MaxCompletionTokens: openai.Int(g.opts.MaxCompletionTokens),
	})
	if err != nil {
		return "", fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: no choices returned")
	}
	reply := resp.Choices[0].Message.Content
	if reply == "" {
		return "", fmt.Errorf("openai: empty completion")
	}
	return reply, nil
}

// Info implements responder.Generator.
func (g *Generator) Info() responder.Info {
	return responder.Info{Name: g.opts.Model, Provider: "openai"}
}
