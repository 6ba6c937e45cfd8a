// Package openai implements a generator backed by the OpenAI chat
// completions API. Any OpenAI-compatible endpoint works, including Ollama's
// /v1 API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/papercomputeco/frames/pkg/agent"
	"github.com/papercomputeco/frames/pkg/generator"
)

const (
	DefaultModel     = "gpt-4o-mini"
	DefaultMaxTokens = 1024
)

// Options configures the generator.
type Options struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int64
}

// Generator calls chat completions once per request with SDK retries off.
type Generator struct {
	client *openai.Client
	opts   Options
}

// New creates a generator from options. An empty APIKey falls back to the
// SDK's OPENAI_API_KEY lookup.
func New(optFns ...func(o *Options)) *Generator {
	opts := Options{Model: DefaultModel, MaxTokens: DefaultMaxTokens}
	for _, fn := range optFns {
		fn(&opts)
	}

	clientOpts := []option.RequestOption{option.WithMaxRetries(0)}
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}
	client := openai.NewClient(clientOpts...)
	return &Generator{client: &client, opts: opts}
}

// Generate implements generator.Generator.
func (g *Generator) Generate(ctx context.Context, nc generator.NodeContext, ag agent.Agent) ([]byte, error) {
	model := g.opts.Model
	if ag.Model != "" {
		model = ag.Model
	}

	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(generator.Instruction(ag)),
			openai.UserMessage(generator.Render(nc)),
		},
		MaxCompletionTokens: openai.Int(g.opts.MaxTokens),
	})
	if err != nil {
		return nil, classify(err)
	}
	if len(resp.Choices) == 0 {
		return nil, generator.ErrEmptyContent
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return nil, generator.ErrEmptyContent
	}
	return []byte(content), nil
}

func classify(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		wrapped := fmt.Errorf("openai api error: %w", err)
		if generator.TransientStatus(apiErr.StatusCode) {
			return generator.Transient(wrapped)
		}
		return wrapped
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return generator.Transient(fmt.Errorf("openai request: %w", err))
}
