// Package anthropic implements a generator backed by the Anthropic Messages
// API.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/papercomputeco/frames/pkg/agent"
	"github.com/papercomputeco/frames/pkg/generator"
)

const (
	DefaultModel     = "claude-sonnet-4-5"
	DefaultMaxTokens = 1024
)

// Options configures the generator.
type Options struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int64
}

// Generator calls the Messages API once per request. SDK retries are
// disabled; the generation queue owns retry policy.
type Generator struct {
	client *anthropic.Client
	opts   Options
}

// New creates a generator from options. An empty APIKey falls back to the
// SDK's ANTHROPIC_API_KEY lookup.
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
	client := anthropic.NewClient(clientOpts...)
	return &Generator{client: &client, opts: opts}
}

// Generate implements generator.Generator.
func (g *Generator) Generate(ctx context.Context, nc generator.NodeContext, ag agent.Agent) ([]byte, error) {
	model := g.opts.Model
	if ag.Model != "" {
		model = ag.Model
	}

	resp, err := g.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: g.opts.MaxTokens,
		System:    []anthropic.TextBlockParam{{Text: generator.Instruction(ag)}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(generator.Render(nc))),
		},
	})
	if err != nil {
		return nil, classify(err)
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.AsText().Text)
		}
	}
	if b.Len() == 0 {
		return nil, generator.ErrEmptyContent
	}
	return []byte(b.String()), nil
}

func classify(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		wrapped := fmt.Errorf("anthropic api error: %w", err)
		if generator.TransientStatus(apiErr.StatusCode) {
			return generator.Transient(wrapped)
		}
		return wrapped
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	// Anything else failed before a response arrived.
	return generator.Transient(fmt.Errorf("anthropic request: %w", err))
}
