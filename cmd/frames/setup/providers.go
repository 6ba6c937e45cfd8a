package setup

import (
	"fmt"

	"github.com/papercomputeco/frames/pkg/credentials"
	"github.com/papercomputeco/frames/pkg/eventstream"
	"github.com/papercomputeco/frames/pkg/eventstream/kafka"
	"github.com/papercomputeco/frames/pkg/eventstream/nop"
	"github.com/papercomputeco/frames/pkg/generator"
	"github.com/papercomputeco/frames/pkg/generator/anthropic"
	"github.com/papercomputeco/frames/pkg/generator/openai"
	"github.com/papercomputeco/frames/pkg/generator/static"
)

const (
	ollamaBaseURL = "http://localhost:11434/v1"

	// ollamaAPIKey satisfies the OpenAI client; ollama ignores it.
	ollamaAPIKey = "ollama"
)

// apiKey resolves a provider key from credentials.toml or the environment.
func (e *Env) apiKey(provider string) (string, error) {
	mgr, err := credentials.NewManager(e.ConfigDir)
	if err != nil {
		return "", err
	}
	return mgr.Resolve(provider)
}

// Generator builds the configured generation provider.
func (e *Env) Generator() (generator.Generator, error) {
	g := e.Config.Generator

	var key string
	if credentials.IsSupportedProvider(g.Provider) {
		var err error
		if key, err = e.apiKey(g.Provider); err != nil {
			return nil, err
		}
	}

	switch g.Provider {
	case "static":
		return static.New(), nil

	case "anthropic":
		return anthropic.New(func(o *anthropic.Options) {
			o.APIKey = key
			if g.Model != "" {
				o.Model = g.Model
			}
			o.BaseURL = g.BaseURL
			if g.MaxTokens > 0 {
				o.MaxTokens = int64(g.MaxTokens)
			}
		}), nil

	case "openai", "ollama":
		return openai.New(func(o *openai.Options) {
			o.APIKey = key
			if g.Model != "" {
				o.Model = g.Model
			}
			o.BaseURL = g.BaseURL
			if g.MaxTokens > 0 {
				o.MaxTokens = int64(g.MaxTokens)
			}
			if g.Provider == "ollama" {
				o.APIKey = ollamaAPIKey
				if o.BaseURL == "" {
					o.BaseURL = ollamaBaseURL
				}
			}
		}), nil

	default:
		return nil, fmt.Errorf("unknown generator provider %q", g.Provider)
	}
}

// Publisher builds the configured commit event publisher.
func (e *Env) Publisher() (eventstream.Publisher, error) {
	es := e.Config.EventStream

	switch es.Provider {
	case "", "nop":
		return nop.NewPublisher(), nil

	case "kafka":
		p, err := kafka.NewPublisher(kafka.Config{Brokers: es.Brokers, Topic: es.Topic})
		if err != nil {
			return nil, err
		}
		e.Logger.Info("publishing commit events to kafka", "brokers", es.Brokers, "topic", es.Topic)
		return p, nil

	default:
		return nil, fmt.Errorf("unknown event stream provider %q", es.Provider)
	}
}
