// Package providers wraps hosted language models behind a single completion
// interface.
package providers

import (
	"context"
	"fmt"
)

// Completer returns the model's reply to a single user prompt.
type Completer interface {
	Complete(ctx context.Context, model string, prompt string) (string, error)
}

type Provider string

const (
	OpenAI Provider = "openai"
	Google Provider = "google"
)

type ProviderParams struct {
	BaseURL string
	APIKey  string
}

type ProviderOption func(*ProviderParams)

func WithBaseURL(baseURL string) ProviderOption {
	return func(p *ProviderParams) {
		p.BaseURL = baseURL
	}
}

func WithAPIKey(apiKey string) ProviderOption {
	return func(p *ProviderParams) {
		p.APIKey = apiKey
	}
}

// New returns a completer for the named provider.
func New(ctx context.Context, provider Provider, opts ...ProviderOption) (Completer, error) {
	switch provider {
	case OpenAI:
		return OpenAi(ctx, opts...), nil
	case Google:
		c, err := Gemini(ctx, opts...)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
}

func applyOptions(opts []ProviderOption) ProviderParams {
	params := ProviderParams{}
	for _, opt := range opts {
		opt(&params)
	}
	return params
}
