package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yieldvault/rebalancer/internal/config"
)

const defaultMaxTokens = 1024

// ErrDisabled is returned by the "none" provider. Callers treat it like any
// other provider failure and take their deterministic path.
var ErrDisabled = errors.New("llm provider disabled")

// Request holds the parameters for one completion call.
type Request struct {
	SystemPrompt string
	UserPrompt   string
	Temperature  float64
	MaxTokens    int
	// JSONMode asks the backend for a single JSON object when it supports it.
	JSONMode bool
}

// Response holds the result of a completion call.
type Response struct {
	Content string
	Model   string // provider:model actually used
}

// Provider is the interface for LLM completion backends.
type Provider interface {
	Complete(ctx context.Context, req *Request) (*Response, error)
	Name() string
}

// NewProvider returns the backend named by cfg.Provider.
func NewProvider(cfg config.LLMConfig) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "none":
		return noneProvider{}, nil
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY not set")
		}
		return NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL), nil
	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
		}
		return NewAnthropicProvider(cfg.AnthropicAPIKey, cfg.AnthropicModel, ""), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q: supported providers are openai, anthropic, none", cfg.Provider)
	}
}

type noneProvider struct{}

func (noneProvider) Complete(ctx context.Context, req *Request) (*Response, error) {
	return nil, ErrDisabled
}

func (noneProvider) Name() string { return "none" }

// StripFences removes a surrounding ``` or ```json fence from model output.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
