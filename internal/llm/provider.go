package llm

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

var ErrNoAPIKey = errors.New("no AI API key configured")

// ModelConfig contains per-request model settings
type ModelConfig struct {
	Model       string
	Temperature float32
	MaxTokens   int
	APIKeys     []string
}

func (c ModelConfig) cacheKey() string {
	return strings.Join([]string{
		c.Model,
		strconv.FormatFloat(float64(c.Temperature), 'f', 3, 32),
		strconv.Itoa(c.MaxTokens),
		strings.Join(c.APIKeys, ","),
	}, "|")
}

// Provider produces a completion for a chat history. The history already carries the
// system prompt as its first message when one applies.
type Provider interface {
	Generate(ctx context.Context, messages []*schema.Message, cfg ModelConfig) (string, error)
}

// ChatModelFactory builds a chat model for one configuration.
type ChatModelFactory func(ctx context.Context, cfg ModelConfig) (model.BaseChatModel, error)

// GeminiProvider builds chat models lazily and reuses them per configuration.
type GeminiProvider struct {
	factory ChatModelFactory

	mu     sync.Mutex
	models map[string]model.BaseChatModel
}

func NewGeminiProvider() *GeminiProvider {
	return NewProviderWithFactory(func(ctx context.Context, cfg ModelConfig) (model.BaseChatModel, error) {
		temperature := cfg.Temperature
		maxTokens := cfg.MaxTokens
		return NewMultiKeyChatModel(ctx, cfg.APIKeys, cfg.Model, &temperature, &maxTokens)
	})
}

func NewProviderWithFactory(factory ChatModelFactory) *GeminiProvider {
	return &GeminiProvider{
		factory: factory,
		models:  make(map[string]model.BaseChatModel),
	}
}

func (p *GeminiProvider) Generate(ctx context.Context, messages []*schema.Message, cfg ModelConfig) (string, error) {
	if len(cfg.APIKeys) == 0 {
		return "", ErrNoAPIKey
	}

	chatModel, err := p.modelFor(ctx, cfg)
	if err != nil {
		return "", err
	}

	resp, err := chatModel.Generate(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("generation failed: %w", err)
	}
	if resp == nil {
		return "", nil
	}
	return resp.Content, nil
}

func (p *GeminiProvider) modelFor(ctx context.Context, cfg ModelConfig) (model.BaseChatModel, error) {
	key := cfg.cacheKey()

	p.mu.Lock()
	defer p.mu.Unlock()

	if m, ok := p.models[key]; ok {
		return m, nil
	}
	m, err := p.factory(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build chat model %s: %w", cfg.Model, err)
	}
	p.models[key] = m
	return m, nil
}
