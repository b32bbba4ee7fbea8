package llm

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/Conversly/messenger-relay/internal/utils"
)

// MultiKeyChatModel wraps one Gemini chat model per API key and rotates between them
// round-robin so a single tenant's traffic is spread across quotas.
type MultiKeyChatModel struct {
	models   []model.BaseChatModel
	keyIndex uint64 // atomic counter for round-robin selection
}

// NewMultiKeyChatModel creates a chat model that rotates between multiple API keys
func NewMultiKeyChatModel(ctx context.Context, apiKeys []string, modelName string, temperature *float32, maxTokens *int) (*MultiKeyChatModel, error) {
	if len(apiKeys) == 0 {
		return nil, ErrNoAPIKey
	}

	models := make([]model.BaseChatModel, len(apiKeys))

	for i, key := range apiKeys {
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  key,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini client for key %d: %w", i+1, err)
		}

		chatModel, err := gemini.NewChatModel(ctx, &gemini.Config{
			Client:      client,
			Model:       modelName,
			Temperature: temperature,
			MaxTokens:   maxTokens,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create chat model for key %d: %w", i+1, err)
		}

		models[i] = chatModel
	}

	utils.Zlog.Info("Created multi-key chat model",
		zap.Int("key_count", len(apiKeys)),
		zap.String("model", modelName))

	return &MultiKeyChatModel{models: models}, nil
}

func (m *MultiKeyChatModel) next() model.BaseChatModel {
	if len(m.models) == 1 {
		return m.models[0]
	}
	idx := atomic.AddUint64(&m.keyIndex, 1)
	return m.models[idx%uint64(len(m.models))]
}

// Generate implements model.BaseChatModel
func (m *MultiKeyChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	return m.next().Generate(ctx, input, opts...)
}

// Stream implements model.BaseChatModel
func (m *MultiKeyChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return m.next().Stream(ctx, input, opts...)
}
