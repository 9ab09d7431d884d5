package providers

import (
	"context"
	"fmt"

	"github.com/sipeed/boxbot/pkg/logger"
)

// FallbackProvider wraps a primary and fallback LLMProvider: when the
// primary's Chat fails, the same request is retried on the fallback model.
// The Model Manager and cmd/boxbot do not construct one.
type FallbackProvider struct {
	primary LLMProvider
	fallback LLMProvider
	primaryModel string
	fallbackModel string
}

func NewFallbackProvider(primary, fallback LLMProvider, primaryModel, fallbackModel string) *FallbackProvider {
	return &FallbackProvider{primary: primary, fallback: fallback, primaryModel: primaryModel, fallbackModel: fallbackModel}
}

func (p *FallbackProvider) Chat(ctx context.Context, messages []Message, tools []ToolDefinition, model string, options map[string]interface{}) (*LLMResponse, error) {
	resp, err := p.primary.Chat(ctx, messages, tools, model, options)
	if err == nil {
		return resp, nil
	}

	logger.WarnCF("providers", "primary model failed, falling back", map[string]interface{}{
		"model": model, "fallback_model": p.fallbackModel, "error": err.Error(),
	})

	fbResp, fbErr := p.fallback.Chat(ctx, messages, tools, p.fallbackModel, options)
	if fbErr != nil {
		return nil, fmt.Errorf("primary failed: %w; fallback also failed: %v", err, fbErr)
	}
	return fbResp, nil
}

func (p *FallbackProvider) GetDefaultModel() string { return p.primaryModel }
func (p *FallbackProvider) Primary() LLMProvider { return p.primary }
func (p *FallbackProvider) Fallback() LLMProvider { return p.fallback }
func (p *FallbackProvider) FallbackModel() string { return p.fallbackModel }
