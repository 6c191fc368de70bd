// Package aisvc provides chat completion drivers and the AI backed answer sheet evaluator.
package aisvc

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/tathmini/core"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

var ErrNotConfigured = errors.New("AI provider is not configured")

// disabledService fails every call. It is used when no API key is configured.
type disabledService struct{}

func (disabledService) Complete(context.Context, core.ChatRequest) (string, error) {
	return "", Permanent(ErrNotConfigured)
}

// NewChatCompleter returns the resilient chat completer of the configured provider.
func NewChatCompleter(ctx context.Context, conf *core.Config, logger core.Logger) (core.ChatCompleter, error) {
	provider := strings.ToLower(conf.AI.Provider)
	if conf.AI.ApiKey == "" {
		logger.Warn("no AI API key configured: question generation, evaluation & reports are disabled")
		return disabledService{}, nil
	}

	var next core.ChatCompleter
	switch provider {
	case ProviderOpenAI:
		next = NewOpenAIService(conf)
	case ProviderGemini:
		svc, err := NewGeminiService(ctx, conf)
		if err != nil {
			return nil, err
		}
		next = svc
	default:
		return nil, errors.Errorf("unknown AI provider %q", conf.AI.Provider)
	}
	return NewResilientService(conf, provider, next, logger), nil
}
