package model

import (
	"context"
	"fmt"
	"strings"

	"docsum/config"
)

// NewGenerator builds the configured generation provider.
func NewGenerator(ctx context.Context, cfg config.LLMConfig) (Generator, error) {
	switch strings.ToLower(cfg.Provider) {
	case "gemini", "":
		return NewGemini(ctx, cfg.APIKey, cfg.Model)
	case "openai":
		return NewOpenAI(cfg.APIKey, cfg.Model, cfg.BaseURL)
	case "anthropic":
		return NewAnthropic(cfg.APIKey, cfg.Model, cfg.BaseURL)
	case "ollama":
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("ollama: LLM_BASE_URL is empty")
		}
		return NewOllama(cfg.BaseURL, cfg.Model, "", ""), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// NewEmbedder builds the configured embedding provider.
func NewEmbedder(cfg config.EmbeddingConfig) (Embedder, error) {
	switch strings.ToLower(cfg.Provider) {
	case "gemini", "":
		return NewGeminiEmbedder(cfg.APIKey, cfg.Model)
	case "openai":
		return NewOpenAIEmbedder(cfg.APIKey, cfg.Model)
	case "ollama":
		if cfg.URL == "" {
			return nil, fmt.Errorf("ollama: EMBEDDING_URL is empty")
		}
		return NewOllama("", "", cfg.URL, cfg.Model), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}
