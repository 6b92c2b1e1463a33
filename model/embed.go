package model

import (
	"context"
	"errors"
	"fmt"

	"github.com/amikos-tech/chroma-go/pkg/embeddings"
	gemini "github.com/amikos-tech/chroma-go/pkg/embeddings/gemini"
	openai "github.com/amikos-tech/chroma-go/pkg/embeddings/openai"
)

// Embedder turns text into fixed-size vectors.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// ChromaEmbedder adapts a chroma-go embedding function.
type ChromaEmbedder struct {
	ef embeddings.EmbeddingFunction
}

func NewChromaEmbedder(ef embeddings.EmbeddingFunction) *ChromaEmbedder {
	return &ChromaEmbedder{ef: ef}
}

// NewGeminiEmbedder uses Gemini embedding models (default models/embedding-001).
func NewGeminiEmbedder(apiKey, model string) (*ChromaEmbedder, error) {
	if apiKey == "" {
		return nil, errors.New("gemini embeddings: api key is empty")
	}
	if model == "" {
		model = "models/embedding-001"
	}
	ef, err := gemini.NewGeminiEmbeddingFunction(
		gemini.WithAPIKey(apiKey),
		gemini.WithDefaultModel(embeddings.EmbeddingModel(model)))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini embedding function: %w", err)
	}
	return &ChromaEmbedder{ef: ef}, nil
}

func NewOpenAIEmbedder(apiKey, model string) (*ChromaEmbedder, error) {
	if apiKey == "" {
		return nil, errors.New("openai embeddings: api key is empty")
	}
	if model == "" {
		model = "text-embedding-3-small"
	}
	ef, err := openai.NewOpenAIEmbeddingFunction(
		apiKey,
		openai.WithModel(openai.EmbeddingModel(model)))
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenAI embedding function: %w", err)
	}
	return &ChromaEmbedder{ef: ef}, nil
}

// Func exposes the underlying function for stores that embed server-side.
func (e *ChromaEmbedder) Func() embeddings.EmbeddingFunction {
	return e.ef
}

func (e *ChromaEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	embs, err := e.ef.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, err
	}
	out := make([][]float32, len(embs))
	for i, emb := range embs {
		out[i] = emb.ContentAsFloat32()
	}
	return out, nil
}

func (e *ChromaEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	emb, err := e.ef.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	return emb.ContentAsFloat32(), nil
}
