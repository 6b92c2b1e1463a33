package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"
)

// Ollama talks to a local Ollama server for both generation and embeddings.
type Ollama struct {
	generateURL string
	embedURL    string
	model       string
	embedModel  string
	http        *http.Client
}

type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	System string `json:"system,omitempty"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Error    string `json:"error"`
}

type ollamaEmbeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbeddingResponse struct {
	Embedding []float64 `json:"embedding"`
}

func NewOllama(generateURL, model, embedURL, embedModel string) *Ollama {
	return &Ollama{
		generateURL: generateURL,
		embedURL:    embedURL,
		model:       model,
		embedModel:  embedModel,
		http:        &http.Client{},
	}
}

func (o *Ollama) Generate(ctx context.Context, msgs []Message) (string, error) {
	system, rest := splitSystem(msgs)
	parts := make([]string, 0, len(rest))
	for _, m := range rest {
		parts = append(parts, m.Content)
	}

	body, err := json.Marshal(ollamaGenerateRequest{
		Model:  o.model,
		System: system,
		Prompt: strings.Join(parts, "\n\n"),
	})
	if err != nil {
		return "", fmt.Errorf("ollama: marshal request: %w", err)
	}

	respBody, err := o.post(ctx, o.generateURL, body)
	if err != nil {
		return "", err
	}

	var genResp ollamaGenerateResponse
	if err := json.Unmarshal(respBody, &genResp); err == nil {
		if genResp.Error != "" {
			return "", fmt.Errorf("ollama: %s", genResp.Error)
		}
		return genResp.Response, nil
	}

	// streamed answer: concatenate the chunks
	var out strings.Builder
	decoder := json.NewDecoder(bytes.NewReader(respBody))
	for decoder.More() {
		var chunk ollamaGenerateResponse
		if err := decoder.Decode(&chunk); err != nil {
			break
		}
		out.WriteString(chunk.Response)
	}
	return out.String(), nil
}

func (o *Ollama) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(ollamaEmbeddingRequest{Model: o.embedModel, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("ollama: marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	respBody, err := o.post(ctx, o.embedURL, body)
	if err != nil {
		return nil, err
	}

	var embResp ollamaEmbeddingResponse
	if err := json.Unmarshal(respBody, &embResp); err != nil {
		return nil, fmt.Errorf("ollama: unmarshal embedding: %w", err)
	}
	if len(embResp.Embedding) == 0 {
		return nil, fmt.Errorf("ollama: empty embedding")
	}

	norm := normalize64(embResp.Embedding)
	embedding := make([]float32, len(norm))
	for i, v := range norm {
		embedding[i] = float32(v)
	}
	return embedding, nil
}

func (o *Ollama) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		v, err := o.EmbedQuery(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (o *Ollama) post(ctx context.Context, url string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ollama: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ollama: read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &RateLimitError{
			RetryAfter: retryAfterHeader(resp.Header),
			Err:        fmt.Errorf("ollama: %s", strings.TrimSpace(string(respBody))),
		}
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("ollama: status %d, body: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return respBody, nil
}

// normalize64 scales vec to unit length in place.
func normalize64(vec []float64) []float64 {
	var sum float64
	for _, v := range vec {
		sum += v * v
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return vec
	}
	for i, x := range vec {
		vec[i] = x / norm
	}
	return vec
}
