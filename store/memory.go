package store

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sync"

	"docsum/model"
	"docsum/types"
)

const embedBatch = 32

type memDoc struct {
	chunks  []Chunk
	vectors [][]float32
}

// Memory keeps embeddings in process and ranks by cosine similarity.
type Memory struct {
	embedder model.Embedder

	mu   sync.RWMutex
	docs map[string]*memDoc
}

func NewMemory(embedder model.Embedder) *Memory {
	return &Memory{embedder: embedder, docs: make(map[string]*memDoc)}
}

func (m *Memory) Build(ctx context.Context, docID string, chunks []Chunk) error {
	m.mu.RLock()
	_, ok := m.docs[docID]
	m.mu.RUnlock()
	if ok {
		return nil
	}

	vectors, err := embedAll(ctx, m.embedder, contents(chunks))
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[docID]; !ok {
		m.docs[docID] = &memDoc{chunks: chunks, vectors: vectors}
	}
	return nil
}

func (m *Memory) Search(ctx context.Context, docID, query string, k int) ([]types.Hit, error) {
	m.mu.RLock()
	doc, ok := m.docs[docID]
	m.mu.RUnlock()
	if !ok || len(doc.chunks) == 0 || k <= 0 {
		return nil, nil
	}

	qv, err := m.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits := make([]types.Hit, 0, len(doc.chunks))
	for i, c := range doc.chunks {
		hits = append(hits, hit(docID, c, cosine(qv, doc.vectors[i])))
	}
	slices.SortStableFunc(hits, func(a, b types.Hit) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func embedAll(ctx context.Context, e model.Embedder, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += embedBatch {
		end := min(start+embedBatch, len(texts))
		vecs, err := e.EmbedDocuments(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embed chunks %d-%d: %w", start, end, err)
		}
		if len(vecs) != end-start {
			return nil, fmt.Errorf("embed chunks %d-%d: got %d vectors", start, end, len(vecs))
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
