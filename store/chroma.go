package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"docsum/types"

	chroma "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/amikos-tech/chroma-go/pkg/embeddings"
)

const (
	metaSegmentID = "segment_id"
	metaPosition  = "position"
	metaPage      = "page"
	metaType      = "type"
)

// ChromaStore keeps one collection per document so queries need no filter.
type ChromaStore struct {
	client chroma.Client
	ef     embeddings.EmbeddingFunction
	logger *slog.Logger

	mu   sync.Mutex
	cols map[string]chroma.Collection
}

func NewChromaStore(baseURL string, ef embeddings.EmbeddingFunction, logger *slog.Logger) (*ChromaStore, error) {
	client, err := chroma.NewHTTPClient(chroma.WithBaseURL(baseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to create chroma client: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ChromaStore{
		client: client,
		ef:     ef,
		logger: logger,
		cols:   make(map[string]chroma.Collection),
	}, nil
}

func collectionName(docID string) string {
	if len(docID) > 32 {
		docID = docID[:32]
	}
	return "docsum-" + docID
}

func (ds *ChromaStore) collection(ctx context.Context, docID string) (chroma.Collection, error) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if col, ok := ds.cols[docID]; ok {
		return col, nil
	}
	col, err := ds.client.GetOrCreateCollection(ctx, collectionName(docID),
		chroma.WithEmbeddingFunctionCreate(ds.ef))
	if err != nil {
		return nil, fmt.Errorf("failed to open collection for %s: %w", docID, err)
	}
	ds.cols[docID] = col
	return col, nil
}

func (ds *ChromaStore) Build(ctx context.Context, docID string, chunks []Chunk) error {
	col, err := ds.collection(ctx, docID)
	if err != nil {
		return err
	}
	n, err := col.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count %s: %w", docID, err)
	}
	if n > 0 || len(chunks) == 0 {
		return nil
	}

	ids := make([]chroma.DocumentID, len(chunks))
	metas := make([]chroma.DocumentMetadata, len(chunks))
	for i, c := range chunks {
		ids[i] = chroma.DocumentID(c.ID)
		metas[i] = chroma.NewDocumentMetadata(
			chroma.NewStringAttribute(metaSegmentID, c.SegmentID),
			chroma.NewIntAttribute(metaPosition, int64(c.Position)),
			chroma.NewIntAttribute(metaPage, int64(c.Page)),
			chroma.NewStringAttribute(metaType, c.Type),
		)
	}

	err = col.Add(ctx,
		chroma.WithIDs(ids...),
		chroma.WithTexts(contents(chunks)...),
		chroma.WithMetadatas(metas...),
	)
	if err != nil {
		return fmt.Errorf("failed to add chunks for %s: %w", docID, err)
	}
	ds.logger.Info("index.built", "backend", "chroma", "hash", docID, "chunks", len(chunks))
	return nil
}

func (ds *ChromaStore) Search(ctx context.Context, docID, query string, k int) ([]types.Hit, error) {
	col, err := ds.collection(ctx, docID)
	if err != nil {
		return nil, err
	}
	r, err := col.Query(ctx,
		chroma.WithQueryTexts(query),
		chroma.WithNResults(k),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve texts: %w", err)
	}

	docGroups := r.GetDocumentsGroups()
	if len(docGroups) == 0 {
		return nil, nil
	}
	docs := docGroups[0]
	metadatas := r.GetMetadatasGroups()[0]
	distances := r.GetDistancesGroups()[0]

	hits := make([]types.Hit, 0, len(docs))
	for i := range len(docs) {
		c := Chunk{Content: docs[i].ContentString()}
		c.SegmentID, _ = metadatas[i].GetString(metaSegmentID)
		c.Type, _ = metadatas[i].GetString(metaType)
		if page, ok := metadatas[i].GetInt(metaPage); ok {
			c.Page = int(page)
		}
		score := 0.0
		if i < len(distances) {
			score = 1 / (1 + float64(distances[i]))
		}
		hits = append(hits, hit(docID, c, score))
	}
	return hits, nil
}

func (ds *ChromaStore) Close() error {
	return ds.client.Close()
}
