package store

import (
	"context"
	"fmt"
	"log/slog"

	"docsum/model"
	"docsum/types"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PostgresStore keeps chunk embeddings in a pgvector column.
type PostgresStore struct {
	pool     *pgxpool.Pool
	embedder model.Embedder
	logger   *slog.Logger
}

func NewPostgresStore(ctx context.Context, connStr string, embedder model.Embedder, logger *slog.Logger) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresStore{
		pool:     pool,
		embedder: embedder,
		logger:   logger,
	}, nil
}

func (p *PostgresStore) Init(ctx context.Context) error {
	query := `
	CREATE EXTENSION IF NOT EXISTS vector;

	CREATE TABLE IF NOT EXISTS segment_chunks (
		id UUID PRIMARY KEY,
		doc_hash TEXT NOT NULL,
		segment_id TEXT NOT NULL,
		position INT NOT NULL,
		page INT NOT NULL,
		type TEXT NOT NULL,
		content TEXT NOT NULL,
		embedding vector NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_segment_chunks_doc_hash ON segment_chunks(doc_hash);
	`
	_, err := p.pool.Exec(ctx, query)
	return err
}

func (p *PostgresStore) indexed(ctx context.Context, docID string) (bool, error) {
	var n int
	err := p.pool.QueryRow(ctx, "SELECT count(*) FROM segment_chunks WHERE doc_hash = $1", docID).Scan(&n)
	return n > 0, err
}

func (p *PostgresStore) Build(ctx context.Context, docID string, chunks []Chunk) error {
	done, err := p.indexed(ctx, docID)
	if err != nil {
		return fmt.Errorf("check index: %w", err)
	}
	if done {
		return nil
	}

	vectors, err := embedAll(ctx, p.embedder, contents(chunks))
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for i, c := range chunks {
		batch.Queue(`
		INSERT INTO segment_chunks (id, doc_hash, segment_id, position, page, type, content, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`,
			chunkUUID(docID, c.ID), docID, c.SegmentID, c.Position, c.Page, c.Type, c.Content,
			pgvector.NewVector(vectors[i]),
		)
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert chunks: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	p.logger.Info("index.built", "backend", "pgvector", "hash", docID, "chunks", len(chunks))
	return nil
}

func (p *PostgresStore) Search(ctx context.Context, docID, query string, k int) ([]types.Hit, error) {
	qv, err := p.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(qv) == 0 {
		return nil, fmt.Errorf("empty query vector")
	}

	rows, err := p.pool.Query(ctx, `
		SELECT segment_id, position, page, type, content,
		       1-(embedding <=> $1) AS score
		FROM segment_chunks
		WHERE doc_hash = $2
		ORDER BY embedding <=> $1
		LIMIT $3`,
		pgvector.NewVector(qv), docID, k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []types.Hit
	for rows.Next() {
		var c Chunk
		var score float64
		if err := rows.Scan(&c.SegmentID, &c.Position, &c.Page, &c.Type, &c.Content, &score); err != nil {
			return nil, err
		}
		hits = append(hits, hit(docID, c, score))
	}
	return hits, rows.Err()
}

func (p *PostgresStore) Close() error {
	if p.pool != nil {
		p.pool.Close()
		p.logger.Info("postgres pool closed")
	}
	return nil
}

func chunkUUID(docID, chunkID string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(docID+"/"+chunkID))
}
