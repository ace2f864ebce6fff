package store

import (
	"context"
	"errors"
	"fmt"

	"intranet/types"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrEmptyIndex means ingestion has never populated the chunk index.
	// A request cannot be answered without it.
	ErrEmptyIndex = errors.New("document index is empty")
)

// DBStorer is the persistence contract for documents and chunks plus the
// similarity search the pipeline consumes.
type DBStorer interface {
	SaveDocument(ctx context.Context, doc types.Document) error
	GetDocumentByID(ctx context.Context, docID uuid.UUID) (*types.Document, error)
	SaveChunk(ctx context.Context, chunk types.Chunk) error
	DeleteChunksByDocID(ctx context.Context, docID uuid.UUID) error
	SearchDepartment(ctx context.Context, vector []float32, department types.Department, k int) ([]types.RetrievalResult, error)
	Ready(ctx context.Context) error
}

type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewPostgresStore(ctx context.Context, connStr string, logger *zap.Logger) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logger.Info("database connection established")
	return &PostgresStore{pool: pool, logger: logger}, nil
}

func (p *PostgresStore) Init(ctx context.Context) error {
	query := `
	CREATE EXTENSION IF NOT EXISTS vector;

	CREATE TABLE IF NOT EXISTS documents (
		id UUID PRIMARY KEY,
		title TEXT NOT NULL,
		source TEXT NOT NULL,
		source_path TEXT,
		department TEXT NOT NULL CHECK (department IN ('HR','IT','Finance')),
		created_at TIMESTAMP WITH TIME ZONE,
		updated_at TIMESTAMP WITH TIME ZONE,
		version INTEGER DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS chunks (
		id UUID PRIMARY KEY,
		doc_id UUID NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		position INT NOT NULL,
		content TEXT NOT NULL,
		department TEXT NOT NULL CHECK (department IN ('HR','IT','Finance')),
		embedding vector(768)
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_embedding ON chunks USING ivfflat (embedding vector_cosine_ops)
	WITH (lists = 100);
	CREATE INDEX IF NOT EXISTS idx_chunks_doc_id ON chunks(doc_id);
	CREATE INDEX IF NOT EXISTS idx_chunks_department ON chunks(department);

	CREATE TABLE IF NOT EXISTS conversations (
		id UUID PRIMARY KEY,
		title TEXT NOT NULL,
		client_id TEXT NOT NULL DEFAULT 'default',
		created_at TIMESTAMP WITH TIME ZONE NOT NULL,
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_conversations_updated ON conversations(updated_at DESC);
	CREATE INDEX IF NOT EXISTS idx_conversations_client ON conversations(client_id);

	CREATE TABLE IF NOT EXISTS messages (
		id UUID PRIMARY KEY,
		conversation_id UUID NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		role TEXT NOT NULL CHECK (role IN ('user','assistant')),
		content TEXT NOT NULL,
		client_id TEXT NOT NULL DEFAULT 'default',
		department TEXT,
		confidence DOUBLE PRECISION,
		sources TEXT[],
		feedback TEXT NOT NULL DEFAULT 'none',
		feedback_comment TEXT,
		ticket_id TEXT,
		error BOOLEAN NOT NULL DEFAULT false,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_messages_created ON messages(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_messages_department ON messages(department, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_messages_feedback ON messages(feedback);

	CREATE TABLE IF NOT EXISTS profiles (
		id UUID PRIMARY KEY,
		client_id TEXT NOT NULL UNIQUE,
		display_name TEXT,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL,
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL
	);
	`
	_, err := p.pool.Exec(ctx, query)
	return err
}

func (p *PostgresStore) SaveDocument(ctx context.Context, doc types.Document) error {
	query := `INSERT INTO documents (id, title, source, source_path, department, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			source = EXCLUDED.source,
			source_path = EXCLUDED.source_path,
			department = EXCLUDED.department,
			updated_at = EXCLUDED.updated_at,
			version = EXCLUDED.version
		`
	_, err := p.pool.Exec(ctx, query,
		doc.ID, doc.Title, doc.Source, doc.SourcePath, doc.Department,
		doc.CreatedAt, doc.UpdatedAt, doc.Version,
	)
	return err
}

func (p *PostgresStore) GetDocumentByID(ctx context.Context, docID uuid.UUID) (*types.Document, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT id, title, source, source_path, department, created_at, updated_at, version
		 FROM documents WHERE id = $1`, docID)

	doc := &types.Document{}
	err := row.Scan(&doc.ID, &doc.Title, &doc.Source, &doc.SourcePath,
		&doc.Department, &doc.CreatedAt, &doc.UpdatedAt, &doc.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (p *PostgresStore) SaveChunk(ctx context.Context, c types.Chunk) error {
	query := `
	INSERT INTO chunks (id, doc_id, position, content, department, embedding)
	VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := p.pool.Exec(ctx, query,
		c.ID, c.DocID, c.Position, c.Text, c.Department, pgvector.NewVector(c.Embedding),
	)
	return err
}

func (p *PostgresStore) DeleteChunksByDocID(ctx context.Context, docID uuid.UUID) error {
	_, err := p.pool.Exec(ctx, "DELETE FROM chunks WHERE doc_id = $1", docID)
	return err
}

// SearchDepartment returns the k closest chunks of the department, ascending
// by cosine distance.
func (p *PostgresStore) SearchDepartment(ctx context.Context, vector []float32, department types.Department, k int) ([]types.RetrievalResult, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("empty query vector")
	}

	query := `
		SELECT c.id, c.doc_id, c.position, c.content, c.department, d.source,
		       c.embedding <=> $1 AS distance
		FROM chunks c
		JOIN documents d ON c.doc_id = d.id
		WHERE c.department = $2 AND c.embedding IS NOT NULL
		ORDER BY c.embedding <=> $1
		LIMIT $3
	`
	rows, err := p.pool.Query(ctx, query, pgvector.NewVector(vector), department, k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []types.RetrievalResult
	for rows.Next() {
		var r types.RetrievalResult
		if err := rows.Scan(
			&r.Chunk.ID,
			&r.Chunk.DocID,
			&r.Chunk.Position,
			&r.Chunk.Text,
			&r.Chunk.Department,
			&r.Chunk.Source,
			&r.Distance,
		); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	p.logger.Debug("similarity search done",
		zap.String("department", string(department)),
		zap.Int("results", len(results)),
	)
	return results, nil
}

// Ready reports whether the chunk index exists and holds at least one row.
// It distinguishes "ingestion never ran" from ordinary request failures.
func (p *PostgresStore) Ready(ctx context.Context) error {
	var exists bool
	err := p.pool.QueryRow(ctx, "SELECT to_regclass('chunks') IS NOT NULL").Scan(&exists)
	if err != nil {
		return fmt.Errorf("check chunks table: %w", err)
	}
	if !exists {
		return ErrEmptyIndex
	}

	var hasRows bool
	if err := p.pool.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM chunks)").Scan(&hasRows); err != nil {
		return fmt.Errorf("check chunks rows: %w", err)
	}
	if !hasRows {
		return ErrEmptyIndex
	}
	return nil
}

func (p *PostgresStore) Close() {
	if p.pool != nil {
		p.pool.Close()
		p.logger.Info("postgres connection pool closed")
	}
}
