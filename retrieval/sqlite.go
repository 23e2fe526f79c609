package retrieval

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/hupe1980/toolmesh/core"
)

// SQLiteStore is a VectorStore persisted in SQLite. Embeddings are stored as
// JSON arrays and ranked in process, which suits collections of a few
// thousand documents.
type SQLiteStore struct {
	db       *sql.DB
	embedder core.Embedder
}

var _ core.VectorStore = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the database at path. embedder may be nil.
func NewSQLiteStore(path string, embedder core.Embedder) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open vector db: %w", err)
	}

	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("vector db pragma: %w", err)
		}
	}

	const schema = `
		CREATE TABLE IF NOT EXISTS documents (
			collection TEXT NOT NULL,
			id         TEXT NOT NULL,
			content    TEXT NOT NULL,
			metadata   TEXT NOT NULL DEFAULT '{}',
			embedding  TEXT,
			created_at TEXT NOT NULL,
			PRIMARY KEY (collection, id)
		);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("vector db migrate: %w", err)
	}

	return &SQLiteStore{db: db, embedder: embedder}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Add upserts docs into collection.
func (s *SQLiteStore) Add(ctx context.Context, collection string, docs ...core.Document) error {
	if len(docs) == 0 {
		return nil
	}

	vecs, err := embedDocs(ctx, s.embedder, docs)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const upsert = `
		INSERT INTO documents (collection, id, content, metadata, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(collection, id) DO UPDATE SET
			content   = excluded.content,
			metadata  = excluded.metadata,
			embedding = excluded.embedding
	`

	now := time.Now().UTC().Format(time.RFC3339)

	for i, d := range docs {
		if d.ID == "" {
			d.ID = uuid.NewString()
		}

		meta, err := json.Marshal(d.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}

		var emb sql.NullString
		if vecs != nil {
			raw, err := json.Marshal(vecs[i])
			if err != nil {
				return fmt.Errorf("marshal embedding: %w", err)
			}
			emb = sql.NullString{String: string(raw), Valid: true}
		}

		if _, err := tx.ExecContext(ctx, upsert, collection, d.ID, d.Content, string(meta), emb, now); err != nil {
			return fmt.Errorf("upsert document: %w", err)
		}
	}

	return tx.Commit()
}

// Search ranks the documents of collection against query.
func (s *SQLiteStore) Search(ctx context.Context, query, collection string, opts core.SearchOptions) ([]core.SearchResult, error) {
	qvec, err := embedQuery(ctx, s.embedder, query)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content, metadata, embedding FROM documents WHERE collection = ? ORDER BY created_at, rowid`, collection)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var results []core.SearchResult

	for rows.Next() {
		var (
			id, content, meta string
			emb               sql.NullString
		)
		if err := rows.Scan(&id, &content, &meta, &emb); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}

		var md map[string]any
		if err := json.Unmarshal([]byte(meta), &md); err != nil {
			return nil, fmt.Errorf("decode metadata of %s: %w", id, err)
		}

		var vec []float32
		if emb.Valid {
			if err := json.Unmarshal([]byte(emb.String), &vec); err != nil {
				return nil, fmt.Errorf("decode embedding of %s: %w", id, err)
			}
		}

		results = append(results, core.SearchResult{
			ID:       id,
			Content:  content,
			Score:    score(query, qvec, content, vec),
			Metadata: md,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return rank(results, opts), nil
}
