package memory

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hupe1980/toolmesh/core"
)

// SQLiteStore persists session histories in a SQLite database so they
// survive restarts.
type SQLiteStore struct {
	db *sql.DB
}

var _ core.HistoryStore = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the database at path and runs
// migrations. Use ":memory:" for a throwaway database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}

	// SQLite write safety: single writer.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("history db pragma: %w", err)
		}
	}

	if err := migrateHistory(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("history db migrate: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func migrateHistory(db *sql.DB) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS sessions (
			id         TEXT PRIMARY KEY,
			created_at TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS messages (
			session_id TEXT    NOT NULL,
			seq        INTEGER NOT NULL,
			role       TEXT    NOT NULL,
			content    TEXT    NOT NULL,
			created_at TEXT    NOT NULL,
			PRIMARY KEY (session_id, seq)
		);
	`
	_, err := db.Exec(schema)
	return err
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Messages returns the session history in append order, creating the
// session when absent.
func (s *SQLiteStore) Messages(ctx context.Context, sessionID string) ([]core.Message, error) {
	sessionID = SessionID(sessionID)

	if err := s.ensureSession(ctx, sessionID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content, created_at FROM messages WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	msgs := []core.Message{}
	for rows.Next() {
		var (
			role, content, created string
		)
		if err := rows.Scan(&role, &content, &created); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}

		ts, _ := time.Parse(time.RFC3339Nano, created)
		msgs = append(msgs, core.Message{Role: core.MessageRole(role), Content: content, CreatedAt: ts})
	}

	return msgs, rows.Err()
}

// AppendHuman appends a human message.
func (s *SQLiteStore) AppendHuman(ctx context.Context, sessionID, text string) error {
	return s.append(ctx, sessionID, core.NewHumanMessage(text))
}

// AppendAI appends an AI message.
func (s *SQLiteStore) AppendAI(ctx context.Context, sessionID, text string) error {
	return s.append(ctx, sessionID, core.NewAIMessage(text))
}

func (s *SQLiteStore) append(ctx context.Context, sessionID string, msg core.Message) error {
	sessionID = SessionID(sessionID)

	if err := s.ensureSession(ctx, sessionID); err != nil {
		return err
	}

	// The single connection serialises writers, so MAX(seq)+1 is race free.
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (session_id, seq, role, content, created_at)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE session_id = ?), ?, ?, ?)`,
		sessionID, sessionID, string(msg.Role), msg.Content, msg.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}

	return nil
}

func (s *SQLiteStore) ensureSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, created_at) VALUES (?, ?) ON CONFLICT(id) DO NOTHING`,
		sessionID, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// Clear drops the history of a session.
func (s *SQLiteStore) Clear(ctx context.Context, sessionID string) error {
	sessionID = SessionID(sessionID)

	if _, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sessionID); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// Sessions returns the identifiers of all known sessions.
func (s *SQLiteStore) Sessions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM sessions ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
