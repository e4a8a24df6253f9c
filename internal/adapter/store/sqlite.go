// Package store persists collaboration sessions in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"agentmux/internal/domain"
)

const defaultListLimit = 20

// timeLayout has a fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteSessionStore implements domain.SessionStore. Each session is
// stored as one JSON document next to a few indexed columns, and an FTS5
// table over query and final response backs Search.
type SQLiteSessionStore struct {
	db *sql.DB
}

// NewSQLiteSessionStore opens (or creates) the database at dbPath and
// runs the schema migration.
func NewSQLiteSessionStore(dbPath string) (*SQLiteSessionStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open session db: %w", err)
	}
	// WAL mode for better concurrent reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate session db: %w", err)
	}
	return &SQLiteSessionStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS sessions (
			id             TEXT PRIMARY KEY,
			query          TEXT NOT NULL,
			primary_agent  TEXT NOT NULL,
			mode           TEXT NOT NULL,
			status         TEXT NOT NULL,
			final_response TEXT NOT NULL DEFAULT '',
			data           TEXT NOT NULL,
			created_at     TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS sessions_created ON sessions(created_at);

		CREATE VIRTUAL TABLE IF NOT EXISTS sessions_fts USING fts5(
			query, final_response, content=sessions, content_rowid=rowid
		);

		CREATE TRIGGER IF NOT EXISTS sessions_ai AFTER INSERT ON sessions BEGIN
			INSERT INTO sessions_fts(rowid, query, final_response) VALUES (new.rowid, new.query, new.final_response);
		END;

		CREATE TRIGGER IF NOT EXISTS sessions_ad AFTER DELETE ON sessions BEGIN
			INSERT INTO sessions_fts(sessions_fts, rowid, query, final_response) VALUES ('delete', old.rowid, old.query, old.final_response);
		END;

		CREATE TRIGGER IF NOT EXISTS sessions_au AFTER UPDATE ON sessions BEGIN
			INSERT INTO sessions_fts(sessions_fts, rowid, query, final_response) VALUES ('delete', old.rowid, old.query, old.final_response);
			INSERT INTO sessions_fts(rowid, query, final_response) VALUES (new.rowid, new.query, new.final_response);
		END;
	`
	_, err := db.Exec(schema)
	return err
}

// Close closes the underlying database connection.
func (s *SQLiteSessionStore) Close() error {
	return s.db.Close()
}

// Save inserts the session or replaces an earlier copy with the same id.
func (s *SQLiteSessionStore) Save(ctx context.Context, session *domain.CollaborationSession) error {
	if session == nil || session.ID == "" {
		return domain.NewDomainError("SQLiteSessionStore.Save", domain.ErrInvalidInput, "session id is required")
	}
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, query, primary_agent, mode, status, final_response, data, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			final_response = excluded.final_response,
			data = excluded.data`,
		session.ID, session.Query, session.Primary, string(session.Mode), string(session.Status),
		session.FinalResponse, string(data), session.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("save session %s: %w", session.ID, err)
	}
	return nil
}

// Get loads the full session.
func (s *SQLiteSessionStore) Get(ctx context.Context, id string) (*domain.CollaborationSession, error) {
	var data string
	err := s.db.QueryRowContext(ctx, "SELECT data FROM sessions WHERE id = ?", id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewDomainError("SQLiteSessionStore.Get", domain.ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	var session domain.CollaborationSession
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, fmt.Errorf("unmarshal session %s: %w", id, err)
	}
	return &session, nil
}

// List returns up to limit summaries, newest first. A non-positive limit
// uses the default of 20.
func (s *SQLiteSessionStore) List(ctx context.Context, limit int) ([]domain.SessionSummary, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, query, primary_agent, mode, status, created_at
		 FROM sessions ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSummaries(rows)
}

// Search returns sessions whose query or final response match text, best
// match first. Text that is not valid FTS5 syntax falls back to a
// substring match.
func (s *SQLiteSessionStore) Search(ctx context.Context, text string, limit int) ([]domain.SessionSummary, error) {
	if text == "" {
		return s.List(ctx, limit)
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT s.id, s.query, s.primary_agent, s.mode, s.status, s.created_at
		 FROM sessions_fts f
		 JOIN sessions s ON s.rowid = f.rowid
		 WHERE sessions_fts MATCH ?
		 ORDER BY bm25(sessions_fts)
		 LIMIT ?`, text, limit)
	if err != nil {
		return s.likeSearch(ctx, text, limit)
	}
	defer rows.Close()
	out, err := scanSummaries(rows)
	if err != nil {
		return s.likeSearch(ctx, text, limit)
	}
	return out, nil
}

func (s *SQLiteSessionStore) likeSearch(ctx context.Context, text string, limit int) ([]domain.SessionSummary, error) {
	pattern := "%" + text + "%"
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, query, primary_agent, mode, status, created_at
		 FROM sessions WHERE query LIKE ? OR final_response LIKE ?
		 ORDER BY created_at DESC LIMIT ?`, pattern, pattern, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSummaries(rows)
}

// Prune deletes sessions created before cutoff and reports how many went.
func (s *SQLiteSessionStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE created_at < ?", cutoff.UTC().Format(timeLayout))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanSummaries(rows *sql.Rows) ([]domain.SessionSummary, error) {
	var out []domain.SessionSummary
	for rows.Next() {
		var (
			sum        domain.SessionSummary
			mode       string
			status     string
			createdStr string
		)
		if err := rows.Scan(&sum.ID, &sum.Query, &sum.Primary, &mode, &status, &createdStr); err != nil {
			return nil, err
		}
		sum.Mode = domain.Mode(mode)
		sum.Status = domain.SessionStatus(status)
		sum.CreatedAt, _ = time.Parse(timeLayout, createdStr)
		out = append(out, sum)
	}
	return out, rows.Err()
}

var _ domain.SessionStore = (*SQLiteSessionStore)(nil)
