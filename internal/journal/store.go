// Package journal keeps a SQLite history of merges applied to documents.
package journal

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Status of a journaled merge.
const (
	StatusApplied = "applied"
	StatusFailed  = "failed"
	StatusPreview = "preview"
)

// Entry is one merge attempt.
type Entry struct {
	ID             string
	Document       string
	Identifier     string
	MatchAttribute string
	Action         string
	Strategy       string
	// Source names the caller: cli, batch, watch or tool.
	Source    string
	Status    string
	Error     string
	BeforeSHA string
	AfterSHA  string
	Bytes     int
	CreatedAt time.Time
}

// Store manages the journal database.
type Store struct {
	db     *sql.DB
	dbPath string
	mu     sync.Mutex
}

// Open creates or opens the journal at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db, dbPath: path}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS merges (
		id TEXT PRIMARY KEY,
		document TEXT NOT NULL,
		identifier TEXT NOT NULL,
		match_attribute TEXT NOT NULL,
		action TEXT NOT NULL,
		strategy TEXT NOT NULL,
		source TEXT NOT NULL,
		status TEXT NOT NULL,
		error TEXT,
		before_sha TEXT,
		after_sha TEXT,
		bytes INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_merges_document ON merges(document);
	CREATE INDEX IF NOT EXISTS idx_merges_created ON merges(created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record inserts e, filling in ID and CreatedAt when empty.
func (s *Store) Record(ctx context.Context, e *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.Status == "" {
		e.Status = StatusApplied
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO merges (id, document, identifier, match_attribute, action, strategy,
			source, status, error, before_sha, after_sha, bytes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.Document, e.Identifier, e.MatchAttribute, e.Action, e.Strategy,
		e.Source, e.Status, e.Error, e.BeforeSHA, e.AfterSHA, e.Bytes, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record merge: %w", err)
	}
	return nil
}

// Recent returns the newest entries first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	return s.query(ctx, `SELECT `+columns+` FROM merges ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
}

// ForDocument returns the newest entries for one document first.
func (s *Store) ForDocument(ctx context.Context, document string, limit int) ([]Entry, error) {
	return s.query(ctx, `SELECT `+columns+` FROM merges WHERE document = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`, document, limit)
}

// Count returns the number of entries per status.
func (s *Store) Count(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM merges GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count merges: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

const columns = `id, document, identifier, match_attribute, action, strategy, source, status,
	COALESCE(error, ''), COALESCE(before_sha, ''), COALESCE(after_sha, ''), bytes, created_at`

func (s *Store) query(ctx context.Context, q string, args ...any) ([]Entry, error) {
	if limit, ok := args[len(args)-1].(int); ok && limit <= 0 {
		args[len(args)-1] = -1
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query merges: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Document, &e.Identifier, &e.MatchAttribute, &e.Action,
			&e.Strategy, &e.Source, &e.Status, &e.Error, &e.BeforeSHA, &e.AfterSHA,
			&e.Bytes, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan merge: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Digest returns the hex SHA-256 of data, or "" for nil data.
func Digest(data []byte) string {
	if data == nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
