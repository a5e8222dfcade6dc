package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/nmorales94/swapflow/internal/model"
	_ "modernc.org/sqlite"
)

const defaultCap = 100

// Store is a capped, append-mostly record of terminal execution outcomes.
// Once the cap is reached the oldest entries are evicted.
type Store struct {
	db   *sql.DB
	lock *flock.Flock
	cap  int
}

func Open(path, lockPath string, capacity int) (*Store, error) {
	if capacity <= 0 {
		capacity = defaultCap
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create history lock directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history sqlite: %w", err)
	}

	queries := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		`CREATE TABLE IF NOT EXISTS swaps (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			recorded_at INTEGER NOT NULL,
			path TEXT NOT NULL,
			status TEXT NOT NULL,
			payload BLOB NOT NULL
		);`,
		"CREATE INDEX IF NOT EXISTS idx_swaps_recorded ON swaps(recorded_at DESC);",
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init history schema: %w", err)
		}
	}
	return &Store{db: db, lock: flock.New(lockPath), cap: capacity}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Append stores a terminal entry and evicts the oldest rows past the cap.
func (s *Store) Append(entry model.HistoryEntry) error {
	locked, err := s.lock.TryLockContext(context.Background(), 5*time.Second)
	if err != nil {
		return fmt.Errorf("lock history store: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock history store: timeout acquiring lock")
	}
	defer func() { _ = s.lock.Unlock() }()

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal history entry: %w", err)
	}
	_, err = s.db.Exec(
		"INSERT INTO swaps (recorded_at, path, status, payload) VALUES (?, ?, ?, ?)",
		entry.Timestamp.UTC().Unix(), entry.Path, entry.Status, payload,
	)
	if err != nil {
		return fmt.Errorf("append history entry: %w", err)
	}
	_, err = s.db.Exec(
		"DELETE FROM swaps WHERE id NOT IN (SELECT id FROM swaps ORDER BY id DESC LIMIT ?)",
		s.cap,
	)
	if err != nil {
		return fmt.Errorf("trim history: %w", err)
	}
	return nil
}

// List returns the newest entries first.
func (s *Store) List(limit int) ([]model.HistoryEntry, error) {
	if limit <= 0 || limit > s.cap {
		limit = s.cap
	}
	rows, err := s.db.Query("SELECT id, payload FROM swaps ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	entries := make([]model.HistoryEntry, 0)
	for rows.Next() {
		var (
			id      int64
			payload []byte
		)
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		var entry model.HistoryEntry
		if err := json.Unmarshal(payload, &entry); err != nil {
			return nil, fmt.Errorf("decode history row: %w", err)
		}
		entry.ID = id
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history rows: %w", err)
	}
	return entries, nil
}
