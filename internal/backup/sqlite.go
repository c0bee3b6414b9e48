package backup

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/npezzotti/go-chatserver/internal/types"
	_ "modernc.org/sqlite"
)

const defaultBusyTimeout = 5000

// SQLiteStore keeps the snapshot as a single row in a sqlite database,
// for deployments that prefer a real file-backed store over raw JSON.
// Save overwrites the row, so the semantics match FileStore exactly.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path cannot be empty")
	}

	db, err := sql.Open("sqlite", buildDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS snapshots (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		data BLOB NOT NULL,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create snapshots table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func buildDSN(path string) string {
	switch {
	case strings.HasPrefix(path, "sqlite://"):
		path = "file:" + path[len("sqlite://"):]
	case strings.HasPrefix(path, "file:"), strings.HasPrefix(path, ":memory:"):
		// already in a form sqlite understands
	default:
		path = "file:" + path
	}

	separator := "?"
	if strings.Contains(path, "?") {
		separator = "&"
	}
	return fmt.Sprintf("%s%s_pragma=busy_timeout=%d", path, separator, defaultBusyTimeout)
}

func (s *SQLiteStore) Save(snap types.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	_, err = s.db.Exec(`INSERT INTO snapshots (id, data, updated_at) VALUES (1, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at;`, data)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}

	return nil
}

func (s *SQLiteStore) Load() (types.Snapshot, bool, error) {
	var data []byte
	err := s.db.QueryRow(`SELECT data FROM snapshots WHERE id = 1;`).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Snapshot{}, false, nil
		}
		return types.Snapshot{}, false, fmt.Errorf("load snapshot: %w", err)
	}

	var snap types.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return types.Snapshot{}, false, fmt.Errorf("parse snapshot: %w", err)
	}

	return snap, true, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
