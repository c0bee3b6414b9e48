package backup

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/npezzotti/go-chatserver/internal/types"
)

// FileStore persists the snapshot as a single JSON file, fully
// overwritten on every save via a temp-file rename so a crash mid-write
// never leaves a torn snapshot behind.
type FileStore struct {
	path string
}

func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("snapshot path cannot be empty")
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create snapshot dir: %w", err)
		}
	}

	return &FileStore{path: path}, nil
}

func (f *FileStore) Save(snap types.Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}

	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}

	return nil
}

func (f *FileStore) Load() (types.Snapshot, bool, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return types.Snapshot{}, false, nil
		}
		return types.Snapshot{}, false, fmt.Errorf("read snapshot: %w", err)
	}

	var snap types.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return types.Snapshot{}, false, fmt.Errorf("parse snapshot: %w", err)
	}

	return snap, true, nil
}

func (f *FileStore) Close() error { return nil }

// OpenSnapshotStore selects the local store implementation from the
// configured path: sqlite:// and file: DSNs open the sqlite store,
// anything else is treated as a plain JSON file path.
func OpenSnapshotStore(path string) (SnapshotStore, error) {
	if strings.HasPrefix(path, "sqlite://") || strings.HasPrefix(path, "file:") {
		return NewSQLiteStore(path)
	}

	return NewFileStore(path)
}
