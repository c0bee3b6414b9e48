// Package backup implements the dual-persistence subsystem: a local
// snapshot store that is overwritten synchronously on every mutation,
// and a best-effort remote backup channel written asynchronously through
// a single-flight writer. At startup the two sources are reconciled,
// with a retrievable remote payload winning over the local snapshot.
package backup

import (
	"context"

	"github.com/npezzotti/go-chatserver/internal/types"
)

// SnapshotStore is the local durable store. Save overwrites the whole
// snapshot; Load reports found=false when no snapshot has been written.
type SnapshotStore interface {
	Save(snap types.Snapshot) error
	Load() (types.Snapshot, bool, error)
	Close() error
}

// BackupChannel is the remote backup target. It is not a database: Push
// appends a marked payload to a shared message stream and Latest scans
// the stream's most recent entries for the newest marked payload.
type BackupChannel interface {
	Push(ctx context.Context, snap types.Snapshot) error
	Notify(ctx context.Context, text string) error
	Latest(ctx context.Context) (types.Snapshot, bool, error)
}
