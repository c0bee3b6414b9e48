package backup

import (
	"context"
	"log"
	"time"

	"github.com/npezzotti/go-chatserver/internal/stats"
	"github.com/npezzotti/go-chatserver/internal/types"
)

const (
	pushAttempts = 3
	pushBackoff  = 250 * time.Millisecond
	pushTimeout  = 10 * time.Second
)

// Writer serializes pushes to the backup channel: at most one push is in
// flight at a time, in mutation order. The queue holds a single pending
// snapshot; enqueueing while one is already pending replaces it, so
// bursts coalesce to the latest state and are never reordered.
type Writer struct {
	channel BackupChannel
	log     *log.Logger
	stats   stats.StatsProvider
	pending chan types.Snapshot
	stop    chan struct{}
	done    chan struct{}
}

func NewWriter(channel BackupChannel, logger *log.Logger, su stats.StatsProvider) *Writer {
	su.RegisterMetric(stats.NumBackupPushes)
	su.RegisterMetric(stats.NumBackupFailures)

	return &Writer{
		channel: channel,
		log:     logger,
		stats:   su,
		pending: make(chan types.Snapshot, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func (w *Writer) Run() {
	go w.run()
}

// Enqueue hands a snapshot to the writer without blocking the caller.
// If a snapshot is already pending it is dropped in favor of this one.
func (w *Writer) Enqueue(snap types.Snapshot) {
	for {
		select {
		case w.pending <- snap:
			return
		default:
		}

		// queue full: drop the stale pending snapshot and retry
		select {
		case <-w.pending:
		default:
		}
	}
}

// Stop shuts the writer down after flushing any pending snapshot.
func (w *Writer) Stop() {
	close(w.stop)
	<-w.done
}

func (w *Writer) run() {
	defer close(w.done)

	for {
		select {
		case snap := <-w.pending:
			w.push(snap)
		case <-w.stop:
			select {
			case snap := <-w.pending:
				w.push(snap)
			default:
			}
			return
		}
	}
}

// push attempts the remote write with bounded retry. Failures are
// logged and counted, never surfaced: the in-memory state is already
// committed and must not be affected.
func (w *Writer) push(snap types.Snapshot) {
	var err error
	for attempt := 1; attempt <= pushAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
		err = w.channel.Push(ctx, snap)
		cancel()

		if err == nil {
			w.stats.Incr(stats.NumBackupPushes)
			return
		}

		w.log.Printf("backup push attempt %d/%d failed: %v", attempt, pushAttempts, err)
		if attempt < pushAttempts {
			time.Sleep(time.Duration(attempt) * pushBackoff)
		}
	}

	w.stats.Incr(stats.NumBackupFailures)
	w.log.Printf("backup push dropped after %d attempts: %v", pushAttempts, err)
}
