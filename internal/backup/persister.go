package backup

import (
	"context"
	"log"
	"time"

	"github.com/npezzotti/go-chatserver/internal/types"
)

const recoverTimeout = 10 * time.Second

// Persister composes the local store and the remote channel into one
// logical snapshot destination. The local write is synchronous and
// authoritative for restarts; the remote push is handed to the writer
// and never blocks or fails the caller.
type Persister struct {
	store   SnapshotStore
	channel BackupChannel
	writer  *Writer
	log     *log.Logger
}

// NewPersister wires the dual store. channel and writer may be nil,
// which disables remote backup and recovery entirely.
func NewPersister(store SnapshotStore, channel BackupChannel, writer *Writer, logger *log.Logger) *Persister {
	return &Persister{
		store:   store,
		channel: channel,
		writer:  writer,
		log:     logger,
	}
}

// Persist overwrites the local snapshot and enqueues the condensed copy
// for the remote channel. Neither failure rolls back in-memory state or
// reaches a client; errors are logged and swallowed.
func (p *Persister) Persist(full, condensed types.Snapshot) {
	if err := p.store.Save(full); err != nil {
		p.log.Printf("local snapshot save failed: %v", err)
	}

	if p.writer != nil {
		p.writer.Enqueue(condensed)
	}
}

// Recover produces the initial state: the local snapshot if one exists,
// overwritten by the newest marked remote payload when the channel is
// reachable. No failure here is fatal; the worst case is empty state.
func (p *Persister) Recover() types.Snapshot {
	var snap types.Snapshot

	local, found, err := p.store.Load()
	if err != nil {
		p.log.Printf("local snapshot load failed: %v", err)
	} else if found {
		p.log.Println("loaded local snapshot")
		snap = local
	}

	if p.channel == nil {
		return snap
	}

	ctx, cancel := context.WithTimeout(context.Background(), recoverTimeout)
	defer cancel()

	remote, found, err := p.channel.Latest(ctx)
	if err != nil {
		p.log.Printf("remote backup fetch failed: %v", err)
		return snap
	}
	if !found {
		p.log.Println("no marked backup payload on remote channel")
		return snap
	}

	p.log.Println("restored from remote backup channel")
	return remote
}

// Announce posts a human-readable status line to the remote channel
// without the backup marker, so recovery never mistakes it for state.
func (p *Persister) Announce(text string) {
	if p.channel == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
		defer cancel()

		if err := p.channel.Notify(ctx, text); err != nil {
			p.log.Printf("announce failed: %v", err)
		}
	}()
}

func (p *Persister) Close() error {
	if p.writer != nil {
		p.writer.Stop()
	}
	return p.store.Close()
}
