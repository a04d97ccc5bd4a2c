package bus

import (
	"context"
	"time"
)

const (
	EventSyncBatch    = "sync.batch"
	EventSyncComplete = "sync.complete"
	EventIndexUpdated = "index.updated"
	EventIndexRebuilt = "index.rebuilt"
)

// Message is one progress notification published after a batch commits.
type Message struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data,omitempty"`
	At    time.Time      `json:"at"`
}

// Bus fans sync and index progress out to external listeners. The
// pipeline never depends on delivery; publish failures are logged and
// dropped.
type Bus interface {
	Publish(ctx context.Context, msg Message) error
	StartForwarder(ctx context.Context, onMsg func(m Message)) error
	Close() error
}
