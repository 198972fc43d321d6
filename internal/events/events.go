// Package events publishes a change feed of index mutations and snapshot
// persists. Events are buffered and shipped to Kafka by a background
// goroutine so indexing never waits on the broker.
package events

import (
	"context"
	"time"

	"github.com/Adithya-Monish-Kumar-K/bm25-search-index/pkg/kafka"
)

type EventType string

const (
	EventDocumentIndexed   EventType = "indexed"
	EventDocumentRemoved   EventType = "removed"
	EventSnapshotPersisted EventType = "snapshot_persisted"
)

// DocumentEvent describes one change. Document fields are empty for snapshot
// events and snapshot fields are zero for document events.
type DocumentEvent struct {
	Type        EventType `json:"type"`
	DocumentKey string    `json:"key,omitempty"`
	Source      string    `json:"source,omitempty"`
	Length      int       `json:"length,omitempty"`
	Terms       int       `json:"terms,omitempty"`
	Documents   int       `json:"documents,omitempty"`
	Path        string    `json:"path,omitempty"`
	Generation  uint64    `json:"generation"`
	Timestamp   time.Time `json:"at"`
}

// PartitionKey keeps all events for one document on one partition.
func (e DocumentEvent) PartitionKey() string {
	if e.DocumentKey != "" {
		return e.DocumentKey
	}
	return string(e.Type)
}

// Notifier receives change events. Notify must not block.
type Notifier interface {
	Notify(event DocumentEvent)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Notify(DocumentEvent) {}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(DocumentEvent)

func (f NotifierFunc) Notify(e DocumentEvent) { f(e) }

// Publisher is the subset of the Kafka producer the feed needs.
type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}
