package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/bm25-search-index/pkg/kafka"
)

// Feed buffers events and publishes them in order from a single goroutine.
type Feed struct {
	publisher Publisher
	eventCh   chan DocumentEvent
	logger    *slog.Logger
	done      chan struct{}

	mu     sync.RWMutex
	closed bool
}

func NewFeed(publisher Publisher, bufferSize int) *Feed {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	return &Feed{
		publisher: publisher,
		eventCh:   make(chan DocumentEvent, bufferSize),
		logger:    slog.Default().With("component", "change-feed"),
		done:      make(chan struct{}),
	}
}

// Start launches the publishing goroutine. It runs until Close, or until ctx
// is cancelled, in which case buffered events are drained first.
func (f *Feed) Start(ctx context.Context) {
	go func() {
		defer close(f.done)
		for {
			select {
			case event, ok := <-f.eventCh:
				if !ok {
					return
				}
				f.publish(ctx, event)
			case <-ctx.Done():
				f.drainRemaining()
				return
			}
		}
	}()
	f.logger.Info("change feed started", "buffer_size", cap(f.eventCh))
}

// Notify enqueues event, dropping it with a warning when the buffer is full
// or the feed is closed.
func (f *Feed) Notify(event DocumentEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return
	}
	select {
	case f.eventCh <- event:
	default:
		f.logger.Warn("change event dropped (buffer full)", "type", event.Type, "key", event.DocumentKey)
	}
}

// Close stops accepting events and waits for buffered ones to be published.
func (f *Feed) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	close(f.eventCh)
	f.mu.Unlock()
	<-f.done
}

func (f *Feed) publish(ctx context.Context, event DocumentEvent) {
	if err := f.publisher.Publish(ctx, kafka.Event{Key: event.PartitionKey(), Value: event}); err != nil {
		f.logger.Error("failed to publish change event",
			"type", event.Type,
			"key", event.DocumentKey,
			"error", err,
		)
	}
}

func (f *Feed) drainRemaining() {
	for {
		select {
		case event, ok := <-f.eventCh:
			if !ok {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			f.publish(ctx, event)
			cancel()
		default:
			return
		}
	}
}
