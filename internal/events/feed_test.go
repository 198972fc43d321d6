package events

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/bm25-search-index/pkg/kafka"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	keys   []string
	values []DocumentEvent
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, event kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, event.Key)
	p.values = append(p.values, event.Value.(DocumentEvent))
	return p.err
}

func TestFeedPublishesInOrder(t *testing.T) {
	pub := &recordingPublisher{}
	feed := NewFeed(pub, 16)
	feed.Start(context.Background())

	feed.Notify(DocumentEvent{Type: EventDocumentIndexed, DocumentKey: "a"})
	feed.Notify(DocumentEvent{Type: EventDocumentRemoved, DocumentKey: "a"})
	feed.Notify(DocumentEvent{Type: EventSnapshotPersisted, Documents: 0})
	feed.Close()

	require.Len(t, pub.values, 3)
	assert.Equal(t, []string{"a", "a", string(EventSnapshotPersisted)}, pub.keys)
	assert.Equal(t, EventDocumentRemoved, pub.values[1].Type)
	assert.False(t, pub.values[0].Timestamp.IsZero())
}

func TestFeedDrainsOnCancel(t *testing.T) {
	pub := &recordingPublisher{}
	feed := NewFeed(pub, 16)
	ctx, cancel := context.WithCancel(context.Background())

	feed.Notify(DocumentEvent{Type: EventDocumentIndexed, DocumentKey: "x"})
	feed.Notify(DocumentEvent{Type: EventDocumentIndexed, DocumentKey: "y"})
	cancel()
	feed.Start(ctx)
	<-feed.done

	assert.Len(t, pub.values, 2)
}

func TestFeedSurvivesPublishErrorsAndDropsWhenClosed(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	feed := NewFeed(pub, 1)
	feed.Start(context.Background())
	feed.Notify(DocumentEvent{Type: EventDocumentIndexed, DocumentKey: "a"})
	feed.Close()
	feed.Close()

	assert.NotPanics(t, func() { feed.Notify(DocumentEvent{Type: EventDocumentIndexed, DocumentKey: "late"}) })
	for _, k := range pub.keys {
		assert.NotEqual(t, "late", k)
	}
}

func TestNopAndFunc(t *testing.T) {
	var got []DocumentEvent
	var n Notifier = NotifierFunc(func(e DocumentEvent) { got = append(got, e) })
	n.Notify(DocumentEvent{Type: EventDocumentIndexed})
	Nop{}.Notify(DocumentEvent{})
	assert.Len(t, got, 1)
}
