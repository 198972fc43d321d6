package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/bm25-search-index/internal/events"
	"github.com/Adithya-Monish-Kumar-K/bm25-search-index/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/bm25-search-index/internal/indexer/snapshot"
	apperrors "github.com/Adithya-Monish-Kumar-K/bm25-search-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/bm25-search-index/pkg/metrics"
)

// Persistor periodically writes a snapshot of the index to path. It is the
// only writer of path; Persist calls are serialised.
type Persistor struct {
	idx      *index.MemoryIndex
	path     string
	interval time.Duration
	metrics  *metrics.Metrics
	notifier events.Notifier
	logger   *slog.Logger

	persistMu    sync.Mutex
	lastGen      uint64
	hasPersisted bool

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

type PersistorOption func(*Persistor)

func WithPersistMetrics(m *metrics.Metrics) PersistorOption {
	return func(p *Persistor) { p.metrics = m }
}

func WithPersistNotifier(n events.Notifier) PersistorOption {
	return func(p *Persistor) { p.notifier = n }
}

func NewPersistor(idx *index.MemoryIndex, path string, interval time.Duration, opts ...PersistorOption) *Persistor {
	p := &Persistor{
		idx:      idx,
		path:     path,
		interval: interval,
		notifier: events.Nop{},
		logger:   slog.Default().With("component", "persistor", "path", path),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.metrics == nil {
		p.metrics = metrics.NewUnregistered()
	}
	return p
}

func (p *Persistor) Path() string {
	return p.path
}

// Load reads the snapshot at path into the index. It returns false, with no
// error, when there is no snapshot yet.
func (p *Persistor) Load() (bool, error) {
	snap, found, err := snapshot.Read(p.path)
	if err != nil {
		return false, fmt.Errorf("loading snapshot: %w", err)
	}
	if !found {
		p.logger.Info("no snapshot found, starting with an empty index")
		return false, nil
	}
	if err := p.idx.Load(snap); err != nil {
		return false, fmt.Errorf("loading snapshot: %w", err)
	}

	p.persistMu.Lock()
	p.lastGen = p.idx.Generation()
	p.hasPersisted = true
	p.persistMu.Unlock()

	p.logger.Info("snapshot loaded",
		"documents", snap.DocCount(),
		"terms", snap.TermCount(),
	)
	return true, nil
}

// Persist captures the index and atomically replaces the file at path.
func (p *Persistor) Persist() error {
	p.persistMu.Lock()
	defer p.persistMu.Unlock()
	return p.persistLocked()
}

// persistIfChanged skips the write when nothing has changed since the last
// successful persist or load.
func (p *Persistor) persistIfChanged() error {
	p.persistMu.Lock()
	defer p.persistMu.Unlock()
	if p.hasPersisted && p.idx.Generation() == p.lastGen {
		return nil
	}
	return p.persistLocked()
}

func (p *Persistor) persistLocked() error {
	start := time.Now()
	// Read before Capture: a mutation racing in between only causes a
	// redundant write next tick.
	gen := p.idx.Generation()
	snap := p.idx.Capture()

	if err := snapshot.Write(p.path, snap); err != nil {
		p.metrics.SnapshotPersistsTotal.WithLabelValues("failure").Inc()
		return apperrors.Wrap(apperrors.ErrPersistence, http.StatusInternalServerError, err, "writing snapshot %s", p.path)
	}
	elapsed := time.Since(start)
	p.lastGen = gen
	p.hasPersisted = true

	p.metrics.SnapshotPersistsTotal.WithLabelValues("success").Inc()
	p.metrics.SnapshotPersistDuration.Observe(elapsed.Seconds())
	if info, err := os.Stat(p.path); err == nil {
		p.metrics.SnapshotBytes.Set(float64(info.Size()))
	}
	p.logger.Debug("snapshot persisted",
		"documents", snap.DocCount(),
		"terms", snap.TermCount(),
		"duration_ms", elapsed.Milliseconds(),
	)
	p.notifier.Notify(events.DocumentEvent{
		Type:       events.EventSnapshotPersisted,
		Documents:  snap.DocCount(),
		Path:       p.path,
		Generation: gen,
	})
	return nil
}

// Start launches the background persist loop. Calling Start while the loop
// is running does nothing.
func (p *Persistor) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	go p.loop(ctx, p.done)
	p.logger.Info("persistor started", "interval", p.interval)
}

func (p *Persistor) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.persistIfChanged(); err != nil {
				p.logger.Error("periodic persist failed", "error", err)
			}
		}
	}
}

// Stop ends the loop, waits for it to exit, and writes a final snapshot. If
// ctx expires first, Stop returns ErrTimeout and skips the final write; the
// persistor stays marked as running until a later Stop sees the loop exit, so
// Start cannot launch a second loop beside it. Stopping a stopped persistor
// does nothing.
func (p *Persistor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-ctx.Done():
		return apperrors.Wrap(apperrors.ErrTimeout, http.StatusServiceUnavailable, ctx.Err(), "waiting for persist loop")
	}

	p.mu.Lock()
	if !p.running || p.done != done {
		// A concurrent Stop already finished this loop.
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.mu.Unlock()

	if err := p.persistIfChanged(); err != nil {
		p.logger.Error("final persist failed", "error", err)
		return err
	}
	p.logger.Info("persistor stopped")
	return nil
}
