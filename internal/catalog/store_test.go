package catalog

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/bm25-search-index/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/bm25-search-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/bm25-search-index/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/bm25-search-index/pkg/postgres"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestStore connects to the database named by TEST_POSTGRES_HOST and
// skips when it is unset.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	host := os.Getenv("TEST_POSTGRES_HOST")
	if host == "" {
		t.Skip("TEST_POSTGRES_HOST not set; skipping catalog integration test")
	}
	cfg := config.PostgresConfig{
		Host:         host,
		Port:         5432,
		Database:     "searchindex",
		User:         "searchindex",
		Password:     "localdev",
		SSLMode:      "disable",
		MaxOpenConns: 2,
		MaxIdleConns: 1,
	}
	ctx := context.Background()
	client, err := postgres.New(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	store := NewStore(client, WithStoreMetrics(metrics.NewUnregistered()))
	require.NoError(t, store.EnsureSchema(ctx))
	_, err = client.DB.ExecContext(ctx, `TRUNCATE indexed_documents`)
	require.NoError(t, err)
	return store
}

func TestStoreLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, store.Upsert(ctx, Record{Key: "a", Source: "/docs/a.txt", Length: 3, TermCount: 2, IndexedAt: now}))
	require.NoError(t, store.Upsert(ctx, Record{Key: "b", Length: 4, TermCount: 1}))
	require.NoError(t, store.Upsert(ctx, Record{Key: "a", Source: "/docs/a.txt", Length: 5, TermCount: 4, IndexedAt: now}))

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rec, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 5, rec.Length)
	assert.Equal(t, 4, rec.TermCount)
	assert.Equal(t, "/docs/a.txt", rec.Source)

	require.NoError(t, store.Delete(ctx, "a"))
	require.NoError(t, store.Delete(ctx, "a"))
	_, err = store.Get(ctx, "a")
	assert.ErrorIs(t, err, apperrors.ErrDocumentNotFound)
}

func TestStoreReconcile(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, store.Upsert(ctx, Record{Key: k, Length: 1, TermCount: 1}))
	}
	require.NoError(t, store.Upsert(ctx, Record{Key: "b", Source: "/docs/b.txt", Length: 1, TermCount: 1}))

	res, err := store.Reconcile(ctx, []Record{
		{Key: "b", Length: 1, TermCount: 1},
		{Key: "d", Length: 7, TermCount: 5},
	})
	require.NoError(t, err)
	assert.Equal(t, ReconcileResult{Removed: 2, Added: 1}, res)

	records, err := store.List(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, records, 2)

	b, err := store.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, "/docs/b.txt", b.Source)
	d, err := store.Get(ctx, "d")
	require.NoError(t, err)
	assert.Equal(t, 7, d.Length)
	assert.Equal(t, 5, d.TermCount)

	again, err := store.Reconcile(ctx, []Record{{Key: "b", Length: 1, TermCount: 1}, {Key: "d", Length: 7, TermCount: 5}})
	require.NoError(t, err)
	assert.Equal(t, ReconcileResult{}, again)
}

func TestStoreListPages(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Millisecond)
	for i, k := range []string{"a", "b", "c"} {
		require.NoError(t, store.Upsert(ctx, Record{Key: k, Length: 1, TermCount: 1, IndexedAt: base.Add(time.Duration(i) * time.Second)}))
	}
	first, err := store.List(ctx, 2, 0)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, "c", first[0].Key)
	assert.Equal(t, "b", first[1].Key)

	rest, err := store.List(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "a", rest[0].Key)
}
