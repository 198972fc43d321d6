// Package catalog records which documents are in the index, where they came
// from, and when they were last indexed. The index itself stays in memory;
// the catalog is an auxiliary, queryable view kept in PostgreSQL.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/bm25-search-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/bm25-search-index/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/bm25-search-index/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/bm25-search-index/pkg/resilience"
)

const schema = `
CREATE TABLE IF NOT EXISTS indexed_documents (
    doc_key    TEXT PRIMARY KEY,
    source     TEXT NOT NULL DEFAULT '',
    length     INTEGER NOT NULL,
    term_count INTEGER NOT NULL,
    indexed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// Record is one row of the catalog.
type Record struct {
	Key       string    `json:"key"`
	Source    string    `json:"source,omitempty"`
	Length    int       `json:"length"`
	TermCount int       `json:"term_count"`
	IndexedAt time.Time `json:"indexed_at"`
}

// Store persists catalog records in the indexed_documents table. Every call
// goes through a circuit breaker so an unavailable database costs one fast
// error instead of a connection timeout; reads are also retried.
type Store struct {
	db      *postgres.Client
	breaker *resilience.CircuitBreaker
	retry   resilience.RetryConfig
	logger  *slog.Logger
}

type StoreOption func(*storeOptions)

type storeOptions struct {
	metrics *metrics.Metrics
}

// WithStoreMetrics reports breaker state and read retries to m.
func WithStoreMetrics(m *metrics.Metrics) StoreOption {
	return func(o *storeOptions) { o.metrics = m }
}

func NewStore(db *postgres.Client, opts ...StoreOption) *Store {
	var o storeOptions
	for _, opt := range opts {
		opt(&o)
	}
	logger := slog.Default().With("component", "catalog")
	cbCfg := resilience.CircuitBreakerConfig{}
	retry := resilience.RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     time.Second,
		Logger:       logger,
	}
	if o.metrics != nil {
		cbCfg.OnStateChange = resilience.ReportTo(o.metrics)
		retry.Metrics = o.metrics
	}
	return &Store{
		db:      db,
		breaker: resilience.NewCircuitBreaker("catalog", cbCfg),
		retry:   retry,
		logger:  logger,
	}
}

// read runs a query through the breaker with retries.
func (s *Store) read(ctx context.Context, name string, fn func() error) error {
	return resilience.Retry(ctx, name, s.retry, func() error {
		return s.breaker.Execute(fn)
	})
}

// EnsureSchema creates the catalog table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating catalog schema: %w", err)
	}
	return nil
}

// Upsert inserts rec or replaces the existing row for rec.Key.
func (s *Store) Upsert(ctx context.Context, rec Record) error {
	if rec.IndexedAt.IsZero() {
		rec.IndexedAt = time.Now().UTC()
	}
	err := s.breaker.Execute(func() error {
		_, err := s.db.DB.ExecContext(ctx,
			`INSERT INTO indexed_documents (doc_key, source, length, term_count, indexed_at)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (doc_key) DO UPDATE
			 SET source = EXCLUDED.source,
			     length = EXCLUDED.length,
			     term_count = EXCLUDED.term_count,
			     indexed_at = EXCLUDED.indexed_at`,
			rec.Key, rec.Source, rec.Length, rec.TermCount, rec.IndexedAt,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("upserting catalog record %s: %w", rec.Key, err)
	}
	s.logger.Debug("catalog record upserted", "key", rec.Key, "length", rec.Length)
	return nil
}

// Delete removes the row for key. Deleting an unknown key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	err := s.breaker.Execute(func() error {
		_, err := s.db.DB.ExecContext(ctx,
			`DELETE FROM indexed_documents WHERE doc_key = $1`, key,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("deleting catalog record %s: %w", key, err)
	}
	return nil
}

// Get returns the record for key, or ErrDocumentNotFound.
func (s *Store) Get(ctx context.Context, key string) (*Record, error) {
	var rec Record
	found := true
	err := s.read(ctx, "catalog get", func() error {
		err := s.db.DB.QueryRowContext(ctx,
			`SELECT doc_key, source, length, term_count, indexed_at
			 FROM indexed_documents WHERE doc_key = $1`, key,
		).Scan(&rec.Key, &rec.Source, &rec.Length, &rec.TermCount, &rec.IndexedAt)
		if errors.Is(err, sql.ErrNoRows) {
			found = false
			return nil
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("querying catalog record %s: %w", key, err)
	}
	if !found {
		return nil, apperrors.Newf(apperrors.ErrDocumentNotFound, http.StatusNotFound, "document %q is not in the catalog", key)
	}
	return &rec, nil
}

// List returns up to limit records, most recently indexed first, skipping
// the first offset.
func (s *Store) List(ctx context.Context, limit, offset int) ([]Record, error) {
	var records []Record
	err := s.read(ctx, "catalog list", func() error {
		records = records[:0]
		rows, err := s.db.DB.QueryContext(ctx,
			`SELECT doc_key, source, length, term_count, indexed_at
			 FROM indexed_documents ORDER BY indexed_at DESC, doc_key
			 LIMIT $1 OFFSET $2`, limit, offset,
		)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var rec Record
			if err := rows.Scan(&rec.Key, &rec.Source, &rec.Length, &rec.TermCount, &rec.IndexedAt); err != nil {
				return err
			}
			records = append(records, rec)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("listing catalog records: %w", err)
	}
	return records, nil
}

// Count returns the number of catalogued documents.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.read(ctx, "catalog count", func() error {
		return s.db.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM indexed_documents`).Scan(&n)
	})
	if err != nil {
		return 0, fmt.Errorf("counting catalog records: %w", err)
	}
	return n, nil
}

// ReconcileResult counts the rows Reconcile changed.
type ReconcileResult struct {
	Removed int64
	Added   int64
}

// Reconcile brings the catalog in line with live, the documents the index
// currently holds. Rows for documents not in live are deleted and documents
// without a row get one. Existing rows keep their source and timestamp. It
// runs in one transaction.
func (s *Store) Reconcile(ctx context.Context, live []Record) (ReconcileResult, error) {
	var res ReconcileResult
	now := time.Now().UTC()
	err := s.breaker.Execute(func() error {
		return s.db.InTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx,
				`CREATE TEMP TABLE live_documents (
				    doc_key    TEXT PRIMARY KEY,
				    length     INTEGER NOT NULL,
				    term_count INTEGER NOT NULL
				 ) ON COMMIT DROP`,
			); err != nil {
				return fmt.Errorf("creating live document table: %w", err)
			}
			stmt, err := tx.PrepareContext(ctx,
				`INSERT INTO live_documents (doc_key, length, term_count) VALUES ($1, $2, $3)`)
			if err != nil {
				return fmt.Errorf("preparing live document insert: %w", err)
			}
			defer stmt.Close()
			for _, rec := range live {
				if _, err := stmt.ExecContext(ctx, rec.Key, rec.Length, rec.TermCount); err != nil {
					return fmt.Errorf("inserting live document %s: %w", rec.Key, err)
				}
			}

			removed, err := tx.ExecContext(ctx,
				`DELETE FROM indexed_documents d
				 WHERE NOT EXISTS (SELECT 1 FROM live_documents l WHERE l.doc_key = d.doc_key)`,
			)
			if err != nil {
				return fmt.Errorf("deleting stale catalog records: %w", err)
			}
			res.Removed, _ = removed.RowsAffected()

			added, err := tx.ExecContext(ctx,
				`INSERT INTO indexed_documents (doc_key, length, term_count, indexed_at)
				 SELECT doc_key, length, term_count, $1 FROM live_documents
				 ON CONFLICT (doc_key) DO NOTHING`, now,
			)
			if err != nil {
				return fmt.Errorf("adding missing catalog records: %w", err)
			}
			res.Added, _ = added.RowsAffected()
			return nil
		})
	})
	if err != nil {
		return ReconcileResult{}, err
	}
	if res.Removed > 0 || res.Added > 0 {
		s.logger.Info("catalog reconciled",
			"stale_removed", res.Removed,
			"missing_added", res.Added,
			"live", len(live),
		)
	}
	return res, nil
}
