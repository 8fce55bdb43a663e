// Package sqlloader provides a read-through cache.Options.Loader backed by
// a SQL database through sqlx. Postgres (lib/pq) is the default driver.
package sqlloader

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // registers the "postgres" driver
)

// ErrNotFound is returned (wrapped) when the query yields no row.
var ErrNotFound = errors.New("sqlloader: not found")

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlloader: connect: %w", err)
	}
	return db, nil
}

// Loader fetches one V per key with a single-row query taking the key as
// its only bind parameter. V may be a scalar (one column) or a struct with
// `db` tags, as sqlx.Get allows.
type Loader[K comparable, V any] struct {
	db    *sqlx.DB
	query string
}

// New prepares a Loader. query may use '?' placeholders; they are rebound
// to the driver's style (e.g. $1 for Postgres).
func New[K comparable, V any](db *sqlx.DB, query string) *Loader[K, V] {
	return &Loader[K, V]{db: db, query: db.Rebind(query)}
}

// Load runs the query for k. Pass l.Load as cache.Options.Loader.
func (l *Loader[K, V]) Load(ctx context.Context, k K) (V, error) {
	var v V
	err := l.db.GetContext(ctx, &v, l.query, k)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return v, fmt.Errorf("%w: key %v", ErrNotFound, k)
	case err != nil:
		return v, fmt.Errorf("sqlloader: load %v: %w", k, err)
	}
	return v, nil
}
