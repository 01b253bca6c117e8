// Package store is the PostgreSQL gallery backend.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/andresmejia3/vigil/internal/gallery"
	"github.com/andresmejia3/vigil/internal/types"
	"github.com/jackc/pgx/v5"
)

// Store keeps the gallery in one table, one row per identity. Embeddings are
// stored as DOUBLE PRECISION[] so they round-trip bit for bit.
type Store struct {
	conn *pgx.Conn
}

// Identity is a gallery row with its bookkeeping columns.
type Identity struct {
	Label      string
	Dim        int
	EnrolledAt time.Time
	UpdatedAt  time.Time
}

// New establishes a connection to the database and ensures the schema is initialized.
func New(ctx context.Context, connString string) (*Store, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}

	// Initialize schema (Auto-Migration)
	if err := initSchema(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Store{conn: conn}, nil
}

func initSchema(ctx context.Context, conn *pgx.Conn) error {
	query := `
		CREATE TABLE IF NOT EXISTS gallery_identities (
			label TEXT PRIMARY KEY,
			embedding DOUBLE PRECISION[] NOT NULL,
			dim INT NOT NULL,
			enrolled_at TIMESTAMPTZ DEFAULT NOW(),
			updated_at TIMESTAMPTZ DEFAULT NOW()
		);
	`
	_, err := conn.Exec(ctx, query)
	return err
}

// Close terminates the database connection.
func (s *Store) Close(ctx context.Context) {
	s.conn.Close(ctx)
}

// Load implements gallery.Store.
func (s *Store) Load(ctx context.Context) (gallery.Gallery, error) {
	return load(ctx, s.conn)
}

// querier is satisfied by both *pgx.Conn and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func load(ctx context.Context, q querier) (gallery.Gallery, error) {
	rows, err := q.Query(ctx, "SELECT label, embedding, dim FROM gallery_identities ORDER BY label")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	g := gallery.New()
	for rows.Next() {
		var label string
		var emb []float64
		var dim int
		if err := rows.Scan(&label, &emb, &dim); err != nil {
			return nil, fmt.Errorf("%w: %v", gallery.ErrCorruptStore, err)
		}
		if len(emb) != dim {
			return nil, fmt.Errorf("%w: %q has %d values but dim %d", gallery.ErrCorruptStore, label, len(emb), dim)
		}
		g[label] = types.Embedding(emb)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", gallery.ErrCorruptStore, err)
	}
	return g, nil
}

// Save replaces the stored gallery in a single transaction. Rows whose
// embedding is unchanged keep their timestamps.
func (s *Store) Save(ctx context.Context, g gallery.Gallery) error {
	if err := g.Validate(); err != nil {
		return fmt.Errorf("refusing to save invalid gallery: %w", err)
	}
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", gallery.ErrStoreWrite, err)
	}
	defer tx.Rollback(ctx)

	if err := write(ctx, tx, g); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit: %v", gallery.ErrStoreWrite, err)
	}
	return nil
}

// Update implements gallery.Updater. The table is locked for the whole
// load-modify-save so concurrent processes cannot lose each other's writes.
func (s *Store) Update(ctx context.Context, fn func(gallery.Gallery) error) error {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", gallery.ErrStoreWrite, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "LOCK TABLE gallery_identities IN SHARE ROW EXCLUSIVE MODE"); err != nil {
		return fmt.Errorf("%w: lock: %v", gallery.ErrStoreWrite, err)
	}
	g, err := load(ctx, tx)
	if err != nil {
		return err
	}
	if err := fn(g); err != nil {
		return err
	}
	if err := g.Validate(); err != nil {
		return fmt.Errorf("refusing to save invalid gallery: %w", err)
	}
	if err := write(ctx, tx, g); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit: %v", gallery.ErrStoreWrite, err)
	}
	return nil
}

func write(ctx context.Context, tx pgx.Tx, g gallery.Gallery) error {
	var err error
	if labels := g.Labels(); len(labels) == 0 {
		_, err = tx.Exec(ctx, "DELETE FROM gallery_identities")
	} else {
		_, err = tx.Exec(ctx, "DELETE FROM gallery_identities WHERE label <> ALL($1::text[])", labels)
	}
	if err != nil {
		return fmt.Errorf("%w: delete: %v", gallery.ErrStoreWrite, err)
	}

	batch := &pgx.Batch{}
	for _, e := range g.Entries() {
		batch.Queue(`
			INSERT INTO gallery_identities (label, embedding, dim)
			VALUES ($1, $2, $3)
			ON CONFLICT (label) DO UPDATE
			SET embedding = EXCLUDED.embedding, dim = EXCLUDED.dim, updated_at = NOW()
			WHERE gallery_identities.embedding IS DISTINCT FROM EXCLUDED.embedding
		`, e.Label, []float64(e.Embedding), e.Embedding.Dim())
	}
	if batch.Len() == 0 {
		return nil
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("%w: upsert: %v", gallery.ErrStoreWrite, err)
	}
	return nil
}

// ListIdentities returns every enrolled identity with its timestamps, sorted by label.
func (s *Store) ListIdentities(ctx context.Context) ([]Identity, error) {
	rows, err := s.conn.Query(ctx, "SELECT label, dim, enrolled_at, updated_at FROM gallery_identities ORDER BY label")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Identity
	for rows.Next() {
		var id Identity
		if err := rows.Scan(&id.Label, &id.Dim, &id.EnrolledAt, &id.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// Reset drops and recreates the gallery table, forcing a schema refresh.
func (s *Store) Reset(ctx context.Context) error {
	if _, err := s.conn.Exec(ctx, "DROP TABLE IF EXISTS gallery_identities CASCADE"); err != nil {
		return err
	}
	return initSchema(ctx, s.conn)
}
