package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/mirepoix-app/mirepoix/internal/recipe"
	"github.com/mirepoix-app/mirepoix/pkg/provider/embeddings"
)

var _ recipe.Provider = (*Store)(nil)

// Store is the PostgreSQL-backed recipe catalog. It holds a single
// [pgxpool.Pool] and an embeddings provider used to vectorize recipes on
// write and to rank them by similarity on read.
//
// All operations are safe for concurrent use.
type Store struct {
	pool     *pgxpool.Pool
	embedder embeddings.Provider
}

// NewStore establishes a connection pool to the PostgreSQL database at dsn,
// registers pgvector types on every connection, and runs [Migrate].
//
// embedder produces the vectors stored in the embedding column; its
// Dimensions() fixes the column width at first migration.
func NewStore(ctx context.Context, dsn string, embedder embeddings.Provider) (*Store, error) {
	if embedder == nil {
		return nil, errors.New("recipe store: embedder must not be nil")
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("recipe store: parse dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("recipe store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("recipe store: ping: %w", err)
	}
	if err := Migrate(ctx, pool, embedder.Dimensions()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("recipe store: migrate: %w", err)
	}

	return &Store{pool: pool, embedder: embedder}, nil
}

// Close releases all connections held by the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Put upserts rec, recomputing its embedding from the title and step text.
func (s *Store) Put(ctx context.Context, rec recipe.Recipe) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("recipe store: put: %w", err)
	}

	vec, err := s.embedder.Embed(ctx, embeddingText(rec))
	if err != nil {
		return fmt.Errorf("recipe store: embed %q: %w", rec.ID, err)
	}

	const q = `
		INSERT INTO recipes
		    (id, title, servings, steps, step_timestamps, video_url, embedding, last_prepared_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		ON CONFLICT (id) DO UPDATE SET
		    title            = EXCLUDED.title,
		    servings         = EXCLUDED.servings,
		    steps            = EXCLUDED.steps,
		    step_timestamps  = EXCLUDED.step_timestamps,
		    video_url        = EXCLUDED.video_url,
		    embedding        = EXCLUDED.embedding,
		    updated_at       = now()`

	_, err = s.pool.Exec(ctx, q,
		rec.ID,
		rec.Title,
		rec.Servings,
		rec.Steps,
		rec.StepTimestamps,
		rec.VideoURL,
		pgvector.NewVector(vec),
		nullableTime(rec.LastPreparedAt),
	)
	if err != nil {
		return fmt.Errorf("recipe store: put %q: %w", rec.ID, err)
	}
	return nil
}

// Get implements [recipe.Provider].
func (s *Store) Get(ctx context.Context, id string) (recipe.Recipe, error) {
	const q = `
		SELECT id, title, servings, steps, step_timestamps, video_url, last_prepared_at
		FROM   recipes
		WHERE  id = $1`

	rows, err := s.pool.Query(ctx, q, id)
	if err != nil {
		return recipe.Recipe{}, fmt.Errorf("recipe store: get %q: %w", id, err)
	}
	rec, err := pgx.CollectOneRow(rows, scanRecipe)
	if errors.Is(err, pgx.ErrNoRows) {
		return recipe.Recipe{}, fmt.Errorf("recipe store: get %q: %w", id, recipe.ErrNotFound)
	}
	if err != nil {
		return recipe.Recipe{}, fmt.Errorf("recipe store: get %q: %w", id, err)
	}
	return rec, nil
}

// List returns all recipes ordered by title.
func (s *Store) List(ctx context.Context) ([]recipe.Recipe, error) {
	const q = `
		SELECT id, title, servings, steps, step_timestamps, video_url, last_prepared_at
		FROM   recipes
		ORDER  BY title`

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("recipe store: list: %w", err)
	}
	recs, err := pgx.CollectRows(rows, scanRecipe)
	if err != nil {
		return nil, fmt.Errorf("recipe store: list: %w", err)
	}
	if recs == nil {
		recs = []recipe.Recipe{}
	}
	return recs, nil
}

// MarkPrepared implements [recipe.Provider]. It records at as the most recent
// time the recipe was cooked.
func (s *Store) MarkPrepared(ctx context.Context, id string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE recipes SET last_prepared_at = $2, updated_at = now() WHERE id = $1`,
		id, at,
	)
	if err != nil {
		return fmt.Errorf("recipe store: mark prepared %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("recipe store: mark prepared %q: %w", id, recipe.ErrNotFound)
	}
	return nil
}

// Similar implements [recipe.Provider]. It returns up to limit recipes ranked
// by ascending cosine distance from the embedding of the recipe with the
// given id, excluding the recipe itself.
func (s *Store) Similar(ctx context.Context, id string, limit int) ([]recipe.Recipe, error) {
	if limit <= 0 {
		return []recipe.Recipe{}, nil
	}

	const q = `
		SELECT r.id, r.title, r.servings, r.steps, r.step_timestamps, r.video_url, r.last_prepared_at
		FROM   recipes r,
		       (SELECT embedding FROM recipes WHERE id = $1) src
		WHERE  r.id <> $1
		ORDER  BY r.embedding <=> src.embedding
		LIMIT  $2`

	rows, err := s.pool.Query(ctx, q, id, limit)
	if err != nil {
		return nil, fmt.Errorf("recipe store: similar %q: %w", id, err)
	}
	recs, err := pgx.CollectRows(rows, scanRecipe)
	if err != nil {
		return nil, fmt.Errorf("recipe store: similar %q: %w", id, err)
	}
	if recs == nil {
		recs = []recipe.Recipe{}
	}
	return recs, nil
}

// SearchByText ranks recipes against a free-text query ("something with
// mushrooms"), embedding the query on the fly.
func (s *Store) SearchByText(ctx context.Context, query string, limit int) ([]recipe.Recipe, error) {
	if limit <= 0 {
		return []recipe.Recipe{}, nil
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("recipe store: embed query: %w", err)
	}

	const q = `
		SELECT id, title, servings, steps, step_timestamps, video_url, last_prepared_at
		FROM   recipes
		ORDER  BY embedding <=> $1
		LIMIT  $2`

	rows, err := s.pool.Query(ctx, q, pgvector.NewVector(vec), limit)
	if err != nil {
		return nil, fmt.Errorf("recipe store: search: %w", err)
	}
	recs, err := pgx.CollectRows(rows, scanRecipe)
	if err != nil {
		return nil, fmt.Errorf("recipe store: search: %w", err)
	}
	if recs == nil {
		recs = []recipe.Recipe{}
	}
	return recs, nil
}

func scanRecipe(row pgx.CollectableRow) (recipe.Recipe, error) {
	var (
		rec      recipe.Recipe
		prepared *time.Time
	)
	if err := row.Scan(
		&rec.ID,
		&rec.Title,
		&rec.Servings,
		&rec.Steps,
		&rec.StepTimestamps,
		&rec.VideoURL,
		&prepared,
	); err != nil {
		return recipe.Recipe{}, err
	}
	if prepared != nil {
		rec.LastPreparedAt = *prepared
	}
	return rec, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// embeddingText is the canonical text a recipe is embedded from. Title first
// so short queries weigh it most.
func embeddingText(rec recipe.Recipe) string {
	return rec.Title + "\n" + strings.Join(rec.Steps, "\n")
}
