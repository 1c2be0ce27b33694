// Package postgres provides the PostgreSQL-backed recipe catalog.
//
// Recipes are stored alongside a pgvector embedding of their title and step
// text, which powers the "similar recipes" surface shown when a cook finishes
// a session. The pgvector extension must be available in the target database;
// [Migrate] installs it automatically via CREATE EXTENSION IF NOT EXISTS.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn, embedder)
//	if err != nil { … }
//	defer store.Close()
//
//	rec, _ := store.Get(ctx, "ratatouille-4")
//	more, _ := store.Similar(ctx, rec.ID, 3)
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ddlRecipes returns the recipe DDL with the embedding dimension substituted.
// The vector dimension is baked into the column type at schema creation time.
func ddlRecipes(embeddingDimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS recipes (
    id               TEXT         PRIMARY KEY,
    title            TEXT         NOT NULL,
    servings         INT          NOT NULL DEFAULT 1,
    steps            TEXT[]       NOT NULL,
    step_timestamps  TEXT[]       NOT NULL DEFAULT '{}',
    video_url        TEXT         NOT NULL DEFAULT '',
    embedding        vector(%d),
    last_prepared_at TIMESTAMPTZ,
    created_at       TIMESTAMPTZ  NOT NULL DEFAULT now(),
    updated_at       TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_recipes_title ON recipes (title);

CREATE INDEX IF NOT EXISTS idx_recipes_embedding
    ON recipes USING hnsw (embedding vector_cosine_ops);
`, embeddingDimensions)
}

// Migrate creates or ensures the recipe table and the pgvector extension
// exist. It is idempotent and safe to call on every application start.
//
// embeddingDimensions must match the embedding model configured for the
// deployment (e.g., 1536 for OpenAI text-embedding-3-small, 768 for
// nomic-embed-text). Changing it after the first migration requires a manual
// schema update.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	if _, err := pool.Exec(ctx, ddlRecipes(embeddingDimensions)); err != nil {
		return fmt.Errorf("recipe migrate: %w", err)
	}
	return nil
}
