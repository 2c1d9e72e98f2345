package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"harfy-backend/arabic"
	"harfy-backend/models"
)

// VectorTable is the pgvector table holding craftsman embeddings.
const VectorTable = "craftsman_vectors"

// PgVectorSchema returns the statements creating the pgvector table and its
// indexes for the given embedding dimension.
func PgVectorSchema(dimension int) []string {
	return []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS craftsman_vectors (
    id TEXT PRIMARY KEY,
    external_id TEXT NOT NULL DEFAULT '',
    name TEXT NOT NULL DEFAULT '',
    category TEXT NOT NULL DEFAULT '',
    cities TEXT[] NOT NULL DEFAULT '{}',
    cities_normalized TEXT[] NOT NULL DEFAULT '{}',
    rating DOUBLE PRECISION,
    keywords TEXT[] NOT NULL DEFAULT '{}',
    image TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL,
    embedding vector(%d) NOT NULL,
    created_at TIMESTAMP DEFAULT NOW(),
    updated_at TIMESTAMP DEFAULT NOW()
)`, dimension),
		`CREATE INDEX IF NOT EXISTS idx_craftsman_embedding_hnsw ON craftsman_vectors
USING hnsw (embedding vector_cosine_ops)
WITH (m = 16, ef_construction = 64)`,
		"CREATE INDEX IF NOT EXISTS idx_craftsman_category ON craftsman_vectors(category)",
		"CREATE INDEX IF NOT EXISTS idx_craftsman_cities ON craftsman_vectors USING gin (cities_normalized)",
		"CREATE INDEX IF NOT EXISTS idx_craftsman_rating ON craftsman_vectors(rating) WHERE rating IS NOT NULL",
	}
}

// PgVectorStore is the craftsman vector store backed by PostgreSQL with
// pgvector.
type PgVectorStore struct {
	db        *pgxpool.Pool
	dimension int
}

// NewPgVectorStore creates a new pgvector store
func NewPgVectorStore(db *pgxpool.Pool, dimension int) *PgVectorStore {
	return &PgVectorStore{db: db, dimension: dimension}
}

// buildPgQuery returns the nearest-neighbor SQL and its arguments.
func buildPgQuery(q models.VectorQuery) (string, []any) {
	args := []any{formatVector(q.Vector)}
	var where []string

	if q.City != "" {
		args = append(args, arabic.Normalize(q.City))
		where = append(where, fmt.Sprintf("$%d = ANY(cities_normalized)", len(args)))
	}
	if q.Craft != "" {
		args = append(args, q.Craft)
		where = append(where, fmt.Sprintf("category = $%d", len(args)))
	}
	if q.MinRating != nil {
		args = append(args, *q.MinRating)
		where = append(where, fmt.Sprintf("rating >= $%d", len(args)))
	}

	vectorColumn := "NULL::text"
	if q.IncludeVectors {
		vectorColumn = "embedding::text"
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	topK := q.TopK
	if topK <= 0 {
		topK = 15
	}
	args = append(args, topK)

	query := fmt.Sprintf(`
		SELECT
			id,
			external_id,
			name,
			category,
			cities,
			rating,
			keywords,
			image,
			description,
			%s,
			1 - (embedding <=> $1::vector) AS similarity
		FROM craftsman_vectors
		%s
		ORDER BY embedding <=> $1::vector
		LIMIT $%d`, vectorColumn, whereClause, len(args))

	return query, args
}

// Query performs a cosine nearest-neighbor search with optional city, craft
// and rating filters.
func (r *PgVectorStore) Query(ctx context.Context, q models.VectorQuery) ([]models.RetrievalCandidate, error) {
	if err := checkDimension(q.Vector, r.dimension); err != nil {
		return nil, err
	}

	query, args := buildPgQuery(q)
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query craftsman vectors: %w", err)
	}
	defer rows.Close()

	var out []models.RetrievalCandidate
	for rows.Next() {
		var (
			c          models.RetrievalCandidate
			vectorText *string
			similarity float64
		)
		err := rows.Scan(
			&c.VectorID,
			&c.ExternalID,
			&c.Name,
			&c.Category,
			&c.Cities,
			&c.Rating,
			&c.Keywords,
			&c.Image,
			&c.Text,
			&vectorText,
			&similarity,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan craftsman vector: %w", err)
		}
		c.Similarity = &similarity
		if vectorText != nil {
			if c.Vector, err = parseVector(*vectorText); err != nil {
				return nil, err
			}
		}
		out = append(out, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating craftsman vectors: %w", err)
	}
	return out, nil
}

// Upsert inserts or replaces records in one transaction.
func (r *PgVectorStore) Upsert(ctx context.Context, records []models.VectorRecord) error {
	for _, rec := range records {
		if err := checkDimension(rec.Embedding, r.dimension); err != nil {
			return fmt.Errorf("record %s: %w", rec.ID, err)
		}
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, rec := range records {
		batch.Queue(`
			INSERT INTO craftsman_vectors (
				id, external_id, name, category, cities, cities_normalized,
				rating, keywords, image, description, embedding
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::vector)
			ON CONFLICT (id) DO UPDATE SET
				external_id = EXCLUDED.external_id,
				name = EXCLUDED.name,
				category = EXCLUDED.category,
				cities = EXCLUDED.cities,
				cities_normalized = EXCLUDED.cities_normalized,
				rating = EXCLUDED.rating,
				keywords = EXCLUDED.keywords,
				image = EXCLUDED.image,
				description = EXCLUDED.description,
				embedding = EXCLUDED.embedding,
				updated_at = NOW()`,
			rec.ID,
			rec.ExternalID,
			rec.Name,
			rec.Category,
			nonNil(rec.Cities),
			arabic.NormalizeAll(rec.Cities),
			rec.Rating,
			nonNil(rec.Keywords),
			rec.Image,
			rec.Description,
			formatVector(rec.Embedding),
		)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to upsert craftsman vectors: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Stats returns the number of stored vectors and their dimension.
func (r *PgVectorStore) Stats(ctx context.Context) (models.IndexStats, error) {
	var stats models.IndexStats
	var dim *int32
	err := r.db.QueryRow(ctx,
		"SELECT COUNT(*), MAX(vector_dims(embedding)) FROM craftsman_vectors",
	).Scan(&stats.Count, &dim)
	if err != nil {
		return models.IndexStats{}, fmt.Errorf("failed to read index stats: %w", err)
	}
	stats.Dimension = r.dimension
	if dim != nil {
		stats.Dimension = int(*dim)
	}
	return stats, nil
}

// Clear removes every stored vector.
func (r *PgVectorStore) Clear(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, "TRUNCATE TABLE craftsman_vectors"); err != nil {
		return fmt.Errorf("failed to clear craftsman vectors: %w", err)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
