package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver

	"harfy-backend/arabic"
	"harfy-backend/models"
	"harfy-backend/retrieval"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS craftsman_vectors (
    id TEXT PRIMARY KEY,
    external_id TEXT NOT NULL DEFAULT '',
    name TEXT NOT NULL DEFAULT '',
    category TEXT NOT NULL DEFAULT '',
    cities TEXT NOT NULL DEFAULT '[]',
    cities_normalized TEXT NOT NULL DEFAULT '[]',
    rating REAL,
    keywords TEXT NOT NULL DEFAULT '[]',
    image TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL,
    dimension INTEGER NOT NULL,
    embedding BLOB NOT NULL,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_craftsman_category ON craftsman_vectors(category);
`

// SQLiteVectorStore keeps craftsman vectors in a single SQLite file and
// ranks them by brute-force cosine similarity. Suited to development and
// small indexes.
type SQLiteVectorStore struct {
	db        *sql.DB
	path      string
	dimension int
}

// NewSQLiteVectorStore opens (or creates) the store at path.
func NewSQLiteVectorStore(path string, dimension int) (*SQLiteVectorStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create sqlite schema: %w", err)
	}

	return &SQLiteVectorStore{db: db, path: path, dimension: dimension}, nil
}

// Close closes the database connection.
func (s *SQLiteVectorStore) Close() error {
	return s.db.Close()
}

// Query filters rows in SQL and ranks the remainder by cosine similarity.
func (s *SQLiteVectorStore) Query(ctx context.Context, q models.VectorQuery) ([]models.RetrievalCandidate, error) {
	if err := checkDimension(q.Vector, s.dimension); err != nil {
		return nil, err
	}

	var (
		where []string
		args  []any
	)
	if q.City != "" {
		where = append(where, "EXISTS (SELECT 1 FROM json_each(cities_normalized) WHERE json_each.value = ?)")
		args = append(args, arabic.Normalize(q.City))
	}
	if q.Craft != "" {
		where = append(where, "category = ?")
		args = append(args, q.Craft)
	}
	if q.MinRating != nil {
		where = append(where, "rating >= ?")
		args = append(args, *q.MinRating)
	}

	query := `SELECT id, external_id, name, category, cities, rating, keywords, image, description, embedding
		FROM craftsman_vectors`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query craftsman vectors: %w", err)
	}
	defer rows.Close()

	var out []models.RetrievalCandidate
	for rows.Next() {
		var (
			c                    models.RetrievalCandidate
			rating               sql.NullFloat64
			citiesJSON, keywords string
			blob                 []byte
		)
		if err := rows.Scan(&c.VectorID, &c.ExternalID, &c.Name, &c.Category, &citiesJSON,
			&rating, &keywords, &c.Image, &c.Text, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan craftsman vector: %w", err)
		}
		if rating.Valid {
			r := rating.Float64
			c.Rating = &r
		}
		if err := json.Unmarshal([]byte(citiesJSON), &c.Cities); err != nil {
			return nil, fmt.Errorf("failed to decode cities: %w", err)
		}
		if err := json.Unmarshal([]byte(keywords), &c.Keywords); err != nil {
			return nil, fmt.Errorf("failed to decode keywords: %w", err)
		}
		vec, err := decodeVector(blob)
		if err != nil {
			return nil, err
		}
		sim := retrieval.CosineSimilarity(q.Vector, vec)
		c.Similarity = &sim
		if q.IncludeVectors {
			c.Vector = vec
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating craftsman vectors: %w", err)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return *out[i].Similarity > *out[j].Similarity
	})
	topK := q.TopK
	if topK <= 0 {
		topK = retrieval.DefaultTopK
	}
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

// Upsert inserts or replaces records in one transaction.
func (s *SQLiteVectorStore) Upsert(ctx context.Context, records []models.VectorRecord) error {
	for _, rec := range records {
		if err := checkDimension(rec.Embedding, s.dimension); err != nil {
			return fmt.Errorf("record %s: %w", rec.ID, err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO craftsman_vectors (
			id, external_id, name, category, cities, cities_normalized,
			rating, keywords, image, description, dimension, embedding, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			external_id = excluded.external_id,
			name = excluded.name,
			category = excluded.category,
			cities = excluded.cities,
			cities_normalized = excluded.cities_normalized,
			rating = excluded.rating,
			keywords = excluded.keywords,
			image = excluded.image,
			description = excluded.description,
			dimension = excluded.dimension,
			embedding = excluded.embedding,
			updated_at = CURRENT_TIMESTAMP`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		cities, _ := json.Marshal(nonNil(rec.Cities))
		normalized, _ := json.Marshal(arabic.NormalizeAll(rec.Cities))
		keywords, _ := json.Marshal(nonNil(rec.Keywords))

		var rating any
		if rec.Rating != nil {
			rating = *rec.Rating
		}

		if _, err := stmt.ExecContext(ctx, rec.ID, rec.ExternalID, rec.Name, rec.Category,
			string(cities), string(normalized), rating, string(keywords), rec.Image,
			rec.Description, len(rec.Embedding), encodeVector(rec.Embedding)); err != nil {
			return fmt.Errorf("failed to upsert record %s: %w", rec.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Stats returns the number of stored vectors and their dimension.
func (s *SQLiteVectorStore) Stats(ctx context.Context) (models.IndexStats, error) {
	var (
		stats models.IndexStats
		dim   sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*), MAX(dimension) FROM craftsman_vectors").
		Scan(&stats.Count, &dim)
	if err != nil {
		return models.IndexStats{}, fmt.Errorf("failed to read index stats: %w", err)
	}
	stats.Dimension = s.dimension
	if dim.Valid {
		stats.Dimension = int(dim.Int64)
	}
	return stats, nil
}

// Clear removes every stored vector.
func (s *SQLiteVectorStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM craftsman_vectors"); err != nil {
		return fmt.Errorf("failed to clear craftsman vectors: %w", err)
	}
	return nil
}
