package repository

import (
	"context"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"

	"harfy-backend/config"
	"harfy-backend/models"
)

// VectorStore is the full vector store contract shared by the server and the
// loader.
type VectorStore interface {
	Query(ctx context.Context, q models.VectorQuery) ([]models.RetrievalCandidate, error)
	Upsert(ctx context.Context, records []models.VectorRecord) error
	Stats(ctx context.Context) (models.IndexStats, error)
	Clear(ctx context.Context) error
}

// OpenVectorStore opens the store selected by cfg. The returned close
// function releases the underlying connection.
func OpenVectorStore(ctx context.Context, cfg *config.Config) (VectorStore, func(), error) {
	switch cfg.VectorStore {
	case config.VectorStoreSQLite:
		store, err := NewSQLiteVectorStore(cfg.SQLitePath, cfg.EmbeddingDimension)
		if err != nil {
			return nil, nil, err
		}
		log.Printf("SQLite vector store opened at %s", cfg.SQLitePath)
		return store, func() { store.Close() }, nil
	case config.VectorStorePostgres:
		pool, err := OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return NewPgVectorStore(pool, cfg.EmbeddingDimension), pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown vector store %q", cfg.VectorStore)
	}
}

// OpenPostgres connects to Postgres and enables the pgvector extension.
func OpenPostgres(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		log.Printf("Warning: Failed to create pgvector extension: %v", err)
		log.Println("This may be normal if extension is already installed or requires superuser privileges")
	} else {
		log.Println("pgvector extension enabled")
	}

	log.Println("Postgres connection established with pgvector support")
	return pool, nil
}
