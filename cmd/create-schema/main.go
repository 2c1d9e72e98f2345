package main

import (
	"context"
	"fmt"
	"log"

	"harfy-backend/config"
	"harfy-backend/repository"
)

func main() {
	config.LoadDotEnv()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if cfg.VectorStore != config.VectorStorePostgres {
		log.Fatalf("create-schema only applies to VECTOR_STORE=postgres, got %s (the SQLite store creates its schema on open)", cfg.VectorStore)
	}

	ctx := context.Background()

	pool, err := repository.OpenPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	statements := repository.PgVectorSchema(cfg.EmbeddingDimension)
	for i, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			// the table itself is fatal, index failures are not
			if i <= 1 {
				log.Fatalf("Failed to create %s table: %v", repository.VectorTable, err)
			}
			log.Printf("Warning: Failed to run schema statement %d: %v", i, err)
			continue
		}
		log.Printf("✓ Applied schema statement %d/%d", i+1, len(statements))
	}

	fmt.Println("\n✅ Database schema created successfully!")
	fmt.Printf("   Table: %s\n", repository.VectorTable)
	fmt.Printf("   Embedding dimension: %d\n", cfg.EmbeddingDimension)
}
