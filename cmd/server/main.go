package main

import (
	"context"
	"log"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"harfy-backend/config"
	"harfy-backend/entities"
	"harfy-backend/handlers"
	"harfy-backend/repository"
	"harfy-backend/service"
)

func main() {
	config.LoadDotEnv()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx := context.Background()

	// Initialize vector store
	store, closeStore, err := repository.OpenVectorStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize vector store: %v", err)
	}
	defer closeStore()

	// Initialize entity extraction
	gazetteer, err := entities.DefaultGazetteer()
	if err != nil {
		log.Fatalf("Failed to load gazetteer: %v", err)
	}
	entityExtractor, err := entities.NewExtractor(gazetteer)
	if err != nil {
		log.Fatalf("Failed to build entity extractor: %v", err)
	}

	// Initialize Gemini client
	geminiClient, err := initGemini(ctx, cfg.GeminiAPIKey)
	if err != nil {
		log.Fatal("Failed to initialize Gemini:", err)
	}
	defer geminiClient.Close()

	chatService := service.NewChatService(
		service.ChatWithEntityExtractor(entityExtractor),
		service.ChatWithEmbedder(service.NewEmbedderFromConfig(cfg)),
		service.ChatWithVectorStore(store),
		service.ChatWithLLM(service.NewGeminiLLM(geminiClient, cfg.GenerationModel, cfg.GenerationTemperature)),
		service.ChatWithTopK(cfg.RetrievalTopK),
		service.ChatWithMinRating(cfg.MinRating),
		service.ChatWithSimilarityThreshold(cfg.SimilarityThreshold),
		service.ChatWithBypassSimilarity(cfg.BypassSimilarity),
		service.ChatWithMaxContextLength(cfg.MaxContextLength),
		service.ChatWithTimeouts(cfg.RetrievalTimeout, cfg.GenerationTimeout),
	)

	if stats, err := chatService.IndexStats(ctx); err != nil {
		log.Printf("Warning: failed to read index stats: %v", err)
	} else {
		log.Printf("Vector store holds %d vectors (dimension %d)", stats.Count, stats.Dimension)
		if stats.Count > 0 && stats.Dimension != cfg.EmbeddingDimension {
			log.Printf("Warning: stored dimension %d differs from EMBEDDING_DIMENSION %d", stats.Dimension, cfg.EmbeddingDimension)
		}
	}

	if cfg.AdminTokenHash == "" {
		log.Println("ADMIN_TOKEN_HASH not set, admin routes disabled")
	}
	r := handlers.NewRouter(handlers.NewChatHandler(chatService), cfg.AdminTokenHash)

	log.Printf("Server starting on port %s", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}

func initGemini(ctx context.Context, apiKey string) (*genai.Client, error) {
	if apiKey == "" {
		log.Println("Warning: GEMINI_API_KEY not set")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}

	log.Println("Gemini client initialized")
	return client, nil
}
