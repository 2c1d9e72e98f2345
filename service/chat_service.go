package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"harfy-backend/craftsman"
	"harfy-backend/entities"
	"harfy-backend/models"
	"harfy-backend/retrieval"
)

var (
	ErrInvalidMessage   = errors.New("invalid message format")
	ErrGenerationFailed = errors.New("failed to generate content")
	ErrStoreNotSet      = errors.New("vector store not set")
)

// ImageOnlyQuery stands in for the query when the latest message carries only
// images.
const ImageOnlyQuery = "وصف الصورة"

const (
	DefaultRetrievalTimeout  = 15 * time.Second
	DefaultGenerationTimeout = 60 * time.Second
)

// VectorIndex is the vector store as seen by the chat pipeline.
type VectorIndex interface {
	retrieval.VectorStore
	Stats(ctx context.Context) (models.IndexStats, error)
}

// ChatService runs one chat turn: entity extraction, retrieval, context
// assembly, generation and reply extraction.
type ChatService struct {
	entities *entities.Extractor
	embedder Embedder
	store    VectorIndex
	llm      LLM
	replies  *craftsman.Extractor
	engine   *retrieval.Engine

	topK                int
	minRating           float64
	similarityThreshold float64
	bypassSimilarity    bool
	maxContextLength    int
	retrievalTimeout    time.Duration
	generationTimeout   time.Duration
	now                 func() time.Time
}

// ChatServiceOption is a functional option for ChatService
type ChatServiceOption func(*ChatService)

// ChatWithEntityExtractor sets the city/craft extractor
func ChatWithEntityExtractor(e *entities.Extractor) ChatServiceOption {
	return func(s *ChatService) {
		s.entities = e
	}
}

// ChatWithEmbedder sets the query embedder
func ChatWithEmbedder(e Embedder) ChatServiceOption {
	return func(s *ChatService) {
		s.embedder = e
	}
}

// ChatWithVectorStore sets the vector store
func ChatWithVectorStore(store VectorIndex) ChatServiceOption {
	return func(s *ChatService) {
		s.store = store
	}
}

// ChatWithLLM sets the reply generator
func ChatWithLLM(llm LLM) ChatServiceOption {
	return func(s *ChatService) {
		s.llm = llm
	}
}

// ChatWithReplyExtractor sets the craftsman reply extractor
func ChatWithReplyExtractor(e *craftsman.Extractor) ChatServiceOption {
	return func(s *ChatService) {
		s.replies = e
	}
}

// ChatWithTopK sets the number of candidates requested per retrieval pass
func ChatWithTopK(k int) ChatServiceOption {
	return func(s *ChatService) {
		s.topK = k
	}
}

// ChatWithMinRating sets the strict-pass rating cutoff
func ChatWithMinRating(r float64) ChatServiceOption {
	return func(s *ChatService) {
		s.minRating = r
	}
}

// ChatWithSimilarityThreshold sets the minimum similarity kept in context
func ChatWithSimilarityThreshold(t float64) ChatServiceOption {
	return func(s *ChatService) {
		s.similarityThreshold = t
	}
}

// ChatWithBypassSimilarity forces rating-ordered, unthresholded ranking
func ChatWithBypassSimilarity(bypass bool) ChatServiceOption {
	return func(s *ChatService) {
		s.bypassSimilarity = bypass
	}
}

// ChatWithMaxContextLength sets the context budget in characters
func ChatWithMaxContextLength(n int) ChatServiceOption {
	return func(s *ChatService) {
		s.maxContextLength = n
	}
}

// ChatWithTimeouts sets the retrieval and generation budgets
func ChatWithTimeouts(retrievalTimeout, generationTimeout time.Duration) ChatServiceOption {
	return func(s *ChatService) {
		if retrievalTimeout > 0 {
			s.retrievalTimeout = retrievalTimeout
		}
		if generationTimeout > 0 {
			s.generationTimeout = generationTimeout
		}
	}
}

// ChatWithClock sets the time source for reply timestamps
func ChatWithClock(now func() time.Time) ChatServiceOption {
	return func(s *ChatService) {
		s.now = now
	}
}

// NewChatService creates a new chat service
func NewChatService(opts ...ChatServiceOption) *ChatService {
	s := &ChatService{
		topK:                retrieval.DefaultTopK,
		minRating:           retrieval.DefaultMinRating,
		similarityThreshold: retrieval.DefaultSimilarityThreshold,
		maxContextLength:    retrieval.DefaultMaxContextLength,
		retrievalTimeout:    DefaultRetrievalTimeout,
		generationTimeout:   DefaultGenerationTimeout,
		now:                 time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.replies == nil {
		s.replies = craftsman.NewExtractor()
	}
	if s.store != nil {
		s.engine = retrieval.NewEngine(s.store, retrieval.WithTopK(s.topK), retrieval.WithMinRating(s.minRating))
	}
	return s
}

// Chat answers the latest message of the conversation.
func (s *ChatService) Chat(ctx context.Context, messages []models.ChatMessage) (*models.ChatReply, error) {
	if s.llm == nil {
		return nil, errors.New("llm not set")
	}

	query, err := LatestQuery(messages)
	if err != nil {
		return nil, err
	}

	var ents entities.Entities
	if s.entities != nil {
		ents = s.entities.Extract(query)
	} else {
		ents.AugmentedQuery = entities.AugmentedQuery("", "")
	}
	log.Printf("Chat query entities: city=%q craft=%q augmented=%q", ents.City, ents.Craft, ents.AugmentedQuery)

	docContext, usedRelaxed := s.buildContext(ctx, ents)
	prompt := BuildPrompt(docContext, ents.City, ents.Craft, usedRelaxed)

	genCtx, cancel := context.WithTimeout(ctx, s.generationTimeout)
	defer cancel()

	text, err := s.llm.Generate(genCtx, conversation(prompt, messages, query))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}

	records := make([]models.CraftsmanRecord, 0)
	if craftsman.ContainsRecords(text) {
		records = s.replies.ExtractRecords(text)
	}

	return &models.ChatReply{
		ID:        uuid.NewString(),
		Role:      models.RoleAssistant,
		Content:   text,
		CreatedAt: s.now().UTC(),
		Craftsmen: records,
	}, nil
}

// buildContext produces the prompt context. Collaborator failures degrade to
// placeholder strings and never fail the turn.
func (s *ChatService) buildContext(ctx context.Context, ents entities.Entities) (string, bool) {
	if s.store == nil || s.embedder == nil {
		log.Printf("Warning: retrieval is not configured, continuing without context")
		return retrieval.RetrievalErrorContext, false
	}

	ctx, cancel := context.WithTimeout(ctx, s.retrievalTimeout)
	defer cancel()

	stats, err := s.store.Stats(ctx)
	if err != nil {
		log.Printf("Error: failed to read index stats: %v", err)
		return retrieval.RetrievalErrorContext, false
	}
	if stats.Count == 0 {
		log.Printf("Warning: vector store is empty, check data loading")
		return retrieval.NoDocumentsContext, false
	}

	vector, err := s.embedder.Embed(ctx, ents.AugmentedQuery)
	if err != nil {
		log.Printf("Error: failed to embed query: %v", err)
		return retrieval.RetrievalErrorContext, false
	}

	res, err := s.engine.Retrieve(ctx, vector, ents.City, ents.Craft)
	if err != nil {
		log.Printf("Error: failed to retrieve candidates: %v", err)
		return retrieval.RetrievalErrorContext, false
	}

	bypass := s.bypassSimilarity || !anySimilarity(res.Candidates)
	assembled := retrieval.Assemble(res.Candidates, retrieval.AssembleOptions{
		SimilarityThreshold: s.similarityThreshold,
		BypassSimilarity:    bypass,
		MaxContextLength:    s.maxContextLength,
		City:                ents.City,
		Craft:               ents.Craft,
	})
	log.Printf("Retrieved %d candidates, %d in context (relaxed=%t bypass=%t)",
		len(res.Candidates), assembled.Count, res.UsedRelaxedFilters, bypass)

	return assembled.Context, res.UsedRelaxedFilters
}

// ExtractResult is the outcome of running the reply extractor on free text.
type ExtractResult struct {
	Craftsmen  []models.CraftsmanRecord `json:"craftsmen"`
	HasRecords bool                     `json:"hasRecords"`
}

// ExtractReply recovers craftsman records from an assistant reply.
func (s *ChatService) ExtractReply(text string) ExtractResult {
	if !craftsman.ContainsRecords(text) {
		return ExtractResult{Craftsmen: make([]models.CraftsmanRecord, 0)}
	}
	records := s.replies.ExtractRecords(text)
	return ExtractResult{Craftsmen: records, HasRecords: len(records) > 0}
}

// IndexStats reports the vector store statistics.
func (s *ChatService) IndexStats(ctx context.Context) (models.IndexStats, error) {
	if s.store == nil {
		return models.IndexStats{}, ErrStoreNotSet
	}
	return s.store.Stats(ctx)
}

// LatestQuery returns the query text of the last message. A message with
// only non-text parts yields ImageOnlyQuery.
func LatestQuery(messages []models.ChatMessage) (string, error) {
	if len(messages) == 0 {
		return "", ErrInvalidMessage
	}
	latest := messages[len(messages)-1]
	if latest.Content.Empty() {
		return "", ErrInvalidMessage
	}
	text := strings.TrimSpace(latest.Content.PlainText())
	if text == "" {
		if !latest.Content.IsParts {
			return "", ErrInvalidMessage
		}
		return ImageOnlyQuery, nil
	}
	return text, nil
}

// conversation prepends the system prompt to the caller's messages, reduced
// to their text. Image parts are dropped.
func conversation(prompt string, messages []models.ChatMessage, query string) []models.ChatMessage {
	out := make([]models.ChatMessage, 0, len(messages)+1)
	out = append(out, models.ChatMessage{Role: models.RoleSystem, Content: models.MessageContent{Text: prompt}})

	dropped := 0
	for i, m := range messages {
		if m.Role == models.RoleSystem {
			continue
		}
		for _, p := range m.Content.Parts {
			if p.Type != "text" {
				dropped++
			}
		}
		text := m.Content.PlainText()
		if i == len(messages)-1 {
			text = query
		}
		out = append(out, models.ChatMessage{Role: m.Role, Content: models.MessageContent{Text: text}})
	}
	if dropped > 0 {
		log.Printf("Warning: dropped %d non-text message parts", dropped)
	}
	return out
}

func anySimilarity(candidates []models.RetrievalCandidate) bool {
	for _, c := range candidates {
		if c.Similarity != nil {
			return true
		}
	}
	return false
}
