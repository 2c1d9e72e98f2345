package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log"

	"harfy-backend/models"
)

const (
	DefaultTopK      = 15
	DefaultMinRating = 3.0
)

// ErrEmptyQueryVector is returned when Retrieve is called without an embedding.
var ErrEmptyQueryVector = errors.New("query vector is empty")

// VectorStore is the part of the vector store the engine needs.
type VectorStore interface {
	Query(ctx context.Context, q models.VectorQuery) ([]models.RetrievalCandidate, error)
}

// Result is the outcome of a retrieval.
type Result struct {
	Candidates []models.RetrievalCandidate
	// UsedRelaxedFilters is set when the strict pass found nothing and the
	// rating filter was dropped.
	UsedRelaxedFilters bool
}

// Engine runs the strict/relaxed two-pass retrieval.
type Engine struct {
	store     VectorStore
	topK      int
	minRating float64
}

// EngineOption is a functional option for Engine.
type EngineOption func(*Engine)

// WithTopK sets the number of neighbors requested per pass.
func WithTopK(k int) EngineOption {
	return func(e *Engine) {
		if k > 0 {
			e.topK = k
		}
	}
}

// WithMinRating sets the strict-pass rating cutoff.
func WithMinRating(r float64) EngineOption {
	return func(e *Engine) {
		e.minRating = r
	}
}

// NewEngine creates a retrieval engine over store.
func NewEngine(store VectorStore, opts ...EngineOption) *Engine {
	e := &Engine{
		store:     store,
		topK:      DefaultTopK,
		minRating: DefaultMinRating,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Retrieve queries the store with the city/craft filters and the rating
// cutoff, and repeats the query without the cutoff when nothing qualifies.
// Store errors are returned as is; callers degrade to placeholder context.
func (e *Engine) Retrieve(ctx context.Context, vector []float64, city, craft string) (*Result, error) {
	if len(vector) == 0 {
		return nil, ErrEmptyQueryVector
	}

	candidates, err := e.query(ctx, vector, city, craft, true)
	if err != nil {
		return nil, fmt.Errorf("strict retrieval failed: %w", err)
	}
	if len(candidates) > 0 {
		return &Result{Candidates: candidates}, nil
	}

	log.Printf("Strict retrieval returned no candidates (city=%q craft=%q min_rating=%.1f), relaxing rating filter",
		city, craft, e.minRating)

	candidates, err = e.query(ctx, vector, city, craft, false)
	if err != nil {
		return nil, fmt.Errorf("relaxed retrieval failed: %w", err)
	}
	return &Result{Candidates: candidates, UsedRelaxedFilters: true}, nil
}

func (e *Engine) query(ctx context.Context, vector []float64, city, craft string, applyRating bool) ([]models.RetrievalCandidate, error) {
	q := models.VectorQuery{
		Vector:         vector,
		TopK:           e.topK,
		City:           city,
		Craft:          craft,
		IncludeVectors: true,
	}
	if applyRating {
		minRating := e.minRating
		q.MinRating = &minRating
	}

	hits, err := e.store.Query(ctx, q)
	if err != nil {
		return nil, err
	}

	out := make([]models.RetrievalCandidate, 0, len(hits))
	for _, hit := range hits {
		if applyRating && (hit.Rating == nil || *hit.Rating < e.minRating) {
			continue
		}
		if hit.Similarity == nil && len(hit.Vector) > 0 {
			sim := CosineSimilarity(vector, hit.Vector)
			hit.Similarity = &sim
		}
		out = append(out, hit)
	}
	return out, nil
}
