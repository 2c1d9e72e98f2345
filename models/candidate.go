package models

// RetrievalCandidate is one vector-store hit, built fresh per query.
type RetrievalCandidate struct {
	ExternalID string    `json:"external_id,omitempty"` // source-of-truth record id, may be empty
	VectorID   string    `json:"vector_id"`
	Vector     []float64 `json:"-"`
	Similarity *float64  `json:"similarity,omitempty"` // cosine, nil when the store did not report it
	Text       string    `json:"text"`

	Name     string   `json:"name,omitempty"`
	Category string   `json:"category,omitempty"`
	Cities   []string `json:"cities,omitempty"`
	Rating   *float64 `json:"rating,omitempty"`
	Keywords []string `json:"keywords,omitempty"`
	Image    string   `json:"image,omitempty"`
}

// VectorRecord is one upsert into the vector store.
type VectorRecord struct {
	ID          string
	ExternalID  string
	Name        string
	Category    string
	Cities      []string
	Rating      *float64
	Keywords    []string
	Image       string
	Description string
	Embedding   []float64
}

// IndexStats describes the contents of the vector store.
type IndexStats struct {
	Count     int64 `json:"count"`
	Dimension int   `json:"dimension"`
}

// VectorQuery is a nearest-neighbor query with optional metadata filters.
// Empty City or Craft and nil MinRating mean "no filter".
type VectorQuery struct {
	Vector         []float64
	TopK           int
	City           string
	Craft          string
	MinRating      *float64
	IncludeVectors bool
}
