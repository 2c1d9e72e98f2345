package models

// CraftsmanStatus is the availability of a craftsman.
type CraftsmanStatus string

const (
	CraftsmanFree CraftsmanStatus = "free"
	CraftsmanBusy CraftsmanStatus = "busy"
)

// CraftsmanRecord is a craftsman recovered from an assistant reply so that a
// front end can render a card. Name and Craft are always non-empty.
type CraftsmanRecord struct {
	ID            string          `json:"id"`
	SourceID      string          `json:"sourceId"`
	Name          string          `json:"name"`
	Craft         string          `json:"craft"`
	Address       string          `json:"address,omitempty"`
	Rating        *float64        `json:"rating,omitempty"`
	ReviewCount   *int            `json:"reviewCount,omitempty"`
	Description   string          `json:"description,omitempty"`
	Status        CraftsmanStatus `json:"status"`
	Cities        string          `json:"cities,omitempty"`
	CompletedJobs *int            `json:"completedJobs,omitempty"`
	ActiveJobs    *int            `json:"activeJobs,omitempty"`
	Image         *string         `json:"image"`
}
