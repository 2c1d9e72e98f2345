package craftsman

import (
	"fmt"
	"strconv"
	"strings"

	"harfy-backend/models"
)

// Profile is a craftsman as published by the directory, before indexing.
type Profile struct {
	ExternalID    string
	Name          string
	Craft         string
	Address       string
	Cities        []string
	Rating        *float64
	ReviewCount   int
	CompletedJobs int
	ActiveJobs    int
	Description   string
	Status        models.CraftsmanStatus
	Image         string
}

// FormatDescription renders the labeled description block stored with each
// vector and later echoed back by the model.
func FormatDescription(p Profile) string {
	var b strings.Builder
	line := func(label, value string) {
		fmt.Fprintf(&b, "%s %s\n", label, value)
	}

	line(LabelName, p.Name)
	line(LabelCraft, orDefault(p.Craft, NotSpecified))
	line(LabelAddress, orDefault(p.Address, NotSpecified))

	if len(p.Cities) > 0 {
		line(LabelCities, strings.Join(p.Cities, ", "))
	}

	if p.Rating != nil && *p.Rating > 0 {
		line(LabelRating, fmt.Sprintf("%s (عدد التقييمات: %d)", formatRating(*p.Rating), p.ReviewCount))
	} else {
		line(LabelRating, NotAvailable)
	}

	line(LabelCompletedJobs, strconv.Itoa(p.CompletedJobs))
	line(LabelActiveJobs, strconv.Itoa(p.ActiveJobs))

	if p.Description != "" {
		line(LabelDescription, p.Description)
	}

	status := StatusBusyText
	if p.Status == models.CraftsmanFree {
		status = StatusFreeText
	}
	line(LabelStatus, status)

	if p.Image != "" {
		line(LabelImage, p.Image)
	}

	return b.String()
}

// DefaultCity stands in for the cities of a profile that lists none.
const DefaultCity = "مصر"

// KeywordList returns the generic craftsman keyword, the craft and the
// cities of a profile.
func KeywordList(p Profile) []string {
	parts := []string{"حرفي"}
	if c := strings.TrimSpace(p.Craft); c != "" {
		parts = append(parts, c)
	}
	n := len(parts)
	for _, c := range p.Cities {
		if c = strings.TrimSpace(c); c != "" {
			parts = append(parts, c)
		}
	}
	if len(parts) == n {
		parts = append(parts, DefaultCity)
	}
	return parts
}

// Keywords is the text embedded for a profile.
func Keywords(p Profile) string {
	return strings.Join(KeywordList(p), ", ")
}

func formatRating(r float64) string {
	return strconv.FormatFloat(r, 'f', -1, 64)
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
