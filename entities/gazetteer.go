// Package entities detects the city and craft a user is asking about and builds
// the augmented query used for embedding.
package entities

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed gazetteer.yaml
var defaultGazetteerYAML []byte

// ErrEmptyGazetteer is returned when a gazetteer defines no cities or no crafts.
var ErrEmptyGazetteer = errors.New("gazetteer must define at least one city and one craft")

// Governorate is a top-level administrative region and its ordered cities.
type Governorate struct {
	Name   string   `yaml:"name"`
	Cities []string `yaml:"cities"`
}

// Craft is a recognized craft type. Aliases resolve to Name.
type Craft struct {
	Name    string   `yaml:"name"`
	Aliases []string `yaml:"aliases,omitempty"`
}

// Gazetteer holds the fixed governorate->cities mapping and craft vocabulary.
// It is read-only after loading.
type Gazetteer struct {
	Governorates []Governorate `yaml:"governorates"`
	Crafts       []Craft       `yaml:"crafts"`
}

// ParseGazetteer decodes a YAML gazetteer definition.
func ParseGazetteer(data []byte) (*Gazetteer, error) {
	var g Gazetteer
	if err := yaml.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("failed to parse gazetteer: %w", err)
	}
	if len(g.Cities()) == 0 || len(g.Crafts) == 0 {
		return nil, ErrEmptyGazetteer
	}
	return &g, nil
}

var loadDefaultGazetteer = sync.OnceValues(func() (*Gazetteer, error) {
	return ParseGazetteer(defaultGazetteerYAML)
})

// DefaultGazetteer returns the built-in Egyptian gazetteer. It is parsed once
// and shared; callers must not modify it.
func DefaultGazetteer() (*Gazetteer, error) {
	return loadDefaultGazetteer()
}

// Cities returns every city in governorate order.
func (g *Gazetteer) Cities() []string {
	var out []string
	for _, gov := range g.Governorates {
		for _, c := range gov.Cities {
			if c = strings.TrimSpace(c); c != "" {
				out = append(out, c)
			}
		}
	}
	return out
}

// GovernorateOf returns the governorate containing city, or "".
func (g *Gazetteer) GovernorateOf(city string) string {
	for _, gov := range g.Governorates {
		for _, c := range gov.Cities {
			if c == city {
				return gov.Name
			}
		}
	}
	return ""
}

// CraftNames returns the canonical craft names in vocabulary order.
func (g *Gazetteer) CraftNames() []string {
	out := make([]string, 0, len(g.Crafts))
	for _, c := range g.Crafts {
		out = append(out, c.Name)
	}
	return out
}
