package entities

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"harfy-backend/arabic"
)

const (
	// DefaultCountry is used in augmented queries when no city was detected.
	DefaultCountry = "مصر"
	// GenericCraftsmen is used in augmented queries when no craft was detected.
	GenericCraftsmen = "حرفيين"
)

// Entities is the result of query understanding. Empty City or Craft means
// not detected.
type Entities struct {
	City           string
	Governorate    string
	Craft          string
	AugmentedQuery string
}

// HasCity reports whether a city was detected.
func (e Entities) HasCity() bool { return e.City != "" }

// HasCraft reports whether a craft was detected.
func (e Entities) HasCraft() bool { return e.Craft != "" }

// Extractor matches cities and crafts in user queries. Patterns are compiled
// once in NewExtractor; an Extractor is safe for concurrent use.
type Extractor struct {
	gazetteer *Gazetteer
	cityRe    *regexp.Regexp
	craftRe   *regexp.Regexp
	// normalized spelling -> canonical spelling, first occurrence wins
	cities map[string]string
	crafts map[string]string
}

// NewExtractor compiles the city and craft patterns for g.
func NewExtractor(g *Gazetteer) (*Extractor, error) {
	if g == nil {
		return nil, ErrEmptyGazetteer
	}

	cities := make(map[string]string)
	var cityOrder []string
	for _, c := range g.Cities() {
		n := arabic.Normalize(c)
		if _, seen := cities[n]; seen {
			continue
		}
		cities[n] = c
		cityOrder = append(cityOrder, n)
	}

	crafts := make(map[string]string)
	var craftOrder []string
	for _, c := range g.Crafts {
		for _, token := range append([]string{c.Name}, c.Aliases...) {
			n := arabic.Normalize(token)
			if n == "" {
				continue
			}
			if _, seen := crafts[n]; seen {
				continue
			}
			crafts[n] = c.Name
			craftOrder = append(craftOrder, n)
		}
	}

	if len(cityOrder) == 0 || len(craftOrder) == 0 {
		return nil, ErrEmptyGazetteer
	}

	// Cities must stand alone as words, optionally behind a single-letter
	// proclitic (و ب ل ف). RE2's \b only understands ASCII word characters.
	cityPattern := `(?:^|[^\p{L}\p{N}])[وبلف]?(` + alternation(cityOrder) + `)(?:$|[^\p{L}\p{N}])`
	cityRe, err := regexp.Compile(cityPattern)
	if err != nil {
		return nil, fmt.Errorf("failed to compile city pattern: %w", err)
	}

	// Craft tokens match inside words so that "سباكة" finds "سباك".
	craftRe, err := regexp.Compile(alternation(craftOrder))
	if err != nil {
		return nil, fmt.Errorf("failed to compile craft pattern: %w", err)
	}

	return &Extractor{
		gazetteer: g,
		cityRe:    cityRe,
		craftRe:   craftRe,
		cities:    cities,
		crafts:    crafts,
	}, nil
}

// alternation joins literal tokens longest first, so that at a given position
// the longest alternative wins ("شبرا الخيمة" before "شبرا").
func alternation(tokens []string) string {
	sorted := append([]string(nil), tokens...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return utf8.RuneCountInString(sorted[i]) > utf8.RuneCountInString(sorted[j])
	})
	quoted := make([]string, len(sorted))
	for i, t := range sorted {
		quoted[i] = regexp.QuoteMeta(t)
	}
	return strings.Join(quoted, "|")
}

// Extract detects the city and craft mentioned in query and composes the
// augmented query.
func (e *Extractor) Extract(query string) Entities {
	normalized := arabic.Normalize(query)

	var out Entities
	if m := e.cityRe.FindStringSubmatch(normalized); m != nil {
		out.City = e.cities[m[1]]
		out.Governorate = e.gazetteer.GovernorateOf(out.City)
	}
	if m := e.craftRe.FindString(normalized); m != "" {
		out.Craft = e.crafts[m]
	}
	out.AugmentedQuery = AugmentedQuery(out.Craft, out.City)
	return out
}

// AugmentedQuery selects one of the four query templates.
func AugmentedQuery(craft, city string) string {
	switch {
	case craft != "" && city != "":
		return craft + " في " + city
	case city != "":
		return GenericCraftsmen + " في " + city
	case craft != "":
		return craft + " في " + DefaultCountry
	default:
		return GenericCraftsmen + " في " + DefaultCountry
	}
}
