package retrieval

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"harfy-backend/models"
)

const (
	DefaultSimilarityThreshold = 0.3
	DefaultMaxContextLength    = 30000

	// defaultRating ranks unrated candidates when ordering by rating.
	defaultRating = 2.0
	titleMaxRunes = 50
)

// Context strings surfaced verbatim in the prompt.
const (
	TruncationMarker      = "\n[تم اقتطاع السياق بسبب الطول الزائد]"
	NoDocumentsContext    = "لم يتم العثور على مستندات في قاعدة المعرفة."
	RetrievalErrorContext = "حدث خطأ أثناء استرداد معلومات السياق."
	noRelevantContext     = "لم يتم العثور على معلومات ذات صلة كافية في قاعدة المعرفة لهذا الاستعلام."
)

// Block markers and the two identifier labels. The reply extractor depends on
// these exact strings.
const (
	BlockStartPrefix = "--- المستند"
	BlockEndPrefix   = "--- نهاية المستند"
	IDLabel          = "id:"
	SourceIDLabel    = "sourceId:"
)

// AssembleOptions controls filtering, ordering and the size budget.
type AssembleOptions struct {
	SimilarityThreshold float64
	BypassSimilarity    bool
	MaxContextLength    int
	// City and Craft select the "no results" wording.
	City  string
	Craft string
}

// Assembled is the prompt context built from the ranked candidates.
type Assembled struct {
	Context string
	Found   bool
	Count   int
}

// NoResultsContext explains that nothing relevant was found, mentioning the
// detected city and craft when known.
func NoResultsContext(city, craft string) string {
	switch {
	case city != "" && craft != "":
		return fmt.Sprintf("لم يتم العثور على %s في %s في قاعدة المعرفة حاليًا.", craft, city)
	case city != "":
		return fmt.Sprintf("لم يتم العثور على حرفيين في %s في قاعدة المعرفة حاليًا.", city)
	case craft != "":
		return fmt.Sprintf("لم يتم العثور على %s في قاعدة المعرفة حاليًا.", craft)
	default:
		return noRelevantContext
	}
}

// Assemble filters, orders, renders and truncates candidates. It never fails;
// with nothing to render it returns a "no results" context and Found=false.
func Assemble(candidates []models.RetrievalCandidate, opts AssembleOptions) Assembled {
	maxLen := opts.MaxContextLength
	if maxLen <= 0 {
		maxLen = DefaultMaxContextLength
	}

	kept := make([]models.RetrievalCandidate, 0, len(candidates))
	for _, c := range candidates {
		if opts.BypassSimilarity || (c.Similarity != nil && *c.Similarity >= opts.SimilarityThreshold) {
			kept = append(kept, c)
		}
	}

	if opts.BypassSimilarity {
		sort.SliceStable(kept, func(i, j int) bool {
			return ratingOrDefault(kept[i]) > ratingOrDefault(kept[j])
		})
	} else {
		sort.SliceStable(kept, func(i, j int) bool {
			return similarityOrZero(kept[i]) > similarityOrZero(kept[j])
		})
	}

	if len(kept) == 0 {
		return Assembled{Context: NoResultsContext(opts.City, opts.Craft)}
	}

	blocks := make([]string, len(kept))
	for i, c := range kept {
		blocks[i] = RenderBlock(i+1, c)
	}
	context := strings.Join(blocks, "\n\n")

	if utf8.RuneCountInString(context) > maxLen {
		context = truncateRunes(context, maxLen) + TruncationMarker
	}

	return Assembled{Context: context, Found: true, Count: len(kept)}
}

// RenderBlock renders one candidate in the delimited document format.
func RenderBlock(n int, c models.RetrievalCandidate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %d: %s %s ---\n", BlockStartPrefix, n, blockTitle(c), similarityLabel(c))
	b.WriteString(strings.TrimRight(c.Text, "\n"))
	b.WriteString("\n")
	if c.ExternalID != "" {
		fmt.Fprintf(&b, "%s %s\n", IDLabel, c.ExternalID)
	}
	fmt.Fprintf(&b, "%s %s\n", SourceIDLabel, c.VectorID)
	fmt.Fprintf(&b, "%s %d ---", BlockEndPrefix, n)
	return b.String()
}

func blockTitle(c models.RetrievalCandidate) string {
	if c.Name != "" {
		return c.Name
	}
	first, _, _ := strings.Cut(c.Text, "\n")
	return truncateRunes(first, titleMaxRunes) + "..."
}

func similarityLabel(c models.RetrievalCandidate) string {
	if c.Similarity == nil {
		return "(درجة الصلة غير متوفرة)"
	}
	return fmt.Sprintf("(مدى الصلة: %.2f)", *c.Similarity)
}

func ratingOrDefault(c models.RetrievalCandidate) float64 {
	if c.Rating == nil {
		return defaultRating
	}
	return *c.Rating
}

func similarityOrZero(c models.RetrievalCandidate) float64 {
	if c.Similarity == nil {
		return 0
	}
	return *c.Similarity
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
