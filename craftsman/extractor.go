package craftsman

import (
	"errors"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"harfy-backend/arabic"
	"harfy-backend/models"
	"harfy-backend/retrieval"
)

var (
	ErrUnterminatedBlock = errors.New("block has no end marker")
	ErrEmptyBlock        = errors.New("block is empty")
)

var (
	blockStartRe = regexp.MustCompile(regexp.QuoteMeta(retrieval.BlockStartPrefix) + `\s*\d+`)
	blockEndRe   = regexp.MustCompile(regexp.QuoteMeta(retrieval.BlockEndPrefix) + `\s*\d+\s*---`)

	ratingValueRe = regexp.MustCompile(`^([0-9]+(?:\.[0-9]+)?)`)
	reviewCountRe = []*regexp.Regexp{
		regexp.MustCompile(`عدد التقييمات:\s*([0-9]+)`),
		regexp.MustCompile(`\(([0-9]+)\)`),
		regexp.MustCompile(`\(([0-9]+)\s*تقييمات?\)`),
	}
	leadingIntRe = regexp.MustCompile(`^[+-]?[0-9]+`)
	busyRe       = regexp.MustCompile(`(?i)مشغول|busy`)

	// Secondary id spellings, tried when the id label is absent.
	idFallbackRe = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:^|[^\p{L}\p{N}])id\s*:\s*([0-9]+)`),
		regexp.MustCompile(`رقم الحرفي:\s*([0-9]+)`),
		regexp.MustCompile(`رقم المعرف:\s*([0-9]+)`),
	}
)

// ContainsRecords reports whether text looks like it carries rendered
// craftsman blocks.
func ContainsRecords(text string) bool {
	return strings.Contains(text, retrieval.BlockStartPrefix) && strings.Contains(text, LabelSourceID)
}

// Extractor recovers craftsman records from assistant replies.
type Extractor struct {
	now func() time.Time
}

type ExtractorOption func(*Extractor)

// WithClock sets the time source used for synthesized identifiers.
func WithClock(now func() time.Time) ExtractorOption {
	return func(e *Extractor) {
		e.now = now
	}
}

func NewExtractor(opts ...ExtractorOption) *Extractor {
	e := &Extractor{now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var defaultExtractor = NewExtractor()

// ExtractRecords parses text with the default extractor.
func ExtractRecords(text string) []models.CraftsmanRecord {
	return defaultExtractor.ExtractRecords(text)
}

// block is one delimited region of a reply. err is set when the region could
// not be bounded.
type block struct {
	body string
	err  error
}

// blockResult is the outcome of parsing one block. A nil record with a nil
// error means the block was dropped by policy.
type blockResult struct {
	record *models.CraftsmanRecord
	err    error
}

// ExtractRecords returns the records found in text in block order. It never
// fails: bad blocks are logged and skipped. The result is never nil.
func (e *Extractor) ExtractRecords(text string) []models.CraftsmanRecord {
	records := make([]models.CraftsmanRecord, 0)
	if !strings.Contains(text, retrieval.BlockStartPrefix) {
		return records
	}

	for i, b := range scanBlocks(text) {
		if b.err != nil {
			log.Printf("Warning: skipping block %d: %v", i+1, b.err)
			continue
		}
		res := e.parseBlock(b.body, len(records))
		switch {
		case res.err != nil:
			log.Printf("Warning: failed to parse block %d: %v", i+1, res.err)
		case res.record != nil:
			records = append(records, *res.record)
		}
	}

	if len(records) == 0 {
		log.Printf("Warning: reply has block markers but no craftsman could be extracted")
	}
	return records
}

// scanBlocks pairs every start marker with the first end marker after it. A
// start marker followed by another start marker before any end marker is an
// unterminated block.
func scanBlocks(text string) []block {
	starts := blockStartRe.FindAllStringIndex(text, -1)
	ends := blockEndRe.FindAllStringIndex(text, -1)

	var blocks []block
	j := 0
	for i, st := range starts {
		for j < len(ends) && ends[j][0] < st[1] {
			j++
		}
		if j == len(ends) {
			blocks = append(blocks, block{err: ErrUnterminatedBlock})
			continue
		}
		if i+1 < len(starts) && starts[i+1][0] < ends[j][0] {
			blocks = append(blocks, block{err: ErrUnterminatedBlock})
			continue
		}

		body := stripHeader(text[st[1]:ends[j][0]])
		j++
		if strings.TrimSpace(body) == "" {
			blocks = append(blocks, block{err: ErrEmptyBlock})
			continue
		}
		blocks = append(blocks, block{body: body})
	}
	return blocks
}

// stripHeader drops the remainder of the start marker line (the title and
// relevance note).
func stripHeader(s string) string {
	if _, rest, ok := strings.Cut(s, "\n"); ok {
		return rest
	}
	if _, rest, ok := strings.Cut(s, "---"); ok {
		return rest
	}
	return s
}

func (e *Extractor) parseBlock(body string, ordinal int) (res blockResult) {
	defer func() {
		if r := recover(); r != nil {
			res = blockResult{err: fmt.Errorf("panic while parsing block: %v", r)}
		}
	}()

	values := scanFields(body)

	name := values[fieldName]
	craft := values[fieldCraft]
	if name == "" || craft == "" {
		log.Printf("Warning: dropping block without name or craft (name=%q, craft=%q)", name, craft)
		return blockResult{}
	}

	ts := e.now().UnixMilli()
	rec := &models.CraftsmanRecord{
		ID:          e.resolveID(values[fieldID], body, ts, ordinal),
		SourceID:    values[fieldSourceID],
		Name:        name,
		Craft:       craft,
		Address:     values[fieldAddress],
		Description: values[fieldDescription],
		Status:      parseStatus(values[fieldStatus]),
		Cities:      normalizeCities(values[fieldCities]),
	}
	if rec.SourceID == "" {
		rec.SourceID = fmt.Sprintf("fallback-%d-%d", ts, ordinal)
	}
	rec.Rating, rec.ReviewCount = parseRating(values[fieldRating])
	rec.CompletedJobs = parseLeadingInt(values[fieldCompletedJobs])
	rec.ActiveJobs = parseLeadingInt(values[fieldActiveJobs])
	if img := values[fieldImage]; img != "" {
		rec.Image = &img
	}

	return blockResult{record: rec}
}

func (e *Extractor) resolveID(explicit, body string, ts int64, ordinal int) string {
	if explicit != "" {
		return explicit
	}
	for _, re := range idFallbackRe {
		if m := re.FindStringSubmatch(body); m != nil {
			return m[1]
		}
	}
	id := fmt.Sprintf("temp-%d-%d", ts, ordinal)
	log.Printf("Warning: no id in block, using temporary id %s", id)
	return id
}

type labelHit struct {
	field      field
	start      int
	valueStart int
}

// scanFields walks the ordered label list with a cursor. A label missing
// after the cursor is looked up from the start of the block so reordered
// fields are still found. Each value ends at the nearest other label.
func scanFields(body string) map[fieldKey]string {
	var hits []labelHit
	cursor := 0
	for _, f := range fields {
		pos := findLabel(body, f.label, cursor)
		if pos < 0 {
			pos = findLabel(body, f.label, 0)
		}
		if pos < 0 {
			continue
		}
		hits = append(hits, labelHit{field: f, start: pos, valueStart: pos + len(f.label)})
		if pos >= cursor {
			cursor = pos + len(f.label)
		}
	}

	values := make(map[fieldKey]string, len(hits))
	for _, h := range hits {
		end := len(body)
		for _, other := range hits {
			if other.start >= h.valueStart && other.start < end {
				end = other.start
			}
		}
		v := strings.TrimSpace(body[h.valueStart:end])
		if !h.field.multiline {
			v, _, _ = strings.Cut(v, "\n")
			v = strings.TrimSpace(v)
		}
		if v != "" {
			values[h.field.key] = v
		}
	}
	return values
}

// findLabel returns the first occurrence of label at or after from that is
// not the tail of a longer word, or -1.
func findLabel(s, label string, from int) int {
	for from <= len(s) {
		i := strings.Index(s[from:], label)
		if i < 0 {
			return -1
		}
		pos := from + i
		if pos == 0 {
			return pos
		}
		r, _ := utf8.DecodeLastRuneInString(s[:pos])
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return pos
		}
		from = pos + len(label)
	}
	return -1
}

func parseRating(text string) (*float64, *int) {
	if text == "" {
		return nil, nil
	}
	if strings.Contains(text, NotAvailable) {
		zero := 0
		return nil, &zero
	}

	var rating *float64
	if m := ratingValueRe.FindStringSubmatch(text); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			rating = &v
		}
	}

	var count *int
	for _, re := range reviewCountRe {
		if m := re.FindStringSubmatch(text); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				count = &n
				break
			}
		}
	}
	return rating, count
}

func parseLeadingInt(text string) *int {
	m := leadingIntRe.FindString(text)
	if m == "" {
		return nil
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return nil
	}
	return &n
}

func parseStatus(text string) models.CraftsmanStatus {
	if busyRe.MatchString(text) {
		return models.CraftsmanBusy
	}
	return models.CraftsmanFree
}

func normalizeCities(text string) string {
	if text == "" {
		return ""
	}
	parts := strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == '،'
	})
	return strings.Join(arabic.NormalizeAll(parts), ", ")
}
