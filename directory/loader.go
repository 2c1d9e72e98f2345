package directory

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"harfy-backend/craftsman"
	"harfy-backend/models"
	"harfy-backend/storage"
)

// maxPages bounds a single craft crawl in case the directory misreports
// last_page.
const maxPages = 500

// PageSource returns directory pages.
type PageSource interface {
	FetchPage(ctx context.Context, craft string, page int) (*Page, []byte, error)
}

// Embedder turns keyword text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Upserter writes vector records.
type Upserter interface {
	Upsert(ctx context.Context, records []models.VectorRecord) error
}

// LoadStats counts what a load did.
type LoadStats struct {
	Pages   int
	Loaded  int
	Skipped int
	Failed  int
}

func (s *LoadStats) add(o LoadStats) {
	s.Pages += o.Pages
	s.Loaded += o.Loaded
	s.Skipped += o.Skipped
	s.Failed += o.Failed
}

// Loader pages through the directory, archives every raw page, embeds each
// craftsman and upserts the vectors.
type Loader struct {
	source   PageSource
	archive  storage.Storage
	embedder Embedder
	store    Upserter
	replay   bool
	limiter  *rate.Limiter
}

// LoaderOption is a functional option for Loader
type LoaderOption func(*Loader)

// LoaderWithSource sets the live page source
func LoaderWithSource(src PageSource) LoaderOption {
	return func(l *Loader) {
		l.source = src
	}
}

// LoaderWithArchive sets the snapshot storage
func LoaderWithArchive(s storage.Storage) LoaderOption {
	return func(l *Loader) {
		l.archive = s
	}
}

// LoaderWithEmbedder sets the keyword embedder
func LoaderWithEmbedder(e Embedder) LoaderOption {
	return func(l *Loader) {
		l.embedder = e
	}
}

// LoaderWithStore sets the vector store
func LoaderWithStore(u Upserter) LoaderOption {
	return func(l *Loader) {
		l.store = u
	}
}

// LoaderWithReplay reads archived pages instead of calling the directory
func LoaderWithReplay(replay bool) LoaderOption {
	return func(l *Loader) {
		l.replay = replay
	}
}

// LoaderWithEmbedRate caps embedding calls per second. rps <= 0 disables it.
func LoaderWithEmbedRate(rps float64) LoaderOption {
	return func(l *Loader) {
		if rps <= 0 {
			l.limiter = nil
			return
		}
		l.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load loads every craft in order and returns the combined counts. A failing
// craft is logged and does not stop the others.
func (l *Loader) Load(ctx context.Context, crafts []string) (LoadStats, error) {
	if err := l.validate(); err != nil {
		return LoadStats{}, err
	}

	var total LoadStats
	for _, craft := range crafts {
		stats, err := l.LoadCraft(ctx, craft)
		total.add(stats)
		if err != nil {
			if ctx.Err() != nil {
				return total, ctx.Err()
			}
			log.Printf("Error: failed to load craft %s: %v", craft, err)
			continue
		}
		log.Printf("Loaded craft %s: %d pages, %d craftsmen (%d skipped, %d failed)",
			craft, stats.Pages, stats.Loaded, stats.Skipped, stats.Failed)
	}
	return total, nil
}

// LoadCraft loads every page of one craft.
func (l *Loader) LoadCraft(ctx context.Context, craft string) (LoadStats, error) {
	if err := l.validate(); err != nil {
		return LoadStats{}, err
	}

	var stats LoadStats
	for page := 1; page <= maxPages; page++ {
		p, err := l.page(ctx, craft, page)
		if errors.Is(err, storage.ErrNotFound) {
			break
		}
		if err != nil {
			return stats, fmt.Errorf("page %d: %w", page, err)
		}
		stats.Pages++

		pageStats, err := l.loadPage(ctx, p)
		stats.add(pageStats)
		if err != nil {
			return stats, fmt.Errorf("page %d: %w", page, err)
		}

		if !p.HasMore() {
			break
		}
	}
	return stats, nil
}

func (l *Loader) validate() error {
	if l.embedder == nil {
		return errors.New("embedder not set")
	}
	if l.store == nil {
		return errors.New("vector store not set")
	}
	if l.replay && l.archive == nil {
		return errors.New("replay requires snapshot storage")
	}
	if !l.replay && l.source == nil {
		return errors.New("directory source not set")
	}
	return nil
}

// page returns one page, from the archive when replaying, else from the
// directory with the raw body archived.
func (l *Loader) page(ctx context.Context, craft string, page int) (*Page, error) {
	key := storage.SnapshotKey(craft, page)

	if l.replay {
		rc, err := l.archive.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		raw, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("failed to read snapshot %s: %w", key, err)
		}
		return ParsePage(raw)
	}

	p, raw, err := l.source.FetchPage(ctx, craft, page)
	if err != nil {
		return nil, err
	}
	if l.archive != nil {
		if err := l.archive.Put(ctx, key, bytes.NewReader(raw)); err != nil {
			log.Printf("Warning: failed to archive %s: %v", key, err)
		}
	}
	return p, nil
}

func (l *Loader) loadPage(ctx context.Context, p *Page) (LoadStats, error) {
	var stats LoadStats
	records := make([]models.VectorRecord, 0, len(p.Craftsmen))

	for _, c := range p.Craftsmen {
		profile := c.Profile()
		if profile.Name == "" {
			log.Printf("Warning: skipping craftsman %s without a name", profile.ExternalID)
			stats.Skipped++
			continue
		}

		if l.limiter != nil {
			if err := l.limiter.Wait(ctx); err != nil {
				return stats, err
			}
		}
		embedding, err := l.embedder.Embed(ctx, craftsman.Keywords(profile))
		if err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			log.Printf("Error: failed to embed craftsman %s: %v", profile.ExternalID, err)
			stats.Failed++
			continue
		}
		records = append(records, BuildRecord(profile, embedding))
	}

	if len(records) == 0 {
		return stats, nil
	}
	if err := l.store.Upsert(ctx, records); err != nil {
		return stats, fmt.Errorf("failed to upsert %d records: %w", len(records), err)
	}
	stats.Loaded += len(records)
	return stats, nil
}

// RecordID is the vector id of a directory entry. It is stable across loads
// so that reloading replaces rather than duplicates.
func RecordID(externalID string) string {
	if externalID == "" {
		return uuid.NewString()
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("craftsman-"+externalID)).String()
}

// BuildRecord converts a profile and its embedding to a vector record.
func BuildRecord(p craftsman.Profile, embedding []float64) models.VectorRecord {
	return models.VectorRecord{
		ID:          RecordID(p.ExternalID),
		ExternalID:  p.ExternalID,
		Name:        p.Name,
		Category:    p.Craft,
		Cities:      p.Cities,
		Rating:      p.Rating,
		Keywords:    craftsman.KeywordList(p),
		Image:       p.Image,
		Description: craftsman.FormatDescription(p),
		Embedding:   embedding,
	}
}
