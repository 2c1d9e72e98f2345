package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"harfy-backend/craftsman"
	"harfy-backend/models"
)

// PageSize is the number of craftsmen requested per page.
const PageSize = 100

var ErrRejected = errors.New("directory rejected the request")

// Client pages through the craftsman directory search API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
}

type ClientOption func(*Client)

// WithHTTPClient sets the HTTP client used for directory calls.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRateLimit caps the request rate. rps <= 0 disables limiting.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

func NewClient(baseURL, token string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(2), 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type searchRequest struct {
	Pagination int    `json:"pagination"`
	Page       int    `json:"page"`
	Craft      string `json:"craft"`
}

// FetchPage returns one page of craftsmen for craft together with the raw
// response body, which callers archive for replay.
func (c *Client) FetchPage(ctx context.Context, craft string, page int) (*Page, []byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, nil, err
		}
	}

	body, err := json.Marshal(searchRequest{Pagination: PageSize, Page: page, Craft: craft})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("API error: %d - %s", resp.StatusCode, truncate(string(raw), 200))
	}

	p, err := ParsePage(raw)
	if err != nil {
		return nil, nil, err
	}
	return p, raw, nil
}

// Page is one page of search results.
type Page struct {
	Craftsmen   []Craftsman
	CurrentPage int
	LastPage    int
}

// HasMore reports whether another page follows this one.
func (p *Page) HasMore() bool {
	return len(p.Craftsmen) > 0 && p.CurrentPage < p.LastPage
}

type searchResponse struct {
	Status bool `json:"status"`
	Data   struct {
		Data        []Craftsman `json:"data"`
		CurrentPage int         `json:"current_page"`
		LastPage    int         `json:"last_page"`
	} `json:"data"`
	Message string `json:"message,omitempty"`
}

// ParsePage decodes a raw search response, live or archived.
func ParsePage(raw []byte) (*Page, error) {
	var resp searchResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if !resp.Status {
		return nil, fmt.Errorf("%w: %s", ErrRejected, resp.Message)
	}
	return &Page{
		Craftsmen:   resp.Data.Data,
		CurrentPage: resp.Data.CurrentPage,
		LastPage:    resp.Data.LastPage,
	}, nil
}

// Craftsman is a directory entry as returned by the search API.
type Craftsman struct {
	ID          json.Number `json:"id"`
	Name        string      `json:"name"`
	Address     string      `json:"address"`
	Description string      `json:"description"`
	Status      string      `json:"status"`
	Image       string      `json:"image"`
	Craft       *struct {
		Name string `json:"name"`
	} `json:"craft"`
	Cities []struct {
		City string `json:"city"`
	} `json:"cities"`
	AverageRating   FlexFloat `json:"average_rating"`
	NumberOfRatings FlexFloat `json:"number_of_ratings"`
	DoneJobs        FlexFloat `json:"done_jobs_num"`
	ActiveJobs      FlexFloat `json:"active_jobs_num"`
}

// Profile converts the entry to the indexable profile.
func (c Craftsman) Profile() craftsman.Profile {
	p := craftsman.Profile{
		ExternalID:    c.ID.String(),
		Name:          strings.TrimSpace(c.Name),
		Address:       strings.TrimSpace(c.Address),
		Description:   strings.TrimSpace(c.Description),
		Image:         strings.TrimSpace(c.Image),
		ReviewCount:   c.NumberOfRatings.Int(),
		CompletedJobs: c.DoneJobs.Int(),
		ActiveJobs:    c.ActiveJobs.Int(),
		Status:        models.CraftsmanBusy,
	}
	if c.Craft != nil {
		p.Craft = strings.TrimSpace(c.Craft.Name)
	}
	for _, city := range c.Cities {
		if name := strings.TrimSpace(city.City); name != "" {
			p.Cities = append(p.Cities, name)
		}
	}
	if c.AverageRating.Valid && c.AverageRating.Value > 0 {
		r := c.AverageRating.Value
		p.Rating = &r
	}
	if strings.EqualFold(strings.TrimSpace(c.Status), string(models.CraftsmanFree)) {
		p.Status = models.CraftsmanFree
	}
	return p
}

// FlexFloat accepts a JSON number, a numeric string or null.
type FlexFloat struct {
	Value float64
	Valid bool
}

func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" || s == `""` {
		*f = FlexFloat{}
		return nil
	}
	s = strings.Trim(s, `"`)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid number %s: %w", string(data), err)
	}
	*f = FlexFloat{Value: v, Valid: true}
	return nil
}

// Int returns the value truncated to an int, 0 when absent.
func (f FlexFloat) Int() int {
	if !f.Valid {
		return 0
	}
	return int(f.Value)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
