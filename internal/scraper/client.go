package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"log"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/qkbintel/registry/internal/config"
	"github.com/qkbintel/registry/internal/domain"
)

// listingEndpoints enumerates the upstream listing APIs and the categories
// they cover.
var listingEndpoints = map[string]string{
	"company":         "/sq/company/any",         // public contractors
	"publike":         "/sq/publike/any",         // state-owned
	"concession":      "/sq/concession/any",      // PPP/concessions
	"banka":           "/sq/banka/any",           // banks
	"jobanka":         "/sq/jobanka/any",         // non-bank financial
	"companyinvestor": "/sq/companyinvestor/any", // strategic investors
}

// ListingCategories returns the known listing category keys, sorted.
func ListingCategories() []string {
	keys := make([]string, 0, len(listingEndpoints))
	for key := range listingEndpoints {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// FetchError describes a failed upstream request. Transient failures
// (timeouts, connection resets, upstream 5xx) are retried at the fetch layer;
// permanent ones (not found, access denied) surface immediately.
type FetchError struct {
	URL        string
	StatusCode int
	Transient  bool
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is a permanent not-found fetch failure.
func IsNotFound(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.StatusCode == http.StatusNotFound
}

// Client fetches listing and detail documents from the upstream registry
// mirror with polite pacing and bounded retry.
type Client struct {
	http       *http.Client
	baseURL    string
	userAgent  string
	delay      time.Duration
	retryCount int
	retryDelay time.Duration
}

// NewClient builds a client from scraper configuration.
func NewClient(cfg config.Scraper) *Client {
	return &Client{
		http:       &http.Client{Timeout: cfg.RequestTimeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:  cfg.UserAgent,
		delay:      cfg.RequestDelay,
		retryCount: cfg.RetryCount,
		retryDelay: cfg.RetryDelay,
	}
}

type listingResponse struct {
	Data         []map[string]any `json:"data"`
	RecordsTotal int              `json:"recordsTotal"`
}

// CollectNIPTs hits the listing APIs for the given categories (all known
// categories when nil) and returns a deduplicated, sorted identifier set.
// Categories that fail are logged and skipped; the call only fails when no
// category could be enumerated at all.
func (c *Client) CollectNIPTs(ctx context.Context, categories []string) ([]string, error) {
	if len(categories) == 0 {
		categories = ListingCategories()
	}

	seen := make(map[string]struct{})
	var fetched int
	var lastErr error

	for i, category := range categories {
		endpoint, ok := listingEndpoints[category]
		if !ok {
			log.Printf("[SCRAPE] unknown listing category: %s", category)
			continue
		}

		if i > 0 {
			if err := sleepCtx(ctx, c.delay); err != nil {
				return nil, err
			}
		}

		url := c.baseURL + endpoint
		body, err := c.get(ctx, url)
		if err != nil {
			log.Printf("[SCRAPE] failed to fetch %s listing: %v", category, err)
			lastErr = err
			continue
		}

		var listing listingResponse
		if err := json.Unmarshal(body, &listing); err != nil {
			log.Printf("[SCRAPE] failed to decode %s listing: %v", category, err)
			lastErr = fmt.Errorf("decode %s listing: %w", category, err)
			continue
		}

		for _, record := range listing.Data {
			raw, _ := record["NIPT"].(string)
			nipt := CleanNIPT(raw)
			if nipt == "" {
				continue
			}
			seen[nipt] = struct{}{}
		}
		fetched++
		log.Printf("[SCRAPE] %s: %d records fetched (total: %d)", category, len(listing.Data), listing.RecordsTotal)
	}

	if fetched == 0 {
		if lastErr == nil {
			lastErr = errors.New("no recognized listing categories")
		}
		return nil, fmt.Errorf("listing enumeration failed: %w", lastErr)
	}

	nipts := make([]string, 0, len(seen))
	for nipt := range seen {
		nipts = append(nipts, nipt)
	}
	sort.Strings(nipts)
	log.Printf("[SCRAPE] collected %d unique NIPTs", len(nipts))
	return nipts, nil
}

// FetchDetail retrieves the raw detail document for one identifier and the
// URL it was served from.
func (c *Client) FetchDetail(ctx context.Context, nipt string) (string, string, error) {
	url := fmt.Sprintf("%s/en/nipt/%s", c.baseURL, nipt)
	body, err := c.get(ctx, url)
	if err != nil {
		return "", url, err
	}
	return string(body), url, nil
}

// Delay returns the configured inter-request delay; the run coordinator
// paces each worker with it.
func (c *Client) Delay() time.Duration { return c.delay }

// get performs one GET with bounded retry on transient failures. The retry
// delay is fixed, not adaptive: the upstream accepts steady bounded load.
func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt <= c.retryCount; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, c.retryDelay); err != nil {
				return nil, err
			}
		}

		body, err := c.getOnce(ctx, url)
		if err == nil {
			return body, nil
		}
		lastErr = err

		var fe *FetchError
		if errors.As(err, &fe) && !fe.Transient {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, lastErr
		}
	}

	return nil, lastErr
}

func (c *Client) getOnce(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json, text/html")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &FetchError{URL: url, Transient: true, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		transient := resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
		return nil, &FetchError{URL: url, StatusCode: resp.StatusCode, Transient: transient}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{URL: url, Transient: true, Err: err}
	}
	return body, nil
}

// CleanNIPT extracts a plain identifier from a possibly HTML-wrapped listing
// value and validates its shape.
func CleanNIPT(raw string) string {
	text := raw
	if strings.Contains(raw, "<") {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw)); err == nil {
			text = doc.Text()
		}
	}
	text = domain.NormalizeNIPT(html.UnescapeString(text))
	if !domain.ValidNIPT(text) {
		return ""
	}
	return text
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
