package arxiv

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"review-hand/config"
	"review-hand/providers"
)

var httpClient = &http.Client{Timeout: 60 * time.Second}

// Fetcher implements the Provider interface for arXiv.
type Fetcher struct {
	Config *config.Config
	Logger *zap.Logger
}

// NewFetcher creates a new arXiv fetcher.
func NewFetcher(cfg *config.Config, logger *zap.Logger) *Fetcher {
	return &Fetcher{Config: cfg, Logger: logger}
}

// Name returns the provider name.
func (f *Fetcher) Name() string {
	return "arxiv"
}

// Search issues a single query-API request and maps the Atom entries to
// uniform results. Sort order is the provider's relevance ranking, passed
// through unmodified. arXiv has no publication-year filter; the year bounds
// in opts are ignored.
func (f *Fetcher) Search(ctx context.Context, query string, opts providers.SearchOptions) ([]*providers.Result, int, error) {
	log := f.Logger.With(zap.String("provider", "arxiv"), zap.String("query", query))
	log.Info("Starting arXiv search")

	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = 10
	}

	params := url.Values{}
	params.Set("search_query", "all:"+query)
	params.Set("start", "0")
	params.Set("max_results", fmt.Sprintf("%d", maxResults))
	params.Set("sortBy", "relevance")
	params.Set("sortOrder", "descending")

	searchURL := f.Config.ArxivBaseURL + "?" + params.Encode()
	log.Debug("Calling arXiv query API", zap.String("url", searchURL))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		log.Error("arXiv request failed", zap.Error(err))
		return nil, 0, fmt.Errorf("arxiv search failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Error("arXiv API returned non-200 status", zap.Int("status", resp.StatusCode))
		return nil, 0, fmt.Errorf("arxiv search failed: status %d", resp.StatusCode)
	}

	var feed Feed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		log.Error("Failed to parse arXiv XML response", zap.Error(err))
		return nil, 0, fmt.Errorf("arxiv search failed: %w", err)
	}

	results := make([]*providers.Result, 0, len(feed.Entries))
	for i := range feed.Entries {
		results = append(results, mapEntryToResult(&feed.Entries[i]))
	}

	log.Info("arXiv search completed", zap.Int("found_papers", len(results)))
	return results, 0, nil
}

// mapEntryToResult converts one Atom entry into the uniform result record.
func mapEntryToResult(entry *Entry) *providers.Result {
	r := &providers.Result{
		Title:     strings.TrimSpace(entry.Title),
		Abstract:  strings.TrimSpace(entry.Summary),
		Published: entry.Published,
	}

	for _, a := range entry.Authors {
		if a.Name != "" {
			r.Authors = append(r.Authors, a.Name)
		}
	}

	// The entry ID is the abstract-page URL (http://arxiv.org/abs/...).
	r.URL = entry.ID
	for _, link := range entry.Links {
		if link.Type == "application/pdf" && link.Href != "" {
			r.PDFURL = link.Href
			break
		}
	}

	return r
}
