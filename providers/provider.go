package providers

import "context"

// Result is the uniform paper record every search provider returns.
type Result struct {
	Title     string   `json:"title"`
	Authors   []string `json:"authors"`
	Abstract  string   `json:"abstract"`
	URL       string   `json:"url"`
	PDFURL    string   `json:"pdf_url,omitempty"`
	Published string   `json:"published,omitempty"`
	Journal   string   `json:"journal,omitempty"`
	DOI       string   `json:"doi,omitempty"`
}

// SearchOptions narrows a provider search. A zero year bound is open on
// that side; providers that cannot filter by year ignore both.
type SearchOptions struct {
	MaxResults     int
	YearFrom       int
	YearTo         int
	HighImpactOnly bool
}

// Provider is the interface every literature search backend implements.
// The skipped count reports how many result batches were dropped due to
// per-batch failures; providers without batching always return zero.
type Provider interface {
	Search(ctx context.Context, query string, opts SearchOptions) (results []*Result, skipped int, err error)
	Name() string
}
