package pubmed

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"review-hand/config"
	"review-hand/providers"
)

var httpClient = &http.Client{Timeout: 60 * time.Second}

// efetchBatchSize caps the number of PMIDs joined into one efetch call.
const efetchBatchSize = 100

// efetchBatchDelay spaces efetch calls to stay within the NCBI rate limit.
const efetchBatchDelay = 350 * time.Millisecond

// highImpactJournals is the substring allow-list used when callers restrict
// results to high-impact venues. Matching is case-insensitive against the
// journal title reported by efetch.
var highImpactJournals = []string{
	"Nature",
	"Science",
	"Cell",
	"Lancet",
	"New England Journal of Medicine",
	"JAMA",
	"BMJ",
	"Radiology",
	"IEEE Transactions on Medical Imaging",
	"Medical Image Analysis",
}

// Fetcher implements the Provider interface for PubMed.
type Fetcher struct {
	Config *config.Config
	Logger *zap.Logger
}

// NewFetcher creates a new PubMed fetcher.
func NewFetcher(cfg *config.Config, logger *zap.Logger) *Fetcher {
	return &Fetcher{Config: cfg, Logger: logger}
}

// Name returns the provider name.
func (f *Fetcher) Name() string {
	return "pubmed"
}

// Search runs a full PubMed query: ESearch for PMIDs, then EFetch in batches
// for the article metadata. A failing batch is logged and skipped rather than
// failing the whole search; the number of skipped batches is returned so
// callers can surface partial results.
func (f *Fetcher) Search(ctx context.Context, query string, opts providers.SearchOptions) ([]*providers.Result, int, error) {
	log := f.Logger.With(zap.String("provider", "pubmed"), zap.String("query", query))
	log.Info("Starting PubMed search")

	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = 10
	}

	term := query + buildDateFilter(opts)
	ids, err := f.searchIDs(ctx, term, maxResults)
	if err != nil {
		return nil, 0, fmt.Errorf("pubmed esearch failed: %w", err)
	}
	if len(ids) == 0 {
		log.Info("PubMed search returned no IDs")
		return nil, 0, nil
	}

	var results []*providers.Result
	skipped := 0
	for start := 0; start < len(ids); start += efetchBatchSize {
		if start > 0 {
			time.Sleep(efetchBatchDelay)
		}
		end := start + efetchBatchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch, err := f.fetchBatch(ctx, ids[start:end])
		if err != nil {
			log.Warn("Skipping failed efetch batch",
				zap.Int("batch_start", start),
				zap.Int("batch_size", end-start),
				zap.Error(err))
			skipped++
			continue
		}
		results = append(results, batch...)
	}

	if opts.HighImpactOnly {
		results = filterHighImpact(results)
	}

	log.Info("PubMed search completed",
		zap.Int("found_papers", len(results)),
		zap.Int("skipped_batches", skipped))
	return results, skipped, nil
}

// searchIDs runs an ESearch query and returns up to maxResults PMIDs.
func (f *Fetcher) searchIDs(ctx context.Context, term string, maxResults int) ([]string, error) {
	log := f.Logger.With(zap.String("term", term))

	searchURL := fmt.Sprintf("%s/esearch.fcgi?db=pubmed&term=%s&retmode=json&retmax=%d",
		f.Config.PubMedBaseURL, url.QueryEscape(term), maxResults)
	if f.Config.PubMedAPIKey != "" {
		searchURL += "&api_key=" + f.Config.PubMedAPIKey
	}
	log.Debug("Calling ESearch URL", zap.String("url", searchURL))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		log.Error("ESearch request failed", zap.Error(err))
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		log.Error("ESearch API returned non-200 status",
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(body)))
		return nil, fmt.Errorf("esearch failed: status %d", resp.StatusCode)
	}

	var esearchResp ESearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&esearchResp); err != nil {
		log.Error("Failed to parse ESearch JSON response", zap.Error(err))
		return nil, err
	}

	ids := esearchResp.ESearchResult.IdList
	log.Debug("Received IDs from ESearch", zap.Int("count", len(ids)))
	return ids, nil
}

// fetchBatch retrieves metadata for a batch of PMIDs via a single EFetch call.
func (f *Fetcher) fetchBatch(ctx context.Context, pmids []string) ([]*providers.Result, error) {
	efetchURL := fmt.Sprintf("%s/efetch.fcgi?db=pubmed&id=%s&retmode=xml",
		f.Config.PubMedBaseURL, strings.Join(pmids, ","))
	if f.Config.PubMedAPIKey != "" {
		efetchURL += "&api_key=" + f.Config.PubMedAPIKey
	}
	f.Logger.Debug("Calling EFetch URL", zap.Int("ids", len(pmids)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, efetchURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("efetch failed: status %d", resp.StatusCode)
	}

	var articleSet PubmedArticleSet
	if err := xml.NewDecoder(resp.Body).Decode(&articleSet); err != nil {
		return nil, err
	}

	results := make([]*providers.Result, 0, len(articleSet.PubmedArticle))
	for i := range articleSet.PubmedArticle {
		results = append(results, mapArticleToResult(&articleSet.PubmedArticle[i]))
	}
	return results, nil
}

// buildDateFilter folds the year bounds into a PubMed [dp] range clause.
func buildDateFilter(opts providers.SearchOptions) string {
	if opts.YearFrom == 0 && opts.YearTo == 0 {
		return ""
	}
	from := opts.YearFrom
	if from == 0 {
		from = 1900
	}
	to := opts.YearTo
	if to == 0 {
		to = time.Now().Year()
	}
	return fmt.Sprintf(" AND %d:%d[dp]", from, to)
}

// filterHighImpact keeps only results whose journal matches the allow-list.
func filterHighImpact(results []*providers.Result) []*providers.Result {
	filtered := make([]*providers.Result, 0, len(results))
	for _, r := range results {
		journal := strings.ToLower(r.Journal)
		for _, name := range highImpactJournals {
			if strings.Contains(journal, strings.ToLower(name)) {
				filtered = append(filtered, r)
				break
			}
		}
	}
	return filtered
}

// mapArticleToResult converts one efetch article into the uniform result record.
func mapArticleToResult(article *PubmedArticle) *providers.Result {
	cit := &article.MedlineCitation
	r := &providers.Result{
		Title:    cit.Article.Title,
		Abstract: strings.Join(cit.Article.Abstract.Text, "\n"),
		Journal:  cit.Article.Journal.Title,
		URL:      fmt.Sprintf("https://pubmed.ncbi.nlm.nih.gov/%s/", cit.PMID),
	}

	for _, author := range cit.Article.Authors {
		name := strings.TrimSpace(author.ForeName + " " + author.LastName)
		if name == "" {
			name = author.Initials
		}
		if name != "" {
			r.Authors = append(r.Authors, name)
		}
	}

	for _, id := range cit.Article.ELocationID {
		if id.IDType == "doi" && id.ValidYN == "Y" {
			r.DOI = strings.TrimSpace(id.Value)
			break
		}
	}

	pubDate := cit.Article.Journal.PubDate
	if pubDate.Year != "" {
		r.Published = pubDate.Year
		if pubDate.Month != "" {
			r.Published += "-" + pubDate.Month
		}
	}

	return r
}
