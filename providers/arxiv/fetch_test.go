package arxiv

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"review-hand/config"
	"review-hand/providers"
)

const sampleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <id>http://arxiv.org/abs/1706.03762v7</id>
    <title>Attention Is All You Need</title>
    <summary>  We propose the Transformer.  </summary>
    <published>2017-06-12T17:57:34Z</published>
    <author><name>Ashish Vaswani</name></author>
    <author><name>Noam Shazeer</name></author>
    <link href="http://arxiv.org/abs/1706.03762v7" rel="alternate" type="text/html"/>
    <link href="http://arxiv.org/pdf/1706.03762v7" rel="related" type="application/pdf" title="pdf"/>
  </entry>
  <entry>
    <id>http://arxiv.org/abs/2010.11929v2</id>
    <title>An Image is Worth 16x16 Words</title>
    <summary>Vision Transformer.</summary>
    <published>2020-10-22T00:00:00Z</published>
    <author><name>Alexey Dosovitskiy</name></author>
  </entry>
</feed>`

func newTestFetcher(serverURL string) *Fetcher {
	return NewFetcher(&config.Config{ArxivBaseURL: serverURL}, zap.NewNop())
}

func TestSearchParsesFeed(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("search_query")
		w.Header().Set("Content-Type", "application/atom+xml")
		w.Write([]byte(sampleFeed))
	}))
	defer server.Close()

	f := newTestFetcher(server.URL)
	results, skipped, err := f.Search(context.Background(), "transformer", providers.SearchOptions{MaxResults: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if skipped != 0 {
		t.Errorf("expected no skipped batches, got %d", skipped)
	}
	if gotQuery != "all:transformer" {
		t.Errorf("unexpected search_query: %q", gotQuery)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}

	first := results[0]
	if first.Title != "Attention Is All You Need" {
		t.Errorf("unexpected title: %q", first.Title)
	}
	if first.Abstract != "We propose the Transformer." {
		t.Errorf("abstract should be trimmed: %q", first.Abstract)
	}
	if len(first.Authors) != 2 || first.Authors[0] != "Ashish Vaswani" {
		t.Errorf("unexpected authors: %v", first.Authors)
	}
	if first.URL != "http://arxiv.org/abs/1706.03762v7" {
		t.Errorf("unexpected url: %q", first.URL)
	}
	if first.PDFURL != "http://arxiv.org/pdf/1706.03762v7" {
		t.Errorf("unexpected pdf url: %q", first.PDFURL)
	}

	if results[1].PDFURL != "" {
		t.Errorf("entry without pdf link should have empty PDFURL, got %q", results[1].PDFURL)
	}
}

func TestSearchNon200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	f := newTestFetcher(server.URL)
	if _, _, err := f.Search(context.Background(), "x", providers.SearchOptions{}); err == nil {
		t.Error("expected an error for non-200 status")
	}
}
