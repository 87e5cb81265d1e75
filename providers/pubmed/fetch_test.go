package pubmed

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"review-hand/config"
	"review-hand/providers"
)

func newTestFetcher(serverURL string) *Fetcher {
	return NewFetcher(&config.Config{PubMedBaseURL: serverURL}, zap.NewNop())
}

func esearchJSON(ids []string) string {
	quoted := make([]string, len(ids))
	for i, id := range ids {
		quoted[i] = fmt.Sprintf("%q", id)
	}
	return fmt.Sprintf(`{"esearchresult":{"idlist":[%s]}}`, strings.Join(quoted, ","))
}

func articleXML(pmid, title, journal string) string {
	return fmt.Sprintf(`<PubmedArticle><MedlineCitation><PMID>%s</PMID><Article>
<ArticleTitle>%s</ArticleTitle>
<Abstract><AbstractText>Background.</AbstractText><AbstractText>Results.</AbstractText></Abstract>
<AuthorList><Author><LastName>Doe</LastName><ForeName>Jane</ForeName></Author></AuthorList>
<Journal><Title>%s</Title><JournalIssue><PubDate><Year>2021</Year><Month>Mar</Month></PubDate></JournalIssue></Journal>
<ELocationID EIdType="doi" ValidYN="Y">10.1000/%s</ELocationID>
</Article></MedlineCitation></PubmedArticle>`, pmid, title, journal, pmid)
}

func TestSearchMapsArticles(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "esearch"):
			fmt.Fprint(w, esearchJSON([]string{"111", "222"}))
		case strings.Contains(r.URL.Path, "efetch"):
			fmt.Fprint(w, "<PubmedArticleSet>"+
				articleXML("111", "First Study", "Nature Medicine")+
				articleXML("222", "Second Study", "Obscure Journal")+
				"</PubmedArticleSet>")
		}
	}))
	defer server.Close()

	f := newTestFetcher(server.URL)
	results, skipped, err := f.Search(context.Background(), "cancer", providers.SearchOptions{MaxResults: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if skipped != 0 {
		t.Errorf("expected no skipped batches, got %d", skipped)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}

	first := results[0]
	if first.Title != "First Study" {
		t.Errorf("unexpected title: %q", first.Title)
	}
	if first.Abstract != "Background.\nResults." {
		t.Errorf("abstract paragraphs should be joined: %q", first.Abstract)
	}
	if len(first.Authors) != 1 || first.Authors[0] != "Jane Doe" {
		t.Errorf("unexpected authors: %v", first.Authors)
	}
	if first.DOI != "10.1000/111" {
		t.Errorf("unexpected doi: %q", first.DOI)
	}
	if first.URL != "https://pubmed.ncbi.nlm.nih.gov/111/" {
		t.Errorf("unexpected url: %q", first.URL)
	}
	if first.Journal != "Nature Medicine" {
		t.Errorf("unexpected journal: %q", first.Journal)
	}
	if first.Published != "2021-Mar" {
		t.Errorf("unexpected published date: %q", first.Published)
	}
}

func TestSearchSkipsFailedBatch(t *testing.T) {
	// 150 IDs force two efetch batches; the second batch fails and must be
	// skipped without losing the first.
	ids := make([]string, 150)
	for i := range ids {
		ids[i] = fmt.Sprintf("%d", i+1)
	}

	efetchCalls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "esearch"):
			fmt.Fprint(w, esearchJSON(ids))
		case strings.Contains(r.URL.Path, "efetch"):
			efetchCalls++
			if efetchCalls == 2 {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			batch := strings.Split(r.URL.Query().Get("id"), ",")
			var b strings.Builder
			b.WriteString("<PubmedArticleSet>")
			for _, pmid := range batch {
				b.WriteString(articleXML(pmid, "Study "+pmid, "Journal"))
			}
			b.WriteString("</PubmedArticleSet>")
			fmt.Fprint(w, b.String())
		}
	}))
	defer server.Close()

	f := newTestFetcher(server.URL)
	results, skipped, err := f.Search(context.Background(), "query", providers.SearchOptions{MaxResults: 150})
	if err != nil {
		t.Fatalf("partial batch failure must not fail the search: %v", err)
	}
	if skipped != 1 {
		t.Errorf("expected 1 skipped batch, got %d", skipped)
	}
	if len(results) != 100 {
		t.Errorf("expected the 100 results of the first batch, got %d", len(results))
	}
}

func TestSearchHighImpactFilter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "esearch"):
			fmt.Fprint(w, esearchJSON([]string{"1", "2"}))
		case strings.Contains(r.URL.Path, "efetch"):
			fmt.Fprint(w, "<PubmedArticleSet>"+
				articleXML("1", "Good Study", "The Lancet Oncology")+
				articleXML("2", "Other Study", "Regional Bulletin")+
				"</PubmedArticleSet>")
		}
	}))
	defer server.Close()

	f := newTestFetcher(server.URL)
	results, _, err := f.Search(context.Background(), "q", providers.SearchOptions{MaxResults: 10, HighImpactOnly: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || results[0].Journal != "The Lancet Oncology" {
		t.Errorf("expected only the high-impact journal result, got %+v", results)
	}
}

func TestSearchDateFilter(t *testing.T) {
	var gotTerm string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "esearch") {
			gotTerm = r.URL.Query().Get("term")
			fmt.Fprint(w, esearchJSON(nil))
			return
		}
		t.Errorf("efetch must not be called when esearch returns no IDs")
	}))
	defer server.Close()

	f := newTestFetcher(server.URL)
	results, skipped, err := f.Search(context.Background(), "stroke", providers.SearchOptions{YearFrom: 2015, YearTo: 2020})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 0 || skipped != 0 {
		t.Errorf("expected empty result, got %d results %d skipped", len(results), skipped)
	}
	if gotTerm != "stroke AND 2015:2020[dp]" {
		t.Errorf("unexpected esearch term: %q", gotTerm)
	}
}

func TestBuildDateFilterDefaults(t *testing.T) {
	if got := buildDateFilter(providers.SearchOptions{}); got != "" {
		t.Errorf("no bounds should yield no filter, got %q", got)
	}
	got := buildDateFilter(providers.SearchOptions{YearFrom: 2010})
	if !strings.HasPrefix(got, " AND 2010:") || !strings.HasSuffix(got, "[dp]") {
		t.Errorf("open upper bound should default to the current year: %q", got)
	}
}
