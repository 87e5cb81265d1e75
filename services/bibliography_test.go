package services

import (
	"strings"
	"testing"

	"review-hand/models"
)

func sampleLiterature() []models.SearchedLiterature {
	return []models.SearchedLiterature{
		{
			Title:    "Attention Is All You Need",
			Authors:  "A. Vaswani, N. Shazeer",
			Abstract: "We propose the Transformer.",
			Source:   "arxiv",
			DOI:      "10.48550/arXiv.1706.03762",
			URL:      "https://arxiv.org/abs/1706.03762",
			Metadata: `{"published":"2017-06-12","journal":"NeurIPS"}`,
		},
	}
}

func TestToRIS(t *testing.T) {
	out := ToRIS(sampleLiterature())

	for _, want := range []string{
		"TY  - JOUR",
		"TI  - Attention Is All You Need",
		"AU  - A. Vaswani",
		"AU  - N. Shazeer",
		"PY  - 2017",
		"JO  - NeurIPS",
		"DO  - 10.48550/arXiv.1706.03762",
		"DB  - arxiv",
		"ER  - ",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("RIS output missing %q:\n%s", want, out)
		}
	}
}

func TestToBibTeX(t *testing.T) {
	out := ToBibTeX(sampleLiterature())

	for _, want := range []string{
		"@article{ref1,",
		"title = {Attention Is All You Need}",
		"author = {A. Vaswani and N. Shazeer}",
		"year = {2017}",
		"journal = {NeurIPS}",
		"doi = {10.48550/arXiv.1706.03762}",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("BibTeX output missing %q:\n%s", want, out)
		}
	}
}

func TestToCSVStartsWithBOM(t *testing.T) {
	data, err := ToCSV(sampleLiterature())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(string(data), "\uFEFF") {
		t.Error("CSV output must start with a UTF-8 BOM")
	}
	if !strings.Contains(string(data), "Attention Is All You Need") {
		t.Error("CSV output missing title")
	}
}

func TestParseCSV(t *testing.T) {
	input := "标题,作者,摘要,链接,日期\n" +
		"深度学习综述,张三; 李四,一篇关于深度学习的综述,https://example.org/1,2023-01\n" +
		",无标题作者,应被跳过,,\n" +
		"Second Paper,,,,\n"

	items, skipped, err := ParseCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if skipped != 1 {
		t.Errorf("expected 1 skipped row, got %d", skipped)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(items))
	}
	if items[0].Title != "深度学习综述" {
		t.Errorf("unexpected title: %q", items[0].Title)
	}
	if items[0].Authors != "张三; 李四" {
		t.Errorf("unexpected authors: %q", items[0].Authors)
	}
	if items[0].Source != "import" {
		t.Errorf("imported rows should carry source 'import', got %q", items[0].Source)
	}
	if !strings.Contains(items[0].Metadata, "2023-01") {
		t.Errorf("published date should land in metadata: %q", items[0].Metadata)
	}
	if items[1].Authors != "" || items[1].Abstract != "" {
		t.Error("missing fields should come back empty")
	}
}

func TestParseCSVEnglishHeadersAndBOM(t *testing.T) {
	input := "\uFEFFTitle,Author,Abstract\nA Paper,Someone,About things\n"
	items, skipped, err := ParseCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if skipped != 0 {
		t.Errorf("expected no skipped rows, got %d", skipped)
	}
	if len(items) != 1 || items[0].Title != "A Paper" {
		t.Fatalf("unexpected result: %+v", items)
	}
}

func TestPublicationYear(t *testing.T) {
	cases := map[string]string{
		"2017-06-12": "2017",
		"2020":       "2020",
		"June 1999":  "1999",
		"unknown":    "",
		"":           "",
	}
	for in, want := range cases {
		if got := publicationYear(in); got != want {
			t.Errorf("publicationYear(%q) = %q, want %q", in, got, want)
		}
	}
}
