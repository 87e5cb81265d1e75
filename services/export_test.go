package services

import (
	"strings"
	"testing"

	"review-hand/models"
)

func TestCollectCitedIndices(t *testing.T) {
	body := "Deep learning works well [1]. Others disagree [3, 2] and some cite again [1]."
	got := CollectCitedIndices(body, 5)
	want := []int{1, 2, 3}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestCollectCitedIndicesIgnoresOutOfRange(t *testing.T) {
	body := "Valid [2], too high [9], zero [0]."
	got := CollectCitedIndices(body, 3)
	if len(got) != 1 || got[0] != 2 {
		t.Fatalf("expected [2], got %v", got)
	}
}

func TestCollectCitedIndicesNoMarkers(t *testing.T) {
	if got := CollectCitedIndices("no citations here", 3); len(got) != 0 {
		t.Fatalf("expected no indices, got %v", got)
	}
}

func TestBuildReferencesSection(t *testing.T) {
	selected := []models.SearchedLiterature{
		{Title: "First Paper", Authors: "A. Author", DOI: "10.1000/first", Source: "arxiv"},
		{Title: "Second Paper", URL: "https://example.org/second"},
		{Title: "Uncited Paper"},
	}
	body := "Intro [2]. Main claim [1]."

	section := BuildReferencesSection(body, selected)
	if !strings.Contains(section, "## References") {
		t.Error("missing References heading")
	}
	if !strings.Contains(section, "[1] **First Paper**") {
		t.Errorf("missing first entry: %s", section)
	}
	if !strings.Contains(section, "[2] **Second Paper**") {
		t.Errorf("missing second entry: %s", section)
	}
	if strings.Contains(section, "Uncited Paper") {
		t.Error("uncited entry should not appear")
	}
	if !strings.Contains(section, "DOI: 10.1000/first") {
		t.Error("missing DOI line")
	}

	firstIdx := strings.Index(section, "[1] **First Paper**")
	secondIdx := strings.Index(section, "[2] **Second Paper**")
	if firstIdx > secondIdx {
		t.Error("entries should be ordered by original index")
	}
}

func TestBuildReferencesSectionRenumbersSparseCitations(t *testing.T) {
	selected := []models.SearchedLiterature{
		{Title: "P1"}, {Title: "P2"}, {Title: "P3"}, {Title: "P4"}, {Title: "P5"},
	}
	body := "Claim [2]. Another claim [5]."

	section := BuildReferencesSection(body, selected)
	if !strings.Contains(section, "[1] **P2**") {
		t.Errorf("sparse citations must be renumbered from 1: %s", section)
	}
	if !strings.Contains(section, "[2] **P5**") {
		t.Errorf("second cited entry must become [2]: %s", section)
	}
	for _, absent := range []string{"[2] **P2**", "[5] **P5**", "P1", "P3", "P4"} {
		if strings.Contains(section, absent) {
			t.Errorf("unexpected %q in section: %s", absent, section)
		}
	}
}

func TestBuildReferencesSectionNothingCited(t *testing.T) {
	selected := []models.SearchedLiterature{{Title: "Some Paper"}}
	section := BuildReferencesSection("a draft without markers", selected)
	if !strings.Contains(section, "No references cited in the text.") {
		t.Errorf("expected fallback line, got %s", section)
	}
}

func TestLiteratureEntryTruncatesAbstract(t *testing.T) {
	lit := &models.SearchedLiterature{
		Title:    "Paper",
		Authors:  "Someone",
		Abstract: strings.Repeat("字", 400),
	}
	entry := LiteratureEntry(lit)
	if !strings.Contains(entry, "...") {
		t.Error("long abstract should be truncated")
	}
	if !strings.Contains(entry, "Paper") || !strings.Contains(entry, "Someone") {
		t.Errorf("entry missing fields: %s", entry)
	}
	if strings.Contains(entry, "�") {
		t.Error("truncation must not split a multibyte rune")
	}
}
