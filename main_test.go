package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"review-hand/models"
	"review-hand/providers"

	"github.com/gin-gonic/gin"
)

func TestSanitizeFilename(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Deep Learning Review", "Deep_Learning_Review"},
		{"a/b\\c:d", "a_b_c_d"},
		{`say "hi"`, "say_hi"},
		{"   ", "review"},
		{"", "review"},
	}
	for _, tc := range cases {
		if got := sanitizeFilename(tc.in); got != tc.want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestResultToLiterature(t *testing.T) {
	r := &providers.Result{
		Title:     "Attention Is All You Need",
		Authors:   []string{"Ashish Vaswani", "Noam Shazeer"},
		Abstract:  "We propose the Transformer.",
		URL:       "http://arxiv.org/abs/1706.03762",
		PDFURL:    "http://arxiv.org/pdf/1706.03762",
		DOI:       "10.1000/example",
		Published: "2017-06-12",
		Journal:   "NeurIPS",
	}

	lit := resultToLiterature(7, "arxiv", r)

	if lit.ProjectID != 7 {
		t.Errorf("ProjectID = %d, want 7", lit.ProjectID)
	}
	if lit.Source != "arxiv" {
		t.Errorf("Source = %q, want arxiv", lit.Source)
	}
	if lit.Authors != "Ashish Vaswani, Noam Shazeer" {
		t.Errorf("Authors = %q", lit.Authors)
	}
	if !strings.Contains(lit.Metadata, `"published":"2017-06-12"`) {
		t.Errorf("Metadata missing published date: %s", lit.Metadata)
	}
	if !strings.Contains(lit.Metadata, `"journal":"NeurIPS"`) {
		t.Errorf("Metadata missing journal: %s", lit.Metadata)
	}
	if lit.IsSelected {
		t.Error("freshly saved search results must not be pre-selected")
	}
}

func TestRespondDataEnvelope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	respondData(c, models.Project{Name: "X", Status: models.ProjectStatusDraft})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			Status string `json:"status"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if !resp.Success {
		t.Error("success must be true")
	}
	if resp.Data.Status != "draft" {
		t.Errorf("data.status = %q, want draft", resp.Data.Status)
	}
}

func TestRespondMessageEnvelope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	respondMessage(c, "project deleted")

	if !strings.Contains(w.Body.String(), `"success":true`) {
		t.Errorf("missing success flag: %s", w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"message":"project deleted"`) {
		t.Errorf("missing message: %s", w.Body.String())
	}
}

func TestPayloadToLiteratureDefaults(t *testing.T) {
	lit, ok := payloadToLiterature(3, paperPayload{Title: "T", Published: "2020"})
	if !ok {
		t.Fatal("paper with a title must be accepted")
	}
	if !lit.IsSelected {
		t.Error("saved papers default to selected")
	}
	if lit.Source != "search" {
		t.Errorf("Source = %q, want search", lit.Source)
	}
	if !strings.Contains(lit.Metadata, `"published":"2020"`) {
		t.Errorf("Metadata missing published: %s", lit.Metadata)
	}

	notSelected := false
	lit, _ = payloadToLiterature(3, paperPayload{Title: "T", IsSelected: &notSelected})
	if lit.IsSelected {
		t.Error("explicit is_selected=false must be honored")
	}

	if _, ok := payloadToLiterature(3, paperPayload{Authors: "A"}); ok {
		t.Error("paper without a title must be rejected")
	}
}
