package services

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"review-hand/models"
)

// litMetadata is the subset of the stored metadata blob the exporters use.
type litMetadata struct {
	Published string `json:"published"`
	Journal   string `json:"journal"`
}

func parseMetadata(raw string) litMetadata {
	var m litMetadata
	if raw != "" {
		_ = json.Unmarshal([]byte(raw), &m)
	}
	return m
}

// publicationYear extracts a four-digit year from the stored published date.
func publicationYear(published string) string {
	for i := 0; i+4 <= len(published); i++ {
		y := published[i : i+4]
		if y >= "1000" && y <= "2999" && allDigits(y) {
			return y
		}
	}
	return ""
}

func allDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// splitAuthors splits a stored author string on commas and semicolons.
func splitAuthors(authors string) []string {
	var out []string
	for _, a := range strings.FieldsFunc(authors, func(r rune) bool { return r == ',' || r == ';' }) {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}

// ToRIS renders the given literature as an RIS document.
func ToRIS(items []models.SearchedLiterature) string {
	var b strings.Builder
	for _, lit := range items {
		meta := parseMetadata(lit.Metadata)

		b.WriteString("TY  - JOUR\n")
		fmt.Fprintf(&b, "TI  - %s\n", lit.Title)
		for _, author := range splitAuthors(lit.Authors) {
			fmt.Fprintf(&b, "AU  - %s\n", author)
		}
		if lit.Abstract != "" {
			fmt.Fprintf(&b, "AB  - %s\n", lit.Abstract)
		}
		if year := publicationYear(meta.Published); year != "" {
			fmt.Fprintf(&b, "PY  - %s\n", year)
		}
		if meta.Journal != "" {
			fmt.Fprintf(&b, "JO  - %s\n", meta.Journal)
		}
		if lit.DOI != "" {
			fmt.Fprintf(&b, "DO  - %s\n", lit.DOI)
		}
		if lit.URL != "" {
			fmt.Fprintf(&b, "UR  - %s\n", lit.URL)
		}
		if lit.Source != "" {
			fmt.Fprintf(&b, "DB  - %s\n", lit.Source)
		}
		b.WriteString("ER  - \n\n")
	}
	return b.String()
}

// ToBibTeX renders the given literature as BibTeX entries keyed ref1..refN.
func ToBibTeX(items []models.SearchedLiterature) string {
	var b strings.Builder
	for i, lit := range items {
		meta := parseMetadata(lit.Metadata)

		fmt.Fprintf(&b, "@article{ref%d,\n", i+1)
		fmt.Fprintf(&b, "  title = {%s},\n", lit.Title)
		if authors := splitAuthors(lit.Authors); len(authors) > 0 {
			fmt.Fprintf(&b, "  author = {%s},\n", strings.Join(authors, " and "))
		}
		if year := publicationYear(meta.Published); year != "" {
			fmt.Fprintf(&b, "  year = {%s},\n", year)
		}
		if meta.Journal != "" {
			fmt.Fprintf(&b, "  journal = {%s},\n", meta.Journal)
		}
		if lit.DOI != "" {
			fmt.Fprintf(&b, "  doi = {%s},\n", lit.DOI)
		}
		if lit.URL != "" {
			fmt.Fprintf(&b, "  url = {%s},\n", lit.URL)
		}
		if lit.Abstract != "" {
			fmt.Fprintf(&b, "  abstract = {%s},\n", lit.Abstract)
		}
		b.WriteString("}\n\n")
	}
	return b.String()
}

// ToCSV renders the given literature as a CSV document with a UTF-8 BOM so
// spreadsheet tools open non-ASCII titles correctly.
func ToCSV(items []models.SearchedLiterature) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("\uFEFF")

	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"Title", "Authors", "Abstract", "Source", "DOI", "URL", "Published"}); err != nil {
		return nil, err
	}
	for _, lit := range items {
		meta := parseMetadata(lit.Metadata)
		row := []string{lit.Title, lit.Authors, lit.Abstract, lit.Source, lit.DOI, lit.URL, meta.Published}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// csvHeaderAliases maps recognized CSV column names, in common Chinese and
// English variants, to canonical field names.
var csvHeaderAliases = map[string]string{
	"title":     "title",
	"题目":        "title",
	"标题":        "title",
	"author":    "authors",
	"authors":   "authors",
	"作者":        "authors",
	"abstract":  "abstract",
	"摘要":        "abstract",
	"url":       "url",
	"link":      "url",
	"链接":        "url",
	"来源":        "url",
	"date":      "published",
	"published": "published",
	"时间":        "published",
	"日期":        "published",
	"doi":       "doi",
}

// ParseCSV imports literature rows from a CSV stream. Column matching is by
// header alias; rows without a title are dropped and counted in skipped,
// unrecognized columns are ignored, missing fields come back empty.
func ParseCSV(r io.Reader) ([]models.SearchedLiterature, int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("csv import failed: %w", err)
	}

	fields := make(map[int]string)
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\uFEFF")))
		if canonical, ok := csvHeaderAliases[name]; ok {
			fields[i] = canonical
		}
	}

	var items []models.SearchedLiterature
	skipped := 0
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			skipped++
			continue
		}

		var lit models.SearchedLiterature
		var published string
		for i, value := range row {
			value = strings.TrimSpace(value)
			switch fields[i] {
			case "title":
				lit.Title = value
			case "authors":
				lit.Authors = value
			case "abstract":
				lit.Abstract = value
			case "url":
				lit.URL = value
			case "doi":
				lit.DOI = value
			case "published":
				published = value
			}
		}
		if lit.Title == "" {
			skipped++
			continue
		}
		lit.Source = "import"
		if published != "" {
			meta, _ := json.Marshal(litMetadata{Published: published})
			lit.Metadata = string(meta)
		}
		items = append(items, lit)
	}
	return items, skipped, nil
}
