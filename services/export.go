package services

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"review-hand/models"
)

// citationMarkerRegex matches bracketed citation markers like [1] or [2, 5].
var citationMarkerRegex = regexp.MustCompile(`\[(\d+(?:\s*,\s*\d+)*)\]`)

// CollectCitedIndices scans a draft body for citation markers and returns the
// distinct cited indices in ascending order. Indices outside [1, max] are
// ignored; they refer to nothing in the reference list.
func CollectCitedIndices(body string, max int) []int {
	seen := make(map[int]bool)
	for _, match := range citationMarkerRegex.FindAllStringSubmatch(body, -1) {
		for _, part := range strings.Split(match[1], ",") {
			n, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil {
				continue
			}
			if n < 1 || n > max {
				continue
			}
			seen[n] = true
		}
	}

	indices := make([]int, 0, len(seen))
	for n := range seen {
		indices = append(indices, n)
	}
	sort.Ints(indices)
	return indices
}

// BuildReferencesSection renders the reference section for a draft. Only the
// entries actually cited in the body are listed, renumbered densely 1..k in
// the order of their original position. The in-text markers themselves are
// left untouched, so their numbers can differ from the list when the body
// skips indices.
func BuildReferencesSection(body string, selected []models.SearchedLiterature) string {
	var b strings.Builder
	b.WriteString("\n\n## References\n\n")

	cited := CollectCitedIndices(body, len(selected))
	if len(cited) == 0 {
		b.WriteString("No references cited in the text.\n")
		return b.String()
	}

	for num, idx := range cited {
		lit := selected[idx-1]
		fmt.Fprintf(&b, "[%d] **%s**\n", num+1, lit.Title)
		if lit.Authors != "" {
			fmt.Fprintf(&b, "   Authors: %s\n", lit.Authors)
		}
		if lit.DOI != "" {
			fmt.Fprintf(&b, "   DOI: %s\n", lit.DOI)
		}
		if lit.URL != "" {
			fmt.Fprintf(&b, "   URL: %s\n", lit.URL)
		}
		if lit.Source != "" {
			fmt.Fprintf(&b, "   Source: %s\n", lit.Source)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// LiteratureEntry formats one literature record as a single prompt line:
// title, authors, then a truncated abstract.
func LiteratureEntry(lit *models.SearchedLiterature) string {
	parts := []string{lit.Title}
	if lit.Authors != "" {
		parts = append(parts, lit.Authors)
	}
	if lit.Abstract != "" {
		abstract := lit.Abstract
		if runes := []rune(abstract); len(runes) > 300 {
			abstract = string(runes[:300]) + "..."
		}
		parts = append(parts, abstract)
	}
	return strings.Join(parts, " | ")
}
