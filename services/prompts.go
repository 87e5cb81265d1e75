// Package services contains the AI orchestration, text extraction and
// export logic sitting between the HTTP handlers and the external APIs.
package services

import (
	"fmt"
	"strconv"
	"strings"

	"review-hand/models"
)

// WriteOptions tunes the generated draft.
type WriteOptions struct {
	WordCount       int
	DetailLevel     string // basic, detailed, comprehensive
	CitationDensity string // low, medium, high
}

// languageNames maps the stored language codes to the names used in prompts.
var languageNames = map[string]string{
	models.LanguageZH: "Chinese",
	models.LanguageEN: "English",
}

// LanguageName returns the prompt-facing name for a language code,
// defaulting to English for unknown codes.
func LanguageName(code string) string {
	if name, ok := languageNames[code]; ok {
		return name
	}
	return "English"
}

func detailInstruction(level string) string {
	switch level {
	case "basic":
		return "Keep the discussion concise. Summarize each theme in a few sentences without going deep into methodology."
	case "comprehensive":
		return "Discuss each theme in depth: methodology, key findings, limitations and how the studies relate to each other."
	default:
		return "Give each theme a balanced treatment: main findings plus a short note on methods or limitations where relevant."
	}
}

func citationInstruction(density string) string {
	switch density {
	case "low":
		return "Cite sparingly, only where a claim directly depends on a specific study."
	case "high":
		return "Cite densely: support every substantive claim with one or more citation markers."
	default:
		return "Cite at a normal academic density, roughly one citation marker per key claim."
	}
}

// BuildStyleAnalysisPrompt asks the model to characterize the writing style
// of the uploaded reference papers. The combined text is truncated upstream.
func BuildStyleAnalysisPrompt(combinedText string) string {
	var b strings.Builder
	b.WriteString("You are an expert in academic writing analysis. Analyze the writing style of the following excerpts from published review papers.\n\n")
	b.WriteString("Describe, in Markdown:\n")
	b.WriteString("1. Overall tone and register\n")
	b.WriteString("2. Typical sentence and paragraph structure\n")
	b.WriteString("3. How citations are woven into the text\n")
	b.WriteString("4. Common transitions and discourse markers\n")
	b.WriteString("5. How the authors introduce, compare and criticize prior work\n\n")
	b.WriteString("Excerpts:\n\n")
	b.WriteString(combinedText)
	return b.String()
}

// BuildWritingGuidePrompt turns a style analysis into an actionable guide.
func BuildWritingGuidePrompt(analysis string) string {
	var b strings.Builder
	b.WriteString("Based on the following writing style analysis, produce a practical writing guide that an author can follow to imitate this style. ")
	b.WriteString("Organize it as a Markdown document with concrete do/don't rules and example sentence patterns.\n\n")
	b.WriteString("Style analysis:\n\n")
	b.WriteString(analysis)
	return b.String()
}

// BuildReviewPlanPrompt asks for a structured outline for the review.
func BuildReviewPlanPrompt(projectName, description string, keywords []string, structure string) string {
	var b strings.Builder
	b.WriteString("You are planning a literature review.\n\n")
	fmt.Fprintf(&b, "Topic: %s\n", projectName)
	if description != "" {
		fmt.Fprintf(&b, "Description: %s\n", description)
	}
	if len(keywords) > 0 {
		fmt.Fprintf(&b, "Keywords: %s\n", strings.Join(keywords, ", "))
	}
	b.WriteString("\nProduce a detailed section-by-section plan for the review in Markdown. ")
	b.WriteString("For each section give a heading, the questions it should answer, and the kind of literature it should draw on.\n")
	if structure != "" {
		b.WriteString("\nFollow this target structure:\n\n")
		b.WriteString(structure)
	}
	return b.String()
}

// BuildKeywordSuggestionPrompt asks for search keywords for a topic.
// The response must be a JSON array of strings.
func BuildKeywordSuggestionPrompt(projectName, description string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Suggest 8-12 literature search keywords for a review on: %s\n", projectName)
	if description != "" {
		fmt.Fprintf(&b, "Context: %s\n", description)
	}
	b.WriteString("\nInclude both broad terms and specific technical terms, and English translations for non-English terms. ")
	b.WriteString("Respond with a JSON array of strings only, no explanation.")
	return b.String()
}

// BuildSearchQueryPrompt asks the model to compose a database search query
// from the project's keywords.
func BuildSearchQueryPrompt(source string, keywords []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Compose a single effective %s search query from these keywords: %s\n", source, strings.Join(keywords, ", "))
	b.WriteString("Use boolean operators where helpful. Respond with the query string only, no explanation and no quotes around the whole query.")
	return b.String()
}

// BuildFilterPrompt asks the model to pick the most relevant papers from a
// numbered candidate list. The response must be a JSON array of 1-based
// indices into the list.
func BuildFilterPrompt(topic string, entries []string, criteria string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are screening search results for a literature review on: %s\n\n", topic)
	if criteria != "" {
		fmt.Fprintf(&b, "Selection criteria: %s\n\n", criteria)
	}
	b.WriteString("Candidates:\n\n")
	for i, e := range entries {
		fmt.Fprintf(&b, "%d. %s\n", i+1, e)
	}
	b.WriteString("\nReturn the numbers of the papers most relevant to the topic, ordered by relevance, as a JSON array of integers only. No explanation.")
	return b.String()
}

// BuildWritePrompt assembles the full draft-generation prompt. literature is
// the numbered reference list; citation markers in the output refer to it.
func BuildWritePrompt(projectName, plan, guide string, literature []string, language string, opts WriteOptions) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write a literature review on \"%s\" in %s, formatted as Markdown.\n\n", projectName, LanguageName(language))

	if opts.WordCount > 0 {
		fmt.Fprintf(&b, "Target length: about %d words.\n", opts.WordCount)
	}
	b.WriteString(detailInstruction(opts.DetailLevel))
	b.WriteString("\n")
	b.WriteString(citationInstruction(opts.CitationDensity))
	b.WriteString("\n\n")

	if plan != "" {
		b.WriteString("Follow this plan:\n\n")
		b.WriteString(plan)
		b.WriteString("\n\n")
	}
	if guide != "" {
		b.WriteString("Match this writing style guide:\n\n")
		b.WriteString(guide)
		b.WriteString("\n\n")
	}

	b.WriteString("Reference list. Cite these works in the text using bracketed numbers like [1] or [2,3], matching the numbering below. Do not cite anything not in this list and do not append a reference section; it is generated separately.\n\n")
	for i, entry := range literature {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, entry)
	}
	return b.String()
}

// BuildSectionPrompt assembles the prompt for writing a single section of
// the review.
func BuildSectionPrompt(sectionTitle, section, plan, guide string, literature []string, previousContent, language string, opts WriteOptions) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write the section \"%s\" of a literature review in %s, formatted as Markdown.\n\n", sectionTitle, LanguageName(language))
	b.WriteString("Output only this section, starting with its heading.\n\n")

	if opts.WordCount > 0 {
		fmt.Fprintf(&b, "Target length for this section: about %d words.\n", opts.WordCount)
	}
	b.WriteString(detailInstruction(opts.DetailLevel))
	b.WriteString("\n")
	b.WriteString(citationInstruction(opts.CitationDensity))
	b.WriteString("\n\n")

	if section != "" {
		b.WriteString("Outline for this section:\n\n")
		b.WriteString(section)
		b.WriteString("\n\n")
	}
	if plan != "" {
		b.WriteString("Overall review plan:\n\n")
		b.WriteString(plan)
		b.WriteString("\n\n")
	}
	if guide != "" {
		b.WriteString("Match this writing style guide:\n\n")
		b.WriteString(guide)
		b.WriteString("\n\n")
	}

	b.WriteString("Reference list. Cite these works in the text using bracketed numbers like [1] or [2,3], matching the numbering below. Do not cite anything not in this list and do not append a reference section; it is generated separately.\n\n")
	for i, entry := range literature {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, entry)
	}

	if previousContent != "" {
		b.WriteString("\nSections written so far, continue from them without repeating:\n\n")
		b.WriteString(previousContent)
	}
	return b.String()
}

// BuildDiagramPrompt asks for a Mermaid diagram of the given kind.
func BuildDiagramPrompt(kind, description string) string {
	var diagramType string
	switch kind {
	case "flowchart":
		diagramType = "a flowchart (graph TD)"
	case "mindmap":
		diagramType = "a mindmap"
	default:
		diagramType = "a mechanism diagram as a flowchart (graph LR)"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Generate %s in Mermaid syntax for the following content:\n\n%s\n\n", diagramType, description)
	b.WriteString("Respond with the Mermaid code only, no explanation and no code fence.")
	return b.String()
}

// BuildTranslatePrompt asks for a translation of a title and abstract.
// The response uses labeled lines so it can be split back apart.
func BuildTranslatePrompt(title, abstract, targetLanguage string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Translate the following paper title and abstract into %s. ", LanguageName(targetLanguage))
	b.WriteString("Respond with exactly two labeled parts:\n标题: <translated title>\n摘要: <translated abstract>\n\n")
	fmt.Fprintf(&b, "Title: %s\n\nAbstract: %s\n", title, abstract)
	return b.String()
}

// StripCodeFence removes a surrounding Markdown code fence, with or without
// a language tag, from an AI response.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx >= 0 {
		// Drop the language tag line (e.g. "json" or "mermaid").
		firstLine := strings.TrimSpace(s[:idx])
		if firstLine == "" || !strings.ContainsAny(firstLine, " \t") {
			s = s[idx+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// ParseSelectedIndices parses a JSON-ish array of 1-based indices from an AI
// response. Values that are not integers or fall outside [1, max] are
// dropped; the model's ordering is preserved.
func ParseSelectedIndices(raw string, max int) []int {
	cleaned := StripCodeFence(raw)
	cleaned = strings.Trim(cleaned, "[] \n\t")
	if cleaned == "" {
		return nil
	}

	var indices []int
	for _, part := range strings.Split(cleaned, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		if n < 1 || n > max {
			continue
		}
		indices = append(indices, n)
	}
	return indices
}

// truncateRunes shortens s to at most limit runes. Extracted paper text is
// often Chinese, so byte slicing could cut a rune in half.
func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
