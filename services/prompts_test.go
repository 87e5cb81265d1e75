package services

import (
	"strings"
	"testing"

	"review-hand/models"
)

func TestStripCodeFence(t *testing.T) {
	cases := map[string]string{
		"```json\n[1, 2]\n```": "[1, 2]",
		"```\nplain\n```":      "plain",
		"no fence":             "no fence",
		"  ```mermaid\ngraph TD\nA-->B\n```  ": "graph TD\nA-->B",
	}
	for in, want := range cases {
		if got := StripCodeFence(in); got != want {
			t.Errorf("StripCodeFence(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseSelectedIndices(t *testing.T) {
	got := ParseSelectedIndices("[3, 1, 7, x, 0, 2]", 5)
	want := []int{3, 1, 2}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v (model order must be preserved)", want, got)
		}
	}
}

func TestParseSelectedIndicesFenced(t *testing.T) {
	got := ParseSelectedIndices("```json\n[2, 4]\n```", 5)
	if len(got) != 2 || got[0] != 2 || got[1] != 4 {
		t.Fatalf("expected [2 4], got %v", got)
	}
}

func TestParseSelectedIndicesEmpty(t *testing.T) {
	if got := ParseSelectedIndices("[]", 5); len(got) != 0 {
		t.Fatalf("expected empty, got %v", got)
	}
	if got := ParseSelectedIndices("no numbers here", 5); len(got) != 0 {
		t.Fatalf("expected empty, got %v", got)
	}
}

func TestLanguageName(t *testing.T) {
	if got := LanguageName(models.LanguageZH); got != "Chinese" {
		t.Errorf("zh should map to Chinese, got %q", got)
	}
	if got := LanguageName(models.LanguageEN); got != "English" {
		t.Errorf("en should map to English, got %q", got)
	}
	if got := LanguageName("fr"); got != "English" {
		t.Errorf("unknown codes should default to English, got %q", got)
	}
}

func TestBuildWritePromptOptions(t *testing.T) {
	literature := []string{"Paper One", "Paper Two"}
	prompt := BuildWritePrompt("AI in Radiology", "the plan", "the guide", literature, models.LanguageEN, WriteOptions{
		WordCount:       5000,
		DetailLevel:     "comprehensive",
		CitationDensity: "high",
	})

	for _, want := range []string{
		"AI in Radiology",
		"in English",
		"about 5000 words",
		"in depth",
		"Cite densely",
		"the plan",
		"the guide",
		"[1] Paper One",
		"[2] Paper Two",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestBuildWritePromptDefaults(t *testing.T) {
	prompt := BuildWritePrompt("Topic", "", "", []string{"Only Paper"}, models.LanguageZH, WriteOptions{})
	if !strings.Contains(prompt, "in Chinese") {
		t.Error("default language name missing")
	}
	if strings.Contains(prompt, "Target length") {
		t.Error("zero word count should omit the length instruction")
	}
	if strings.Contains(prompt, "Follow this plan") {
		t.Error("empty plan should omit the plan block")
	}
}

func TestBuildFilterPromptNumbersEntries(t *testing.T) {
	prompt := BuildFilterPrompt("topic", []string{"first", "second"}, "only RCTs")
	if !strings.Contains(prompt, "1. first") || !strings.Contains(prompt, "2. second") {
		t.Error("candidates must be numbered from 1")
	}
	if !strings.Contains(prompt, "only RCTs") {
		t.Error("criteria missing from prompt")
	}
}

func TestLabeledValue(t *testing.T) {
	if v, ok := labeledValue("标题: 深度学习", "标题"); !ok || v != "深度学习" {
		t.Errorf("ASCII colon label parse failed: %q %v", v, ok)
	}
	if v, ok := labeledValue("标题：深度学习", "标题"); !ok || v != "深度学习" {
		t.Errorf("full-width colon label parse failed: %q %v", v, ok)
	}
	if _, ok := labeledValue("摘要: something", "标题"); ok {
		t.Error("wrong label must not match")
	}
}

func TestTruncateRunes(t *testing.T) {
	if got := truncateRunes("short", 10); got != "short" {
		t.Errorf("short input must pass through, got %q", got)
	}
	chinese := strings.Repeat("深度学习综述", 3)
	got := truncateRunes(chinese, 7)
	if got != "深度学习综述深" {
		t.Errorf("expected 7 runes, got %q", got)
	}
	if strings.Contains(got, "�") {
		t.Errorf("truncation split a rune: %q", got)
	}
}

func TestBuildSectionPrompt(t *testing.T) {
	prompt := BuildSectionPrompt(
		"Methods", "- CNN approaches\n- Transformer approaches",
		"1. Introduction\n2. Methods", "Use short sentences.",
		[]string{"Paper A", "Paper B"},
		"## Introduction\nEarlier text.", "en",
		WriteOptions{WordCount: 800, DetailLevel: "detailed", CitationDensity: "high"},
	)

	for _, want := range []string{
		"\"Methods\"",
		"English",
		"- CNN approaches",
		"Overall review plan:",
		"1. Introduction\n2. Methods",
		"Use short sentences.",
		"[1] Paper A",
		"[2] Paper B",
		"Earlier text.",
		"about 800 words",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestBuildSectionPromptWithoutGuideOrPrevious(t *testing.T) {
	prompt := BuildSectionPrompt("Intro", "overview", "plan", "", []string{"P"}, "", "zh", WriteOptions{})
	if strings.Contains(prompt, "writing style guide") {
		t.Error("guide block must be omitted when empty")
	}
	if strings.Contains(prompt, "written so far") {
		t.Error("previous-content block must be omitted when empty")
	}
	if !strings.Contains(prompt, "Chinese") {
		t.Error("zh must map to Chinese")
	}
}
