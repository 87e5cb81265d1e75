package services

import (
	"archive/zip"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeDOCX(t *testing.T, documentXML string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.docx")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create docx: %v", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatalf("failed to create document.xml: %v", err)
	}
	if _, err := w.Write([]byte(documentXML)); err != nil {
		t.Fatalf("failed to write document.xml: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("failed to close zip: %v", err)
	}
	return path
}

func TestExtractTextDOCX(t *testing.T) {
	doc := `<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>First paragraph.</w:t></w:r></w:p>
    <w:p><w:r><w:t>Second </w:t></w:r><w:r><w:t>paragraph.</w:t></w:r></w:p>
  </w:body>
</w:document>`
	path := writeDOCX(t, doc)

	text, err := ExtractText(path, "docx")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(text, "First paragraph.") {
		t.Errorf("missing first paragraph: %q", text)
	}
	if !strings.Contains(text, "Second paragraph.") {
		t.Errorf("runs within one paragraph should join without a break: %q", text)
	}
	if !strings.Contains(text, "First paragraph.\n") {
		t.Errorf("paragraphs should be separated by newlines: %q", text)
	}
}

func TestExtractTextDOCXWithoutDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.docx")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	zw.Close()
	f.Close()

	if _, err := ExtractText(path, "docx"); err == nil {
		t.Error("expected an error for a docx without word/document.xml")
	}
}

func TestExtractTextUnsupportedType(t *testing.T) {
	if _, err := ExtractText("whatever.txt", "txt"); err == nil {
		t.Error("expected an error for unsupported file types")
	}
}

func TestCleanText(t *testing.T) {
	in := "hyphen-\nated word   with    spaces\n\n\n\n\nnext block"
	got := cleanText(in)
	if strings.Contains(got, "hyphen-\nated") {
		t.Errorf("hyphenation not repaired: %q", got)
	}
	if !strings.Contains(got, "hyphenated") {
		t.Errorf("expected joined word: %q", got)
	}
	if strings.Contains(got, "   ") {
		t.Errorf("spaces not collapsed: %q", got)
	}
	if strings.Contains(got, "\n\n\n") {
		t.Errorf("blank runs not collapsed: %q", got)
	}
}
