package services

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"

	"review-hand/models"
)

var (
	hyphenBreakRegex = regexp.MustCompile(`(\pL)-\n(\pL)`)
	multiSpaceRegex  = regexp.MustCompile(`[ \t]{2,}`)
	multiBlankRegex  = regexp.MustCompile(`\n{3,}`)
)

// ExtractText extracts plain text from an uploaded reference paper.
func ExtractText(path, fileType string) (string, error) {
	switch fileType {
	case models.FileTypePDF:
		text, err := extractPDF(path)
		if err != nil {
			return "", err
		}
		return cleanText(text), nil
	case models.FileTypeDOCX:
		text, err := extractDOCX(path)
		if err != nil {
			return "", err
		}
		return cleanText(text), nil
	default:
		return "", fmt.Errorf("unsupported file type: %s", fileType)
	}
}

// extractPDF collects the plain text of every page. Unreadable pages are
// skipped; scanned PDFs without a text layer yield an empty result, not an
// error.
func extractPDF(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}
	defer f.Close()

	var b strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		b.WriteString(text)
		b.WriteString("\n")
	}
	return b.String(), nil
}

// extractDOCX reads word/document.xml from the DOCX archive and collects the
// text runs, inserting a newline per paragraph.
func extractDOCX(path string) (string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("failed to open docx: %w", err)
	}
	defer zr.Close()

	var doc io.ReadCloser
	for _, file := range zr.File {
		if file.Name == "word/document.xml" {
			doc, err = file.Open()
			if err != nil {
				return "", fmt.Errorf("failed to read docx document: %w", err)
			}
			break
		}
	}
	if doc == nil {
		return "", fmt.Errorf("docx archive has no word/document.xml")
	}
	defer doc.Close()

	var b strings.Builder
	decoder := xml.NewDecoder(doc)
	inText := false
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to parse docx document: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inText = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				b.WriteString("\n")
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}
	return b.String(), nil
}

// cleanText repairs line-end hyphenation and collapses excess whitespace.
func cleanText(text string) string {
	text = hyphenBreakRegex.ReplaceAllString(text, "$1$2")
	text = multiSpaceRegex.ReplaceAllString(text, " ")
	text = multiBlankRegex.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
