package preview

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"github.com/feichai0017/ingestion-wizard/pkg/logger"
)

// MaxSnippetLen caps the preview text carried on an acquired document.
const MaxSnippetLen = 2000

// Extractor pulls plain text out of uploaded originals. PDFs go through a
// real parser; everything else is treated as UTF-8 text.
type Extractor struct {
	logger logger.Logger
}

func NewExtractor(log logger.Logger) *Extractor {
	return &Extractor{logger: log}
}

// Text returns the full plain text of the file content.
func (e *Extractor) Text(filename string, content []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".pdf":
		return e.pdfText(content)
	default:
		if !utf8.Valid(content) {
			return "", fmt.Errorf("file %s is not valid UTF-8 text", filename)
		}
		return string(content), nil
	}
}

// Snippet truncates text to the preview cap on a rune boundary.
func Snippet(text string) string {
	text = strings.TrimSpace(text)
	if len(text) <= MaxSnippetLen {
		return text
	}

	runes := []rune(text)
	if len(runes) > MaxSnippetLen {
		runes = runes[:MaxSnippetLen]
	}
	return string(runes)
}

func (e *Extractor) pdfText(content []byte) (string, error) {
	reader := bytes.NewReader(content)
	pdfReader, err := pdf.NewReader(reader, reader.Size())
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}

	var sb strings.Builder
	numPages := pdfReader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := pdfReader.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			e.logger.Warn("Failed to extract pdf page text",
				logger.Int("page", i),
				logger.Error(err),
			)
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}

	return sb.String(), nil
}
