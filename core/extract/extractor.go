// Package extract turns PDF byte streams into page-structured text.
// Native extraction is attempted first; documents yielding almost no
// text fall back to OCR before being rejected as empty.
package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/JasonAskew/knowledge/model"
)

// minTextLength is the total extracted character count below which a
// document is treated as scanned and routed through OCR.
const minTextLength = 100

// OCRDPI is the render resolution requested from the OCR service.
const OCRDPI = 300

// PageSource extracts ordered pages from a PDF byte stream.
type PageSource interface {
	ExtractPages(ctx context.Context, data []byte, filename string) ([]model.Page, error)
}

// Extractor combines native PDF extraction with an optional OCR
// fallback. It never retries internally; retry policy belongs to the
// ingestion orchestrator.
type Extractor struct {
	native   PageSource
	fallback PageSource
}

// NewExtractor creates an extractor with the native PDF page source and
// an optional OCR fallback (nil disables the fallback path).
func NewExtractor(fallback PageSource) *Extractor {
	return &Extractor{
		native:   &PDFPageSource{},
		fallback: fallback,
	}
}

// Extract produces the ordered, 1-indexed page sequence for a document.
// When fewer than 100 characters are extracted across all pages the OCR
// fallback is engaged; when that too comes up short, the document is an
// EmptyDocument.
func (e *Extractor) Extract(ctx context.Context, data []byte, filename string) ([]model.Page, error) {
	pages, err := e.native.ExtractPages(ctx, data, filename)
	if err != nil {
		return nil, model.NewIngestError(model.ErrorKindUnreadable, filename, "extract", err)
	}

	if totalTextLength(pages) >= minTextLength {
		return pages, nil
	}

	if e.fallback != nil {
		ocrPages, ocrErr := e.fallback.ExtractPages(ctx, data, filename)
		if ocrErr == nil && totalTextLength(ocrPages) >= minTextLength {
			return ocrPages, nil
		}
	}

	return nil, model.NewIngestError(model.ErrorKindEmptyDocument, filename, "extract",
		fmt.Errorf("document yields fewer than %d characters of text", minTextLength))
}

func totalTextLength(pages []model.Page) int {
	total := 0
	for _, page := range pages {
		total += len(strings.TrimSpace(page.Text))
	}
	return total
}
