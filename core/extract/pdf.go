package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/JasonAskew/knowledge/helper"
	"github.com/JasonAskew/knowledge/model"
	"github.com/ledongthuc/pdf"
)

// PDFPageSource extracts text natively from the PDF content streams.
type PDFPageSource struct{}

// ExtractPages reads every page of the PDF in order. Pages whose content
// stream cannot be decoded yield an empty page rather than aborting the
// document, so page numbering stays dense.
func (s *PDFPageSource) ExtractPages(ctx context.Context, data []byte, filename string) ([]model.Page, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, helper.NewError("opening pdf", err)
	}

	numPages := reader.NumPage()
	if numPages < 1 {
		return nil, helper.NewError("opening pdf", fmt.Errorf("document %s has no pages", filename))
	}

	pages := make([]model.Page, 0, numPages)
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(i)
		text := ""
		if !page.V.IsNull() {
			text = extractPageText(page)
		}
		pages = append(pages, model.Page{
			PageNum:      i,
			Text:         text,
			OCRExtracted: false,
		})
	}
	return pages, nil
}

// extractPageText flattens a page's positioned text into reading order.
// Decode failures on a single page are swallowed so one corrupt content
// stream does not lose the rest of the document.
func extractPageText(page pdf.Page) (text string) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
		}
	}()

	content := page.Content()
	if len(content.Text) == 0 {
		return ""
	}

	var b strings.Builder
	lastY := content.Text[0].Y
	for _, t := range content.Text {
		if t.Y != lastY {
			b.WriteString("\n")
			lastY = t.Y
		}
		b.WriteString(t.S)
	}
	return b.String()
}
