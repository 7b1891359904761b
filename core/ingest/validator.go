package ingest

import (
	"fmt"

	"github.com/JasonAskew/knowledge/model"
)

// Validator checks a written document for completeness. Any failed
// criterion rolls the whole document back.
type Validator struct {
	minChunkPageRatio float64
	minCharsPerPage   float64
}

func NewValidator(config model.ValidationConfig) *Validator {
	return &Validator{
		minChunkPageRatio: config.MinChunkPageRatio,
		minCharsPerPage:   config.MinCharsPerPage,
	}
}

// Validate applies the completeness criteria against the chunk
// sequence produced for the document.
func (v *Validator) Validate(doc *model.Document, chunks []*model.Chunk) error {
	fail := func(format string, args ...interface{}) error {
		return model.NewIngestError(model.ErrorKindValidationFailed, doc.ID, "validate",
			fmt.Errorf(format, args...))
	}

	if len(chunks) < 1 {
		return fail("no chunks produced")
	}
	if doc.TotalPages < 1 {
		return fail("document has no pages")
	}

	ratio := float64(len(chunks)) / float64(doc.TotalPages)
	if ratio < v.minChunkPageRatio {
		return fail("chunk/page ratio %.3f below %.3f", ratio, v.minChunkPageRatio)
	}

	covered := make(map[int]bool, doc.TotalPages)
	totalChars := 0
	for _, chunk := range chunks {
		covered[chunk.PageNum] = true
		totalChars += len(chunk.Text)
	}
	for page := 1; page <= doc.TotalPages; page++ {
		if !covered[page] {
			return fail("page %d not covered by any chunk", page)
		}
	}

	meanChars := float64(totalChars) / float64(doc.TotalPages)
	if meanChars < v.minCharsPerPage {
		return fail("mean chars per page %.1f below %.1f", meanChars, v.minCharsPerPage)
	}

	return nil
}
