package retrieval

import (
	"strings"

	"github.com/JasonAskew/knowledge/helper"
	"github.com/JasonAskew/knowledge/model"
)

// assembleCitations resolves final candidates into citations with
// document names and page numbers. No answer text is synthesized; the
// chunk text itself is the evidence.
func (e *Engine) assembleCitations(candidates []model.Candidate) ([]model.Citation, error) {
	documents := make(map[string]*model.Document)

	citations := make([]model.Citation, 0, len(candidates))
	for _, candidate := range candidates {
		doc, ok := documents[candidate.Chunk.DocumentID]
		if !ok {
			var err error
			doc, err = e.store.Documents.SelectDocument(candidate.Chunk.DocumentID)
			if err != nil {
				return nil, helper.NewError("select cited document", err)
			}
			documents[doc.ID] = doc
		}

		tags := candidate.SourceTags
		if len(tags) == 0 {
			tags = []string{candidate.SourceTag}
		}

		citations = append(citations, model.Citation{
			DocumentID:   doc.ID,
			DocumentName: doc.ID,
			PageNum:      candidate.Chunk.PageNum,
			ChunkID:      candidate.ChunkID,
			Text:         candidate.Chunk.Text,
			FinalScore:   candidate.FinalScore,
			SourceTags:   tags,
			Hierarchy:    hierarchyOf(doc),
		})
	}
	return citations, nil
}

// hierarchyOf renders the hierarchical overlay path, empty when the
// document carries no classification labels.
func hierarchyOf(doc *model.Document) string {
	var parts []string
	for _, part := range []string{doc.Division, doc.Category, doc.Product} {
		if part != "" {
			parts = append(parts, part)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	parts = append(parts, doc.Title)
	return strings.Join(parts, " > ")
}
