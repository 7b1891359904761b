package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/JasonAskew/knowledge/helper"
	"github.com/JasonAskew/knowledge/model"
	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"
)

// NERModel recognizes named entities in raw text.
type NERModel interface {
	Recognize(ctx context.Context, text string) ([]model.ExtractedEntity, error)
	Close() error
}

// EntityExtractor combines the curated pattern library, numeric
// extractors, and an optional statistical NER model. Within a chunk,
// hits sharing (normalized, type) collapse to the highest confidence.
type EntityExtractor struct {
	ner NERModel
}

// NewEntityExtractor creates an extractor; ner may be nil, in which
// case only patterns and numeric extraction run.
func NewEntityExtractor(ner NERModel) *EntityExtractor {
	return &EntityExtractor{ner: ner}
}

// Extract emits the deduplicated entity set for one chunk.
func (e *EntityExtractor) Extract(ctx context.Context, text string) ([]model.ExtractedEntity, error) {
	var hits []model.ExtractedEntity

	hits = append(hits, matchPatterns(text, productPatterns)...)
	hits = append(hits, matchPatterns(text, termPatterns)...)
	hits = append(hits, matchNumeric(text)...)

	if e.ner != nil {
		nerHits, err := e.ner.Recognize(ctx, text)
		if err != nil {
			return nil, model.NewIngestError(model.ErrorKindModelUnavailable, "", "entities", err)
		}
		hits = append(hits, nerHits...)
	}

	return dedupeEntities(hits), nil
}

func (e *EntityExtractor) Close() error {
	if e.ner != nil {
		return e.ner.Close()
	}
	return nil
}

// matchPatterns normalizes by the pattern's own phrase so plural and
// cased surfaces of the same phrase share one normalized form.
func matchPatterns(text string, patterns []entityPattern) []model.ExtractedEntity {
	var hits []model.ExtractedEntity
	for _, pattern := range patterns {
		for _, span := range pattern.re.FindAllStringIndex(text, -1) {
			hits = append(hits, model.ExtractedEntity{
				Surface:    text[span[0]:span[1]],
				Normalized: NormalizeEntity(pattern.phrase),
				Type:       pattern.typ,
				Confidence: confidencePattern,
				Start:      span[0],
				End:        span[1],
			})
		}
	}
	return hits
}

func matchNumeric(text string) []model.ExtractedEntity {
	var hits []model.ExtractedEntity
	for _, span := range amountPattern.FindAllStringIndex(text, -1) {
		surface := text[span[0]:span[1]]
		hits = append(hits, model.ExtractedEntity{
			Surface:    surface,
			Normalized: NormalizeEntity(surface),
			Type:       model.EntityTypeAmount,
			Confidence: confidenceNumeric,
			Start:      span[0],
			End:        span[1],
		})
	}
	for _, span := range percentPattern.FindAllStringIndex(text, -1) {
		surface := text[span[0]:span[1]]
		hits = append(hits, model.ExtractedEntity{
			Surface:    surface,
			Normalized: NormalizeEntity(surface),
			Type:       model.EntityTypePercent,
			Confidence: confidenceNumeric,
			Start:      span[0],
			End:        span[1],
		})
	}
	return hits
}

// dedupeEntities collapses hits by (normalized, type), keeping the
// maximum confidence and the earliest span. Output order is stable.
func dedupeEntities(hits []model.ExtractedEntity) []model.ExtractedEntity {
	type key struct {
		normalized string
		typ        model.EntityType
	}
	best := make(map[key]model.ExtractedEntity)
	for _, hit := range hits {
		if hit.Normalized == "" {
			continue
		}
		k := key{hit.Normalized, hit.Type}
		existing, ok := best[k]
		if !ok {
			best[k] = hit
			continue
		}
		if hit.Confidence > existing.Confidence {
			start, end := existing.Start, existing.End
			if start < hit.Start {
				hit.Start, hit.End = start, end
			}
			best[k] = hit
		} else if hit.Start < existing.Start {
			existing.Start, existing.End = hit.Start, hit.End
			best[k] = existing
		}
	}

	deduped := make([]model.ExtractedEntity, 0, len(best))
	for _, hit := range best {
		deduped = append(deduped, hit)
	}
	sort.Slice(deduped, func(i, j int) bool {
		if deduped[i].Start != deduped[j].Start {
			return deduped[i].Start < deduped[j].Start
		}
		return deduped[i].Normalized < deduped[j].Normalized
	})
	return deduped
}

// HugotNER runs the distilbert-NER token classification model through
// hugot.
type HugotNER struct {
	session  *hugot.Session
	pipeline *pipelines.TokenClassificationPipeline
}

// NewHugotNER downloads the model if needed and prepares the token
// classification pipeline with simple aggregation.
func NewHugotNER() (*HugotNER, error) {
	modelName := "KnightsAnalytics/distilbert-NER"
	modelPath, err := helper.PrepareModel(modelName, "model.onnx")
	if err != nil {
		return nil, err
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create hugot session: %w", err)
	}

	config := hugot.TokenClassificationConfig{
		ModelPath: modelPath,
		Name:      "ner-pipeline",
		Options: []hugot.TokenClassificationOption{
			pipelines.WithSimpleAggregation(),
			pipelines.WithIgnoreLabels([]string{"O"}),
		},
	}
	nerPipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, fmt.Errorf("failed to create NER pipeline: %w (cleanup error: %v)", err, destroyErr)
		}
		return nil, fmt.Errorf("failed to create NER pipeline: %w", err)
	}

	return &HugotNER{session: session, pipeline: nerPipeline}, nil
}

func (n *HugotNER) Recognize(ctx context.Context, text string) ([]model.ExtractedEntity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result, err := n.pipeline.RunPipeline([]string{text})
	if err != nil {
		return nil, fmt.Errorf("failed to run NER: %w", err)
	}
	if len(result.Entities) == 0 {
		return nil, nil
	}

	var hits []model.ExtractedEntity
	for _, entity := range result.Entities[0] {
		surface := strings.TrimSpace(entity.Word)
		if surface == "" {
			continue
		}
		typ, ok := mapNERLabel(entity.Entity)
		if !ok {
			continue
		}
		hits = append(hits, model.ExtractedEntity{
			Surface:    surface,
			Normalized: NormalizeEntity(surface),
			Type:       typ,
			Confidence: confidenceNER,
			Start:      int(entity.Start),
			End:        int(entity.End),
		})
	}
	return hits, nil
}

func (n *HugotNER) Close() error {
	return n.session.Destroy()
}

// mapNERLabel strips the BIO prefix and maps model labels onto entity
// types. MONEY folds into AMOUNT.
func mapNERLabel(label string) (model.EntityType, bool) {
	label = strings.TrimPrefix(strings.TrimPrefix(label, "B-"), "I-")
	switch label {
	case "PER", "PERSON":
		return model.EntityTypePerson, true
	case "ORG", "ORGANIZATION":
		return model.EntityTypeOrg, true
	case "MONEY":
		return model.EntityTypeAmount, true
	case "PERCENT":
		return model.EntityTypePercent, true
	case "PRODUCT":
		return model.EntityTypeProduct, true
	case "MISC", "LOC", "LOCATION":
		return model.EntityTypeOther, true
	}
	return "", false
}
