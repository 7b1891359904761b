package pipeline

import (
	"context"
	"testing"

	"github.com/JasonAskew/knowledge/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatternLibraries(t *testing.T) {
	assert.GreaterOrEqual(t, len(productPatterns), 150, "Product library should cover at least 150 patterns")
	assert.GreaterOrEqual(t, len(termPatterns), 200, "Term library should cover at least 200 patterns")
}

func TestNormalizeEntity(t *testing.T) {
	t.Run("casefolds and collapses whitespace", func(t *testing.T) {
		assert.Equal(t, "option premium", NormalizeEntity("  Option   Premium  "), "Whitespace should collapse")
	})

	t.Run("strips punctuation except slash and hyphen", func(t *testing.T) {
		assert.Equal(t, "aud/usd", NormalizeEntity("AUD/USD,"), "Slashes should survive normalization")
		assert.Equal(t, "knock-in", NormalizeEntity("Knock-In!"), "Hyphens should survive normalization")
	})

	t.Run("maps product aliases to canonical form", func(t *testing.T) {
		assert.Equal(t, "fx_forward", NormalizeEntity("FX Forward"), "Abbreviated form should map")
		assert.Equal(t, "fx_forward", NormalizeEntity("Foreign Exchange Forward"), "Long form should map")
		assert.Equal(t, "fx_forward", NormalizeEntity("Currency Forward Contract"), "Contract form should map")
		assert.Equal(t, "interest_rate_swap", NormalizeEntity("IRS"), "Abbreviations should map")
	})

	t.Run("plural alias surfaces fold onto the singular", func(t *testing.T) {
		assert.Equal(t, "fx_forward", NormalizeEntity("FX Forwards"), "Plural should share the canonical form")
	})
}

func TestExtractPatternEntities(t *testing.T) {
	extractor := NewEntityExtractor(nil)

	t.Run("aliased product surfaces collapse to one entity", func(t *testing.T) {
		text := "An FX Forward, also sold as a Foreign Exchange Forward or Currency Forward Contract, fixes the rate."
		hits, err := extractor.Extract(context.Background(), text)
		require.NoError(t, err, "Extract should succeed")

		var products []model.ExtractedEntity
		for _, hit := range hits {
			if hit.Type == model.EntityTypeProduct && hit.Normalized == "fx_forward" {
				products = append(products, hit)
			}
		}
		require.Len(t, products, 1, "All three surfaces should share one normalized entity")
		assert.Equal(t, confidencePattern, products[0].Confidence, "Pattern hits carry pattern confidence")
	})

	t.Run("term patterns are tagged as terms", func(t *testing.T) {
		hits, err := extractor.Extract(context.Background(), "The option premium is payable on the trade date.")
		require.NoError(t, err, "Extract should succeed")

		normalized := make(map[string]model.EntityType)
		for _, hit := range hits {
			normalized[hit.Normalized] = hit.Type
		}
		assert.Equal(t, model.EntityTypeTerm, normalized["option premium"], "Option premium is a term")
		assert.Equal(t, model.EntityTypeTerm, normalized["trade date"], "Trade date is a term")
	})
}

func TestExtractNumericEntities(t *testing.T) {
	extractor := NewEntityExtractor(nil)

	t.Run("currency amounts and percentages are extracted", func(t *testing.T) {
		hits, err := extractor.Extract(context.Background(), "A minimum of $10,000 earns 4.5% per annum.")
		require.NoError(t, err, "Extract should succeed")

		byType := make(map[model.EntityType][]model.ExtractedEntity)
		for _, hit := range hits {
			byType[hit.Type] = append(byType[hit.Type], hit)
		}
		require.Len(t, byType[model.EntityTypeAmount], 1, "One amount expected")
		assert.Equal(t, "$10,000", byType[model.EntityTypeAmount][0].Surface, "Amount surface should be verbatim")
		assert.Equal(t, confidenceNumeric, byType[model.EntityTypeAmount][0].Confidence, "Numeric hits carry numeric confidence")
		require.Len(t, byType[model.EntityTypePercent], 1, "One percentage expected")
		assert.Equal(t, "4.5%", byType[model.EntityTypePercent][0].Surface, "Percent surface should be verbatim")
	})

	t.Run("repeated values collapse within a chunk", func(t *testing.T) {
		hits, err := extractor.Extract(context.Background(), "The fee is 2% now and 2% later.")
		require.NoError(t, err, "Extract should succeed")

		var percents []model.ExtractedEntity
		for _, hit := range hits {
			if hit.Type == model.EntityTypePercent {
				percents = append(percents, hit)
			}
		}
		require.Len(t, percents, 1, "Duplicate percentages should collapse")
		assert.Equal(t, 11, percents[0].Start, "Earliest span should be kept")
	})
}

func TestDedupeEntities(t *testing.T) {
	t.Run("higher confidence wins on collision", func(t *testing.T) {
		hits := dedupeEntities([]model.ExtractedEntity{
			{Surface: "swap", Normalized: "swap", Type: model.EntityTypeProduct, Confidence: 0.85, Start: 10, End: 14},
			{Surface: "Swap", Normalized: "swap", Type: model.EntityTypeProduct, Confidence: 0.90, Start: 30, End: 34},
		})
		require.Len(t, hits, 1, "Same normalized form and type should merge")
		assert.Equal(t, 0.90, hits[0].Confidence, "Maximum confidence should be kept")
		assert.Equal(t, 10, hits[0].Start, "Earliest span should be kept")
	})

	t.Run("same surface with different types stays separate", func(t *testing.T) {
		hits := dedupeEntities([]model.ExtractedEntity{
			{Surface: "swap", Normalized: "swap", Type: model.EntityTypeProduct, Confidence: 0.85},
			{Surface: "swap", Normalized: "swap", Type: model.EntityTypeTerm, Confidence: 0.85},
		})
		assert.Len(t, hits, 2, "Type is part of the identity")
	})
}
