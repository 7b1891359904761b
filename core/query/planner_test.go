package query

import (
	"context"
	"testing"

	"github.com/JasonAskew/knowledge/core/pipeline"
	"github.com/JasonAskew/knowledge/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	t.Run("Definition questions classified first", func(t *testing.T) {
		assert.Equal(t, ClassDefinition, Classify("What is an option premium?"), "expected definition class")
		assert.Equal(t, ClassDefinition, Classify("define interest rate swap"), "expected definition class")
	})

	t.Run("Fee questions classified as fee", func(t *testing.T) {
		assert.Equal(t, ClassFee, Classify("Can I reduce the premium on my option?"), "expected fee class")
		assert.Equal(t, ClassFee, Classify("What fees apply to a term deposit?"), "expected fee class")
	})

	t.Run("Requirement beats limit when both match", func(t *testing.T) {
		assert.Equal(t, ClassRequirement, Classify("Is there a minimum transaction limit?"), "requirement pattern checked before limit")
	})

	t.Run("Process questions classified as process", func(t *testing.T) {
		assert.Equal(t, ClassProcess, Classify("How do I open a foreign currency account?"), "expected process class")
	})

	t.Run("Limit questions classified as limit", func(t *testing.T) {
		assert.Equal(t, ClassLimit, Classify("Are there thresholds on daily transfers?"), "expected limit class")
	})

	t.Run("Plain queries fall back to general", func(t *testing.T) {
		assert.Equal(t, ClassGeneral, Classify("foreign exchange settlement"), "expected general class")
	})
}

func TestExtractKeywords(t *testing.T) {
	t.Run("Stopwords removed and keywords lowercased", func(t *testing.T) {
		keywords := ExtractKeywords("What is the Option Premium for this swap?", ClassGeneral)
		assert.Contains(t, keywords, "option", "content token expected")
		assert.Contains(t, keywords, "premium", "content token expected")
		assert.Contains(t, keywords, "swap", "content token expected")
		assert.NotContains(t, keywords, "what", "stopword must be removed")
		assert.NotContains(t, keywords, "the", "stopword must be removed")
	})

	t.Run("Numbers kept verbatim", func(t *testing.T) {
		keywords := ExtractKeywords("Is the 4.5% rate above $10,000 guaranteed?", ClassGeneral)
		assert.Contains(t, keywords, "4.5%", "percentage must stay verbatim")
		assert.Contains(t, keywords, "$10,000", "amount must stay verbatim")
	})

	t.Run("Banking generic words dropped when standalone", func(t *testing.T) {
		keywords := ExtractKeywords("What does the bank require?", ClassGeneral)
		assert.NotContains(t, keywords, "bank", "standalone banking word must be dropped")
	})

	t.Run("Banking generic words kept inside noun phrases", func(t *testing.T) {
		keywords := ExtractKeywords("How do I close a foreign currency account?", ClassProcess)
		assert.Contains(t, keywords, "account", "noun phrase tail must be kept")
		assert.Contains(t, keywords, "currency", "noun phrase head must be kept")
	})

	t.Run("Class keywords promoted", func(t *testing.T) {
		keywords := ExtractKeywords("What does it cost?", ClassFee)
		assert.Contains(t, keywords, "fee", "fee class promotes fee")
		assert.Contains(t, keywords, "charge", "fee class promotes charge")
	})

	t.Run("Duplicates collapsed", func(t *testing.T) {
		keywords := ExtractKeywords("premium premium premium", ClassGeneral)
		assert.Equal(t, []string{"premium"}, keywords, "repeated tokens collapse to one keyword")
	})
}

func TestExpandProducts(t *testing.T) {
	t.Run("Abbreviation expands to full name", func(t *testing.T) {
		expansion := expandProducts("What is the fx settlement date?")
		assert.Equal(t, []string{"foreign exchange"}, expansion, "fx expands to foreign exchange")
	})

	t.Run("Full name contracts to abbreviation", func(t *testing.T) {
		expansion := expandProducts("interest rate swap margin requirements")
		assert.Equal(t, []string{"irs"}, expansion, "full name contracts to irs")
	})

	t.Run("No product mentions yields no expansion", func(t *testing.T) {
		assert.Empty(t, expandProducts("settlement calendar"), "expected no expansion terms")
	})
}

func TestPlannerPlan(t *testing.T) {
	planner := NewPlanner(pipeline.NewEntityExtractor(nil))

	t.Run("Plan carries class keywords and entities", func(t *testing.T) {
		plan, err := planner.Plan(context.Background(), "What is the option premium on an FX option?")
		require.NoError(t, err, "plan must not fail")
		assert.Equal(t, ClassDefinition, plan.Class, "expected definition class")
		assert.Contains(t, plan.Keywords, "premium", "expected premium keyword")

		var normalized []string
		for _, entity := range plan.Entities {
			normalized = append(normalized, entity.Normalized)
			assert.Contains(t, []model.EntityType{model.EntityTypeProduct, model.EntityTypeTerm}, entity.Type, "only product and term entities feed retrieval")
		}
		assert.Contains(t, normalized, "fx_option", "fx option surface must normalize to fx_option")
		assert.Contains(t, normalized, "option premium", "option premium term expected")
	})

	t.Run("Numeric entities excluded from plan", func(t *testing.T) {
		plan, err := planner.Plan(context.Background(), "Is 4.5% the final rate?")
		require.NoError(t, err, "plan must not fail")
		for _, entity := range plan.Entities {
			assert.NotEqual(t, model.EntityTypePercent, entity.Type, "percent entities carry no graph signal")
		}
	})
}
