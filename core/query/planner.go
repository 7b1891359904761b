// Package query turns a natural-language question into a retrieval
// plan: class, keywords, expansion terms, and query entities.
package query

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/JasonAskew/knowledge/core/pipeline"
	"github.com/JasonAskew/knowledge/model"
)

// Class is the predicted query class. Classification only biases
// reranker tie-breaks and keyword extraction, never excludes results.
type Class string

const (
	ClassDefinition  Class = "definition"
	ClassRequirement Class = "requirement"
	ClassFee         Class = "fee"
	ClassProcess     Class = "process"
	ClassLimit       Class = "limit"
	ClassGeneral     Class = "general"
)

// classPatterns are evaluated in order; the first match wins.
var classPatterns = []struct {
	class Class
	re    *regexp.Regexp
}{
	{ClassDefinition, regexp.MustCompile(`(?i)\b(what is|what are|define|definition|meaning|means)\b`)},
	{ClassRequirement, regexp.MustCompile(`(?i)\b(requirement|minimum|need|must|eligible|eligibility|qualify)\b`)},
	{ClassFee, regexp.MustCompile(`(?i)\b(fee|charge|cost|premium|pricing)\b`)},
	{ClassProcess, regexp.MustCompile(`(?i)\b(how to|how do|how can|steps|process|procedure|apply)\b`)},
	{ClassLimit, regexp.MustCompile(`(?i)\b(limit|cap|maximum|max|threshold|restriction)\b`)},
}

// classKeywords are required keywords promoted into every query of the
// class.
var classKeywords = map[Class][]string{
	ClassRequirement: {"minimum", "eligibility", "qualify"},
	ClassFee:         {"fee", "charge", "cost"},
	ClassProcess:     {"process", "steps"},
	ClassLimit:       {"limit", "maximum"},
}

// queryStopwords are query-side noise words on top of the shared
// content stopwords; they show up in questions, not in document prose.
var queryStopwords = map[string]bool{
	"i": true, "me": true, "my": true, "please": true, "tell": true,
	"want": true, "would": true, "like": true, "know": true,
}

// bankingStopwords are dropped unless they extend a preceding content
// token into a noun phrase (as in "foreign currency account").
var bankingStopwords = map[string]bool{
	"account": true,
	"bank":    true,
	"banking": true,
}

// productExpansions maps abbreviations onto their full product names.
// Both directions are added to the expansion terms.
var productExpansions = map[string]string{
	"fx":    "foreign exchange",
	"fxo":   "foreign exchange option",
	"irs":   "interest rate swap",
	"fca":   "foreign currency account",
	"td":    "term deposit",
	"wibtd": "wib term deposit",
	"dci":   "dual currency investment",
	"bcf":   "bonus forward contract",
	"pfc":   "participating forward contract",
	"rfc":   "range forward contract",
	"tfc":   "target forward contract",
}

var numberToken = regexp.MustCompile(`^\$?[\d,]+(?:\.\d+)?%?$`)

// Plan is the retrieval plan for one query.
type Plan struct {
	Query     string
	Class     Class
	Keywords  []string
	Expansion []string
	Entities  []model.ExtractedEntity
}

// ExpectedChunkType returns the chunk type a result must carry for the
// reranker's query-type match signal.
func (p *Plan) ExpectedChunkType() model.ChunkType {
	return model.ChunkType(p.Class)
}

// Planner classifies queries and extracts keywords and entities. The
// same entity extractor as ingestion is used so query surfaces map to
// the same normalized forms.
type Planner struct {
	extractor *pipeline.EntityExtractor
}

func NewPlanner(extractor *pipeline.EntityExtractor) *Planner {
	return &Planner{extractor: extractor}
}

// Plan builds the retrieval plan. Only PRODUCT and TERM entities feed
// graph traversal; numeric query entities carry no graph signal.
func (p *Planner) Plan(ctx context.Context, queryText string) (*Plan, error) {
	plan := &Plan{
		Query: queryText,
		Class: Classify(queryText),
	}
	plan.Keywords = ExtractKeywords(queryText, plan.Class)
	plan.Expansion = expandProducts(queryText)

	hits, err := p.extractor.Extract(ctx, queryText)
	if err != nil {
		return nil, err
	}
	for _, hit := range hits {
		if hit.Type == model.EntityTypeProduct || hit.Type == model.EntityTypeTerm {
			plan.Entities = append(plan.Entities, hit)
		}
	}
	return plan, nil
}

// Classify matches the query against the class patterns in order.
func Classify(queryText string) Class {
	for _, candidate := range classPatterns {
		if candidate.re.MatchString(queryText) {
			return candidate.class
		}
	}
	return ClassGeneral
}

// ExtractKeywords lowercases, removes stopwords, keeps numbers
// verbatim, and promotes the class's required keywords.
func ExtractKeywords(queryText string, class Class) []string {
	tokens := pipeline.Tokenize(queryText)

	var keywords []string
	seen := make(map[string]bool)
	add := func(keyword string) {
		if keyword == "" || seen[keyword] {
			return
		}
		seen[keyword] = true
		keywords = append(keywords, keyword)
	}

	previousWasContent := false
	for _, token := range tokens {
		lower := strings.ToLower(token.Text)
		if numberToken.MatchString(token.Text) {
			add(token.Text)
			previousWasContent = true
			continue
		}
		if bankingStopwords[lower] {
			// Keep when it completes a noun phrase.
			if previousWasContent {
				add(lower)
			}
			continue
		}
		if queryStopwords[lower] || !pipeline.IsContentToken(token.Text) {
			previousWasContent = false
			continue
		}
		add(lower)
		previousWasContent = true
	}

	for _, keyword := range classKeywords[class] {
		add(keyword)
	}
	return keywords
}

// expandProducts adds full product names for abbreviations found in the
// query and abbreviations for full names, mirroring how readers refer
// to the same instrument both ways.
func expandProducts(queryText string) []string {
	lower := " " + strings.ToLower(queryText) + " "
	var expansion []string
	for abbrev, full := range productExpansions {
		if strings.Contains(lower, " "+abbrev+" ") {
			expansion = append(expansion, full)
		} else if strings.Contains(lower, full) {
			expansion = append(expansion, abbrev)
		}
	}
	sort.Strings(expansion)
	return expansion
}
