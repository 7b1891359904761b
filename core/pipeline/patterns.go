package pipeline

import (
	"regexp"
	"strings"

	"github.com/JasonAskew/knowledge/model"
)

// Pattern confidences are fixed per source.
const (
	confidencePattern = 0.85
	confidenceNER     = 0.90
	confidenceNumeric = 0.95
)

// entityPattern is one curated phrase compiled for matching.
type entityPattern struct {
	phrase string
	re     *regexp.Regexp
	typ    model.EntityType
}

var (
	productPatterns []entityPattern
	termPatterns    []entityPattern

	amountPattern  = regexp.MustCompile(`(?i)\$[\d,]+(?:\.\d{2})?(?:\s*(?:million|billion|k|m|b))?`)
	percentPattern = regexp.MustCompile(`\d+(?:\.\d+)?%`)
)

// productAliases maps normalized surface forms onto canonical product
// names so the same instrument referenced three ways collapses into one
// entity node.
var productAliases = map[string]string{
	"fx forward":                     "fx_forward",
	"foreign exchange forward":       "fx_forward",
	"currency forward":               "fx_forward",
	"currency forward contract":      "fx_forward",
	"fx option":                      "fx_option",
	"fxo":                            "fx_option",
	"foreign exchange option":        "fx_option",
	"currency option":                "fx_option",
	"fx swap":                        "fx_swap",
	"foreign exchange swap":          "fx_swap",
	"currency swap":                  "fx_swap",
	"irs":                            "interest_rate_swap",
	"interest rate swap":             "interest_rate_swap",
	"ir swap":                        "interest_rate_swap",
	"td":                             "term_deposit",
	"term deposit":                   "term_deposit",
	"wib term deposit":               "term_deposit",
	"dci":                            "dual_currency_investment",
	"dual currency investment":       "dual_currency_investment",
	"dual currency deposit":          "dual_currency_investment",
	"fca":                            "foreign_currency_account",
	"foreign currency account":       "foreign_currency_account",
	"pfc":                            "participating_forward",
	"participating forward":          "participating_forward",
	"participating forward contract": "participating_forward",
	"rfc":                            "range_forward",
	"range forward":                  "range_forward",
	"range forward contract":         "range_forward",
	"tfc":                            "target_forward",
	"target forward":                 "target_forward",
	"target forward contract":        "target_forward",
	"bcf":                            "bonus_forward",
	"bonus forward":                  "bonus_forward",
	"bonus forward contract":         "bonus_forward",
	"fra":                            "forward_rate_agreement",
	"forward rate agreement":         "forward_rate_agreement",
	"repo":                           "repurchase_agreement",
	"repurchase agreement":           "repurchase_agreement",
	"fx collar":                      "fx_collar",
	"foreign exchange collar":        "fx_collar",
	"currency collar":                "fx_collar",
}

// composePhrases crosses modifier and base lists into full phrases.
// The curated libraries are built compositionally so every instrument
// family covers its common variants.
func composePhrases(prefixes, bases []string) []string {
	phrases := make([]string, 0, len(prefixes)*len(bases))
	for _, prefix := range prefixes {
		for _, base := range bases {
			if prefix == "" {
				phrases = append(phrases, base)
			} else {
				phrases = append(phrases, prefix+" "+base)
			}
		}
	}
	return phrases
}

func productPhrases() []string {
	var phrases []string
	phrases = append(phrases, composePhrases(
		[]string{"fx", "foreign exchange", "currency", "cross currency", "deliverable", "non-deliverable"},
		[]string{"forward", "swap", "option"})...)
	phrases = append(phrases, composePhrases(
		[]string{"interest rate", "ir", "basis", "overnight index", "zero coupon"},
		[]string{"swap", "cap", "floor", "collar", "swaption"})...)
	phrases = append(phrases, composePhrases(
		[]string{"term", "call", "notice", "dual currency", "wib term", "green tailored", "structured", "foreign currency"},
		[]string{"deposit", "investment", "account"})...)
	phrases = append(phrases, composePhrases(
		[]string{"range", "participating", "bonus", "target", "window", "flexible", "ratio"},
		[]string{"forward contract", "forward"})...)
	phrases = append(phrases, composePhrases(
		[]string{"fixed rate", "floating rate", "capital", "covered", "green", "convertible"},
		[]string{"note", "bond", "bill"})...)
	phrases = append(phrases, composePhrases(
		[]string{"structured", "capital protected", "principal protected", "equity linked", "index linked"},
		[]string{"product", "investment", "note"})...)
	phrases = append(phrases, composePhrases(
		[]string{"vanilla", "barrier", "knock-in", "knock-out", "digital", "asian", "lookback", "compound"},
		[]string{"option", "call option", "put option"})...)
	phrases = append(phrases, composePhrases(
		[]string{"credit default", "total return", "equity", "commodity", "inflation", "variance"},
		[]string{"swap"})...)
	phrases = append(phrases,
		"swaption", "forward rate agreement", "fra", "repurchase agreement", "repo",
		"bank guarantee", "letter of credit", "trade finance facility", "overdraft facility",
		"margin loan")
	return phrases
}

func termPhrases() []string {
	var phrases []string
	phrases = append(phrases, composePhrases(
		[]string{"strike", "spot", "forward", "exchange", "interest", "coupon", "discount", "swap",
			"reference", "benchmark", "fixed", "floating", "bid", "ask", "mid", "market"},
		[]string{"rate", "price"})...)
	phrases = append(phrases, composePhrases(
		[]string{"notional", "principal", "settlement", "face", "minimum", "maximum", "outstanding"},
		[]string{"amount", "value"})...)
	phrases = append(phrases, composePhrases(
		[]string{"maturity", "settlement", "trade", "value", "expiry", "expiration", "fixing",
			"payment", "start", "end", "effective", "termination"},
		[]string{"date"})...)
	phrases = append(phrases, composePhrases(
		[]string{"option", "risk", "insurance", "upfront"},
		[]string{"premium"})...)
	phrases = append(phrases, composePhrases(
		[]string{"margin", "collateral", "security"},
		[]string{"call", "requirement", "deposit"})...)
	phrases = append(phrases, composePhrases(
		[]string{"credit", "market", "liquidity", "operational", "counterparty", "settlement",
			"currency", "interest rate", "basis"},
		[]string{"risk"})...)
	phrases = append(phrases, composePhrases(
		[]string{"early", "partial", "full", "cash", "physical", "net"},
		[]string{"settlement", "termination", "redemption", "delivery"})...)
	phrases = append(phrases, composePhrases(
		[]string{"break", "establishment", "transaction", "administration", "management",
			"early termination", "exit", "application", "service", "account keeping",
			"annual", "monthly"},
		[]string{"fee", "cost", "charge"})...)
	phrases = append(phrases, composePhrases(
		[]string{"wholesale", "retail", "qualified", "sophisticated", "institutional", "professional"},
		[]string{"investor", "client", "counterparty"})...)
	phrases = append(phrases,
		"hedge", "hedging", "speculation", "arbitrage", "leverage", "exposure", "volatility",
		"liquidity", "yield", "spread", "basis points", "duration", "convexity", "valuation",
		"mark to market", "unwind", "rollover", "novation", "netting", "offset",
		"cooling off period", "disclosure statement", "product disclosure statement",
		"terms and conditions", "financial services guide", "target market determination",
		"credit limit", "drawdown", "repayment schedule", "amortisation", "grace period",
		"default interest", "break costs",
		"exercise price", "exercise date", "intrinsic value", "time value",
		"in the money", "out of the money", "at the money",
		"barrier level", "knock-in level", "knock-out level")
	return phrases
}

func compilePatterns(phrases []string, typ model.EntityType) []entityPattern {
	patterns := make([]entityPattern, 0, len(phrases))
	seen := make(map[string]bool)
	for _, phrase := range phrases {
		if seen[phrase] {
			continue
		}
		seen[phrase] = true
		re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(phrase) + `s?\b`)
		patterns = append(patterns, entityPattern{phrase: phrase, re: re, typ: typ})
	}
	return patterns
}

func init() {
	productPatterns = compilePatterns(productPhrases(), model.EntityTypeProduct)
	termPatterns = compilePatterns(termPhrases(), model.EntityTypeTerm)
}

var normalizeStrip = regexp.MustCompile(`[^\p{L}\p{N}/\- ]+`)
var normalizeSpace = regexp.MustCompile(`\s+`)

// NormalizeEntity casefolds, strips punctuation except / and -, and
// collapses whitespace; known product aliases then map to their
// canonical form.
func NormalizeEntity(surface string) string {
	normalized := strings.ToLower(surface)
	normalized = normalizeStrip.ReplaceAllString(normalized, " ")
	normalized = strings.TrimSpace(normalizeSpace.ReplaceAllString(normalized, " "))
	if canonical, ok := productAliases[normalized]; ok {
		return canonical
	}
	// Plural surfaces fold onto their singular alias.
	if canonical, ok := productAliases[strings.TrimSuffix(normalized, "s")]; ok {
		return canonical
	}
	return normalized
}
