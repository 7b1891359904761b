// Package pipeline turns extracted page text into embedded, entity-tagged
// chunks ready for the graph store.
package pipeline

import (
	"strings"
	"unicode"
)

// Token is a tokenizer output carrying its position in the source text.
type Token struct {
	Text  string
	Start int
	End   int
}

// Tokenize splits text on whitespace and detaches leading and trailing
// punctuation into separate tokens. This tokenizer defines the token
// counts used by the chunker; intra-word punctuation like "1.5%" or
// "fx/forward" stays attached.
func Tokenize(text string) []Token {
	var tokens []Token
	offset := 0
	for _, field := range strings.Fields(text) {
		start := strings.Index(text[offset:], field) + offset
		offset = start + len(field)
		tokens = append(tokens, splitPunctuation(field, start)...)
	}
	return tokens
}

// splitPunctuation peels punctuation runes off both ends of a word.
func splitPunctuation(word string, start int) []Token {
	runes := []rune(word)
	lead := 0
	for lead < len(runes) && isDetachable(runes[lead]) {
		lead++
	}
	trail := len(runes)
	for trail > lead && isDetachable(runes[trail-1]) {
		trail--
	}

	var tokens []Token
	pos := start
	for i := 0; i < lead; i++ {
		size := len(string(runes[i]))
		tokens = append(tokens, Token{Text: string(runes[i]), Start: pos, End: pos + size})
		pos += size
	}
	if trail > lead {
		core := string(runes[lead:trail])
		tokens = append(tokens, Token{Text: core, Start: pos, End: pos + len(core)})
		pos += len(core)
	}
	for i := trail; i < len(runes); i++ {
		size := len(string(runes[i]))
		tokens = append(tokens, Token{Text: string(runes[i]), Start: pos, End: pos + size})
		pos += size
	}
	return tokens
}

func isDetachable(r rune) bool {
	if !unicode.IsPunct(r) && !unicode.IsSymbol(r) {
		return false
	}
	// Keep % attached so "1.5%" counts as one token.
	return r != '%'
}

// CountTokens returns the token count under the chunker's tokenizer.
func CountTokens(text string) int {
	return len(Tokenize(text))
}

// IsSentenceTerminal reports whether the token ends a sentence.
func IsSentenceTerminal(token string) bool {
	switch token {
	case ".", "!", "?", ":", ";":
		return true
	}
	return strings.HasSuffix(token, ".") || strings.HasSuffix(token, "!") || strings.HasSuffix(token, "?")
}

// SplitSentences splits text on sentence-terminal punctuation followed
// by whitespace. Used by the query planner and entity extractor; the
// chunker works on tokens directly.
func SplitSentences(text string) []string {
	var sentences []string
	var current strings.Builder
	runes := []rune(text)
	for i, r := range runes {
		current.WriteRune(r)
		if (r == '.' || r == '!' || r == '?') && (i+1 >= len(runes) || unicode.IsSpace(runes[i+1])) {
			sentence := strings.TrimSpace(current.String())
			if sentence != "" {
				sentences = append(sentences, sentence)
			}
			current.Reset()
		}
	}
	if rest := strings.TrimSpace(current.String()); rest != "" {
		sentences = append(sentences, rest)
	}
	return sentences
}

// contentStopwords are tokens excluded from the semantic density
// numerator and from chunk keywords.
var contentStopwords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true, "but": true,
	"if": true, "then": true, "of": true, "in": true, "on": true, "at": true,
	"to": true, "for": true, "with": true, "by": true, "from": true, "as": true,
	"is": true, "are": true, "was": true, "were": true, "be": true, "been": true,
	"being": true, "it": true, "its": true, "this": true, "that": true,
	"these": true, "those": true, "not": true, "no": true, "can": true,
	"will": true, "may": true, "shall": true, "has": true, "have": true,
	"had": true, "do": true, "does": true, "your": true, "you": true, "we": true,
	"our": true, "us": true, "their": true, "they": true, "there": true,
	"which": true, "what": true, "when": true, "where": true, "who": true,
	"how": true, "any": true, "all": true, "each": true, "other": true,
	"such": true, "than": true, "into": true, "also": true, "more": true,
	"about": true, "under": true, "over": true,
}

// IsContentToken reports whether a token carries meaning for density
// and keyword purposes. Numbers count as content.
func IsContentToken(token string) bool {
	lower := strings.ToLower(token)
	if contentStopwords[lower] {
		return false
	}
	for _, r := range lower {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
