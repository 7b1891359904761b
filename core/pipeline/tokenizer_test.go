package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	t.Run("detaches sentence punctuation", func(t *testing.T) {
		tokens := Tokenize("Hello, world.")
		texts := make([]string, len(tokens))
		for i, token := range tokens {
			texts[i] = token.Text
		}
		assert.Equal(t, []string{"Hello", ",", "world", "."}, texts, "Punctuation should be separate tokens")
	})

	t.Run("keeps percentages and intra-word punctuation attached", func(t *testing.T) {
		tokens := Tokenize("A margin of 1.5% on fx/forward trades")
		texts := make([]string, len(tokens))
		for i, token := range tokens {
			texts[i] = token.Text
		}
		assert.Contains(t, texts, "1.5%", "Percentages should stay one token")
		assert.Contains(t, texts, "fx/forward", "Slash-joined words should stay one token")
	})

	t.Run("records source offsets", func(t *testing.T) {
		text := "one two"
		tokens := Tokenize(text)
		for _, token := range tokens {
			assert.Equal(t, token.Text, text[token.Start:token.End], "Offsets should address the source text")
		}
	})
}

func TestSplitSentences(t *testing.T) {
	t.Run("splits on sentence terminators", func(t *testing.T) {
		sentences := SplitSentences("First sentence. Second one! And a third? Trailing fragment")
		assert.Len(t, sentences, 4, "All sentences should be found")
		assert.Equal(t, "Trailing fragment", sentences[3], "Unterminated text should form a final sentence")
	})

	t.Run("does not split decimal numbers", func(t *testing.T) {
		sentences := SplitSentences("The rate is 1.5 percent per annum.")
		assert.Len(t, sentences, 1, "Decimal points should not end sentences")
	})
}

func TestIsContentToken(t *testing.T) {
	assert.False(t, IsContentToken("the"), "Stopwords are not content")
	assert.False(t, IsContentToken("."), "Punctuation is not content")
	assert.True(t, IsContentToken("premium"), "Domain words are content")
	assert.True(t, IsContentToken("500"), "Numbers are content")
}
