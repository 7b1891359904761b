package knowledge

import (
	"context"
	"hash/fnv"
	"log"
	"math"
	"strings"
	"testing"

	"github.com/JasonAskew/knowledge/helper"
	"github.com/testcontainers/testcontainers-go"
)

var dbPort string

func TestMain(m *testing.M) {
	var teardown func(ctx context.Context, opts ...testcontainers.TerminateOption) error
	var err error
	teardown, dbPort, err = helper.MustStartPostgresContainer()
	if err != nil {
		log.Fatalf("error starting postgres container: %v", err)
	}

	m.Run()

	if teardown != nil && teardown(context.Background()) != nil {
		log.Fatalf("error tearing down postgres container: %v", err)
	}
}

const testDim = 16

// stubEmbedder hashes lowercased tokens into a small bag-of-words
// vector, so texts sharing vocabulary get high cosine similarity.
type stubEmbedder struct{}

func (s *stubEmbedder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		embedding := make([]float32, testDim)
		for _, field := range strings.Fields(strings.ToLower(text)) {
			token := strings.Trim(field, ".,!?:;()")
			if token == "" {
				continue
			}
			h := fnv.New32a()
			h.Write([]byte(token))
			embedding[h.Sum32()%testDim]++
		}
		var sum float64
		for _, v := range embedding {
			sum += float64(v) * float64(v)
		}
		if sum > 0 {
			norm := float32(math.Sqrt(sum))
			for j := range embedding {
				embedding[j] /= norm
			}
		}
		embeddings[i] = embedding
	}
	return embeddings, nil
}

func (s *stubEmbedder) Dimension() int { return testDim }
func (s *stubEmbedder) Close() error   { return nil }

// stubReranker scores by token overlap with the query.
type stubReranker struct{}

func (s *stubReranker) Score(ctx context.Context, queryText string, texts []string) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	queryTokens := make(map[string]bool)
	for _, field := range strings.Fields(strings.ToLower(queryText)) {
		queryTokens[strings.Trim(field, ".,!?:;()")] = true
	}

	scores := make([]float64, len(texts))
	for i, text := range texts {
		overlap := 0
		for _, field := range strings.Fields(strings.ToLower(text)) {
			if queryTokens[strings.Trim(field, ".,!?:;()")] {
				overlap++
			}
		}
		scores[i] = float64(overlap) / float64(len(queryTokens)+1)
	}
	return scores, nil
}

func (s *stubReranker) Close() error { return nil }
