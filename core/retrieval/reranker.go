package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"

	"github.com/JasonAskew/knowledge/core/query"
	"github.com/JasonAskew/knowledge/helper"
	"github.com/JasonAskew/knowledge/model"
)

// Reranker scores query/passage pairs with a cross-encoder. Scores are
// relevance probabilities in [0, 1], one per text, in input order.
type Reranker interface {
	Score(ctx context.Context, queryText string, texts []string) ([]float64, error)
	Close() error
}

// rerank applies cross-encoder scoring on top of the pre-rerank
// candidate order and fuses the signals into FinalScore. When the
// caller's deadline expires mid-rerank the candidates keep their
// pre-rerank order; a non-empty input never reranks to empty.
func (e *Engine) rerank(ctx context.Context, plan *query.Plan, candidates []model.Candidate) []model.Candidate {
	texts := make([]string, len(candidates))
	for i, candidate := range candidates {
		texts[i] = candidate.Chunk.Text
	}

	scores, err := e.reranker.Score(ctx, plan.Query, texts)
	if err != nil || len(scores) != len(candidates) {
		e.logger.Warn("Rerank degraded to retrieval order", "error", err)
		for i := range candidates {
			candidates[i].FinalScore = candidates[i].Score
		}
		return candidates
	}

	queryKeywords := make(map[string]bool, len(plan.Keywords))
	for _, keyword := range plan.Keywords {
		queryKeywords[keyword] = true
	}
	expected := plan.ExpectedChunkType()

	weights := e.weights
	for i := range candidates {
		candidate := &candidates[i]
		candidate.CrossEncoderScore = clip01(scores[i])

		typeMatch := 0.0
		if candidate.Chunk.ChunkType == expected {
			typeMatch = 1.0
		}

		candidate.FinalScore = weights.CrossEncoder*candidate.CrossEncoderScore +
			weights.Retriever*candidate.Score +
			weights.Keyword*jaccard(queryKeywords, candidate.Chunk.Keywords) +
			weights.QueryType*typeMatch
	}

	sortByScore(candidates, func(c model.Candidate) float64 { return c.FinalScore })
	return candidates
}

// jaccard computes the overlap between the query keyword set and the
// chunk's stored keyword set.
func jaccard(queryKeywords map[string]bool, chunkKeywords []string) float64 {
	if len(queryKeywords) == 0 || len(chunkKeywords) == 0 {
		return 0
	}

	chunkSet := make(map[string]bool, len(chunkKeywords))
	for _, keyword := range chunkKeywords {
		chunkSet[keyword] = true
	}

	intersection := 0
	for keyword := range queryKeywords {
		if chunkSet[keyword] {
			intersection++
		}
	}

	union := len(queryKeywords) + len(chunkSet) - intersection
	return float64(intersection) / float64(union)
}

// crossEncoderModel is the reference cross-encoder for pair scoring.
const crossEncoderModel = "cross-encoder/ms-marco-MiniLM-L-6-v2"

// HugotReranker scores pairs with a local ONNX cross-encoder via hugot.
type HugotReranker struct {
	session  *hugot.Session
	pipeline *pipelines.TextClassificationPipeline
}

// NewHugotReranker downloads the cross-encoder model if needed and
// initializes the scoring pipeline.
func NewHugotReranker() (*HugotReranker, error) {
	modelPath, err := helper.PrepareModel(crossEncoderModel)
	if err != nil {
		return nil, helper.NewError("prepare model", err)
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, helper.NewError("create hugot session", err)
	}

	config := hugot.TextClassificationConfig{
		ModelPath: modelPath,
		Name:      "crossEncoderPipeline",
		Options: []hugot.TextClassificationOption{
			pipelines.WithSigmoid(),
		},
	}
	scoringPipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		session.Destroy()
		return nil, helper.NewError("create scoring pipeline", err)
	}

	return &HugotReranker{
		session:  session,
		pipeline: scoringPipeline,
	}, nil
}

// Score runs the cross-encoder over query/text pairs. Pairs are joined
// with the separator token the model was trained on.
func (r *HugotReranker) Score(ctx context.Context, queryText string, texts []string) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pairs := make([]string, len(texts))
	for i, text := range texts {
		pairs[i] = queryText + " [SEP] " + text
	}

	output, err := r.pipeline.RunPipeline(pairs)
	if err != nil {
		return nil, model.NewQueryError(model.ErrorKindModelUnavailable, "rerank",
			helper.NewError("run scoring pipeline", err))
	}
	if len(output.ClassificationOutputs) != len(texts) {
		return nil, helper.NewError("run scoring pipeline",
			fmt.Errorf("expected %d scores, got %d", len(texts), len(output.ClassificationOutputs)))
	}

	scores := make([]float64, len(texts))
	for i, classifications := range output.ClassificationOutputs {
		if len(classifications) == 0 {
			return nil, helper.NewError("run scoring pipeline",
				fmt.Errorf("empty classification output at %d", i))
		}
		scores[i] = float64(classifications[0].Score)
	}
	return scores, nil
}

// Close destroys the underlying session.
func (r *HugotReranker) Close() error {
	if r.session == nil {
		return nil
	}
	return r.session.Destroy()
}

// RemoteReranker scores pairs via an external inference endpoint.
type RemoteReranker struct {
	baseURL    string
	httpClient *http.Client
}

func NewRemoteReranker(baseURL string) *RemoteReranker {
	return &RemoteReranker{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type rerankRequest struct {
	Query string   `json:"query"`
	Texts []string `json:"texts"`
}

type rerankResponse struct {
	Scores []float64 `json:"scores"`
}

// Score posts the query and texts to the rerank endpoint.
func (r *RemoteReranker) Score(ctx context.Context, queryText string, texts []string) ([]float64, error) {
	body, err := json.Marshal(rerankRequest{Query: queryText, Texts: texts})
	if err != nil {
		return nil, helper.NewError("marshal request", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, helper.NewError("create request", err)
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := r.httpClient.Do(request)
	if err != nil {
		return nil, model.NewQueryError(model.ErrorKindModelUnavailable, "rerank",
			helper.NewError("call rerank endpoint", err))
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(response.Body, 1024))
		return nil, model.NewQueryError(model.ErrorKindModelUnavailable, "rerank",
			fmt.Errorf("rerank endpoint returned %d: %s", response.StatusCode, string(payload)))
	}

	var decoded rerankResponse
	if err := json.NewDecoder(response.Body).Decode(&decoded); err != nil {
		return nil, helper.NewError("decode response", err)
	}
	if len(decoded.Scores) != len(texts) {
		return nil, helper.NewError("decode response",
			fmt.Errorf("expected %d scores, got %d", len(texts), len(decoded.Scores)))
	}

	return decoded.Scores, nil
}

func (r *RemoteReranker) Close() error {
	return nil
}
