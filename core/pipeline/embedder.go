package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/JasonAskew/knowledge/helper"
	"github.com/JasonAskew/knowledge/model"
	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"
)

// embedBatchSize bounds the number of texts per model invocation.
// Results are independent of how texts are batched.
const embedBatchSize = 32

// Embedder encodes texts into fixed-dimension, L2-normalized vectors.
type Embedder interface {
	Encode(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	Close() error
}

// HugotEmbedder runs a sentence transformer in-process through hugot.
// The all-MiniLM-L6-v2 model produces 384-dimensional embeddings.
type HugotEmbedder struct {
	session  *hugot.Session
	pipeline *pipelines.FeatureExtractionPipeline
	dim      int
}

// NewHugotEmbedder downloads the model if needed and prepares the
// feature extraction pipeline.
func NewHugotEmbedder(dim int) (*HugotEmbedder, error) {
	modelName := "sentence-transformers/all-MiniLM-L6-v2"
	modelPath, err := helper.PrepareModel(modelName)
	if err != nil {
		return nil, err
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create hugot session: %w", err)
	}

	config := hugot.FeatureExtractionConfig{
		ModelPath: modelPath,
		Name:      "embedder-pipeline",
	}
	embedPipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, fmt.Errorf("failed to create embedding pipeline: %w (cleanup error: %v)", err, destroyErr)
		}
		return nil, fmt.Errorf("failed to create embedding pipeline: %w", err)
	}

	return &HugotEmbedder{
		session:  session,
		pipeline: embedPipeline,
		dim:      dim,
	}, nil
}

func (e *HugotEmbedder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += embedBatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := start + embedBatchSize
		if end > len(texts) {
			end = len(texts)
		}

		result, err := e.pipeline.RunPipeline(texts[start:end])
		if err != nil {
			return nil, model.NewIngestError(model.ErrorKindModelUnavailable, "", "embed",
				fmt.Errorf("failed to generate embeddings: %w", err))
		}
		if len(result.Embeddings) != end-start {
			return nil, model.NewIngestError(model.ErrorKindModelUnavailable, "", "embed",
				fmt.Errorf("embedding count mismatch: got %d for %d texts", len(result.Embeddings), end-start))
		}

		for _, embedding := range result.Embeddings {
			if len(embedding) != e.dim {
				return nil, model.NewIngestError(model.ErrorKindModelUnavailable, "", "embed",
					fmt.Errorf("embedding dimension mismatch: got %d, want %d", len(embedding), e.dim))
			}
			embeddings = append(embeddings, normalizeL2(embedding))
		}
	}
	return embeddings, nil
}

func (e *HugotEmbedder) Dimension() int {
	return e.dim
}

func (e *HugotEmbedder) Close() error {
	return e.session.Destroy()
}

// RemoteEmbedder calls an external inference endpoint exposing a JSON
// embeddings API. Used when model inference runs out of process.
type RemoteEmbedder struct {
	baseURL    string
	dim        int
	httpClient *http.Client
}

type remoteEmbedRequest struct {
	Texts []string `json:"texts"`
}

type remoteEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error,omitempty"`
}

func NewRemoteEmbedder(baseURL string, dim int) *RemoteEmbedder {
	return &RemoteEmbedder{
		baseURL: baseURL,
		dim:     dim,
		httpClient: &http.Client{
			Timeout: 2 * time.Minute,
		},
	}
}

func (e *RemoteEmbedder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch, err := e.encodeBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		embeddings = append(embeddings, batch...)
	}
	return embeddings, nil
}

func (e *RemoteEmbedder) encodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(remoteEmbedRequest{Texts: texts})
	if err != nil {
		return nil, helper.NewError("encoding embed request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, helper.NewError("creating embed request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, model.NewIngestError(model.ErrorKindModelUnavailable, "", "embed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, model.NewIngestError(model.ErrorKindModelUnavailable, "", "embed",
			fmt.Errorf("embedding endpoint returned status %d", resp.StatusCode))
	}

	var embedResp remoteEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&embedResp); err != nil {
		return nil, helper.NewError("decoding embed response", err)
	}
	if embedResp.Error != "" {
		return nil, model.NewIngestError(model.ErrorKindModelUnavailable, "", "embed",
			fmt.Errorf("%s", embedResp.Error))
	}
	if len(embedResp.Embeddings) != len(texts) {
		return nil, model.NewIngestError(model.ErrorKindModelUnavailable, "", "embed",
			fmt.Errorf("embedding count mismatch: got %d for %d texts", len(embedResp.Embeddings), len(texts)))
	}

	embeddings := make([][]float32, 0, len(texts))
	for _, embedding := range embedResp.Embeddings {
		if len(embedding) != e.dim {
			return nil, model.NewIngestError(model.ErrorKindModelUnavailable, "", "embed",
				fmt.Errorf("embedding dimension mismatch: got %d, want %d", len(embedding), e.dim))
		}
		embeddings = append(embeddings, normalizeL2(embedding))
	}
	return embeddings, nil
}

func (e *RemoteEmbedder) Dimension() int {
	return e.dim
}

func (e *RemoteEmbedder) Close() error {
	return nil
}

// normalizeL2 scales a vector to unit length so cosine similarity
// equals dot product. Zero vectors pass through unchanged.
func normalizeL2(vector []float32) []float32 {
	var sum float64
	for _, v := range vector {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vector
	}
	norm := float32(math.Sqrt(sum))
	normalized := make([]float32, len(vector))
	for i, v := range vector {
		normalized[i] = v / norm
	}
	return normalized
}
