package gcpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2/google"

	"github.com/connexus-ai/ragbox-backend/internal/cache"
	"github.com/connexus-ai/ragbox-backend/internal/resilience"
)

// EmbeddingAdapter calls the Vertex AI text embedding REST API.
// Implements service.EmbeddingClient directly and cache.Provider so it can
// sit behind the Redis embedding cache for query-time lookups.
type EmbeddingAdapter struct {
	project  string
	location string
	model    string
	client   *http.Client
	retry    resilience.Config
}

// NewEmbeddingAdapter creates an EmbeddingAdapter using default credentials.
func NewEmbeddingAdapter(ctx context.Context, project, location, model string) (*EmbeddingAdapter, error) {
	client, err := google.DefaultClient(ctx, "https://www.googleapis.com/auth/cloud-platform")
	if err != nil {
		return nil, fmt.Errorf("gcpclient.NewEmbeddingAdapter: %w", err)
	}
	return &EmbeddingAdapter{
		project:  project,
		location: location,
		model:    model,
		client:   client,
		retry:    resilience.DefaultConfig,
	}, nil
}

type embeddingRequest struct {
	Instances []embeddingInstance `json:"instances"`
}

type embeddingInstance struct {
	Content  string `json:"content"`
	TaskType string `json:"task_type"`
}

type embeddingResponse struct {
	Predictions []struct {
		Embeddings struct {
			Values []float32 `json:"values"`
		} `json:"embeddings"`
	} `json:"predictions"`
}

// taskTypeParam maps the retrieval-side TaskType to the Vertex AI task_type string.
// text-embedding-004 produces different vector spaces for RETRIEVAL_DOCUMENT vs
// RETRIEVAL_QUERY, optimized for asymmetric retrieval.
func taskTypeParam(t cache.TaskType) string {
	if t == cache.TaskRetrievalQuery {
		return "RETRIEVAL_QUERY"
	}
	return "RETRIEVAL_DOCUMENT"
}

// ModelID identifies the embedding model for cache-key namespacing.
func (a *EmbeddingAdapter) ModelID() string {
	return a.model
}

// EmbedTexts generates embeddings for a batch of document chunks using
// RETRIEVAL_DOCUMENT task type. Implements service.EmbeddingClient.
func (a *EmbeddingAdapter) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	return a.embedWithTaskType(ctx, texts, "RETRIEVAL_DOCUMENT")
}

// EmbedQuery generates a single embedding for the given task type. Implements
// cache.Provider for the query-side cache-aside wrapper.
func (a *EmbeddingAdapter) EmbedQuery(ctx context.Context, text string, taskType cache.TaskType) ([]float32, error) {
	vecs, err := a.embedWithTaskType(ctx, []string{text}, taskTypeParam(taskType))
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("gcpclient.EmbedQuery: empty response from model")
	}
	return vecs[0], nil
}

// EmbedBatch generates embeddings for a batch of texts under the given task
// type. Implements cache.Provider.
func (a *EmbeddingAdapter) EmbedBatch(ctx context.Context, texts []string, taskType cache.TaskType) ([][]float32, error) {
	return a.embedWithTaskType(ctx, texts, taskTypeParam(taskType))
}

// embedWithTaskType is the shared implementation that sends texts to the
// Vertex AI embedding API with the specified task_type, retrying transient
// failures per the shared resilience schedule.
func (a *EmbeddingAdapter) embedWithTaskType(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	return resilience.Do(ctx, a.retry, "gcpclient.EmbedTexts", "", func(ctx context.Context) ([][]float32, error) {
		return a.doEmbed(ctx, texts, taskType)
	})
}

func (a *EmbeddingAdapter) doEmbed(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	instances := make([]embeddingInstance, len(texts))
	for i, t := range texts {
		instances[i] = embeddingInstance{Content: t, TaskType: taskType}
	}

	reqBody, err := json.Marshal(embeddingRequest{Instances: instances})
	if err != nil {
		return nil, fmt.Errorf("gcpclient.EmbedTexts marshal: %w", err)
	}

	url := a.buildEndpointURL()

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("gcpclient.EmbedTexts request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gcpclient.EmbedTexts call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("gcpclient.EmbedTexts: status %d: %s", resp.StatusCode, body)
	}

	var embResp embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&embResp); err != nil {
		return nil, fmt.Errorf("gcpclient.EmbedTexts decode: %w", err)
	}

	results := make([][]float32, len(embResp.Predictions))
	for i, p := range embResp.Predictions {
		results[i] = p.Embeddings.Values
	}
	return results, nil
}

// buildEndpointURL returns the correct Vertex AI endpoint URL.
// For "global" location, uses the non-regional endpoint.
func (a *EmbeddingAdapter) buildEndpointURL() string {
	if a.location == "global" {
		return fmt.Sprintf(
			"https://aiplatform.googleapis.com/v1/projects/%s/locations/global/publishers/google/models/%s:predict",
			a.project, a.model,
		)
	}
	return fmt.Sprintf(
		"https://%s-aiplatform.googleapis.com/v1/projects/%s/locations/%s/publishers/google/models/%s:predict",
		a.location, a.project, a.location, a.model,
	)
}

// HealthCheck validates the embedding service connection.
func (a *EmbeddingAdapter) HealthCheck(ctx context.Context) error {
	_, err := a.EmbedQuery(ctx, "health check", cache.TaskRetrievalQuery)
	if err != nil {
		return fmt.Errorf("embedding health check failed: %w", err)
	}
	return nil
}
