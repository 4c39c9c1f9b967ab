package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/nickcecere/docrag/internal/config"
	"github.com/nickcecere/docrag/internal/rag"
)

// instruction holds the text some embedding models expect in front of
// fragments and queries.
type instruction struct {
	fragment string
	query    string
}

var modelInstructions = map[string]instruction{
	"nomic-embed-text":       {fragment: "search_document: ", query: "search_query: "},
	"mxbai-embed-large":      {query: "Represent this sentence for searching relevant passages: "},
	"snowflake-arctic-embed": {query: "Represent this sentence for searching relevant passages: "},
}

// OllamaService embeds fragments with a local Ollama server.
type OllamaService struct {
	endpoint    string
	model       string
	dimensions  int
	instruction instruction
	client      *http.Client
}

type ollamaEmbedRequest struct {
	Model     string   `json:"model"`
	Input     []string `json:"input"`
	KeepAlive string   `json:"keep_alive,omitempty"`
	Truncate  bool     `json:"truncate,omitempty"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

type ollamaErrorResponse struct {
	Error string `json:"error"`
}

// NewOllamaService creates an embedding service for model served at baseURL.
// The dimension comes from the known-model table and stays 0 otherwise; the
// batcher then takes it from the first vector.
func NewOllamaService(baseURL, model string) (*OllamaService, error) {
	if model == "" {
		return nil, fmt.Errorf("ollama embedding model is required")
	}
	if baseURL == "" {
		baseURL = config.DefaultOllamaURL
	}

	dimensions := GetModelDimensions(model)
	if dimensions == 0 {
		log.Debug("Unknown model dimensions, first response decides", "model", model)
	}

	return &OllamaService{
		endpoint:    strings.TrimSuffix(baseURL, "/") + "/api/embed",
		model:       model,
		dimensions:  dimensions,
		instruction: modelInstructions[model],
		client:      &http.Client{Timeout: 120 * time.Second},
	}, nil
}

// Embed embeds one fragment.
func (s *OllamaService) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := s.embed(ctx, []string{s.applyPrefix(text, false)})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedQuery embeds a query with the model's query instruction.
func (s *OllamaService) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := s.embed(ctx, []string{s.applyPrefix(text, true)})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds fragments in one request; vectors come back in input order.
func (s *OllamaService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	input := make([]string, len(texts))
	for i, text := range texts {
		input[i] = s.applyPrefix(text, false)
	}
	return s.embed(ctx, input)
}

func (s *OllamaService) Dimensions() int    { return s.dimensions }
func (s *OllamaService) Provider() Provider { return ProviderOllama }
func (s *OllamaService) ModelName() string  { return s.model }

func (s *OllamaService) applyPrefix(text string, query bool) string {
	if query {
		return s.instruction.query + text
	}
	return s.instruction.fragment + text
}

// embed posts input to /api/embed. A response with a different number of
// vectors than inputs is a CountMismatchError.
func (s *OllamaService) embed(ctx context.Context, input []string) ([][]float32, error) {
	body, err := json.Marshal(ollamaEmbedRequest{
		Model:    s.model,
		Input:    input,
		Truncate: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	log.Debug("Requesting embeddings from Ollama", "model", s.model, "count", len(input))

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, s.statusError(resp)
	}

	var result ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(result.Embeddings) != len(input) {
		return nil, &rag.CountMismatchError{Expected: len(input), Got: len(result.Embeddings)}
	}

	return result.Embeddings, nil
}

// statusError prefers the "error" field Ollama puts in failure bodies and
// falls back to the raw body.
func (s *OllamaService) statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := strings.TrimSpace(string(raw))

	var parsed ollamaErrorResponse
	if json.Unmarshal(raw, &parsed) == nil && parsed.Error != "" {
		msg = parsed.Error
	}
	if resp.StatusCode == http.StatusNotFound {
		msg += fmt.Sprintf(" (try: ollama pull %s)", s.model)
	}
	return fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, msg)
}
