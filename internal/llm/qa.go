package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/nickcecere/docrag/internal/prompt"
	"github.com/nickcecere/docrag/internal/rag"
)

// Retriever returns ranked fragments for a query. retriever.Retriever
// implements it.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]rag.Result, error)
}

// QAService answers questions from the fragments a retriever returns.
type QAService struct {
	llm       Service
	retriever Retriever
	opts      CompletionOptions
}

// QAResult contains the answer and its sources.
type QAResult struct {
	Answer string `json:"answer"`
	// Sources are the distinct documents of the supplied fragments, best first.
	Sources []string `json:"sources"`
	// Results are the fragments the prompt was built from.
	Results []rag.Result `json:"results"`
}

// NewQAService creates a new Q&A service.
func NewQAService(llm Service, r Retriever, opts CompletionOptions) *QAService {
	return &QAService{
		llm:       llm,
		retriever: r,
		opts:      opts,
	}
}

// Model returns the underlying language model.
func (qa *QAService) Model() Service {
	return qa.llm
}

// Answer retrieves the top k fragments for query and asks the model to
// answer from them. When nothing relevant is found the model is still
// called, with an instruction to reply with the unknown marker.
func (qa *QAService) Answer(ctx context.Context, query string, k int) (*QAResult, error) {
	results, messages, err := qa.prepare(ctx, query, k)
	if err != nil {
		return nil, err
	}

	answer, err := qa.llm.Complete(ctx, messages, qa.opts)
	if err != nil {
		return nil, qa.providerError(err)
	}

	return &QAResult{
		Answer:  answer,
		Sources: sourcesOf(results),
		Results: results,
	}, nil
}

// AnswerStream is Answer with the model output streamed. Retrieval errors
// are returned directly; model errors arrive on the error channel.
func (qa *QAService) AnswerStream(ctx context.Context, query string, k int) (<-chan string, <-chan error, []rag.Result, error) {
	results, messages, err := qa.prepare(ctx, query, k)
	if err != nil {
		return nil, nil, nil, err
	}

	opts := qa.opts
	opts.Stream = true
	contentCh, upstreamErr := qa.llm.CompleteStream(ctx, messages, opts)

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		for err := range upstreamErr {
			if err != nil {
				errCh <- qa.providerError(err)
				return
			}
		}
	}()

	return contentCh, errCh, results, nil
}

// AnswerWithoutContext asks the model directly, with no retrieval. It is
// used to compare plain model answers with grounded ones.
func (qa *QAService) AnswerWithoutContext(ctx context.Context, query string) (string, error) {
	if err := validateQuery(query); err != nil {
		return "", err
	}

	messages := []Message{
		{Role: "user", Content: prompt.Direct(query)},
	}

	answer, err := qa.llm.Complete(ctx, messages, qa.opts)
	if err != nil {
		return "", qa.providerError(err)
	}
	return answer, nil
}

func (qa *QAService) prepare(ctx context.Context, query string, k int) ([]rag.Result, []Message, error) {
	if err := validateQuery(query); err != nil {
		return nil, nil, err
	}

	results, err := qa.retriever.Retrieve(ctx, query, k)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to retrieve fragments: %w", err)
	}
	log.Debug("Assembling prompt", "fragments", len(results), "model", qa.llm.ModelName())

	messages := []Message{
		{Role: "system", Content: prompt.SystemMessage},
		{Role: "user", Content: prompt.Assemble(query, results)},
	}
	return results, messages, nil
}

func (qa *QAService) providerError(err error) error {
	return &rag.ProviderError{
		Provider: string(qa.llm.Provider()),
		Err:      fmt.Errorf("failed to generate answer: %w", err),
	}
}

func validateQuery(query string) error {
	if strings.TrimSpace(query) == "" {
		return &rag.ConfigError{Field: "query", Reason: "cannot be empty"}
	}
	return nil
}

// sourcesOf never returns nil so an empty answer serializes as [].
func sourcesOf(results []rag.Result) []string {
	sources := rag.Sources(results)
	if sources == nil {
		return []string{}
	}
	return sources
}
