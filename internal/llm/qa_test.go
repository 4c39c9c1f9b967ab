package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nickcecere/docrag/internal/prompt"
	"github.com/nickcecere/docrag/internal/rag"
)

// fakeLLM records the messages it receives.
type fakeLLM struct {
	answer   string
	err      error
	calls    int
	messages []Message
	opts     CompletionOptions
}

func (f *fakeLLM) Complete(ctx context.Context, messages []Message, opts CompletionOptions) (string, error) {
	f.calls++
	f.messages = messages
	f.opts = opts
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

func (f *fakeLLM) CompleteStream(ctx context.Context, messages []Message, opts CompletionOptions) (<-chan string, <-chan error) {
	f.calls++
	f.messages = messages
	f.opts = opts

	contentCh := make(chan string, 2)
	errCh := make(chan error, 1)
	if f.err != nil {
		errCh <- f.err
	} else {
		contentCh <- f.answer[:len(f.answer)/2]
		contentCh <- f.answer[len(f.answer)/2:]
	}
	close(contentCh)
	close(errCh)
	return contentCh, errCh
}

func (f *fakeLLM) Provider() Provider { return ProviderOllama }
func (f *fakeLLM) ModelName() string  { return "fake" }

type fakeRetriever struct {
	results []rag.Result
	err     error
	gotK    int
}

func (f *fakeRetriever) Retrieve(ctx context.Context, query string, k int) ([]rag.Result, error) {
	f.gotK = k
	if f.err != nil {
		return nil, f.err
	}
	if k < len(f.results) {
		return f.results[:k], nil
	}
	return f.results, nil
}

func sampleResults() []rag.Result {
	return []rag.Result{
		{Fragment: rag.Fragment{ID: 4, Source: "battery.md", Index: 0, Text: "Replace the battery every two years."}, Similarity: 0.92},
		{Fragment: rag.Fragment{ID: 9, Source: "chargers.pdf", Index: 2, Text: "Use only approved chargers."}, Similarity: 0.71},
		{Fragment: rag.Fragment{ID: 5, Source: "battery.md", Index: 1, Text: "Dispose of old batteries safely."}, Similarity: 0.55},
	}
}

func TestQAServiceAnswer(t *testing.T) {
	model := &fakeLLM{answer: "Every two years [Fragment 1 | Source: battery.md]."}
	ret := &fakeRetriever{results: sampleResults()}
	qa := NewQAService(model, ret, DefaultCompletionOptions())

	result, err := qa.Answer(context.Background(), "How often is the battery replaced?", 3)
	require.NoError(t, err)

	assert.Equal(t, model.answer, result.Answer)
	assert.Equal(t, []string{"battery.md", "chargers.pdf"}, result.Sources)
	assert.Len(t, result.Results, 3)
	assert.Equal(t, 3, ret.gotK)

	require.Len(t, model.messages, 2)
	assert.Equal(t, "system", model.messages[0].Role)
	assert.Equal(t, prompt.SystemMessage, model.messages[0].Content)
	assert.Equal(t, "user", model.messages[1].Role)
	assert.Equal(t, prompt.Assemble("How often is the battery replaced?", sampleResults()), model.messages[1].Content)
	assert.Contains(t, model.messages[1].Content, "[Fragment 2 | Source: chargers.pdf]")

	assert.Equal(t, 0.1, model.opts.Temperature)
	assert.Equal(t, 512, model.opts.MaxTokens)
}

func TestQAServiceAnswerTopK(t *testing.T) {
	model := &fakeLLM{answer: "ok"}
	qa := NewQAService(model, &fakeRetriever{results: sampleResults()}, DefaultCompletionOptions())

	result, err := qa.Answer(context.Background(), "battery", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"battery.md"}, result.Sources)
	assert.NotContains(t, model.messages[1].Content, "chargers.pdf")
}

func TestQAServiceNoResults(t *testing.T) {
	model := &fakeLLM{answer: prompt.UnknownAnswer}
	qa := NewQAService(model, &fakeRetriever{}, DefaultCompletionOptions())

	result, err := qa.Answer(context.Background(), "What is the warranty period?", 3)
	require.NoError(t, err)

	assert.Equal(t, 1, model.calls, "the model is still asked")
	assert.Contains(t, model.messages[1].Content, prompt.UnknownAnswer)
	assert.NotContains(t, model.messages[1].Content, "[Fragment")
	assert.Equal(t, prompt.UnknownAnswer, result.Answer)
	assert.NotNil(t, result.Sources)
	assert.Empty(t, result.Sources)
}

func TestQAServiceErrors(t *testing.T) {
	t.Run("blank query", func(t *testing.T) {
		model := &fakeLLM{answer: "x"}
		_, err := NewQAService(model, &fakeRetriever{}, DefaultCompletionOptions()).Answer(context.Background(), "  \n", 3)

		var ce *rag.ConfigError
		require.True(t, errors.As(err, &ce))
		assert.Equal(t, "query", ce.Field)
		assert.Zero(t, model.calls)
	})

	t.Run("corrupt store", func(t *testing.T) {
		model := &fakeLLM{answer: "x"}
		ret := &fakeRetriever{err: fmt.Errorf("failed to open store: %w", rag.ErrStoreCorrupt)}

		_, err := NewQAService(model, ret, DefaultCompletionOptions()).Answer(context.Background(), "battery", 3)
		assert.ErrorIs(t, err, rag.ErrStoreCorrupt)
		assert.Zero(t, model.calls)
	})

	t.Run("model failure", func(t *testing.T) {
		model := &fakeLLM{err: errors.New("connection refused")}

		_, err := NewQAService(model, &fakeRetriever{results: sampleResults()}, DefaultCompletionOptions()).Answer(context.Background(), "battery", 3)
		var pe *rag.ProviderError
		require.True(t, errors.As(err, &pe))
		assert.Equal(t, "ollama", pe.Provider)
		assert.Contains(t, err.Error(), "connection refused")
	})
}

func TestQAServiceAnswerStream(t *testing.T) {
	model := &fakeLLM{answer: "Every two years."}
	qa := NewQAService(model, &fakeRetriever{results: sampleResults()}, DefaultCompletionOptions())

	contentCh, errCh, results, err := qa.AnswerStream(context.Background(), "battery", 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)

	answer, err := collect(contentCh, errCh)
	require.NoError(t, err)
	assert.Equal(t, "Every two years.", answer)
	assert.True(t, model.opts.Stream)

	t.Run("model failure", func(t *testing.T) {
		failing := &fakeLLM{err: errors.New("overloaded")}
		contentCh, errCh, _, err := NewQAService(failing, &fakeRetriever{}, DefaultCompletionOptions()).AnswerStream(context.Background(), "battery", 2)
		require.NoError(t, err)

		_, err = collect(contentCh, errCh)
		var pe *rag.ProviderError
		assert.True(t, errors.As(err, &pe))
	})
}

func TestQAServiceAnswerWithoutContext(t *testing.T) {
	model := &fakeLLM{answer: "Usually every few years."}
	ret := &fakeRetriever{results: sampleResults()}
	qa := NewQAService(model, ret, DefaultCompletionOptions())

	answer, err := qa.AnswerWithoutContext(context.Background(), "How often is the battery replaced?")
	require.NoError(t, err)
	assert.Equal(t, "Usually every few years.", answer)

	require.Len(t, model.messages, 1)
	assert.Equal(t, prompt.Direct("How often is the battery replaced?"), model.messages[0].Content)
	assert.Zero(t, ret.gotK, "no retrieval")
}
