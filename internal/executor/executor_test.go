package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/luma-insights/prism/internal/models"
	"github.com/luma-insights/prism/internal/registry"
	"github.com/luma-insights/prism/internal/retrieval"
)

type fakeRetriever struct {
	answer *retrieval.Answer
	err    error
}

func (f *fakeRetriever) Query(ctx context.Context, text string) (*retrieval.Answer, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.answer, nil
}

func (f *fakeRetriever) Followup(ctx context.Context, conversationID, text string) (*retrieval.Answer, error) {
	return f.answer, f.err
}

func (f *fakeRetriever) Feedback(ctx context.Context, messageID, verdict string) error {
	return nil
}

func angle(index int, label, prompt string) models.Angle {
	return models.Angle{Index: index, Label: label, Prompt: prompt}
}

func TestExecuteSuccess(t *testing.T) {
	reg := registry.New(zap.NewNop())
	e := New(&fakeRetriever{answer: &retrieval.Answer{
		Text:           "<p>Growth was [doc1] strong.</p>\n\n\n\nMargins held.",
		ConversationID: "c9",
		MessageID:      "m9",
		Sources: []retrieval.RawSource{
			{Title: "Report A", URL: "https://example.com/a", Excerpt: "strong growth"},
			{Title: "Report B", URL: "https://example.com/b"},
		},
	}}, reg, zap.NewNop())

	res := e.Execute(context.Background(), angle(1, "growth", "How strong is growth?"), "market trends")

	assert.Equal(t, models.StatusOK, res.Status)
	assert.Equal(t, "Growth was  strong.\n\nMargins held.", res.Text)
	assert.Equal(t, "c9", res.ConversationID)
	assert.Equal(t, "m9", res.MessageID)
	require.Len(t, res.Sources, 2)
	assert.Equal(t, "S1", res.Sources[0].SourceID)
	assert.Equal(t, "strong growth", res.Sources[0].Excerpt)
	assert.Equal(t, "S2", res.Sources[1].SourceID)

	sources := reg.Finalize()
	require.Len(t, sources, 2)
	assert.Equal(t, []int{1}, sources[0].CitingAngles)
}

func TestExecuteTransportFailure(t *testing.T) {
	reg := registry.New(zap.NewNop())
	e := New(&fakeRetriever{err: errors.New("connection refused")}, reg, zap.NewNop())

	res := e.Execute(context.Background(), angle(0, "overview", "Overview?"), "q")

	assert.Equal(t, models.StatusFailed, res.Status)
	assert.Empty(t, res.Text)
	assert.Empty(t, res.Sources)
	assert.Contains(t, res.Error, "connection refused")
	assert.Equal(t, 0, reg.Len())
}

func TestExecuteTimeout(t *testing.T) {
	reg := registry.New(zap.NewNop())
	e := New(&fakeRetriever{err: context.DeadlineExceeded}, reg, zap.NewNop())

	res := e.Execute(context.Background(), angle(2, "risks", "Risks?"), "q")

	assert.Equal(t, models.StatusTimedOut, res.Status)
	assert.Empty(t, res.Sources)
}

func TestExecuteSkipsEmptyCandidates(t *testing.T) {
	reg := registry.New(zap.NewNop())
	e := New(&fakeRetriever{answer: &retrieval.Answer{
		Text: "some answer",
		Sources: []retrieval.RawSource{
			{Page: 4}, // nothing citable
			{Title: "Good Doc"},
		},
	}}, reg, zap.NewNop())

	res := e.Execute(context.Background(), angle(0, "overview", "Overview?"), "q")

	require.Len(t, res.Sources, 1)
	assert.Equal(t, 1, reg.Len())
}

func TestBuildAngleQuery(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		prompt   string
		expected string
	}{
		{
			name:     "prompt embeds query",
			query:    "ev adoption",
			prompt:   "What are the risks of EV adoption?",
			expected: "What are the risks of EV adoption?",
		},
		{
			name:     "prompt combined with query",
			query:    "market trends",
			prompt:   "What regulatory changes are expected?",
			expected: "What regulatory changes are expected? (in the context of: market trends)",
		},
		{
			name:     "empty prompt falls back to query",
			query:    "market trends",
			prompt:   "",
			expected: "market trends",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := buildAngleQuery(tt.query, models.Angle{Prompt: tt.prompt})
			assert.Equal(t, tt.expected, got)
		})
	}
}
