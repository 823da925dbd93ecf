package contradict

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/luma-insights/prism/internal/models"
)

type fakeLLM struct {
	response string
	err      error
	called   bool
}

func (f *fakeLLM) Complete(ctx context.Context, prompt string) (string, error) {
	f.called = true
	return f.response, f.err
}

func okResult(index int, label, text string) models.AngleResult {
	return models.AngleResult{
		Angle:  models.Angle{Index: index, Label: label, Prompt: label + "?"},
		Text:   text,
		Status: models.StatusOK,
	}
}

func TestAnalyzeParsesContradictions(t *testing.T) {
	llm := &fakeLLM{response: `Here is my analysis:
[
  {"description": "Angle 0 reports growth while angle 2 reports decline.", "angle_indices": [0, 2]}
]`}
	a := New(llm, zap.NewNop())

	got := a.Analyze(context.Background(), []models.AngleResult{
		okResult(0, "overview", "the market grew"),
		okResult(1, "risks", "regulation is tightening"),
		okResult(2, "trends", "the market declined"),
	})

	require.Len(t, got, 1)
	assert.Equal(t, []int{0, 2}, got[0].AngleIndices)
	assert.Contains(t, got[0].Description, "growth")
}

func TestAnalyzeFewerThanTwoSkipsModel(t *testing.T) {
	llm := &fakeLLM{response: "should not be used"}
	a := New(llm, zap.NewNop())

	got := a.Analyze(context.Background(), []models.AngleResult{
		okResult(0, "overview", "only one usable answer"),
		{Angle: models.Angle{Index: 1}, Status: models.StatusFailed},
	})

	assert.Nil(t, got)
	assert.False(t, llm.called, "model must not be consulted with fewer than two answers")
}

func TestAnalyzeModelFailureDegrades(t *testing.T) {
	a := New(&fakeLLM{err: errors.New("timeout")}, zap.NewNop())

	got := a.Analyze(context.Background(), []models.AngleResult{
		okResult(0, "a", "x"),
		okResult(1, "b", "y"),
	})
	assert.Nil(t, got)
}

func TestAnalyzeMalformedOutputDegrades(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{name: "not json", response: "the answers look consistent to me"},
		{name: "broken json", response: `[{"description": "x"`},
		{name: "wrong shape", response: `{"has_contradictions": true}`},
		{name: "empty array", response: `[]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := New(&fakeLLM{response: tt.response}, zap.NewNop())
			got := a.Analyze(context.Background(), []models.AngleResult{
				okResult(0, "a", "x"),
				okResult(1, "b", "y"),
			})
			assert.Empty(t, got)
		})
	}
}

func TestAnalyzeDropsInvalidIndices(t *testing.T) {
	llm := &fakeLLM{response: `[
  {"description": "references an angle that does not exist", "angle_indices": [0, 9]},
  {"description": "one angle only", "angle_indices": [1]},
  {"description": "valid pair with duplicates", "angle_indices": [1, 0, 1]}
]`}
	a := New(llm, zap.NewNop())

	got := a.Analyze(context.Background(), []models.AngleResult{
		okResult(0, "a", "x"),
		okResult(1, "b", "y"),
	})

	require.Len(t, got, 1)
	assert.Equal(t, []int{0, 1}, got[0].AngleIndices)
}
