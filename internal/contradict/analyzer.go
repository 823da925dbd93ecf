// Package contradict detects disagreements between angle answers. Detection
// is an enhancement: every failure mode here degrades to "no contradictions
// found" rather than touching the pipeline.
package contradict

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/luma-insights/prism/internal/llm"
	"github.com/luma-insights/prism/internal/models"
	"github.com/luma-insights/prism/internal/util"
)

// maxAngleTextChars bounds how much of each angle answer is embedded in the
// analysis prompt.
const maxAngleTextChars = 4000

// Analyzer asks the model to find conflicts between angle answers.
type Analyzer struct {
	llm    llm.CompletionClient
	logger *zap.Logger
}

// New creates an analyzer.
func New(client llm.CompletionClient, logger *zap.Logger) *Analyzer {
	return &Analyzer{llm: client, logger: logger}
}

// Analyze compares the successful angle results. With fewer than two usable
// answers there is nothing to compare and the model is not called.
func (a *Analyzer) Analyze(ctx context.Context, results []models.AngleResult) []models.Contradiction {
	ok := models.SucceededResults(results)
	if len(ok) < 2 {
		return nil
	}

	raw, err := a.llm.Complete(ctx, buildAnalysisPrompt(ok))
	if err != nil {
		a.logger.Warn("Contradiction analysis degraded to empty list", zap.Error(err))
		return nil
	}

	contradictions := parseContradictions(raw, validIndices(ok))
	if contradictions == nil && strings.TrimSpace(raw) != "" {
		a.logger.Info("Contradiction output unparseable, treating as none found",
			zap.String("head", util.TruncateString(raw, 120, true)))
	}
	return contradictions
}

func buildAnalysisPrompt(ok []models.AngleResult) string {
	var b strings.Builder
	b.WriteString("Analyze the following answers, produced from different analytical angles ")
	b.WriteString("on the same query, for contradictions or conflicting information.\n\n")
	for _, r := range ok {
		fmt.Fprintf(&b, "### Angle %d (%s)\n%s\n\n",
			r.Angle.Index, r.Angle.Label, util.TruncateString(r.Text, maxAngleTextChars, true))
	}
	b.WriteString("Return a JSON array of the contradictions you find. Each element must be an ")
	b.WriteString("object with \"description\" (one or two sentences naming the disagreement) and ")
	b.WriteString("\"angle_indices\" (the angle numbers involved). Return [] if the answers agree. ")
	b.WriteString("Return only the JSON array.")
	return b.String()
}

type rawContradiction struct {
	Description  string `json:"description"`
	AngleIndices []int  `json:"angle_indices"`
}

// parseContradictions reads untrusted model output: anything other than a
// well-formed JSON array of {description, angle_indices} entries referencing
// known angles collapses to nil.
func parseContradictions(raw string, valid map[int]bool) []models.Contradiction {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start < 0 || end <= start {
		return nil
	}

	var parsed []rawContradiction
	if err := json.Unmarshal([]byte(raw[start:end+1]), &parsed); err != nil {
		return nil
	}

	var out []models.Contradiction
	for _, c := range parsed {
		desc := strings.TrimSpace(c.Description)
		if desc == "" {
			continue
		}
		indices := dedupIndices(c.AngleIndices, valid)
		if len(indices) < 2 {
			// A contradiction involves at least two angles; anything else is
			// model noise.
			continue
		}
		out = append(out, models.Contradiction{Description: desc, AngleIndices: indices})
	}
	return out
}

func dedupIndices(indices []int, valid map[int]bool) []int {
	seen := make(map[int]bool)
	var out []int
	for _, i := range indices {
		if !valid[i] || seen[i] {
			continue
		}
		seen[i] = true
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

func validIndices(results []models.AngleResult) map[int]bool {
	m := make(map[int]bool, len(results))
	for _, r := range results {
		m[r.Angle.Index] = true
	}
	return m
}
