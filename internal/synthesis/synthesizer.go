// Package synthesis produces the final narrative report. The model writes the
// text and cites registry ids inline; post-processing removes hallucinated
// markers and renumbers the survivors, so the report never carries a citation
// that does not resolve.
package synthesis

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/luma-insights/prism/internal/llm"
	"github.com/luma-insights/prism/internal/models"
	"github.com/luma-insights/prism/internal/util"
)

const (
	maxAngleTextChars = 6000
	maxExcerptChars   = 240
)

// Synthesizer builds the synthesized report text and its citation map.
type Synthesizer struct {
	llm    llm.CompletionClient
	logger *zap.Logger
}

// New creates a synthesizer.
func New(client llm.CompletionClient, logger *zap.Logger) *Synthesizer {
	return &Synthesizer{llm: client, logger: logger}
}

// Synthesize asks the model for a structured report citing the provided
// sources. On model failure it falls back to concatenating the successful
// angle texts; the returned text is non-empty whenever at least one angle
// succeeded.
func (s *Synthesizer) Synthesize(ctx context.Context, query string, results []models.AngleResult, contradictions []models.Contradiction, sources []*models.Source) (string, map[int]string) {
	ok := models.SucceededResults(results)
	if len(ok) == 0 {
		return "", nil
	}

	raw, err := s.llm.Complete(ctx, buildSynthesisPrompt(query, ok, contradictions, sources))
	if err != nil {
		s.logger.Warn("Synthesis degraded to concatenation fallback", zap.Error(err))
		return fallbackText(ok), map[int]string{}
	}

	text, citationMap := resolveCitations(raw, sources)
	if strings.TrimSpace(text) == "" {
		s.logger.Warn("Synthesis returned empty text, using concatenation fallback")
		return fallbackText(ok), map[int]string{}
	}
	return text, citationMap
}

func buildSynthesisPrompt(query string, ok []models.AngleResult, contradictions []models.Contradiction, sources []*models.Source) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Original query: %q\n\n", query)
	b.WriteString("Based on the following multi-angle analysis, write a comprehensive, structured report.\n\n")

	for _, r := range ok {
		fmt.Fprintf(&b, "### Angle %d (%s)\n%s\n\n",
			r.Angle.Index, r.Angle.Label, util.TruncateString(r.Text, maxAngleTextChars, true))
	}

	if len(contradictions) > 0 {
		b.WriteString("Detected contradictions between angles:\n")
		for _, c := range contradictions {
			fmt.Fprintf(&b, "- %s (angles %s)\n", c.Description, joinInts(c.AngleIndices))
		}
		b.WriteString("\n")
	}

	if len(sources) > 0 {
		b.WriteString("Available sources. Cite them inline using their id in square brackets, e.g. [S2]:\n")
		for _, src := range sources {
			fmt.Fprintf(&b, "- [%s] %s", src.ID, src.Title)
			if src.Excerpt != "" {
				fmt.Fprintf(&b, " — %s", util.TruncateString(src.Excerpt, maxExcerptChars, true))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	b.WriteString("Structure the report with these sections: Executive Summary, Key Findings, ")
	b.WriteString("Detailed Analysis, Contradictions or Inconsistencies (if any), Recommendations, ")
	b.WriteString("Confidence Assessment. Cite only the sources listed above, and only by their ids.")
	return b.String()
}

var (
	idMarkerPattern   = regexp.MustCompile(`\[(S\d+)\]`)
	bareMarkerPattern = regexp.MustCompile(`\[\d+\]`)
)

// resolveCitations post-processes the model output: bare numeric markers and
// id markers matching no known source are removed as hallucinated; the
// surviving id markers are renumbered in order of first appearance and the
// marker-number-to-source-id map is returned.
func resolveCitations(text string, sources []*models.Source) (string, map[int]string) {
	known := make(map[string]bool, len(sources))
	for _, src := range sources {
		known[src.ID] = true
	}

	// The model was told to cite ids; any bare [n] it invented would collide
	// with the renumbered markers below.
	text = bareMarkerPattern.ReplaceAllString(text, "")

	numbers := make(map[string]int)
	citationMap := make(map[int]string)
	text = idMarkerPattern.ReplaceAllStringFunc(text, func(marker string) string {
		id := strings.Trim(marker, "[]")
		if !known[id] {
			return ""
		}
		n, ok := numbers[id]
		if !ok {
			n = len(numbers) + 1
			numbers[id] = n
			citationMap[n] = id
		}
		return fmt.Sprintf("[%d]", n)
	})

	return strings.TrimSpace(text), citationMap
}

// fallbackText concatenates the successful angle answers verbatim with a
// notice that automated synthesis was unavailable.
func fallbackText(ok []models.AngleResult) string {
	var b strings.Builder
	b.WriteString("Automated synthesis was unavailable; the individual angle answers follow.\n")
	for _, r := range ok {
		fmt.Fprintf(&b, "\n## %s\n%s\n", r.Angle.Label, r.Text)
	}
	return strings.TrimSpace(b.String())
}

func joinInts(ints []int) string {
	parts := make([]string, len(ints))
	for i, v := range ints {
		parts[i] = fmt.Sprintf("%d", v)
	}
	return strings.Join(parts, ", ")
}
