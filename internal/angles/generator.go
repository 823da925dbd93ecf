// Package angles turns one user query into a small ordered set of analytical
// angles. The model proposes the framings; a fixed fallback set guarantees the
// pipeline always proceeds with exactly the requested count.
package angles

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/luma-insights/prism/internal/llm"
	"github.com/luma-insights/prism/internal/models"
)

// Generator produces angle sets via the language-model capability.
type Generator struct {
	llm      llm.CompletionClient
	fallback []FallbackAngle
	logger   *zap.Logger
}

// NewGenerator builds a generator. A nil or empty fallback set uses the
// compiled-in defaults.
func NewGenerator(client llm.CompletionClient, fallback []FallbackAngle, logger *zap.Logger) *Generator {
	if len(fallback) == 0 {
		fallback = defaultFallbackAngles()
	}
	return &Generator{llm: client, fallback: fallback, logger: logger}
}

// Generate returns exactly count angles with contiguous indices from 0.
// Model failure or a short parse is never fatal: missing slots are filled
// from the fallback set.
func (g *Generator) Generate(ctx context.Context, query string, count int) []models.Angle {
	proposed := g.propose(ctx, query, count)

	out := make([]models.Angle, 0, count)
	for _, p := range proposed {
		if len(out) == count {
			break
		}
		out = append(out, models.Angle{Index: len(out), Label: p.Label, Prompt: p.Prompt})
	}

	// Pad from the fallback set, skipping labels already proposed.
	for _, fb := range g.fallback {
		if len(out) == count {
			break
		}
		if hasLabel(out, fb.Label) {
			continue
		}
		out = append(out, models.Angle{
			Index:  len(out),
			Label:  fb.Label,
			Prompt: fmt.Sprintf(fb.PromptTemplate, query),
		})
	}

	// Fallback set exhausted (count > distinct fallbacks): repeat the query.
	for len(out) < count {
		out = append(out, models.Angle{
			Index:  len(out),
			Label:  fmt.Sprintf("perspective %d", len(out)+1),
			Prompt: query,
		})
	}
	return out
}

type proposedAngle struct {
	Label  string `json:"label"`
	Prompt string `json:"prompt"`
}

func (g *Generator) propose(ctx context.Context, query string, count int) []proposedAngle {
	prompt := buildGenerationPrompt(query, count)
	raw, err := g.llm.Complete(ctx, prompt)
	if err != nil {
		g.logger.Warn("Angle generation degraded to fallback set", zap.Error(err))
		return nil
	}

	angles := parseAngles(raw)
	if len(angles) < count {
		g.logger.Info("Model proposed fewer angles than requested, padding from fallback",
			zap.Int("proposed", len(angles)),
			zap.Int("requested", count),
		)
	}
	return angles
}

func buildGenerationPrompt(query string, count int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Given the following query: %q\n\n", query)
	fmt.Fprintf(&b, "Generate exactly %d distinct analytical angles or perspectives to approach this query. ", count)
	b.WriteString("Each angle should be a specific, focused question that would provide valuable insights.\n\n")
	b.WriteString("Return a JSON array where each element is an object with a short \"label\" ")
	b.WriteString("(2-4 words) and a \"prompt\" (the full question). Return only the JSON array.")
	return b.String()
}

// parseAngles reads untrusted model output. Preferred shape is a JSON array of
// {label, prompt}; the fallback is one question per line with any numbering or
// bullets stripped.
func parseAngles(raw string) []proposedAngle {
	if arr := parseAngleJSON(raw); len(arr) > 0 {
		return arr
	}
	return parseAngleLines(raw)
}

func parseAngleJSON(raw string) []proposedAngle {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start < 0 || end <= start {
		return nil
	}

	var parsed []proposedAngle
	if err := json.Unmarshal([]byte(raw[start:end+1]), &parsed); err != nil {
		return nil
	}

	var out []proposedAngle
	for _, p := range parsed {
		p.Label = strings.TrimSpace(p.Label)
		p.Prompt = strings.TrimSpace(p.Prompt)
		if p.Prompt == "" {
			continue
		}
		if p.Label == "" {
			p.Label = deriveLabel(p.Prompt)
		}
		out = append(out, p)
	}
	return out
}

func parseAngleLines(raw string) []proposedAngle {
	var out []proposedAngle
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*•0123456789.) \t")
		if line == "" || len(line) < 8 {
			continue
		}
		out = append(out, proposedAngle{Label: deriveLabel(line), Prompt: line})
	}
	return out
}

// deriveLabel takes the first few words of a prompt as a display label.
func deriveLabel(prompt string) string {
	words := strings.Fields(strings.Trim(prompt, "?.!"))
	if len(words) > 4 {
		words = words[:4]
	}
	return strings.ToLower(strings.Join(words, " "))
}

func hasLabel(angles []models.Angle, label string) bool {
	for _, a := range angles {
		if strings.EqualFold(a.Label, label) {
			return true
		}
	}
	return false
}
