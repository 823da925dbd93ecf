// Package executor resolves one angle into a normalized result: it queries
// the retrieval backend, cleans the payload, and registers the raw sources.
// Every failure stays inside the angle; nothing here escalates.
package executor

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/luma-insights/prism/internal/metrics"
	"github.com/luma-insights/prism/internal/models"
	"github.com/luma-insights/prism/internal/registry"
	"github.com/luma-insights/prism/internal/retrieval"
	"github.com/luma-insights/prism/internal/util"
)

// Executor runs single angles against the retrieval capability.
type Executor struct {
	retriever retrieval.Client
	registry  *registry.Registry
	logger    *zap.Logger
}

// New creates an executor writing into the shared source registry.
func New(retriever retrieval.Client, reg *registry.Registry, logger *zap.Logger) *Executor {
	return &Executor{retriever: retriever, registry: reg, logger: logger}
}

// Execute resolves one angle. The returned result always carries the angle;
// a timeout yields StatusTimedOut and a transport error StatusFailed, both
// with empty text and sources.
func (e *Executor) Execute(ctx context.Context, angle models.Angle, query string) models.AngleResult {
	start := time.Now()
	angleQuery := buildAngleQuery(query, angle)

	answer, err := e.retriever.Query(ctx, angleQuery)
	metrics.AngleExecutionDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		status := models.StatusFailed
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			status = models.StatusTimedOut
		}
		metrics.AngleExecutions.WithLabelValues(string(status)).Inc()
		e.logger.Warn("Angle execution degraded",
			zap.Int("angle", angle.Index),
			zap.String("label", angle.Label),
			zap.String("status", string(status)),
			zap.Error(err),
		)
		return models.AngleResult{
			Angle:  angle,
			Status: status,
			Error:  util.TruncateString(err.Error(), 200, false),
		}
	}

	result := models.AngleResult{
		Angle:          angle,
		Text:           cleanText(answer.Text),
		Status:         models.StatusOK,
		ConversationID: answer.ConversationID,
		MessageID:      answer.MessageID,
	}

	// Register sources preserving the backend's relevance order; the registry
	// collapses duplicates across angles.
	for _, raw := range answer.Sources {
		src, err := e.registry.Register(registry.Candidate{
			Title:   strings.TrimSpace(raw.Title),
			URL:     strings.TrimSpace(raw.URL),
			Excerpt: strings.TrimSpace(raw.Excerpt),
			Page:    raw.Page,
		}, angle.Index)
		if err != nil {
			// Candidate carried nothing citable; skip it.
			continue
		}
		result.Sources = append(result.Sources, models.SourceRef{
			SourceID: src.ID,
			Excerpt:  strings.TrimSpace(raw.Excerpt),
		})
	}

	metrics.AngleExecutions.WithLabelValues(string(models.StatusOK)).Inc()
	e.logger.Debug("Angle executed",
		zap.Int("angle", angle.Index),
		zap.String("label", angle.Label),
		zap.Int("sources", len(result.Sources)),
		zap.Duration("duration", time.Since(start)),
	)
	return result
}

// buildAngleQuery combines the user query with the angle framing so the
// backend answers the specific question in the context of the original query.
func buildAngleQuery(query string, angle models.Angle) string {
	prompt := strings.TrimSpace(angle.Prompt)
	if prompt == "" {
		return query
	}
	if strings.Contains(strings.ToLower(prompt), strings.ToLower(strings.TrimSpace(query))) {
		return prompt
	}
	return fmt.Sprintf("%s (in the context of: %s)", prompt, query)
}

var (
	htmlTagPattern   = regexp.MustCompile(`</?[a-zA-Z][^>]*>`)
	docMarkerPattern = regexp.MustCompile(`\[(?:doc|source|ref)[-_ ]?\d+\]`)
	blankRunPattern  = regexp.MustCompile(`\n{3,}`)
)

// cleanText strips provider markup the backend leaks into answer bodies:
// HTML tags, internal [docN] reference markers, zero-width characters, and
// runs of blank lines.
func cleanText(text string) string {
	text = htmlTagPattern.ReplaceAllString(text, "")
	text = docMarkerPattern.ReplaceAllString(text, "")
	text = strings.ReplaceAll(text, "​", "")
	text = strings.ReplaceAll(text, "\uFEFF", "")
	text = blankRunPattern.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
