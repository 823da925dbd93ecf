// Package orchestrator is the single public entry point of the engine. One
// Process call runs the whole pipeline: angle generation, concurrent fan-out,
// contradiction analysis, synthesis, report assembly. Stage failures are
// absorbed at their boundaries; only a fully failed fan-out reaches callers.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/luma-insights/prism/internal/angles"
	"github.com/luma-insights/prism/internal/config"
	"github.com/luma-insights/prism/internal/contradict"
	"github.com/luma-insights/prism/internal/executor"
	"github.com/luma-insights/prism/internal/fanout"
	"github.com/luma-insights/prism/internal/llm"
	"github.com/luma-insights/prism/internal/metrics"
	"github.com/luma-insights/prism/internal/models"
	"github.com/luma-insights/prism/internal/registry"
	"github.com/luma-insights/prism/internal/retrieval"
	"github.com/luma-insights/prism/internal/synthesis"
	"github.com/luma-insights/prism/internal/util"
)

var (
	// ErrPipelineFailed reports that no angle produced usable content. The
	// caller must render this as a distinct "could not answer" state, never
	// as an empty report.
	ErrPipelineFailed = errors.New("pipeline failed: no angle produced usable content")

	// ErrInvalidOptions reports caller-supplied options outside the accepted
	// bounds.
	ErrInvalidOptions = errors.New("invalid query options")
)

// Options are the caller-tunable knobs for one query.
type Options struct {
	AngleCount      int           // 0 uses the configured default
	PerAngleTimeout time.Duration // 0 uses the configured default
}

// Orchestrator wires the pipeline stages over the two capability backends.
type Orchestrator struct {
	generator   *angles.Generator
	retriever   retrieval.Client
	analyzer    *contradict.Analyzer
	synthesizer *synthesis.Synthesizer
	logger      *zap.Logger

	mu       sync.RWMutex
	pipeline config.PipelineConfig
}

// SetPipelineConfig swaps the default tunables; in-flight queries keep the
// values they started with.
func (o *Orchestrator) SetPipelineConfig(p config.PipelineConfig) {
	o.mu.Lock()
	o.pipeline = p
	o.mu.Unlock()
}

func (o *Orchestrator) pipelineConfig() config.PipelineConfig {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.pipeline
}

// New builds an orchestrator from its collaborators.
func New(completions llm.CompletionClient, retriever retrieval.Client, fallback []angles.FallbackAngle, pipeline config.PipelineConfig, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		generator:   angles.NewGenerator(completions, fallback, logger),
		retriever:   retriever,
		analyzer:    contradict.New(completions, logger),
		synthesizer: synthesis.New(completions, logger),
		pipeline:    pipeline,
		logger:      logger,
	}
}

// Process answers one query end to end.
//
// The source registry is created per call and shared by reference with every
// concurrent angle executor; its finalized listing is read only after the
// fan-out has fully joined.
func (o *Orchestrator) Process(ctx context.Context, query string, opts Options) (*models.Report, error) {
	if query == "" {
		return nil, fmt.Errorf("%w: query must not be empty", ErrInvalidOptions)
	}
	pipeline := o.pipelineConfig()
	count := opts.AngleCount
	if count == 0 {
		count = pipeline.AngleCount
	}
	if count < 1 || count > pipeline.MaxAngleCount {
		return nil, fmt.Errorf("%w: angle count %d outside [1,%d]", ErrInvalidOptions, count, pipeline.MaxAngleCount)
	}
	timeout := opts.PerAngleTimeout
	if timeout <= 0 {
		timeout = pipeline.PerAngleTimeout
	}

	metrics.QueriesStarted.Inc()
	start := time.Now()
	o.logger.Info("Query orchestration started",
		zap.String("query", util.TruncateString(query, 120, true)),
		zap.Int("angle_count", count),
	)

	// Stage 1: angles. Never fails; degrades to the fallback set.
	stageStart := time.Now()
	angleSet := o.generator.Generate(ctx, query, count)
	metrics.StageDuration.WithLabelValues("angles").Observe(time.Since(stageStart).Seconds())

	// Stage 2: concurrent fan-out with a per-query registry.
	reg := registry.New(o.logger)
	exec := executor.New(o.retriever, reg, o.logger)
	coord := fanout.New(exec, o.logger)

	stageStart = time.Now()
	results, err := coord.RunAll(ctx, angleSet, query, timeout)
	metrics.StageDuration.WithLabelValues("fanout").Observe(time.Since(stageStart).Seconds())
	if err != nil {
		metrics.QueriesCompleted.WithLabelValues("failed").Inc()
		metrics.QueryDuration.Observe(time.Since(start).Seconds())
		o.logger.Warn("Query orchestration failed, no usable angle", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrPipelineFailed, err)
	}

	// Stage 3: contradictions. Sequential with synthesis, which consumes it.
	stageStart = time.Now()
	contradictions := o.analyzer.Analyze(ctx, results)
	metrics.StageDuration.WithLabelValues("contradictions").Observe(time.Since(stageStart).Seconds())

	// The registry is complete once the fan-out has joined.
	sources := reg.Finalize()

	// Stage 4: synthesis.
	stageStart = time.Now()
	text, citationMap := o.synthesizer.Synthesize(ctx, query, results, contradictions, sources)
	metrics.StageDuration.WithLabelValues("synthesis").Observe(time.Since(stageStart).Seconds())

	report := &models.Report{
		ReportID:        uuid.New().String(),
		Query:           query,
		SynthesizedText: text,
		AngleResults:    results,
		Contradictions:  ensureContradictions(contradictions),
		Sources:         sources,
		CitationMap:     ensureCitationMap(citationMap),
		GeneratedAt:     time.Now().UTC(),
	}

	status := "ok"
	for _, r := range results {
		if r.Status != models.StatusOK {
			status = "degraded"
			break
		}
	}
	metrics.QueriesCompleted.WithLabelValues(status).Inc()
	metrics.QueryDuration.Observe(time.Since(start).Seconds())
	o.logger.Info("Query orchestration complete",
		zap.String("report_id", report.ReportID),
		zap.String("status", status),
		zap.Int("sources", len(sources)),
		zap.Int("contradictions", len(report.Contradictions)),
		zap.Duration("duration", time.Since(start)),
	)
	return report, nil
}

func ensureContradictions(c []models.Contradiction) []models.Contradiction {
	if c == nil {
		return []models.Contradiction{}
	}
	return c
}

func ensureCitationMap(m map[int]string) map[int]string {
	if m == nil {
		return map[int]string{}
	}
	return m
}
