// Package fanout runs all angle executors concurrently and collects their
// results. One slow or failed angle never blocks or corrupts the others; a
// fully failed fan-out is the only condition reported upward.
package fanout

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/luma-insights/prism/internal/models"
)

// ErrAllAnglesFailed reports that no angle produced usable content.
var ErrAllAnglesFailed = errors.New("all angles failed")

// AngleRunner executes a single angle to completion.
type AngleRunner interface {
	Execute(ctx context.Context, angle models.Angle, query string) models.AngleResult
}

// Coordinator fans angle executions out over goroutines.
type Coordinator struct {
	runner AngleRunner
	logger *zap.Logger
}

// New creates a coordinator over the given runner.
func New(runner AngleRunner, logger *zap.Logger) *Coordinator {
	return &Coordinator{runner: runner, logger: logger}
}

// RunAll launches one goroutine per angle, each under its own independent
// timeout. The returned slice always has len(angles) entries sorted by angle
// index regardless of completion order. ErrAllAnglesFailed is returned
// (together with the results) when not a single angle succeeded.
func (c *Coordinator) RunAll(ctx context.Context, angles []models.Angle, query string, perAngleTimeout time.Duration) ([]models.AngleResult, error) {
	results := make([]models.AngleResult, len(angles))

	g, gctx := errgroup.WithContext(ctx)
	for i, angle := range angles {
		i, angle := i, angle
		g.Go(func() error {
			angleCtx, cancel := context.WithTimeout(gctx, perAngleTimeout)
			defer cancel()
			results[i] = c.runner.Execute(angleCtx, angle, query)
			return nil
		})
	}
	// Tasks never return errors; per-angle failures live in the results.
	_ = g.Wait()

	sort.Slice(results, func(a, b int) bool {
		return results[a].Angle.Index < results[b].Angle.Index
	})

	succeeded := 0
	for _, r := range results {
		if r.Status == models.StatusOK {
			succeeded++
		}
	}
	c.logger.Info("Fan-out complete",
		zap.Int("angles", len(angles)),
		zap.Int("succeeded", succeeded),
	)

	if succeeded == 0 && len(angles) > 0 {
		return results, ErrAllAnglesFailed
	}
	return results, nil
}
