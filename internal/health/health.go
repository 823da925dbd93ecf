// Package health exposes liveness/readiness checks for the service and its
// two capability backends.
package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Status is the outcome of one check.
type Status int

const (
	StatusHealthy Status = iota
	StatusDegraded
	StatusUnhealthy
)

func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// CheckResult is the outcome of one component check.
type CheckResult struct {
	Component string        `json:"component"`
	Status    Status        `json:"-"`
	StatusStr string        `json:"status"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
	Critical  bool          `json:"critical"`
}

// Checker is one registered health check.
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
	IsCritical() bool
}

// Manager runs registered checks on demand.
type Manager struct {
	mu       sync.RWMutex
	checkers map[string]Checker
	logger   *zap.Logger
}

// NewManager creates an empty manager.
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{checkers: make(map[string]Checker), logger: logger}
}

// Register adds a checker, replacing any previous one with the same name.
func (m *Manager) Register(c Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers[c.Name()] = c
}

// Overall runs all checks. The service is unhealthy when any critical check
// fails, degraded when only non-critical ones do.
func (m *Manager) Overall(ctx context.Context) (Status, map[string]CheckResult) {
	m.mu.RLock()
	checkers := make([]Checker, 0, len(m.checkers))
	for _, c := range m.checkers {
		checkers = append(checkers, c)
	}
	m.mu.RUnlock()

	status := StatusHealthy
	results := make(map[string]CheckResult, len(checkers))
	for _, c := range checkers {
		res := c.Check(ctx)
		res.StatusStr = res.Status.String()
		results[c.Name()] = res
		if res.Status == StatusHealthy {
			continue
		}
		if c.IsCritical() {
			status = StatusUnhealthy
		} else if status == StatusHealthy {
			status = StatusDegraded
		}
	}
	return status, results
}

// httpCheck pings an HTTP endpoint and reports reachability.
type httpCheck struct {
	name     string
	url      string
	critical bool
	client   *http.Client
}

// NewHTTPChecker checks that an HTTP base URL is reachable.
func NewHTTPChecker(name, url string, critical bool) Checker {
	return &httpCheck{
		name:     name,
		url:      url,
		critical: critical,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

func (h *httpCheck) Name() string     { return h.name }
func (h *httpCheck) IsCritical() bool { return h.critical }

func (h *httpCheck) Check(ctx context.Context) CheckResult {
	start := time.Now()
	res := CheckResult{Component: h.name, Critical: h.critical}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		res.Status = StatusUnhealthy
		res.Error = err.Error()
		res.Duration = time.Since(start)
		return res
	}
	resp, err := h.client.Do(req)
	res.Duration = time.Since(start)
	if err != nil {
		res.Status = StatusUnhealthy
		res.Error = err.Error()
		return res
	}
	resp.Body.Close()
	// Any HTTP response proves the backend is reachable; auth and routing
	// errors are the query path's problem.
	res.Status = StatusHealthy
	return res
}

// redisCheck pings the answer cache.
type redisCheck struct {
	rdb *redis.Client
}

// NewRedisChecker checks the answer cache connection. Never critical: the
// cache degrades to a miss.
func NewRedisChecker(rdb *redis.Client) Checker {
	return &redisCheck{rdb: rdb}
}

func (r *redisCheck) Name() string     { return "redis" }
func (r *redisCheck) IsCritical() bool { return false }

func (r *redisCheck) Check(ctx context.Context) CheckResult {
	start := time.Now()
	res := CheckResult{Component: "redis"}
	if err := r.rdb.Ping(ctx).Err(); err != nil {
		res.Status = StatusDegraded
		res.Error = err.Error()
	} else {
		res.Status = StatusHealthy
	}
	res.Duration = time.Since(start)
	return res
}
