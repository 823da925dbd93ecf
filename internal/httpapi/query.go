// Package httpapi is the thin HTTP wrapper over the orchestration engine.
// Serialization only; all semantics live behind orchestrator.Process.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/luma-insights/prism/internal/models"
	"github.com/luma-insights/prism/internal/orchestrator"
)

// Processor is the orchestration entry point consumed by the handler.
type Processor interface {
	Process(ctx context.Context, query string, opts orchestrator.Options) (*models.Report, error)
}

// QueryHandler serves POST /v1/query.
type QueryHandler struct {
	processor Processor
	logger    *zap.Logger
}

// NewQueryHandler creates the handler.
func NewQueryHandler(p Processor, logger *zap.Logger) *QueryHandler {
	return &QueryHandler{processor: p, logger: logger}
}

// RegisterRoutes mounts the query endpoint.
func (h *QueryHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/query", h.handleQuery)
}

type queryRequest struct {
	Query             string `json:"query"`
	AngleCount        int    `json:"angle_count,omitempty"`
	PerAngleTimeoutMS int    `json:"per_angle_timeout_ms,omitempty"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (h *QueryHandler) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method_not_allowed", Message: "use POST"})
		return
	}

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "bad_request", Message: "invalid JSON body"})
		return
	}

	opts := orchestrator.Options{AngleCount: req.AngleCount}
	if req.PerAngleTimeoutMS > 0 {
		opts.PerAngleTimeout = time.Duration(req.PerAngleTimeoutMS) * time.Millisecond
	}

	report, err := h.processor.Process(r.Context(), req.Query, opts)
	switch {
	case errors.Is(err, orchestrator.ErrInvalidOptions):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_options", Message: err.Error()})
	case errors.Is(err, orchestrator.ErrPipelineFailed):
		// Distinct "could not answer" state, never an empty report.
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "could_not_answer", Message: "no angle produced usable content"})
	case err != nil:
		h.logger.Error("Query processing failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal", Message: "unexpected failure"})
	default:
		writeJSON(w, http.StatusOK, report)
	}
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
