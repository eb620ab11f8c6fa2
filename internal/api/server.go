// Package api exposes the query engine over HTTP. It holds no logic of its
// own: every handler calls one query operation and serializes the result.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"qagraph/internal/bootstrap/logging"
	"qagraph/internal/errs"
	"qagraph/internal/ports"
	"qagraph/internal/usecase/query"
)

type Server struct {
	queries *query.Service
	ping    func(ctx context.Context) error
}

func NewServer(queries *query.Service, ping func(ctx context.Context) error) *Server {
	return &Server{queries: queries, ping: ping}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", s.handleHealth)
	r.Route("/qa", func(r chi.Router) {
		r.Get("/coverage-gaps", s.handleCoverageGaps)
		r.Get("/impact/{jiraKey}", s.handleImpact)
		r.Get("/dependencies/{appKey}", s.handleDependencies)
		r.Get("/flaky-tests", s.handleFlakyTests)
		r.Get("/app-summary", s.handleAppSummary)
		r.Get("/search", s.handleSearch)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.ping(r.Context()); err != nil {
		writeError(w, r, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{
		"status":   "healthy",
		"database": "connected",
	})
}

func (s *Server) handleCoverageGaps(w http.ResponseWriter, r *http.Request) {
	gaps, err := s.queries.CoverageGaps(r.Context())
	if err != nil {
		writeInternalError(w, r, err)
		return
	}

	out := make([]requirementDTO, 0, len(gaps))
	for _, gap := range gaps {
		out = append(out, toRequirementDTO(gap))
	}
	writeJSON(w, r, http.StatusOK, coverageGapsDTO{TotalGaps: len(out), Gaps: out})
}

func (s *Server) handleImpact(w http.ResponseWriter, r *http.Request) {
	jiraKey := chi.URLParam(r, "jiraKey")

	impact, err := s.queries.ImpactAnalysis(r.Context(), jiraKey)
	if errors.Is(err, ports.ErrRequirementNotFound) {
		writeError(w, r, http.StatusNotFound, "requirement "+jiraKey+" not found")
		return
	}
	if err != nil {
		writeInternalError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toImpactDTO(impact))
}

func (s *Server) handleDependencies(w http.ResponseWriter, r *http.Request) {
	appKey := chi.URLParam(r, "appKey")

	deps, err := s.queries.DependencyMapFor(r.Context(), appKey)
	if errors.Is(err, ports.ErrApplicationNotFound) {
		writeError(w, r, http.StatusNotFound, "application "+appKey+" not found")
		return
	}
	if err != nil {
		writeInternalError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toDependencyMapDTO(deps))
}

func (s *Server) handleFlakyTests(w http.ResponseWriter, r *http.Request) {
	minFlaky := int64(1)
	if raw := r.URL.Query().Get("min_flaky"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 0 {
			writeError(w, r, http.StatusBadRequest, "min_flaky must be a non-negative integer")
			return
		}
		minFlaky = parsed
	}

	tests, err := s.queries.FlakyTests(r.Context(), minFlaky)
	if err != nil {
		writeInternalError(w, r, err)
		return
	}

	out := make([]flakyTestDTO, 0, len(tests))
	for _, test := range tests {
		out = append(out, toFlakyTestDTO(test))
	}
	writeJSON(w, r, http.StatusOK, flakyTestsDTO{TotalFlaky: len(out), Tests: out})
}

func (s *Server) handleAppSummary(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.queries.AppSummary(r.Context())
	if err != nil {
		writeInternalError(w, r, err)
		return
	}

	out := make([]appSummaryDTO, 0, len(summaries))
	for _, summary := range summaries {
		out = append(out, appSummaryDTO(summary))
	}
	writeJSON(w, r, http.StatusOK, map[string][]appSummaryDTO{"apps": out})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeError(w, r, http.StatusBadRequest, "q is required")
		return
	}

	result, err := s.queries.Search(r.Context(), q)
	if err != nil {
		writeInternalError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toSearchDTO(result))
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error(r.Context(), "encode response failed", slog.Any("err", errs.Loggable(err)))
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, detail string) {
	writeJSON(w, r, status, map[string]string{"detail": detail})
}

func writeInternalError(w http.ResponseWriter, r *http.Request, err error) {
	logging.Error(r.Context(), "query failed", slog.Any("err", errs.Loggable(err)))
	writeError(w, r, http.StatusInternalServerError, "internal error")
}
