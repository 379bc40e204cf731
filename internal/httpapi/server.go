package httpapi

import (
	"bytes"
	"context"
	"convmem/internal/observability"
	"convmem/pkg"
	"convmem/src/conversation"
	"convmem/src/logger"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	service *conversation.Service
	metrics *observability.Metrics
	health  Pinger
}

func New(service *conversation.Service, metrics *observability.Metrics, health Pinger) *Server {
	return &Server{service: service, metrics: metrics, health: health}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/v1/users/{userID}", func(r chi.Router) {
		r.Post("/turns", s.handleAppend)
		r.Post("/context", s.handleAssemble)
		r.Delete("/history", s.handleClear)
		r.Get("/status", s.handleStatus)
		r.Get("/patterns", s.handlePatterns)
		r.Get("/summary", s.handleSummary)
	})

	return r
}

type appendRequest struct {
	Username string `json:"username"`
	Message  string `json:"message"`
	Response string `json:"response"`
	Intent   string `json:"intent"`
}

type warningResponse struct {
	Store string `json:"store"`
	Error string `json:"error"`
}

type appendResponse struct {
	Turn     pkg.Turn          `json:"turn"`
	Warnings []warningResponse `json:"warnings,omitempty"`
}

type contextRequest struct {
	Message   string `json:"message"`
	MaxBudget int    `json:"max_budget"`
}

type contextResponse struct {
	Context   *pkg.AssembledContext `json:"context"`
	Formatted string                `json:"formatted"`
}

type clearResponse struct {
	pkg.ClearResult
	Errors map[string]string `json:"errors,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.health.Ping(ctx); err != nil {
			respondJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status": "degraded",
				"error":  err.Error(),
			})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleAppend(w http.ResponseWriter, r *http.Request) {
	userID, ok := userParam(w, r)
	if !ok {
		return
	}

	var req appendRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "message is required")
		return
	}

	result, err := s.service.Append(r.Context(), userID, conversation.TurnInput(req))
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "not_stored", err.Error())
		return
	}

	resp := appendResponse{Turn: result.Turn}
	for _, warning := range result.Warnings {
		resp.Warnings = append(resp.Warnings, warningResponse{Store: warning.Store, Error: warning.Err.Error()})
	}
	respondJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleAssemble(w http.ResponseWriter, r *http.Request) {
	userID, ok := userParam(w, r)
	if !ok {
		return
	}

	var req contextRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if req.MaxBudget < 0 {
		respondError(w, http.StatusBadRequest, "invalid_request", "max_budget must not be negative")
		return
	}

	assembled := s.service.Assemble(r.Context(), userID, req.Message, req.MaxBudget)
	respondJSON(w, http.StatusOK, contextResponse{
		Context:   assembled,
		Formatted: conversation.FormatForPresentation(assembled),
	})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	userID, ok := userParam(w, r)
	if !ok {
		return
	}

	result, err := s.service.Clear(r.Context(), userID)
	resp := clearResponse{ClearResult: result}
	if err != nil {
		resp.Errors = map[string]string{}
		if result.RecentErr != nil {
			resp.Errors[conversation.StoreRecency] = result.RecentErr.Error()
		}
		if result.SemanticErr != nil {
			resp.Errors[conversation.StoreSemantic] = result.SemanticErr.Error()
		}
		respondJSON(w, http.StatusBadGateway, resp)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := userParam(w, r)
	if !ok {
		return
	}
	status, err := s.service.Status(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "recency_unavailable", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, status)
}

func (s *Server) handlePatterns(w http.ResponseWriter, r *http.Request) {
	userID, ok := userParam(w, r)
	if !ok {
		return
	}
	report, err := s.service.Patterns(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "recency_unavailable", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	userID, ok := userParam(w, r)
	if !ok {
		return
	}
	summary, err := s.service.Summarize(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "recency_unavailable", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

func userParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := strings.TrimSpace(chi.URLParam(r, "userID"))
	if userID == "" {
		respondError(w, http.StatusBadRequest, "invalid_user_id", "missing user id")
		return "", false
	}
	return userID, true
}

var errEmptyBody = errors.New("empty body")

const maxBodyBytes = 1 << 20

// decodeJSON reports errEmptyBody only for a missing or blank body. A body
// cut short is a malformed request.
func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()

	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return errEmptyBody
	}
	return sonic.Unmarshal(data, out)
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = sonic.ConfigDefault.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
