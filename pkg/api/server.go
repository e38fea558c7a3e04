// Package api serves the lesson generation operations over HTTP.
package api

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/ilearnhow/lessongen/pkg/budget"
	"github.com/ilearnhow/lessongen/pkg/cache"
	"github.com/ilearnhow/lessongen/pkg/models"
	"github.com/ilearnhow/lessongen/pkg/orchestrator"
	"github.com/ilearnhow/lessongen/pkg/provider"
	"github.com/ilearnhow/lessongen/pkg/ratelimit"
)

// Server is the lessongen HTTP API.
type Server struct {
	listen  string
	orch    *orchestrator.Orchestrator
	budget  *budget.Enforcer
	limiter *ratelimit.Limiter
	log     zerolog.Logger
	router  chi.Router
}

// New creates a Server. metrics may be nil to disable /metrics.
func New(listen string, o *orchestrator.Orchestrator, b *budget.Enforcer, l *ratelimit.Limiter, metrics http.Handler, log zerolog.Logger) *Server {
	s := &Server{
		listen:  listen,
		orch:    o,
		budget:  b,
		limiter: l,
		log:     log.With().Str("component", "api").Logger(),
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(s.accessLog)

	r.Get("/healthz", s.handleHealth)
	if metrics != nil {
		r.Handle("/metrics", metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/stats", s.handleStats)
		r.Get("/budget", s.handleBudget)

		r.Group(func(r chi.Router) {
			r.Use(requireClient)
			r.Get("/ratelimit", s.handleRateStatus)
			r.Route("/lessons/{lessonID}", func(r chi.Router) {
				r.Post("/variants", s.handleGenerateAll)
				r.Get("/variants", s.handleLookup)
				r.Post("/variants/resume", s.handleResume)
				r.Post("/variants/{variantID}", s.handleGenerateVariant)
				r.Get("/variants/{variantID}", s.handleGetVariant)
				r.Delete("/cache", s.handleInvalidate)
			})
		})
	})

	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe starts the server and shuts it down when ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.listen,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("listen", s.listen).Msg("lessongen api listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("request_id", chimiddleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

type clientKey struct{}

// ClientID extracts the caller identity from X-Client-ID or a bearer token.
func ClientID(r *http.Request) string {
	if id := r.Header.Get("X-Client-ID"); id != "" {
		return id
	}
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

func requireClient(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := ClientID(r)
		if id == "" {
			writeJSONError(w, http.StatusUnauthorized, "missing client id")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), clientKey{}, id)))
	})
}

func clientFrom(r *http.Request) string {
	id, _ := r.Context().Value(clientKey{}).(string)
	return id
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.Store.Ping(r.Context()); err != nil {
		writeJSONError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGenerateAll(w http.ResponseWriter, r *http.Request) {
	res, err := s.orch.GenerateAll(r.Context(), chi.URLParam(r, "lessonID"), clientFrom(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type resumeRequest struct {
	VariantIDs []string `json:"variant_ids"`
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	var req resumeRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	res, err := s.orch.ResumeFailed(r.Context(), chi.URLParam(r, "lessonID"), clientFrom(r), req.VariantIDs)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleGenerateVariant(w http.ResponseWriter, r *http.Request) {
	res, err := s.orch.GenerateVariant(r.Context(), chi.URLParam(r, "lessonID"), clientFrom(r), chi.URLParam(r, "variantID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleGetVariant(w http.ResponseWriter, r *http.Request) {
	res, err := s.orch.GetVariant(r.Context(), chi.URLParam(r, "lessonID"), chi.URLParam(r, "variantID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := orchestrator.Filter{
		AgeGroup:     q.Get("age_group"),
		Tone:         q.Get("tone"),
		ContentType:  q.Get("content_type"),
		QuestionType: q.Get("question_type"),
		Choice:       q.Get("choice"),
	}
	found, missing, err := s.orch.Lookup(r.Context(), chi.URLParam(r, "lessonID"), f)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if found == nil {
		found = []models.GenerationResult{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": found, "missing": missing})
}

func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	n, err := s.orch.InvalidateLesson(r.Context(), chi.URLParam(r, "lessonID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.orch.Stats())
}

type budgetResponse struct {
	Status models.BudgetStatus  `json:"status"`
	Alerts []models.BudgetAlert `json:"alerts"`
}

func (s *Server) handleBudget(w http.ResponseWriter, r *http.Request) {
	st, err := s.budget.CheckBudget(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	alerts, err := s.budget.Alerts(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if alerts == nil {
		alerts = []models.BudgetAlert{}
	}
	writeJSON(w, http.StatusOK, budgetResponse{Status: st, Alerts: alerts})
}

func (s *Server) handleRateStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.limiter.Status(r.Context(), clientFrom(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func retryAfter(w http.ResponseWriter, d time.Duration) {
	secs := int(math.Ceil(d.Seconds()))
	w.Header().Set("Retry-After", strconv.Itoa(max(secs, 1)))
}

// writeError maps domain errors onto status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var qe *ratelimit.QuotaExceededError
	var be *budget.BudgetExceededError
	var pe *provider.ProviderError
	switch {
	case errors.Is(err, cache.ErrUnavailable):
		writeJSONError(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &qe):
		retryAfter(w, qe.RetryAfter)
		writeJSONError(w, http.StatusTooManyRequests, qe.Reason())
	case errors.As(err, &be):
		if !be.ResetTime.IsZero() {
			retryAfter(w, time.Until(be.ResetTime))
		}
		writeJSONError(w, http.StatusTooManyRequests, be.Reason)
	case errors.Is(err, orchestrator.ErrUnknownVariant), errors.Is(err, cache.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, orchestrator.ErrNoLedger):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &pe):
		writeJSONError(w, http.StatusBadGateway, pe.Error())
	default:
		s.log.Error().Err(err).Msg("request failed")
		writeJSONError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]any{
		"error": map[string]any{"message": message, "type": "lessongen_error", "code": code},
	})
}
