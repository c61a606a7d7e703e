package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/enkat-io/enkat/internal/config"
	"github.com/enkat-io/enkat/internal/ingest"
	"github.com/enkat-io/enkat/internal/survey"
)

const (
	defaultRateWindow = time.Minute
	shutdownTimeout   = 10 * time.Second
	maxBodyBytes      = 10 << 20
)

// Ingester runs one inbound reply through the pipeline
type Ingester interface {
	Ingest(ctx context.Context, env ingest.Envelope) (ingest.Result, error)
}

// SurveyReader backs the status endpoint
type SurveyReader interface {
	GetSurvey(ctx context.Context, id string) (*survey.Survey, error)
	CountResponses(ctx context.Context, surveyID string) (int, error)
}

type Server struct {
	config      config.ServerConfig
	ingester    Ingester
	surveys     SurveyReader
	logger      *zap.Logger
	rateLimiter *RateLimiter
	httpServer  *http.Server
}

func NewServer(cfg config.ServerConfig, ingester Ingester, surveys SurveyReader, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		config:      cfg,
		ingester:    ingester,
		surveys:     surveys,
		logger:      logger.Named("web"),
		rateLimiter: NewRateLimiter(cfg.RateLimitPerMinute, defaultRateWindow),
	}
	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	defer s.Close()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Webhook server listening", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server error: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return <-errCh
}

// Close releases the rate limiter's background goroutine
func (s *Server) Close() {
	s.rateLimiter.Stop()
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(securityHeaders)

	r.Get("/healthz", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.rateLimiter.Middleware)
		r.With(middleware.AllowContentType(webhookContentTypes...)).
			Post("/webhooks/email", s.handleEmailWebhook)
		r.Get("/api/surveys/{surveyID}", s.handleSurveyStatus)
	})

	return r
}

// securityHeaders adds security headers to all responses
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		// Responses carry survey data
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Info("Request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
					zap.String("remote", r.RemoteAddr),
					zap.String("request_id", middleware.GetReqID(r.Context())))
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type surveyStatusResponse struct {
	SurveyID       string     `json:"surveyId"`
	Title          string     `json:"title"`
	Status         string     `json:"status"`
	AcceptsReplies bool       `json:"acceptsReplies"`
	Answered       int        `json:"answered"`
	QuestionCount  int        `json:"questionCount"`
	Coverage       float64    `json:"coverage"`
	SentAt         *time.Time `json:"sentAt,omitempty"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
}

func (s *Server) handleSurveyStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "surveyID")

	sv, err := s.surveys.GetSurvey(r.Context(), id)
	if errors.Is(err, survey.ErrNotFound) {
		writeError(w, http.StatusNotFound, "survey not found")
		return
	}
	if err != nil {
		s.logger.Error("Failed to load survey", zap.String("survey_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	answered, err := s.surveys.CountResponses(r.Context(), id)
	if err != nil {
		s.logger.Error("Failed to count responses", zap.String("survey_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, surveyStatusResponse{
		SurveyID:       sv.ID,
		Title:          sv.Title,
		Status:         string(sv.Status),
		AcceptsReplies: sv.AcceptsReplies,
		Answered:       answered,
		QuestionCount:  sv.QuestionCount,
		Coverage:       ingest.Coverage(answered, sv.QuestionCount),
		SentAt:         sv.SentAt,
		CompletedAt:    sv.CompletedAt,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
