package web

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"calmwave-audio-service/internal/config"
	"calmwave-audio-service/internal/domain/model"
	"calmwave-audio-service/internal/infra/logging"
	"calmwave-audio-service/internal/infra/redis"
	"calmwave-audio-service/internal/infra/storage"
)

// SubmissionService is what the handlers need from the orchestration layer.
type SubmissionService interface {
	Submit(ctx context.Context, filename, contentType string, data []byte) (*model.Submission, error)
	AppendChunk(ctx context.Context, id string, seq int, filename, contentType string, data []byte) (string, error)
	CompleteChunks(ctx context.Context, id string) (*model.Submission, error)
	HandleCallback(ctx context.Context, id, filename string, data []byte) (*model.Submission, string, error)
	HandleCallbackFailure(ctx context.Context, id, message string) (*model.Submission, error)
	Redispatch(ctx context.Context, id string) (*model.Submission, error)
	Get(ctx context.Context, id string) (*model.Submission, error)
	ListDenoised(ctx context.Context, limit int) ([]*model.Submission, error)
	Delete(ctx context.Context, id string) error
}

type Server struct {
	cfg       *config.Config
	log       *zerolog.Logger
	service   SubmissionService
	artifacts *storage.ArtifactStore
	limiter   *redis.RateLimiter // nil disables upload rate limiting
	httpSrv   *http.Server
}

func NewServer(cfg *config.Config, logger *zerolog.Logger, service SubmissionService, artifacts *storage.ArtifactStore, limiter *redis.RateLimiter) *Server {
	s := &Server{
		cfg:       cfg,
		log:       logger,
		service:   service,
		artifacts: artifacts,
		limiter:   limiter,
	}
	s.httpSrv = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1/audio", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(s.rateLimitUploads)
			r.Post("/", s.handleUpload)
			r.Post("/chunks", s.handleChunk)
			r.Post("/chunks/{id}/complete", s.handleComplete)
		})
		r.Post("/callback", s.handleCallback)
		r.Get("/", s.handleList)
		r.Get("/{id}", s.handleGet)
		r.Post("/{id}/redispatch", s.handleRedispatch)
		r.With(s.requireAPIKey).Delete("/{id}", s.handleDelete)
	})

	r.Get("/processed/{filename}", s.handleProcessed)

	return r
}

func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Server.Port).Msg("http server listening")
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

// requestLogger stamps the chi request id into the context as trace_id so
// downstream log lines correlate with the access log entry.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if reqID := middleware.GetReqID(ctx); reqID != "" {
			ctx = logging.WithTraceID(ctx, reqID)
			r = r.WithContext(ctx)
		}
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logging.With(ctx, s.log).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("remote", r.RemoteAddr).
			Msg("request")
	})
}

// rateLimitUploads applies the fixed-window counter per client address. It
// fails open: a broken redis must not take uploads down with it.
func (s *Server) rateLimitUploads(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter == nil {
			next.ServeHTTP(w, r)
			return
		}
		key := redis.UploadKey(clientAddr(r))
		allowed, err := s.limiter.Allow(r.Context(), key, s.cfg.RateLimit.UploadsPerWindow, s.cfg.RateLimit.Window)
		if err != nil {
			s.log.Warn().Err(err).Msg("rate limiter unavailable, allowing request")
			next.ServeHTTP(w, r)
			return
		}
		if !allowed {
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many uploads, slow down")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientAddr(r *http.Request) string {
	// RealIP middleware may have rewritten RemoteAddr to a bare IP with no
	// port, in which case SplitHostPort fails and the address is used as is.
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
