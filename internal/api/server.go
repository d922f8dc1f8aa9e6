// Package api exposes the deal tracker over JSON.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/pauljones0/creator-deal-tracker/internal/digest"
	"github.com/pauljones0/creator-deal-tracker/internal/enrichment"
	"github.com/pauljones0/creator-deal-tracker/internal/metrics"
	"github.com/pauljones0/creator-deal-tracker/internal/models"
	"github.com/pauljones0/creator-deal-tracker/internal/recommend"
	"github.com/pauljones0/creator-deal-tracker/internal/tracker"
)

// DealService is the tracker surface used by the handlers.
type DealService interface {
	CreateDeal(ctx context.Context, ownerID string, in models.NewDeal) (models.Deal, error)
	QuickCreate(ctx context.Context, ownerID, brandName string) (models.Deal, error)
	ListDeals(ctx context.Context, ownerID string, f tracker.Filter) ([]models.Deal, error)
	GetDeal(ctx context.Context, id string) (models.Deal, error)
	DeleteDeal(ctx context.Context, id string) error
	ChangeStatus(ctx context.Context, id string, status models.Status) (models.Deal, error)
	LogFollowUp(ctx context.Context, id, description string) (tracker.FollowUpResult, error)
	UpdateNotes(ctx context.Context, id, notes string) (models.Deal, error)
	UpdateDetails(ctx context.Context, id string, details models.DealDetails) (models.Deal, error)
	RunRateCheck(ctx context.Context, id string, in models.RateCheckInput) (models.Deal, enrichment.Outcome, error)
	RunBriefAnalysis(ctx context.Context, id, briefText string) (models.Deal, enrichment.Outcome, error)
	RunBriefAnalysisFromURL(ctx context.Context, id, rawURL string) (models.Deal, enrichment.Outcome, error)
	Recommend(ctx context.Context, id string) (recommend.Action, error)
	Attention(ctx context.Context, ownerID string) (tracker.Attention, error)
	View(d models.Deal) tracker.DealView
}

// DigestRunner delivers one owner's attention digest.
type DigestRunner interface {
	RunOwner(ctx context.Context, ownerID string) (digest.Result, error)
}

type Server struct {
	deals   DealService
	digests DigestRunner
	router  *chi.Mux
}

type Option func(*serverOptions)

type serverOptions struct {
	allowedOrigins []string
	timeout        time.Duration
}

// WithCORS allows browser clients from origins.
func WithCORS(origins []string) Option {
	return func(o *serverOptions) { o.allowedOrigins = origins }
}

// WithRequestTimeout bounds every request. Enrichment calls need the most headroom.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *serverOptions) { o.timeout = d }
}

func New(deals DealService, digests DigestRunner, opts ...Option) *Server {
	o := serverOptions{timeout: 90 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Server{
		deals:   deals,
		digests: digests,
		router:  chi.NewRouter(),
	}
	s.setupMiddleware(o)
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupMiddleware(o serverOptions) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(loggingMiddleware)
	if o.timeout > 0 {
		s.router.Use(middleware.Timeout(o.timeout))
	}
	if len(o.allowedOrigins) > 0 {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins: o.allowedOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
			MaxAge:         300,
		}))
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Method(http.MethodGet, "/metrics", metrics.Handler())

	s.router.Route("/owners/{owner}", func(r chi.Router) {
		r.Get("/deals", s.handleListDeals)
		r.Post("/deals", s.handleCreateDeal)
		r.Post("/deals/quick", s.handleQuickCreate)
		r.Get("/attention", s.handleAttention)
		r.Post("/digest", s.handleDigest)
	})

	s.router.Route("/deals/{id}", func(r chi.Router) {
		r.Get("/", s.handleGetDeal)
		r.Patch("/", s.handleUpdateDetails)
		r.Delete("/", s.handleDeleteDeal)
		r.Post("/status", s.handleChangeStatus)
		r.Post("/follow-ups", s.handleLogFollowUp)
		r.Put("/notes", s.handleUpdateNotes)
		r.Post("/rate-check", s.handleRateCheck)
		r.Post("/brief-analysis", s.handleBriefAnalysis)
		r.Get("/recommendation", s.handleRecommendation)
	})
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		slog.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"requestID", middleware.GetReqID(r.Context()),
		)
	})
}
