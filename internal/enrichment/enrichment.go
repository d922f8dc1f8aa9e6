// Package enrichment asks the AI service for rate guidance and brief risk
// reports. It never fails: unreachable services produce a fixed fallback and
// malformed replies are completed field by field with the same defaults.
package enrichment

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/pauljones0/creator-deal-tracker/internal/ai"
	"github.com/pauljones0/creator-deal-tracker/internal/brief"
	"github.com/pauljones0/creator-deal-tracker/internal/metrics"
	"github.com/pauljones0/creator-deal-tracker/internal/models"
)

// Transport sends one action to the AI service and returns its raw reply.
type Transport interface {
	Invoke(ctx context.Context, action string, data any) ([]byte, error)
}

// Cache stores successful raw replies.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Outcome tells how a result was produced.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomePartial  Outcome = "partial"
	OutcomeFallback Outcome = "fallback"
)

const DefaultTimeout = 30 * time.Second

type Gateway struct {
	transport Transport
	cache     Cache
	cacheTTL  time.Duration
	timeout   time.Duration
	now       func() time.Time
}

type Option func(*Gateway)

// WithCache enables caching of successful replies for ttl.
func WithCache(c Cache, ttl time.Duration) Option {
	return func(g *Gateway) {
		g.cache = c
		g.cacheTTL = ttl
	}
}

// WithTimeout bounds each call. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) { g.timeout = d }
}

func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

// NewGateway returns a gateway over t. A nil transport always falls back.
func NewGateway(t Transport, opts ...Option) *Gateway {
	g := &Gateway{
		transport: t,
		timeout:   DefaultTimeout,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// CheckRate returns pricing guidance for in.
func (g *Gateway) CheckRate(ctx context.Context, in models.RateCheckInput) (models.RateCheckResult, Outcome) {
	start := time.Now()
	raw, err := g.invoke(ctx, ai.ActionCheckRate, in)

	var (
		result  models.RateCheckResult
		outcome Outcome
	)
	if err != nil {
		slog.Warn("Rate check unavailable, using fallback estimate", "platform", in.Platform, "error", err)
		result, outcome = FallbackRateCheck(g.now()), OutcomeFallback
	} else {
		result, outcome = ParseRateCheck(raw, g.now())
		if outcome == OutcomePartial {
			slog.Warn("Rate check reply was incomplete", "platform", in.Platform)
		}
	}

	g.finish(ctx, ai.ActionCheckRate, in, raw, outcome, start)
	return result, outcome
}

// AnalyzeBrief returns a risk report for text. Text is truncated to brief.MaxChars.
func (g *Gateway) AnalyzeBrief(ctx context.Context, text string) (models.BriefAnalysisResult, Outcome) {
	start := time.Now()
	req := ai.BriefRequest{BriefText: brief.Truncate(text)}
	raw, err := g.invoke(ctx, ai.ActionAnalyzeBrief, req)

	var (
		result  models.BriefAnalysisResult
		outcome Outcome
	)
	if err != nil {
		slog.Warn("Brief analysis unavailable, using fallback", "chars", len(req.BriefText), "error", err)
		result, outcome = FallbackBriefAnalysis(g.now()), OutcomeFallback
	} else {
		result, outcome = ParseBriefAnalysis(raw, g.now())
		if outcome == OutcomePartial {
			slog.Warn("Brief analysis reply was incomplete")
		}
	}

	g.finish(ctx, ai.ActionAnalyzeBrief, req, raw, outcome, start)
	return result, outcome
}

func (g *Gateway) invoke(ctx context.Context, action string, data any) ([]byte, error) {
	if g.transport == nil {
		return nil, ai.ErrUnavailable
	}

	key := cacheKey(action, data)
	if cached, ok := g.lookup(ctx, key); ok {
		return cached, nil
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	return g.transport.Invoke(ctx, action, data)
}

func (g *Gateway) lookup(ctx context.Context, key string) ([]byte, bool) {
	if g.cache == nil || key == "" {
		return nil, false
	}
	val, ok, err := g.cache.Get(ctx, key)
	switch {
	case err != nil:
		slog.Warn("Enrichment cache lookup failed", "error", err)
		metrics.EnrichmentCache.WithLabelValues("error").Inc()
		return nil, false
	case !ok:
		metrics.EnrichmentCache.WithLabelValues("miss").Inc()
		return nil, false
	}
	metrics.EnrichmentCache.WithLabelValues("hit").Inc()
	return val, true
}

func (g *Gateway) finish(ctx context.Context, action string, data any, raw []byte, outcome Outcome, start time.Time) {
	metrics.EnrichmentRequests.WithLabelValues(action, string(outcome)).Inc()
	metrics.EnrichmentDuration.WithLabelValues(action).Observe(time.Since(start).Seconds())

	if outcome != OutcomeSuccess || g.cache == nil {
		return
	}
	key := cacheKey(action, data)
	if key == "" {
		return
	}
	if err := g.cache.Set(ctx, key, raw, g.cacheTTL); err != nil {
		slog.Warn("Failed to cache enrichment result", "action", action, "error", err)
	}
}

func cacheKey(action string, data any) string {
	payload, err := json.Marshal(data)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(append([]byte(action+"\n"), payload...))
	return action + ":" + hex.EncodeToString(sum[:])
}
