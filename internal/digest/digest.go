// Package digest sends attention summaries to the notifier, on demand or on a
// cron schedule. A digest already posted today is edited in place rather than
// posted again.
package digest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/pauljones0/creator-deal-tracker/internal/metrics"
	"github.com/pauljones0/creator-deal-tracker/internal/tracker"
)

const defaultConcurrency = 4

// AttentionSource computes what needs an owner's attention.
type AttentionSource interface {
	Attention(ctx context.Context, ownerID string) (tracker.Attention, error)
}

// Sender delivers digests.
type Sender interface {
	SendDigest(ctx context.Context, a tracker.Attention) (string, error)
	UpdateDigest(ctx context.Context, messageID string, a tracker.Attention) error
}

// Result describes one owner's digest run.
type Result struct {
	OwnerID   string            `json:"ownerId"`
	Sent      bool              `json:"sent"`
	Updated   bool              `json:"updated"`
	MessageID string            `json:"messageId,omitempty"`
	Attention tracker.Attention `json:"attention"`
}

type posted struct {
	messageID string
	day       string
}

type Runner struct {
	source      AttentionSource
	sender      Sender
	owners      []string
	concurrency int
	now         func() time.Time

	mu         sync.Mutex
	posted     map[string]posted
	ownerLocks map[string]*sync.Mutex
}

type Option func(*Runner)

// WithOwners sets the owners covered by Run.
func WithOwners(owners []string) Option {
	return func(r *Runner) { r.owners = owners }
}

func WithConcurrency(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

func New(source AttentionSource, sender Sender, opts ...Option) *Runner {
	r := &Runner{
		source:      source,
		sender:      sender,
		concurrency: defaultConcurrency,
		now:         time.Now,
		posted:      make(map[string]posted),
		ownerLocks:  make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunOwner computes and delivers the digest of one owner. Nothing is sent when
// nothing needs attention.
func (r *Runner) RunOwner(ctx context.Context, ownerID string) (Result, error) {
	a, err := r.source.Attention(ctx, ownerID)
	if err != nil {
		metrics.DigestsSent.WithLabelValues("failed").Inc()
		return Result{}, fmt.Errorf("failed to compute attention for %s: %w", ownerID, err)
	}
	res := Result{OwnerID: ownerID, Attention: a}
	if a.Empty() {
		metrics.DigestsSent.WithLabelValues("empty").Inc()
		return res, nil
	}
	if r.sender == nil {
		return res, nil
	}

	// One delivery per owner at a time, so a concurrent run edits instead of posting twice.
	unlock := r.lockOwner(ownerID)
	defer unlock()

	day := r.now().UTC().Format(time.DateOnly)
	r.mu.Lock()
	prev, seen := r.posted[ownerID]
	r.mu.Unlock()

	if seen && prev.day == day {
		if err := r.sender.UpdateDigest(ctx, prev.messageID, a); err != nil {
			metrics.DigestsSent.WithLabelValues("failed").Inc()
			return res, fmt.Errorf("failed to update digest for %s: %w", ownerID, err)
		}
		res.Updated, res.MessageID = true, prev.messageID
		metrics.DigestsSent.WithLabelValues("updated").Inc()
		slog.Info("Attention digest updated", "owner", ownerID, "overdue", a.OverdueCount, "messageID", prev.messageID)
		return res, nil
	}

	messageID, err := r.sender.SendDigest(ctx, a)
	if err != nil {
		metrics.DigestsSent.WithLabelValues("failed").Inc()
		return res, fmt.Errorf("failed to send digest for %s: %w", ownerID, err)
	}
	if messageID != "" {
		r.mu.Lock()
		r.posted[ownerID] = posted{messageID: messageID, day: day}
		r.mu.Unlock()
	}
	res.Sent, res.MessageID = true, messageID
	metrics.DigestsSent.WithLabelValues("sent").Inc()
	slog.Info("Attention digest sent", "owner", ownerID, "overdue", a.OverdueCount, "advisories", len(a.GhostingAdvisories))
	return res, nil
}

func (r *Runner) lockOwner(ownerID string) func() {
	r.mu.Lock()
	l, ok := r.ownerLocks[ownerID]
	if !ok {
		l = &sync.Mutex{}
		r.ownerLocks[ownerID] = l
	}
	r.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Run delivers digests for every configured owner in parallel. A failing owner
// does not stop the others; all failures are returned joined.
func (r *Runner) Run(ctx context.Context) ([]Result, error) {
	results := make([]Result, len(r.owners))
	errs := make([]error, len(r.owners))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, owner := range r.owners {
		g.Go(func() error {
			results[i], errs[i] = r.RunOwner(ctx, owner)
			return nil
		})
	}
	_ = g.Wait()

	err := errors.Join(errs...)
	if err != nil {
		slog.Error("Attention digest run had failures", "owners", len(r.owners), "error", err)
	}
	return results, err
}

// Schedule registers Run on a cron spec. The caller starts and stops the returned scheduler.
func (r *Runner) Schedule(spec string) (*cron.Cron, error) {
	c := cron.New(cron.WithLocation(time.UTC))
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		slog.Info("Running scheduled attention digest", "owners", len(r.owners))
		_, _ = r.Run(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("invalid digest schedule %q: %w", spec, err)
	}
	return c, nil
}
