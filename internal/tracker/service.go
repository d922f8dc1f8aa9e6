// Package tracker is the single mutation path for deals. Every change is
// persisted first, then reflected in the returned deal, then logged to the
// deal's timeline.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pauljones0/creator-deal-tracker/internal/brief"
	"github.com/pauljones0/creator-deal-tracker/internal/enrichment"
	"github.com/pauljones0/creator-deal-tracker/internal/followup"
	"github.com/pauljones0/creator-deal-tracker/internal/metrics"
	"github.com/pauljones0/creator-deal-tracker/internal/models"
	"github.com/pauljones0/creator-deal-tracker/internal/recommend"
	"github.com/pauljones0/creator-deal-tracker/internal/timeline"
	"github.com/pauljones0/creator-deal-tracker/internal/validator"
)

const (
	DefaultFollowUpDays = 7
	QuickFollowUpDays   = 3
	MaxNotesLength      = 10000

	descDealCreated   = "Deal Created"
	descFollowUp      = "Follow-up email sent"
	descNotesUpdated  = "Notes updated"
	descRateCheck     = "Performed Rate Check"
	descBriefAnalysis = "Analyzed Brief"
)

type Service struct {
	store           DealStore
	enricher        Enricher
	fetcher         BriefFetcher
	validator       *validator.Validator
	timeline        *timeline.Log
	defaultInterval int
	now             func() time.Time
}

type Option func(*Service)

// WithClock replaces the time source of the service and its timeline.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
		s.timeline.WithClock(now)
	}
}

// WithBriefFetcher enables analysis of briefs given by URL.
func WithBriefFetcher(f BriefFetcher) Option {
	return func(s *Service) { s.fetcher = f }
}

// WithDefaultInterval sets the follow-up interval used when a new deal omits one.
func WithDefaultInterval(days int) Option {
	return func(s *Service) {
		if days > 0 {
			s.defaultInterval = days
		}
	}
}

func New(store DealStore, enricher Enricher, opts ...Option) *Service {
	s := &Service{
		store:           store,
		enricher:        enricher,
		validator:       validator.New(),
		timeline:        timeline.New(store),
		defaultInterval: DefaultFollowUpDays,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateDeal validates in, schedules the first follow-up and seeds the timeline.
func (s *Service) CreateDeal(ctx context.Context, ownerID string, in models.NewDeal) (models.Deal, error) {
	if strings.TrimSpace(ownerID) == "" {
		return models.Deal{}, fmt.Errorf("%w: owner is required", models.ErrValidation)
	}
	in.BrandName = strings.TrimSpace(in.BrandName)
	if err := s.validator.ValidateStruct(in); err != nil {
		return models.Deal{}, err
	}

	deal := models.Deal{
		OwnerID:              ownerID,
		BrandName:            in.BrandName,
		Platform:             in.Platform,
		Contact:              strings.TrimSpace(in.Contact),
		Status:               in.Status,
		DealValue:            in.DealValue,
		FollowUpIntervalDays: in.FollowUpIntervalDays,
		Notes:                in.Notes,
	}
	if deal.Status == "" {
		deal.Status = models.StatusDiscovery
	}
	if deal.FollowUpIntervalDays == 0 {
		deal.FollowUpIntervalDays = s.defaultInterval
	}
	followup.Schedule(&deal, s.now().UTC())
	if err := s.validator.ValidateStruct(deal); err != nil {
		return models.Deal{}, err
	}

	// The seed event is written together with the deal.
	seed, err := s.timeline.NewEvent(models.EventStatusChange, descDealCreated, nil)
	if err != nil {
		return models.Deal{}, err
	}
	deal.Timeline = []models.TimelineEvent{seed}

	created, err := s.store.CreateDeal(ctx, ownerID, deal)
	if err != nil {
		return models.Deal{}, fmt.Errorf("failed to create deal: %w", err)
	}
	metrics.DealMutations.WithLabelValues(string(models.EventStatusChange)).Inc()
	slog.Info("Deal created", "id", created.ID, "owner", ownerID, "brand", created.BrandName)
	return created, nil
}

// QuickCreate saves a deal from just a brand name with a short reminder.
func (s *Service) QuickCreate(ctx context.Context, ownerID, brandName string) (models.Deal, error) {
	return s.CreateDeal(ctx, ownerID, models.NewDeal{
		BrandName:            brandName,
		Platform:             models.PlatformOther,
		Contact:              "Pending...",
		Status:               models.StatusDiscovery,
		Notes:                "Quick save. Reminder set.",
		FollowUpIntervalDays: QuickFollowUpDays,
	})
}

func (s *Service) GetDeal(ctx context.Context, id string) (models.Deal, error) {
	d, err := s.store.GetDeal(ctx, id)
	if err != nil {
		return models.Deal{}, wrapLookup(id, err)
	}
	return d, nil
}

func (s *Service) DeleteDeal(ctx context.Context, id string) error {
	if err := s.store.DeleteDeal(ctx, id); err != nil {
		return wrapLookup(id, err)
	}
	slog.Info("Deal deleted", "id", id)
	return nil
}

// ListDeals returns the owner's board after applying f.
func (s *Service) ListDeals(ctx context.Context, ownerID string, f Filter) ([]models.Deal, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	deals, err := s.store.ListDeals(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list deals of %s: %w", ownerID, err)
	}
	return f.Apply(deals, s.now()), nil
}

// ChangeStatus moves a deal to status. Setting the current status is a no-op.
func (s *Service) ChangeStatus(ctx context.Context, id string, status models.Status) (models.Deal, error) {
	if !status.Valid() {
		return models.Deal{}, fmt.Errorf("%w: unknown status %q", models.ErrValidation, status)
	}
	d, err := s.GetDeal(ctx, id)
	if err != nil {
		return models.Deal{}, err
	}
	if d.Status == status {
		return d, nil
	}

	from := d.Status
	u := models.DealUpdate{Status: &status}
	if err := s.store.UpdateDeal(ctx, id, u); err != nil {
		return models.Deal{}, fmt.Errorf("failed to change status of %s: %w", id, err)
	}
	u.Apply(&d)

	return s.record(ctx, d, models.EventStatusChange, "Status changed to "+string(status), map[string]interface{}{
		"from": string(from),
		"to":   string(status),
	})
}

// FollowUpResult is a deal after a logged follow-up.
type FollowUpResult struct {
	Deal             models.Deal `json:"deal"`
	// GhostingAdvisory suggests marking the deal Ghosted. The status is left alone.
	GhostingAdvisory bool        `json:"ghostingAdvisory"`
}

// LogFollowUp records an outbound contact and restarts the follow-up clock.
func (s *Service) LogFollowUp(ctx context.Context, id, description string) (FollowUpResult, error) {
	d, err := s.GetDeal(ctx, id)
	if err != nil {
		return FollowUpResult{}, err
	}
	description = strings.TrimSpace(description)
	if description == "" {
		description = descFollowUp
	}

	tr := followup.RecordFollowUp(d, s.now().UTC())
	u := tr.Update()
	if err := s.store.UpdateDeal(ctx, id, u); err != nil {
		return FollowUpResult{}, fmt.Errorf("failed to log follow-up for %s: %w", id, err)
	}
	u.Apply(&d)

	d, err = s.record(ctx, d, models.EventFollowUp, description, map[string]interface{}{
		"followUpCount": tr.FollowUpCount,
	})
	if err != nil {
		return FollowUpResult{}, err
	}
	if tr.Advisory {
		slog.Info("Consider marking deal as ghosted", "id", id, "brand", d.BrandName, "followUps", tr.FollowUpCount)
	}
	return FollowUpResult{Deal: d, GhostingAdvisory: tr.Advisory}, nil
}

// UpdateNotes replaces the deal notes. Unchanged notes are a no-op.
func (s *Service) UpdateNotes(ctx context.Context, id, notes string) (models.Deal, error) {
	if len(notes) > MaxNotesLength {
		return models.Deal{}, fmt.Errorf("%w: notes exceed %d bytes", models.ErrValidation, MaxNotesLength)
	}
	d, err := s.GetDeal(ctx, id)
	if err != nil {
		return models.Deal{}, err
	}
	if d.Notes == notes {
		return d, nil
	}

	u := models.DealUpdate{Notes: &notes}
	if err := s.store.UpdateDeal(ctx, id, u); err != nil {
		return models.Deal{}, fmt.Errorf("failed to update notes of %s: %w", id, err)
	}
	u.Apply(&d)
	return s.record(ctx, d, models.EventNote, descNotesUpdated, nil)
}

// UpdateDetails edits descriptive fields. A new interval reschedules the next
// follow-up from the last contact.
func (s *Service) UpdateDetails(ctx context.Context, id string, details models.DealDetails) (models.Deal, error) {
	if details.Empty() {
		return models.Deal{}, fmt.Errorf("%w: nothing to update", models.ErrValidation)
	}
	if err := s.validator.ValidateStruct(details); err != nil {
		return models.Deal{}, err
	}
	d, err := s.GetDeal(ctx, id)
	if err != nil {
		return models.Deal{}, err
	}

	u := models.DealUpdate{
		BrandName:      details.BrandName,
		Platform:       details.Platform,
		Contact:        details.Contact,
		DealValue:      details.DealValue,
		ClearDealValue: details.ClearDealValue,
	}
	if details.FollowUpIntervalDays != nil && *details.FollowUpIntervalDays != d.FollowUpIntervalDays {
		next := followup.Reschedule(d, *details.FollowUpIntervalDays)
		u.FollowUpIntervalDays = details.FollowUpIntervalDays
		u.NextFollowUpAt = &next
	}
	if u.Empty() {
		return d, nil
	}

	if err := s.store.UpdateDeal(ctx, id, u); err != nil {
		return models.Deal{}, fmt.Errorf("failed to update deal %s: %w", id, err)
	}
	u.Apply(&d)
	return d, nil
}

// RunRateCheck attaches pricing guidance to a deal. The gateway never fails,
// so errors here are validation, lookup or persistence errors.
func (s *Service) RunRateCheck(ctx context.Context, id string, in models.RateCheckInput) (models.Deal, enrichment.Outcome, error) {
	if err := s.validator.ValidateStruct(in); err != nil {
		return models.Deal{}, "", err
	}
	d, err := s.GetDeal(ctx, id)
	if err != nil {
		return models.Deal{}, "", err
	}

	result, outcome := s.enricher.CheckRate(ctx, in)
	u := models.DealUpdate{RateCheck: &result}
	if err := s.store.UpdateDeal(ctx, id, u); err != nil {
		return models.Deal{}, "", fmt.Errorf("failed to save rate check for %s: %w", id, err)
	}
	u.Apply(&d)

	d, err = s.record(ctx, d, models.EventRateCheck, descRateCheck, map[string]interface{}{
		"outcome":       string(outcome),
		"suggestedLow":  result.SuggestedLow,
		"suggestedHigh": result.SuggestedHigh,
	})
	return d, outcome, err
}

// RunBriefAnalysis attaches a risk report for briefText to a deal.
func (s *Service) RunBriefAnalysis(ctx context.Context, id, briefText string) (models.Deal, enrichment.Outcome, error) {
	text, err := brief.Prepare(briefText)
	if err != nil {
		return models.Deal{}, "", err
	}
	d, err := s.GetDeal(ctx, id)
	if err != nil {
		return models.Deal{}, "", err
	}

	result, outcome := s.enricher.AnalyzeBrief(ctx, text)
	u := models.DealUpdate{BriefAnalysis: &result}
	if err := s.store.UpdateDeal(ctx, id, u); err != nil {
		return models.Deal{}, "", fmt.Errorf("failed to save brief analysis for %s: %w", id, err)
	}
	u.Apply(&d)

	d, err = s.record(ctx, d, models.EventBriefAnalysis, descBriefAnalysis, map[string]interface{}{
		"outcome":  string(outcome),
		"redFlags": len(result.RedFlags),
	})
	return d, outcome, err
}

// RunBriefAnalysisFromURL fetches a hosted brief and analyzes it.
func (s *Service) RunBriefAnalysisFromURL(ctx context.Context, id, rawURL string) (models.Deal, enrichment.Outcome, error) {
	if s.fetcher == nil {
		return models.Deal{}, "", fmt.Errorf("%w: brief URLs are not supported", models.ErrValidation)
	}
	if _, err := s.GetDeal(ctx, id); err != nil {
		return models.Deal{}, "", err
	}
	text, err := s.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		if errors.Is(err, models.ErrValidation) {
			return models.Deal{}, "", err
		}
		return models.Deal{}, "", fmt.Errorf("%w: could not fetch brief: %w", models.ErrValidation, err)
	}
	return s.RunBriefAnalysis(ctx, id, text)
}

// Recommend evaluates the next action for a deal as of now.
func (s *Service) Recommend(ctx context.Context, id string) (recommend.Action, error) {
	d, err := s.GetDeal(ctx, id)
	if err != nil {
		return recommend.Action{}, err
	}
	return recommend.Evaluate(d, s.now()), nil
}

// record appends an event after a confirmed write and attaches it to d.
func (s *Service) record(ctx context.Context, d models.Deal, eventType models.EventType, description string, metadata map[string]interface{}) (models.Deal, error) {
	ev, err := s.timeline.Append(ctx, d.ID, eventType, description, metadata)
	if err != nil {
		return d, err
	}
	timeline.Attach(&d, ev)
	metrics.DealMutations.WithLabelValues(string(eventType)).Inc()
	return d, nil
}

func wrapLookup(id string, err error) error {
	if errors.Is(err, models.ErrDealNotFound) {
		return fmt.Errorf("deal %s: %w", id, models.ErrDealNotFound)
	}
	return fmt.Errorf("failed to load deal %s: %w", id, err)
}
