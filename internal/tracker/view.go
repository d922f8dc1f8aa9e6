package tracker

import (
	"context"
	"fmt"
	"time"

	"github.com/pauljones0/creator-deal-tracker/internal/enrichment"
	"github.com/pauljones0/creator-deal-tracker/internal/followup"
	"github.com/pauljones0/creator-deal-tracker/internal/models"
	"github.com/pauljones0/creator-deal-tracker/internal/recommend"
	"github.com/pauljones0/creator-deal-tracker/internal/timeline"
)

const recentActivityLimit = 5

// DealView is a deal with its derived state, recomputed on every read.
type DealView struct {
	models.Deal
	Overdue          bool                   `json:"overdue"`
	GhostingAdvisory bool                   `json:"ghostingAdvisory"`
	Recommendation   recommend.Action       `json:"recommendation"`
	// RateIsEstimate is set when the stored rate check is the offline fallback.
	RateIsEstimate   bool                   `json:"rateIsEstimate"`
	RedFlags         []RedFlag              `json:"redFlags"`
	RecentActivity   []models.TimelineEvent `json:"recentActivity"`
	LastFollowUp     *models.TimelineEvent  `json:"lastFollowUp,omitempty"`
}

type RedFlag struct {
	Label     string `json:"label"`
	Rationale string `json:"rationale,omitempty"`
}

// View derives the live state of d at the service clock.
func (s *Service) View(d models.Deal) DealView {
	return NewView(d, s.now())
}

func NewView(d models.Deal, now time.Time) DealView {
	v := DealView{
		Deal:             d,
		Overdue:          followup.IsOverdue(d, now),
		GhostingAdvisory: followup.NeedsGhostingAdvisory(d),
		Recommendation:   recommend.Evaluate(d, now),
		RedFlags:         []RedFlag{},
		RecentActivity:   timeline.MostRecentFirst(d.Timeline),
	}
	if d.RateCheck != nil {
		v.RateIsEstimate = enrichment.IsFallback(*d.RateCheck)
	}
	if d.BriefAnalysis != nil {
		for _, flag := range d.BriefAnalysis.RedFlags {
			label, rationale := models.SplitRedFlag(flag)
			v.RedFlags = append(v.RedFlags, RedFlag{Label: label, Rationale: rationale})
		}
	}
	if len(v.RecentActivity) > recentActivityLimit {
		v.RecentActivity = v.RecentActivity[:recentActivityLimit]
	}
	if ev, ok := timeline.Latest(d.Timeline, models.EventFollowUp); ok {
		v.LastFollowUp = &ev
	}
	return v
}

// Attention summarizes what needs the owner's attention.
type Attention struct {
	OwnerID            string     `json:"ownerId"`
	OverdueCount       int        `json:"overdueCount"`
	Overdue            []DealView `json:"overdue"`
	GhostingAdvisories []DealView `json:"ghostingAdvisories"`
	GeneratedAt        time.Time  `json:"generatedAt"`
}

// Empty reports whether nothing needs attention.
func (a Attention) Empty() bool {
	return a.OverdueCount == 0 && len(a.GhostingAdvisories) == 0
}

// Message is the one-line reminder shown for overdue deals.
func (a Attention) Message() string {
	switch a.OverdueCount {
	case 0:
		return ""
	case 1:
		return "You have 1 deal that needs follow-up!"
	default:
		return fmt.Sprintf("You have %d deals that need follow-up!", a.OverdueCount)
	}
}

// Attention recomputes the owner's overdue deals and ghosting advisories.
func (s *Service) Attention(ctx context.Context, ownerID string) (Attention, error) {
	deals, err := s.store.ListDeals(ctx, ownerID)
	if err != nil {
		return Attention{}, fmt.Errorf("failed to list deals of %s: %w", ownerID, err)
	}

	now := s.now()
	a := Attention{
		OwnerID:            ownerID,
		Overdue:            []DealView{},
		GhostingAdvisories: []DealView{},
		GeneratedAt:        now.UTC(),
	}
	for _, d := range followup.Overdue(deals, now) {
		a.Overdue = append(a.Overdue, NewView(d, now))
	}
	for _, d := range deals {
		if followup.NeedsGhostingAdvisory(d) {
			a.GhostingAdvisories = append(a.GhostingAdvisories, NewView(d, now))
		}
	}
	a.OverdueCount = len(a.Overdue)
	return a, nil
}
