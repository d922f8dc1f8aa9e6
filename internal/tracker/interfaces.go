package tracker

import (
	"context"

	"github.com/pauljones0/creator-deal-tracker/internal/enrichment"
	"github.com/pauljones0/creator-deal-tracker/internal/models"
)

// DealStore abstracts the storage layer for deals and their timelines.
type DealStore interface {
	ListDeals(ctx context.Context, ownerID string) ([]models.Deal, error)
	// GetDeal returns models.ErrDealNotFound for unknown ids.
	GetDeal(ctx context.Context, id string) (models.Deal, error)
	CreateDeal(ctx context.Context, ownerID string, deal models.Deal) (models.Deal, error)
	UpdateDeal(ctx context.Context, id string, u models.DealUpdate) error
	AppendTimelineEvent(ctx context.Context, dealID string, event models.TimelineEvent) (models.TimelineEvent, error)
	DeleteDeal(ctx context.Context, id string) error
}

// Enricher abstracts the AI enrichment gateway. It never fails.
type Enricher interface {
	CheckRate(ctx context.Context, in models.RateCheckInput) (models.RateCheckResult, enrichment.Outcome)
	AnalyzeBrief(ctx context.Context, text string) (models.BriefAnalysisResult, enrichment.Outcome)
}

// BriefFetcher downloads briefs hosted as web pages.
type BriefFetcher interface {
	Fetch(ctx context.Context, rawURL string) (string, error)
}
