package tracker

import (
	"fmt"
	"testing"
	"time"

	"github.com/pauljones0/creator-deal-tracker/internal/enrichment"
	"github.com/pauljones0/creator-deal-tracker/internal/models"
)

func TestNewView_DerivedFields(t *testing.T) {
	fallback := enrichment.FallbackRateCheck(start)
	d := models.Deal{
		ID:                   "deal-1",
		BrandName:            "Glossier",
		Status:               models.StatusNegotiating,
		FollowUpIntervalDays: 7,
		LastContactedAt:      start.Add(-10 * 24 * time.Hour),
		NextFollowUpAt:       start.Add(-3 * 24 * time.Hour),
		RateCheck:            &fallback,
		BriefAnalysis: &models.BriefAnalysisResult{RedFlags: []string{
			"Perpetual Usage: rights never expire",
			"Exclusivity",
		}},
	}
	for i := 0; i < 7; i++ {
		eventType := models.EventNote
		if i == 2 || i == 4 {
			eventType = models.EventFollowUp
		}
		d.Timeline = append(d.Timeline, models.TimelineEvent{ID: fmt.Sprintf("ev-%d", i), Type: eventType})
	}

	v := NewView(d, start)

	if !v.Overdue {
		t.Error("Expected deal to be overdue")
	}
	if !v.RateIsEstimate {
		t.Error("Expected fallback rate to be flagged as an estimate")
	}
	if len(v.RedFlags) != 2 || v.RedFlags[0].Label != "Perpetual Usage" || v.RedFlags[0].Rationale != "rights never expire" {
		t.Errorf("Unexpected red flags: %+v", v.RedFlags)
	}
	if v.RedFlags[1].Label != "Exclusivity" || v.RedFlags[1].Rationale != "" {
		t.Errorf("Unexpected second red flag: %+v", v.RedFlags[1])
	}
	if len(v.RecentActivity) != recentActivityLimit || v.RecentActivity[0].ID != "ev-6" {
		t.Errorf("Unexpected recent activity: %+v", v.RecentActivity)
	}
	if v.LastFollowUp == nil || v.LastFollowUp.ID != "ev-4" {
		t.Errorf("Unexpected last follow-up: %+v", v.LastFollowUp)
	}
	if d.Timeline[0].ID != "ev-0" {
		t.Error("NewView must not reorder the stored timeline")
	}
}

func TestNewView_NoEnrichment(t *testing.T) {
	v := NewView(models.Deal{Status: models.StatusDiscovery, NextFollowUpAt: start.Add(time.Hour)}, start)
	if v.RateIsEstimate || v.LastFollowUp != nil {
		t.Errorf("Unexpected derived state: %+v", v)
	}
	if v.RedFlags == nil || len(v.RedFlags) != 0 {
		t.Errorf("RedFlags = %v, want empty", v.RedFlags)
	}
}

func TestAttentionMessage(t *testing.T) {
	tests := []struct {
		count int
		want  string
	}{
		{0, ""},
		{1, "You have 1 deal that needs follow-up!"},
		{4, "You have 4 deals that need follow-up!"},
	}
	for _, tt := range tests {
		if got := (Attention{OverdueCount: tt.count}).Message(); got != tt.want {
			t.Errorf("Message() with %d = %q, want %q", tt.count, got, tt.want)
		}
	}
}

