//go:build integration

package storage

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/pauljones0/creator-deal-tracker/internal/models"
)

// Runs against the Firestore emulator: FIRESTORE_EMULATOR_HOST=localhost:8081.
func TestIntegration_FirestoreRoundTrip(t *testing.T) {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	ctx := context.Background()

	s, err := NewFirestore(ctx, "creator-deal-tracker-test")
	if err != nil {
		t.Fatalf("NewFirestore() error = %v", err)
	}
	defer s.Close()

	now := time.Now().UTC().Truncate(time.Millisecond)
	created, err := s.CreateDeal(ctx, "owner-it", models.Deal{
		BrandName:            "Integration Brand",
		Platform:             models.PlatformInstagram,
		Status:               models.StatusOutreach,
		FollowUpIntervalDays: 3,
		LastContactedAt:      now,
		NextFollowUpAt:       now.Add(72 * time.Hour),
	})
	if err != nil {
		t.Fatalf("CreateDeal() error = %v", err)
	}
	defer s.DeleteDeal(ctx, created.ID)

	for _, desc := range []string{"first", "second", "third"} {
		ev := models.TimelineEvent{ID: desc, Type: models.EventNote, Date: now, Description: desc}
		if _, err := s.AppendTimelineEvent(ctx, created.ID, ev); err != nil {
			t.Fatalf("AppendTimelineEvent() error = %v", err)
		}
	}

	status := models.StatusReplied
	if err := s.UpdateDeal(ctx, created.ID, models.DealUpdate{Status: &status}); err != nil {
		t.Fatalf("UpdateDeal() error = %v", err)
	}

	got, err := s.GetDeal(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetDeal() error = %v", err)
	}
	if got.Status != models.StatusReplied || len(got.Timeline) != 3 || got.Timeline[2].ID != "third" {
		t.Errorf("GetDeal() = %+v", got)
	}

	deals, err := s.ListDeals(ctx, "owner-it")
	if err != nil || len(deals) == 0 {
		t.Errorf("ListDeals() = %d deals, %v", len(deals), err)
	}

	if _, err := s.GetDeal(ctx, "does-not-exist"); !errors.Is(err, models.ErrDealNotFound) {
		t.Errorf("Expected ErrDealNotFound, got %v", err)
	}
}
