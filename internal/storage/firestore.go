package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/pauljones0/creator-deal-tracker/internal/models"
)

const firestoreCollection = "deals"

// FirestoreStore keeps each deal in one document, its timeline embedded as an array.
type FirestoreStore struct {
	client *firestore.Client
	now    func() time.Time
}

func NewFirestore(ctx context.Context, projectID string) (*FirestoreStore, error) {
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("firestore.NewClient: %w", err)
	}
	return &FirestoreStore{client: client, now: time.Now}, nil
}

func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

// ListDeals returns every deal of ownerID, newest first.
func (s *FirestoreStore) ListDeals(ctx context.Context, ownerID string) ([]models.Deal, error) {
	iter := s.client.Collection(firestoreCollection).Where("ownerId", "==", ownerID).Documents(ctx)
	defer iter.Stop()

	var deals []models.Deal
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate deals of %s: %w", ownerID, err)
		}
		var deal models.Deal
		if err := doc.DataTo(&deal); err != nil {
			slog.Warn("Skipping undecodable deal document", "id", doc.Ref.ID, "error", err)
			continue
		}
		deal.ID = doc.Ref.ID
		deals = append(deals, deal)
	}

	sort.SliceStable(deals, func(i, j int) bool {
		return deals[i].CreatedAt.After(deals[j].CreatedAt)
	})
	return deals, nil
}

// GetDeal returns models.ErrDealNotFound when id does not exist.
func (s *FirestoreStore) GetDeal(ctx context.Context, id string) (models.Deal, error) {
	doc, err := s.client.Collection(firestoreCollection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return models.Deal{}, models.ErrDealNotFound
		}
		return models.Deal{}, fmt.Errorf("failed to get deal by ID %s: %w", id, err)
	}
	if !doc.Exists() {
		return models.Deal{}, models.ErrDealNotFound
	}

	var deal models.Deal
	if err := doc.DataTo(&deal); err != nil {
		return models.Deal{}, fmt.Errorf("failed to unmarshal deal data: %w", err)
	}
	deal.ID = doc.Ref.ID
	return deal, nil
}

// CreateDeal stores deal under a new document id, or under deal.ID when set.
func (s *FirestoreStore) CreateDeal(ctx context.Context, ownerID string, deal models.Deal) (models.Deal, error) {
	collectionRef := s.client.Collection(firestoreCollection)
	docRef := collectionRef.NewDoc()
	if deal.ID != "" {
		docRef = collectionRef.Doc(deal.ID)
	}

	prepareForCreate(&deal, ownerID, s.now())

	// Create fails if the document already exists.
	if _, err := docRef.Create(ctx, deal); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return models.Deal{}, models.ErrDealExists
		}
		return models.Deal{}, fmt.Errorf("failed to create deal: %w", err)
	}
	deal.ID = docRef.ID
	return deal, nil
}

// UpdateDeal writes only the fields set in u.
func (s *FirestoreStore) UpdateDeal(ctx context.Context, id string, u models.DealUpdate) error {
	if u.Empty() {
		return nil
	}
	_, err := s.client.Collection(firestoreCollection).Doc(id).Update(ctx, firestoreUpdates(u, s.now()))
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return models.ErrDealNotFound
		}
		return fmt.Errorf("failed to update deal %s: %w", id, err)
	}
	return nil
}

// AppendTimelineEvent adds event to the end of the embedded timeline array.
func (s *FirestoreStore) AppendTimelineEvent(ctx context.Context, dealID string, event models.TimelineEvent) (models.TimelineEvent, error) {
	_, err := s.client.Collection(firestoreCollection).Doc(dealID).Update(ctx, []firestore.Update{
		{Path: "timeline", Value: firestore.ArrayUnion(event)},
		{Path: "updatedAt", Value: s.now().UTC()},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return models.TimelineEvent{}, models.ErrDealNotFound
		}
		return models.TimelineEvent{}, fmt.Errorf("failed to append timeline event to %s: %w", dealID, err)
	}
	return event, nil
}

func (s *FirestoreStore) DeleteDeal(ctx context.Context, id string) error {
	_, err := s.client.Collection(firestoreCollection).Doc(id).Delete(ctx, firestore.Exists)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return models.ErrDealNotFound
		}
		return fmt.Errorf("failed to delete deal %s: %w", id, err)
	}
	return nil
}

func prepareForCreate(deal *models.Deal, ownerID string, now time.Time) {
	deal.OwnerID = ownerID
	if deal.CreatedAt.IsZero() {
		deal.CreatedAt = now.UTC()
	}
	deal.UpdatedAt = deal.CreatedAt
	if deal.Timeline == nil {
		deal.Timeline = []models.TimelineEvent{}
	}
}

// firestoreUpdates maps the set fields of u to document paths.
func firestoreUpdates(u models.DealUpdate, now time.Time) []firestore.Update {
	var updates []firestore.Update
	add := func(path string, value interface{}) {
		updates = append(updates, firestore.Update{Path: path, Value: value})
	}

	if u.BrandName != nil {
		add("brandName", *u.BrandName)
	}
	if u.Platform != nil {
		add("platform", string(*u.Platform))
	}
	if u.Contact != nil {
		add("contact", *u.Contact)
	}
	if u.Status != nil {
		add("status", string(*u.Status))
	}
	if u.ClearDealValue {
		add("dealValue", nil)
	} else if u.DealValue != nil {
		add("dealValue", *u.DealValue)
	}
	if u.LastContactedAt != nil {
		add("lastContactedAt", u.LastContactedAt.UTC())
	}
	if u.NextFollowUpAt != nil {
		add("nextFollowUpAt", u.NextFollowUpAt.UTC())
	}
	if u.FollowUpIntervalDays != nil {
		add("followUpIntervalDays", *u.FollowUpIntervalDays)
	}
	if u.FollowUpCount != nil {
		add("followUpCount", *u.FollowUpCount)
	}
	if u.Notes != nil {
		add("notes", *u.Notes)
	}
	if u.RateCheck != nil {
		add("rateCheck", *u.RateCheck)
	}
	if u.BriefAnalysis != nil {
		add("briefAnalysis", *u.BriefAnalysis)
	}
	add("updatedAt", now.UTC())
	return updates
}
