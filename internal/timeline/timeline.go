// Package timeline is the append-only activity log of a deal.
package timeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pauljones0/creator-deal-tracker/internal/models"
)

// Appender persists one event at the end of a deal's timeline.
type Appender interface {
	AppendTimelineEvent(ctx context.Context, dealID string, event models.TimelineEvent) (models.TimelineEvent, error)
}

// Log stamps events with an id and the current time and hands them to storage.
type Log struct {
	store Appender
	now   func() time.Time
	newID func() string
}

func New(store Appender) *Log {
	return &Log{
		store: store,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// WithClock replaces the time source, for tests and replays.
func (l *Log) WithClock(now func() time.Time) *Log {
	l.now = now
	return l
}

// NewEvent builds an event without persisting it.
func (l *Log) NewEvent(eventType models.EventType, description string, metadata map[string]interface{}) (models.TimelineEvent, error) {
	if !eventType.Valid() {
		return models.TimelineEvent{}, fmt.Errorf("%w: unknown timeline event type %q", models.ErrValidation, eventType)
	}
	return models.TimelineEvent{
		ID:          l.newID(),
		Type:        eventType,
		Date:        l.now().UTC(),
		Description: description,
		Metadata:    metadata,
	}, nil
}

// Append records a new event for dealID and returns it as stored.
func (l *Log) Append(ctx context.Context, dealID string, eventType models.EventType, description string, metadata map[string]interface{}) (models.TimelineEvent, error) {
	event, err := l.NewEvent(eventType, description, metadata)
	if err != nil {
		return models.TimelineEvent{}, err
	}
	stored, err := l.store.AppendTimelineEvent(ctx, dealID, event)
	if err != nil {
		return models.TimelineEvent{}, fmt.Errorf("failed to append %s event to deal %s: %w", eventType, dealID, err)
	}
	return stored, nil
}

// Attach appends a confirmed event to the in-memory view of a deal.
func Attach(deal *models.Deal, event models.TimelineEvent) {
	deal.Timeline = append(deal.Timeline, event)
}

// MostRecentFirst returns a reversed copy for display. The stored order is untouched.
func MostRecentFirst(events []models.TimelineEvent) []models.TimelineEvent {
	out := make([]models.TimelineEvent, len(events))
	for i, e := range events {
		out[len(events)-1-i] = e
	}
	return out
}

// Latest returns the most recent event of the given type, if any.
func Latest(events []models.TimelineEvent, eventType models.EventType) (models.TimelineEvent, bool) {
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Type == eventType {
			return events[i], true
		}
	}
	return models.TimelineEvent{}, false
}
