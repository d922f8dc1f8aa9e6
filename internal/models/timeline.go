package models

import "time"

// EventType classifies a timeline entry.
type EventType string

const (
	EventStatusChange  EventType = "status_change"
	EventNote          EventType = "note"
	EventFollowUp      EventType = "follow_up"
	EventRateCheck     EventType = "rate_check"
	EventBriefAnalysis EventType = "brief_analysis"
)

func (t EventType) Valid() bool {
	switch t {
	case EventStatusChange, EventNote, EventFollowUp, EventRateCheck, EventBriefAnalysis:
		return true
	}
	return false
}

// TimelineEvent is an immutable record of something that happened to a deal.
type TimelineEvent struct {
	ID          string                 `firestore:"id" json:"id"`
	Type        EventType              `firestore:"type" json:"type"`
	Date        time.Time              `firestore:"date" json:"date"`
	Description string                 `firestore:"description" json:"description"`
	Metadata    map[string]interface{} `firestore:"metadata,omitempty" json:"metadata,omitempty"`
}
