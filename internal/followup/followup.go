// Package followup keeps a deal's contact schedule in step with logged activity.
package followup

import (
	"time"

	"github.com/pauljones0/creator-deal-tracker/internal/models"
)

// GhostingThreshold is the follow-up count at which an open deal is considered unresponsive.
const GhostingThreshold = 3

const day = 24 * time.Hour

// NextDue returns the moment intervalDays after from.
func NextDue(from time.Time, intervalDays int) time.Time {
	return from.Add(time.Duration(intervalDays) * day)
}

// Schedule initialises the follow-up fields of a freshly created deal.
func Schedule(d *models.Deal, now time.Time) {
	d.LastContactedAt = now
	d.NextFollowUpAt = NextDue(now, d.FollowUpIntervalDays)
	d.FollowUpCount = 0
}

// Transition is the scheduler state produced by a logged follow-up.
type Transition struct {
	FollowUpCount   int
	LastContactedAt time.Time
	NextFollowUpAt  time.Time
	// Advisory is set when the deal is still open and has reached GhostingThreshold.
	Advisory        bool
}

// RecordFollowUp computes the state after an outbound follow-up at now without mutating d.
// The interval is re-applied from now, not from the previous due date.
func RecordFollowUp(d models.Deal, now time.Time) Transition {
	count := d.FollowUpCount + 1
	return Transition{
		FollowUpCount:   count,
		LastContactedAt: now,
		NextFollowUpAt:  NextDue(now, d.FollowUpIntervalDays),
		Advisory:        !d.Status.Terminal() && count >= GhostingThreshold,
	}
}

// Update converts the transition into a partial deal update.
func (t Transition) Update() models.DealUpdate {
	count, last, next := t.FollowUpCount, t.LastContactedAt, t.NextFollowUpAt
	return models.DealUpdate{
		FollowUpCount:   &count,
		LastContactedAt: &last,
		NextFollowUpAt:  &next,
	}
}

// Reschedule moves the next due date after an interval change, anchored on the last contact.
func Reschedule(d models.Deal, intervalDays int) time.Time {
	return NextDue(d.LastContactedAt, intervalDays)
}

// IsOverdue reports whether an open deal's next follow-up has passed.
// Terminal deals are never overdue.
func IsOverdue(d models.Deal, now time.Time) bool {
	if d.Status.Terminal() {
		return false
	}
	return d.NextFollowUpAt.Before(now)
}

// NeedsGhostingAdvisory reports whether the "consider marking Ghosted" prompt applies.
func NeedsGhostingAdvisory(d models.Deal) bool {
	return !d.Status.Terminal() && d.FollowUpCount >= GhostingThreshold
}

// Overdue filters deals down to the overdue ones, preserving order.
func Overdue(deals []models.Deal, now time.Time) []models.Deal {
	var out []models.Deal
	for _, d := range deals {
		if IsOverdue(d, now) {
			out = append(out, d)
		}
	}
	return out
}
