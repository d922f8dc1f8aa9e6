// Package recommend picks the single next action for a deal.
//
// Rules are evaluated in order and the first match wins. Relationship risk
// (ghosting, overdue contact) outranks pricing, which outranks note keeping,
// which outranks waiting.
package recommend

import (
	"time"
	"unicode/utf8"

	"github.com/pauljones0/creator-deal-tracker/internal/followup"
	"github.com/pauljones0/creator-deal-tracker/internal/models"
)

// ActionType classifies a recommendation.
type ActionType string

const (
	ActionFollowUp       ActionType = "FOLLOW_UP"
	ActionReviewRisks    ActionType = "REVIEW_RISKS"
	ActionCheckRate      ActionType = "CHECK_RATE"
	ActionLogNotes       ActionType = "LOG_NOTES"
	ActionGhostedClosure ActionType = "GHOSTED_CLOSURE"
	ActionNone           ActionType = "NONE"
)

// MinNotesLength is the rune count below which negotiation notes count as missing.
const MinNotesLength = 10

// Action is the recommended next step.
type Action struct {
	Label       string     `json:"label"`
	Type        ActionType `json:"type"`
	Description string     `json:"description"`
	// Rule names the rule that produced the action.
	Rule        RuleName   `json:"rule"`
}

// RuleName identifies a rule in the cascade.
type RuleName string

const (
	RuleGhosted          RuleName = "ghosted"
	RulePersistentSilent RuleName = "persistent_silence"
	RuleOverdue          RuleName = "overdue"
	RuleRedFlags         RuleName = "red_flags"
	RuleRateUnchecked    RuleName = "rate_unchecked"
	RuleNotesMissing     RuleName = "notes_missing"
	RuleAwaitingBrand    RuleName = "awaiting_brand"
	RuleDefault          RuleName = "default"
)

// Rule is one entry of the priority cascade.
type Rule struct {
	Name    RuleName
	Matches func(d *models.Deal, now time.Time) bool
	Action  Action
}

// Rules is the cascade in priority order. The last rule always matches.
var Rules = []Rule{
	{
		Name:    RuleGhosted,
		Matches: func(d *models.Deal, _ time.Time) bool { return d.Status == models.StatusGhosted },
		Action:  Action{Label: "Clear mental space", Type: ActionGhostedClosure, Description: "This deal is closed. No action needed."},
	},
	{
		Name: RulePersistentSilent,
		Matches: func(d *models.Deal, _ time.Time) bool {
			return d.FollowUpCount >= followup.GhostingThreshold && d.Status != models.StatusSecured
		},
		Action: Action{Label: "Mark as Ghosted", Type: ActionGhostedClosure, Description: "3+ follow-ups sent. Time to move on?"},
	},
	{
		Name: RuleOverdue,
		Matches: func(d *models.Deal, now time.Time) bool {
			return followup.IsOverdue(*d, now) && d.Status != models.StatusSecured
		},
		Action: Action{Label: "Follow up today", Type: ActionFollowUp, Description: "Time to nudge the brand."},
	},
	{
		Name:    RuleRedFlags,
		Matches: func(d *models.Deal, _ time.Time) bool { return d.BriefAnalysis.HasRedFlags() },
		Action:  Action{Label: "Review risks", Type: ActionReviewRisks, Description: "Red flags detected in brief."},
	},
	{
		Name: RuleRateUnchecked,
		Matches: func(d *models.Deal, _ time.Time) bool {
			return d.Status == models.StatusReplied && d.RateCheck == nil
		},
		Action: Action{Label: "Check your rate", Type: ActionCheckRate, Description: "Know your worth before replying."},
	},
	{
		Name: RuleNotesMissing,
		Matches: func(d *models.Deal, _ time.Time) bool {
			return d.Status == models.StatusNegotiating && notesTooShort(d.Notes)
		},
		Action: Action{Label: "Log deal notes", Type: ActionLogNotes, Description: "Keep track of what was discussed."},
	},
	{
		Name:    RuleAwaitingBrand,
		Matches: func(d *models.Deal, _ time.Time) bool { return d.Status == models.StatusOutreach },
		Action:  Action{Label: "Waiting on brand", Type: ActionNone, Description: "Ball is in their court."},
	},
	{
		Name:    RuleDefault,
		Matches: func(*models.Deal, time.Time) bool { return true },
		Action:  Action{Label: "Keep it up!", Type: ActionNone, Description: "Stay organized."},
	},
}

func init() {
	for i := range Rules {
		Rules[i].Action.Rule = Rules[i].Name
	}
}

// Evaluate returns the action of the first rule that matches d at now.
// It has no side effects; the same inputs always give the same result.
func Evaluate(d models.Deal, now time.Time) Action {
	for _, r := range Rules {
		if r.Matches(&d, now) {
			return r.Action
		}
	}
	return Rules[len(Rules)-1].Action
}

// Whitespace counts toward the length.
func notesTooShort(notes string) bool {
	return utf8.RuneCountInString(notes) < MinNotesLength
}
