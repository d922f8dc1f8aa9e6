package models

import (
	"strings"
	"time"
)

// RateCheckInput describes the creator's reach and the requested deliverable.
type RateCheckInput struct {
	Platform       Platform `json:"platform" validate:"required,platform"`
	Followers      int      `json:"followers" validate:"gte=0"`
	AvgViews       int      `json:"avgViews" validate:"gte=0"`
	EngagementRate float64  `json:"engagementRate" validate:"gte=0,lte=100"` // percent
	ContentType    string   `json:"contentType" validate:"required,max=200"`
	UsageRights    string   `json:"usageRights" validate:"max=500"`
	Exclusivity    string   `json:"exclusivity" validate:"max=500"`
}

// RateCheckResult is the pricing guidance attached to a deal.
type RateCheckResult struct {
	SuggestedLow    float64   `firestore:"suggestedLow" json:"suggestedLow"`
	SuggestedHigh   float64   `firestore:"suggestedHigh" json:"suggestedHigh"`
	ConfidenceScore int       `firestore:"confidenceScore" json:"confidenceScore"`
	Explanation     string    `firestore:"explanation" json:"explanation"`
	SuggestedReply  string    `firestore:"suggestedReply,omitempty" json:"suggestedReply,omitempty"`
	Timestamp       time.Time `firestore:"timestamp" json:"timestamp"`
}

// BriefAnalysisResult is the risk report for a brand brief.
// RedFlags entries are either "label" or "label: rationale".
type BriefAnalysisResult struct {
	Summary        string    `firestore:"summary" json:"summary"`
	RedFlags       []string  `firestore:"redFlags" json:"redFlags"`
	Checklist      []string  `firestore:"checklist" json:"checklist"`
	QuestionsToAsk []string  `firestore:"questionsToAsk" json:"questionsToAsk"`
	Timestamp      time.Time `firestore:"timestamp" json:"timestamp"`
}

// HasRedFlags reports whether the analysis flagged at least one risk.
func (b *BriefAnalysisResult) HasRedFlags() bool {
	return b != nil && len(b.RedFlags) > 0
}

// SplitRedFlag separates a red flag into its label and optional rationale.
func SplitRedFlag(flag string) (label, rationale string) {
	label, rationale, found := strings.Cut(flag, ":")
	if !found {
		return strings.TrimSpace(flag), ""
	}
	return strings.TrimSpace(label), strings.TrimSpace(rationale)
}
