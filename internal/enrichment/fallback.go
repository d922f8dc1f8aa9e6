package enrichment

import (
	"time"

	"github.com/pauljones0/creator-deal-tracker/internal/models"
)

const (
	FallbackLow         = 500
	FallbackHigh        = 1500
	FallbackConfidence  = 50
	FallbackExplanation = "fallback estimate"
)

const FallbackSummary = "could not analyze"

func fallbackRedFlags() []string {
	return []string{"service unavailable"}
}

func fallbackChecklist() []string {
	return []string{"review manually"}
}

func fallbackQuestions() []string {
	return []string{"what are the usage rights?"}
}

// FallbackRateCheck is the result used when the AI service cannot be reached.
func FallbackRateCheck(now time.Time) models.RateCheckResult {
	return models.RateCheckResult{
		SuggestedLow:    FallbackLow,
		SuggestedHigh:   FallbackHigh,
		ConfidenceScore: FallbackConfidence,
		Explanation:     FallbackExplanation,
		Timestamp:       now.UTC(),
	}
}

// FallbackBriefAnalysis is the report used when the AI service cannot be reached.
func FallbackBriefAnalysis(now time.Time) models.BriefAnalysisResult {
	return models.BriefAnalysisResult{
		Summary:        FallbackSummary,
		RedFlags:       fallbackRedFlags(),
		Checklist:      fallbackChecklist(),
		QuestionsToAsk: fallbackQuestions(),
		Timestamp:      now.UTC(),
	}
}

// IsFallback reports whether a rate check carries the fallback label.
func IsFallback(r models.RateCheckResult) bool {
	return r.Explanation == FallbackExplanation
}
