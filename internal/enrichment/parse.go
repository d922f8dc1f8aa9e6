package enrichment

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/pauljones0/creator-deal-tracker/internal/models"
	"github.com/pauljones0/creator-deal-tracker/internal/util"
)

// flexNumber accepts 1200, 1200.5 or "$1,200". Anything else leaves it unset.
type flexNumber struct {
	value float64
	set   bool
}

func (n *flexNumber) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err == nil {
		n.value, n.set = f, true
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return nil
	}
	s = strings.NewReplacer("$", "", ",", "", "%", "", " ", "").Replace(s)
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		n.value, n.set = f, true
	}
	return nil
}

type flexString struct {
	value string
	set   bool
}

func (s *flexString) UnmarshalJSON(b []byte) error {
	var v string
	if err := json.Unmarshal(b, &v); err == nil {
		s.value = strings.TrimSpace(v)
		s.set = s.value != ""
	}
	return nil
}

// flexList accepts a list of strings or of {label, rationale} style objects.
// A lone string becomes a one element list. An explicit empty list stays empty.
type flexList struct {
	value []string
	set   bool
}

func (l *flexList) UnmarshalJSON(b []byte) error {
	var single string
	if err := json.Unmarshal(b, &single); err == nil {
		if single = strings.TrimSpace(single); single != "" {
			l.value, l.set = []string{single}, true
		}
		return nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(b, &items); err != nil {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s := listItem(item); s != "" {
			out = append(out, s)
		}
	}
	l.value, l.set = out, true
	return nil
}

func listItem(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var obj map[string]interface{}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return ""
	}
	label := firstString(obj, "label", "flag", "title", "name", "term")
	rationale := firstString(obj, "rationale", "why", "reason", "explanation", "detail", "whyItMatters")
	switch {
	case label != "" && rationale != "":
		return label + ": " + rationale
	case label != "":
		return label
	default:
		return rationale
	}
}

func firstString(obj map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if v, ok := obj[k].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

type rateCheckReply struct {
	SuggestedLow    flexNumber `json:"suggestedLow"`
	SuggestedHigh   flexNumber `json:"suggestedHigh"`
	ConfidenceScore flexNumber `json:"confidenceScore"`
	Explanation     flexString `json:"explanation"`
	SuggestedReply  flexString `json:"suggestedReply"`
}

type briefReply struct {
	Summary        flexString `json:"summary"`
	RedFlags       flexList   `json:"redFlags"`
	Checklist      flexList   `json:"checklist"`
	QuestionsToAsk flexList   `json:"questionsToAsk"`
}

func decodeReply(raw []byte, v interface{}) bool {
	obj, ok := util.ExtractJSONObject(string(raw))
	if !ok {
		return false
	}
	return json.Unmarshal([]byte(obj), v) == nil
}

// ParseRateCheck turns a raw reply into a complete result. Missing or
// unusable fields take their fallback value and make the outcome partial.
func ParseRateCheck(raw []byte, now time.Time) (models.RateCheckResult, Outcome) {
	var reply rateCheckReply
	complete := decodeReply(raw, &reply)

	result := models.RateCheckResult{Timestamp: now.UTC()}

	if reply.SuggestedLow.set && reply.SuggestedLow.value > 0 {
		result.SuggestedLow = reply.SuggestedLow.value
	} else {
		result.SuggestedLow, complete = FallbackLow, false
	}
	if reply.SuggestedHigh.set && reply.SuggestedHigh.value > 0 {
		result.SuggestedHigh = reply.SuggestedHigh.value
	} else {
		result.SuggestedHigh, complete = FallbackHigh, false
	}
	if result.SuggestedLow > result.SuggestedHigh {
		result.SuggestedLow, result.SuggestedHigh = result.SuggestedHigh, result.SuggestedLow
		complete = false
	}

	if reply.ConfidenceScore.set {
		score := int(math.Round(reply.ConfidenceScore.value))
		clamped := min(max(score, 0), 100)
		if clamped != score {
			complete = false
		}
		result.ConfidenceScore = clamped
	} else {
		result.ConfidenceScore, complete = FallbackConfidence, false
	}

	if reply.Explanation.set {
		result.Explanation = reply.Explanation.value
	} else {
		result.Explanation, complete = FallbackExplanation, false
	}
	result.SuggestedReply = reply.SuggestedReply.value

	if complete {
		return result, OutcomeSuccess
	}
	return result, OutcomePartial
}

// ParseBriefAnalysis turns a raw reply into a complete report. An explicit
// empty redFlags list means no risks and is kept as is.
func ParseBriefAnalysis(raw []byte, now time.Time) (models.BriefAnalysisResult, Outcome) {
	var reply briefReply
	complete := decodeReply(raw, &reply)

	result := models.BriefAnalysisResult{Timestamp: now.UTC()}

	if reply.Summary.set {
		result.Summary = reply.Summary.value
	} else {
		result.Summary, complete = FallbackSummary, false
	}
	if reply.RedFlags.set {
		result.RedFlags = reply.RedFlags.value
	} else {
		result.RedFlags, complete = fallbackRedFlags(), false
	}
	if reply.Checklist.set {
		result.Checklist = reply.Checklist.value
	} else {
		result.Checklist, complete = fallbackChecklist(), false
	}
	if reply.QuestionsToAsk.set {
		result.QuestionsToAsk = reply.QuestionsToAsk.value
	} else {
		result.QuestionsToAsk, complete = fallbackQuestions(), false
	}

	if complete {
		return result, OutcomeSuccess
	}
	return result, OutcomePartial
}
