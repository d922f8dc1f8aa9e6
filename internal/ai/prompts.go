package ai

import (
	"fmt"

	"github.com/pauljones0/creator-deal-tracker/internal/models"
)

const rateSystemInstruction = "You are a creator economy pricing expert acting as a talent manager. Always respond with valid JSON only."

const briefSystemInstruction = "You are a legal-focused talent manager for creators. Always respond with valid JSON only."

func rateCheckPrompt(in models.RateCheckInput) string {
	return fmt.Sprintf(`
Suggest a fair market fee range in USD for this sponsorship.

Platform: %s
Followers: %d
Average Views: %d
Engagement Rate: %.2f%%
Deliverable Type: %s
Usage Rights: %s
Exclusivity: %s

Guidelines:
1. Start from industry CPMs (roughly $20-40 for video, $10-20 for stories).
2. Raise the rate for usage rights beyond organic posting.
3. Raise the rate for every month of exclusivity.
4. confidenceScore is 0-100 and reflects how standard the request is.
5. explanation cites why you chose the numbers, in plain English.
6. suggestedReply is a short, polite and confident message the creator can send back.

Output JSON adhering to the schema.
`, in.Platform, in.Followers, in.AvgViews, in.EngagementRate, in.ContentType, orNotSpecified(in.UsageRights), orNotSpecified(in.Exclusivity))
}

func briefPrompt(text string) string {
	return fmt.Sprintf(`
Review this brand brief for unfair or risky terms.

Brief:
"%s"

Task:
1. summary: 2-3 sentences on what is actually being asked.
2. redFlags: terms such as perpetual usage, work for hire, uncapped exclusivity, payment later than Net 60 or broad indemnity. Write each as "FLAG: why it matters".
3. checklist: 3-5 concrete to-dos for the creator.
4. questionsToAsk: 3 questions that prevent scope creep.

Output JSON adhering to the schema.
`, text)
}

func orNotSpecified(s string) string {
	if s == "" {
		return "not specified"
	}
	return s
}
