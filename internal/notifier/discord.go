package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/pauljones0/creator-deal-tracker/internal/tracker"
)

const (
	colorAdvisoryOnly = 3092790  // #2F3136
	colorDue          = 16753920 // #FFA500
	colorLate         = 16711680 // #FF0000
	colorStale        = 10038562 // #992D22

	lateAfterDays  = 3
	staleAfterDays = 7

	// Discord rejects embeds with more than 25 fields.
	maxDealFields = 20

	maxRetries  = 3
	baseBackoff = time.Second
)

type Client struct {
	webhookURL  string
	client      *http.Client
	rateLimiter *rate.Limiter
}

func New(webhookURL string) *Client {
	return &Client{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		// Webhooks allow 5 requests per 2 seconds.
		rateLimiter: rate.NewLimiter(rate.Every(400*time.Millisecond), 1),
	}
}

// Enabled reports whether a webhook is configured.
func (c *Client) Enabled() bool {
	return c != nil && c.webhookURL != ""
}

// SendDigest posts an attention digest and returns the message ID.
func (c *Client) SendDigest(ctx context.Context, a tracker.Attention) (string, error) {
	if !c.Enabled() {
		return "", nil
	}
	payload := discordWebhookPayload{Embeds: []discordEmbed{formatAttentionEmbed(a)}}
	return c.sendAndGetMessageID(ctx, payload)
}

// UpdateDigest replaces the content of a previously sent digest.
func (c *Client) UpdateDigest(ctx context.Context, messageID string, a tracker.Attention) error {
	if !c.Enabled() || messageID == "" {
		return nil
	}
	payload := discordWebhookPayload{Embeds: []discordEmbed{formatAttentionEmbed(a)}}
	return c.updateDiscordMessage(ctx, messageID, payload)
}

type discordWebhookPayload struct {
	Content string         `json:"content,omitempty"`
	Embeds  []discordEmbed `json:"embeds"`
}

type discordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type discordEmbedFooter struct {
	Text string `json:"text,omitempty"`
}

type discordEmbed struct {
	Title       string              `json:"title,omitempty"`
	Description string              `json:"description,omitempty"`
	Timestamp   string              `json:"timestamp,omitempty"`
	Color       int                 `json:"color,omitempty"`
	Fields      []discordEmbedField `json:"fields,omitempty"`
	Footer      discordEmbedFooter  `json:"footer,omitempty"`
}

type discordMessageResponse struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
}

func formatAttentionEmbed(a tracker.Attention) discordEmbed {
	title := a.Message()
	if title == "" {
		title = "No deals are overdue"
	}

	var fields []discordEmbedField
	maxLate := 0
	for i, d := range a.Overdue {
		late := daysLate(d, a.GeneratedAt)
		if late > maxLate {
			maxLate = late
		}
		if i == maxDealFields {
			fields = append(fields, discordEmbedField{
				Name:  "More",
				Value: fmt.Sprintf("+%d more overdue deals", len(a.Overdue)-maxDealFields),
			})
			continue
		}
		if i > maxDealFields {
			continue
		}
		fields = append(fields, discordEmbedField{
			Name:   fmt.Sprintf("%s (%s)", d.BrandName, d.Platform),
			Value:  fmt.Sprintf("%s · %s · %s", d.Status, lateLabel(late), d.Recommendation.Label),
			Inline: true,
		})
	}

	if len(a.GhostingAdvisories) > 0 {
		names := make([]string, 0, len(a.GhostingAdvisories))
		for _, d := range a.GhostingAdvisories {
			names = append(names, fmt.Sprintf("%s (%d follow-ups)", d.BrandName, d.FollowUpCount))
		}
		fields = append(fields, discordEmbedField{
			Name:  "Consider marking as Ghosted",
			Value: strings.Join(names, "\n"),
		})
	}

	var isoTimestamp string
	if !a.GeneratedAt.IsZero() {
		isoTimestamp = a.GeneratedAt.Format(time.RFC3339)
	}

	return discordEmbed{
		Title:     title,
		Timestamp: isoTimestamp,
		Color:     urgencyColor(a.OverdueCount, maxLate),
		Fields:    fields,
		Footer:    discordEmbedFooter{Text: "Deal tracker · " + a.OwnerID},
	}
}

func daysLate(d tracker.DealView, now time.Time) int {
	return int(now.Sub(d.NextFollowUpAt).Hours() / 24)
}

func lateLabel(days int) string {
	switch days {
	case 0:
		return "due today"
	case 1:
		return "1 day overdue"
	default:
		return fmt.Sprintf("%d days overdue", days)
	}
}

func urgencyColor(overdue, maxLate int) int {
	switch {
	case overdue == 0:
		return colorAdvisoryOnly
	case maxLate >= staleAfterDays:
		return colorStale
	case maxLate >= lateAfterDays:
		return colorLate
	}
	return colorDue
}

func (c *Client) sendAndGetMessageID(ctx context.Context, payload discordWebhookPayload) (string, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	parsedURL, err := url.Parse(c.webhookURL)
	if err != nil {
		return "", err
	}
	q := parsedURL.Query()
	q.Set("wait", "true")
	parsedURL.RawQuery = q.Encode()

	bodyBytes, err := c.do(ctx, http.MethodPost, parsedURL.String(), payloadBytes)
	if err != nil {
		return "", err
	}
	var msgResponse discordMessageResponse
	if err := json.Unmarshal(bodyBytes, &msgResponse); err != nil {
		return "", fmt.Errorf("failed to decode discord response: %w", err)
	}
	return msgResponse.ID, nil
}

func (c *Client) updateDiscordMessage(ctx context.Context, messageID string, payload discordWebhookPayload) error {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	parsedBaseURL, err := url.Parse(c.webhookURL)
	if err != nil {
		return err
	}
	patchURL := fmt.Sprintf("%s://%s%s/messages/%s", parsedBaseURL.Scheme, parsedBaseURL.Host, parsedBaseURL.Path, messageID)

	_, err = c.do(ctx, http.MethodPatch, patchURL, payloadBytes)
	return err
}

// do sends the request, retrying rate limits and server errors.
func (c *Client) do(ctx context.Context, method, target string, payload []byte) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		bodyBytes, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return bodyBytes, nil
		}
		lastErr = fmt.Errorf("discord status: %s, body: %s", resp.Status, string(bodyBytes))

		wait := retryBackoff(resp, attempt)
		if wait == 0 || attempt == maxRetries {
			break
		}
		slog.Warn("Discord request failed, retrying", "status", resp.StatusCode, "attempt", attempt+1, "wait", wait)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil, lastErr
}

// retryBackoff returns how long to wait before retrying resp, or zero when
// the failure is not retryable.
func retryBackoff(resp *http.Response, attempt int) time.Duration {
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		if secs, err := strconv.ParseFloat(resp.Header.Get("Retry-After"), 64); err == nil && secs > 0 {
			return time.Duration(secs * float64(time.Second))
		}
		return baseBackoff
	case resp.StatusCode >= 500:
		return time.Duration(math.Pow(2, float64(attempt))) * baseBackoff
	}
	return 0
}
