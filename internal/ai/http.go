package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/pauljones0/creator-deal-tracker/internal/util"
)

const maxResponseBytes = 1 << 20

// HTTPTransport posts {action, data} envelopes to a hosted enrichment service.
type HTTPTransport struct {
	endpoint    string
	token       string
	maxRetries  int
	httpClient  *http.Client
	rateLimiter *rate.Limiter
}

// NewHTTPTransport returns nil when endpoint is empty.
func NewHTTPTransport(endpoint, token string, maxRetries int) *HTTPTransport {
	if endpoint == "" {
		return nil
	}
	return &HTTPTransport{
		endpoint:   endpoint,
		token:      token,
		maxRetries: maxRetries,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		// The hosted service fronts a metered model API.
		rateLimiter: rate.NewLimiter(rate.Limit(2), 4),
	}
}

// Invoke posts the envelope and returns the response body.
// Rate limits and server errors are retried; other client errors are not.
func (h *HTTPTransport) Invoke(ctx context.Context, action string, data any) ([]byte, error) {
	if h == nil {
		return nil, ErrUnavailable
	}

	payload, err := json.Marshal(Envelope{Action: action, Data: data})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal enrichment request: %w", err)
	}

	var body []byte
	err = util.RetryWithBackoff(ctx, h.maxRetries, func(attempt int) error {
		if err := h.rateLimiter.Wait(ctx); err != nil {
			return util.Permanent(fmt.Errorf("rate limiter wait failed: %w", err))
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(payload))
		if err != nil {
			return util.Permanent(fmt.Errorf("failed to create enrichment request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		if h.token != "" {
			req.Header.Set("Authorization", "Bearer "+h.token)
		}

		resp, err := h.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("enrichment request failed (attempt %d): %w", attempt+1, err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return fmt.Errorf("failed to read enrichment response: %w", err)
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			body = respBody
			return nil
		case resp.StatusCode == http.StatusTooManyRequests:
			err := fmt.Errorf("enrichment service is rate limiting: %s", truncateBody(respBody))
			if secs, convErr := strconv.Atoi(resp.Header.Get("Retry-After")); convErr == nil {
				return util.RetryAfter(err, time.Duration(secs)*time.Second)
			}
			return err
		case resp.StatusCode >= 500:
			return fmt.Errorf("enrichment service returned %d: %s", resp.StatusCode, truncateBody(respBody))
		default:
			return util.Permanent(fmt.Errorf("enrichment service rejected %s with %d: %s", action, resp.StatusCode, truncateBody(respBody)))
		}
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

func truncateBody(b []byte) string {
	return util.TruncateRunes(string(b), 200)
}
