package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"

	"github.com/pauljones0/creator-deal-tracker/internal/models"
)

// GeminiConfig configures a direct Gemini transport.
type GeminiConfig struct {
	APIKey  string
	Model   string
	// BaseURL overrides the API endpoint. Empty uses the public endpoint.
	BaseURL string
}

// GeminiTransport answers enrichment actions with Gemini structured output.
type GeminiTransport struct {
	client *genai.Client
	model  string
}

// NewGeminiTransport returns nil when no API key is configured.
func NewGeminiTransport(ctx context.Context, cfg GeminiConfig) (*GeminiTransport, error) {
	if cfg.APIKey == "" {
		return nil, nil
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiTransport{client: client, model: cfg.Model}, nil
}

// Invoke runs action against the model and returns the JSON text it produced.
func (g *GeminiTransport) Invoke(ctx context.Context, action string, data any) ([]byte, error) {
	if g == nil || g.client == nil {
		return nil, ErrUnavailable
	}

	prompt, config, err := buildGeminiRequest(action, data)
	if err != nil {
		return nil, err
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), config)
	if err != nil {
		return nil, fmt.Errorf("gemini generation failed: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("no response candidates from gemini")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" {
			sb.WriteString(part.Text)
		}
	}
	if sb.Len() == 0 {
		return nil, fmt.Errorf("no text part in response")
	}

	slog.Debug("Gemini enrichment completed", "action", action, "model", g.model)
	return []byte(sb.String()), nil
}

func buildGeminiRequest(action string, data any) (string, *genai.GenerateContentConfig, error) {
	config := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](0.4),
		ResponseMIMEType: "application/json",
	}

	switch action {
	case ActionCheckRate:
		in, err := decodeAs[models.RateCheckInput](data)
		if err != nil {
			return "", nil, err
		}
		config.SystemInstruction = systemText(rateSystemInstruction)
		config.ResponseSchema = rateCheckSchema
		return rateCheckPrompt(in), config, nil
	case ActionAnalyzeBrief:
		req, err := decodeAs[BriefRequest](data)
		if err != nil {
			return "", nil, err
		}
		config.SystemInstruction = systemText(briefSystemInstruction)
		config.ResponseSchema = briefAnalysisSchema
		return briefPrompt(req.BriefText), config, nil
	default:
		return "", nil, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
}

// decodeAs accepts either the typed request or anything that marshals to it.
func decodeAs[T any](data any) (T, error) {
	var out T
	switch v := data.(type) {
	case T:
		return v, nil
	case *T:
		if v != nil {
			return *v, nil
		}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return out, fmt.Errorf("failed to encode enrichment input: %w", err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("failed to decode enrichment input: %w", err)
	}
	return out, nil
}

func systemText(text string) *genai.Content {
	return &genai.Content{Parts: []*genai.Part{{Text: text}}}
}

var rateCheckSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"suggestedLow": {
			Type:        genai.TypeNumber,
			Description: "Lower end of the fair fee range in USD.",
		},
		"suggestedHigh": {
			Type:        genai.TypeNumber,
			Description: "Upper end of the fair fee range in USD.",
		},
		"confidenceScore": {
			Type:        genai.TypeInteger,
			Description: "0-100 confidence that the range matches industry norms.",
		},
		"explanation": {
			Type:        genai.TypeString,
			Description: "Plain English reasoning behind the range.",
		},
		"suggestedReply": {
			Type:        genai.TypeString,
			Description: "Copy-paste ready reply to the brand.",
		},
	},
	Required: []string{"suggestedLow", "suggestedHigh", "confidenceScore", "explanation"},
}

var briefAnalysisSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"summary": {
			Type:        genai.TypeString,
			Description: "2-3 sentences on what the brand is asking for.",
		},
		"redFlags": {
			Type:        genai.TypeArray,
			Description: "Risky terms, each as \"FLAG: why it matters\".",
			Items:       &genai.Schema{Type: genai.TypeString},
		},
		"checklist": {
			Type:  genai.TypeArray,
			Items: &genai.Schema{Type: genai.TypeString},
		},
		"questionsToAsk": {
			Type:  genai.TypeArray,
			Items: &genai.Schema{Type: genai.TypeString},
		},
	},
	Required: []string{"summary", "redFlags", "checklist", "questionsToAsk"},
}
