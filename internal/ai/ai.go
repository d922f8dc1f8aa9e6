// Package ai talks to the language model behind deal enrichment.
//
// Every transport takes an action name and its input and returns the raw
// model payload. Parsing and fallback are left to the caller.
package ai

import "errors"

const (
	ActionCheckRate    = "check-rate"
	ActionAnalyzeBrief = "analyze-brief"
)

// ErrUnavailable is returned by a transport that has not been configured.
var ErrUnavailable = errors.New("enrichment service not configured")

// ErrUnknownAction is returned for action names no transport understands.
var ErrUnknownAction = errors.New("unknown enrichment action")

// BriefRequest is the payload of ActionAnalyzeBrief.
type BriefRequest struct {
	BriefText string `json:"briefText"`
}

// Envelope is the request body accepted by the hosted enrichment service.
type Envelope struct {
	Action string      `json:"action"`
	Data   interface{} `json:"data"`
}
