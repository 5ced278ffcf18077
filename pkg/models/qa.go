package models

import (
	"encoding/json"
	"time"
)

// AnswerSource identifies where an answer came from.
type AnswerSource string

const (
	// SourceCache means the in-memory cache answered.
	SourceCache AnswerSource = "cache"
	// SourceShared means the caller joined an in-flight request.
	SourceShared AnswerSource = "shared"
	// SourceStore means the persistent answer store answered.
	SourceStore AnswerSource = "store"
	// SourceBackend means the upstream insights API was called.
	SourceBackend AnswerSource = "backend"
)

// Answer is a single insights answer as returned by the backend.
type Answer struct {
	Text        string          `json:"text"`
	Confidence  float64         `json:"confidence,omitempty"`
	Metrics     json.RawMessage `json:"metrics,omitempty"`
	GeneratedAt time.Time       `json:"generated_at"`
}

// AskRequest is the gateway ask request body.
type AskRequest struct {
	WorkspaceID string `json:"workspace_id"`
	Question    string `json:"question"`
}

// AskResponse is the gateway ask response body.
type AskResponse struct {
	Answer *Answer      `json:"answer"`
	Source AnswerSource `json:"source"`
}
