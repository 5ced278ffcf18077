package models

import "time"

// QARecord tracks a single answered question.
type QARecord struct {
	ID        int64        `json:"id"`
	Scope     string       `json:"scope"`
	Question  string       `json:"question"`
	Source    AnswerSource `json:"source"`
	AnswerLen int          `json:"answer_len"`
	LatencyMs int64        `json:"latency_ms"`
	CreatedAt time.Time    `json:"created_at"`
}

// QASummary aggregates question history per scope.
type QASummary struct {
	Scope        string  `json:"scope"`
	Questions    int     `json:"questions"`
	BackendCalls int     `json:"backend_calls"`
	HitRate      float64 `json:"hit_rate"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
}
