package models

import "time"

// AuditEntry represents a single audited ask request/answer pair.
type AuditEntry struct {
	RequestID    string       `json:"request_id"`
	APIKeyHash   string       `json:"api_key_hash"`
	APIKeyPrefix string       `json:"api_key_prefix"`
	Scope        string       `json:"scope"`
	Question     string       `json:"question,omitempty"`
	Answer       string       `json:"answer,omitempty"`
	Source       AnswerSource `json:"source"`
	StatusCode   int          `json:"status_code"`
	LatencyMs    int64        `json:"latency_ms"`
	CreatedAt    time.Time    `json:"created_at"`
}

// AuditConfig controls the audit logging subsystem.
type AuditConfig struct {
	Enabled       bool     `yaml:"enabled"`
	DBPath        string   `yaml:"db_path"`
	RetentionDays int      `yaml:"retention_days"`
	Include       []string `yaml:"include"` // "questions", "answers"
	ExcludeScopes []string `yaml:"exclude_scopes"`
	MaxBodySize   int      `yaml:"max_body_size"` // bytes
}

// AuditQueryOpts specifies filters for querying audit entries.
type AuditQueryOpts struct {
	Scope        string
	Since        time.Time
	APIKeyPrefix string
	RequestID    string
	Limit        int
}

// AuditStat holds aggregate audit counts for a scope/day combination.
type AuditStat struct {
	Scope string
	Day   string
	Count int
}
