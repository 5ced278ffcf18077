package models

// QuotaPeriod defines the time window for a quota policy.
type QuotaPeriod string

const (
	QuotaDaily   QuotaPeriod = "daily"
	QuotaMonthly QuotaPeriod = "monthly"
)

// QuotaPolicy limits backend questions per scope per period. Cached and
// deduplicated answers do not count against it.
type QuotaPolicy struct {
	Scope        string      `json:"scope" yaml:"scope"`
	MaxQuestions int64       `json:"max_questions" yaml:"max_questions"`
	Period       QuotaPeriod `json:"period" yaml:"period"`
}

// QuotaStatus shows current usage against a policy.
type QuotaStatus struct {
	Policy    QuotaPolicy `json:"policy"`
	Used      int64       `json:"used"`
	Remaining int64       `json:"remaining"`
}
