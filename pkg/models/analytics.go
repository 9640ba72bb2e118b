package models

// Analytics holds the dashboard aggregate counts reported by the backend.
type Analytics struct {
	TotalThreads      int     `json:"total_threads" yaml:"total_threads"`
	TotalSummaries    int     `json:"total_summaries" yaml:"total_summaries"`
	PendingSummaries  int     `json:"pending_summaries" yaml:"pending_summaries"`
	ApprovedSummaries int     `json:"approved_summaries" yaml:"approved_summaries"`
	ApprovalRate      float64 `json:"approval_rate" yaml:"approval_rate"`
}

// HealthStatus is the backend health check response.
type HealthStatus struct {
	Status    string `json:"status"`
	NLPMethod string `json:"nlp_method"`
	Timestamp string `json:"timestamp"`
}
