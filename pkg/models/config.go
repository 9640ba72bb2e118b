package models

import "time"

// APIConfig configures the backend transport.
type APIConfig struct {
	BaseURL string        `yaml:"base_url" mapstructure:"base_url"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// BatchConfig configures the batch summarization run.
type BatchConfig struct {
	StopOnError   bool    `yaml:"stop_on_error" mapstructure:"stop_on_error"`
	RatePerSecond float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
}

// SlackConfig holds the optional Slack webhook for alert delivery.
// ReviewURL, when set, is linked from every alert message.
type SlackConfig struct {
	WebhookURL string `yaml:"webhook_url" mapstructure:"webhook_url"`
	ReviewURL  string `yaml:"review_url" mapstructure:"review_url"`
}

// NotificationConfig configures the status message slot and alert delivery.
type NotificationConfig struct {
	TTL   time.Duration `yaml:"ttl" mapstructure:"ttl"`
	Slack SlackConfig   `yaml:"slack" mapstructure:"slack"`
}

// AlertConfig holds alert thresholds evaluated against the local event log.
type AlertConfig struct {
	MaxPendingSummaries int `yaml:"max_pending_summaries" mapstructure:"max_pending_summaries"`
	MaxBatchFailurePct  int `yaml:"max_batch_failure_pct" mapstructure:"max_batch_failure_pct"`
	MaxRejectionPct     int `yaml:"max_rejection_pct" mapstructure:"max_rejection_pct"`
}

// ExportConfig controls where and how export artifacts are written.
type ExportConfig struct {
	Dir    string `yaml:"dir" mapstructure:"dir"`
	Format string `yaml:"format" mapstructure:"format"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// GlobalConfig holds all settings read from .reviewconfig via Viper.
type GlobalConfig struct {
	API           APIConfig          `yaml:"api" mapstructure:"api"`
	ReviewerName  string             `yaml:"reviewer_name" mapstructure:"reviewer_name"`
	Batch         BatchConfig        `yaml:"batch" mapstructure:"batch"`
	Notifications NotificationConfig `yaml:"notifications" mapstructure:"notifications"`
	Alerts        AlertConfig        `yaml:"alerts" mapstructure:"alerts"`
	EventsBackend string             `yaml:"events_backend" mapstructure:"events_backend"`
	Export        ExportConfig       `yaml:"export" mapstructure:"export"`
	Log           LogConfig          `yaml:"log" mapstructure:"log"`
}
