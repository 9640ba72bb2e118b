// Package core contains the review logic for thread-review: import
// validation, the summary review state machine, the sequential batch
// processor, the notification sink, the review orchestrator that ties them
// together, and configuration loading.
package core

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/valter-silva-au/thread-review/pkg/models"
)

// ConfigFileName is the name of the YAML config file read from the base path.
const ConfigFileName = ".reviewconfig"

// EnvPrefix prefixes environment variables that override config keys,
// e.g. TRV_API_BASE_URL for api.base_url.
const EnvPrefix = "TRV"

// ConfigurationManager loads and validates the .reviewconfig file.
type ConfigurationManager interface {
	LoadGlobalConfig() (*models.GlobalConfig, error)
	ValidateConfig(cfg *models.GlobalConfig) error
}

type viperConfigManager struct {
	// basePath is the directory where .reviewconfig resides.
	basePath string
}

// NewConfigurationManager creates a ConfigurationManager that reads
// .reviewconfig relative to basePath.
func NewConfigurationManager(basePath string) ConfigurationManager {
	return &viperConfigManager{basePath: basePath}
}

// DefaultConfig returns a GlobalConfig populated with defaults.
func DefaultConfig() *models.GlobalConfig {
	return &models.GlobalConfig{
		API: models.APIConfig{
			BaseURL: "http://localhost:5000/api",
			Timeout: 60 * time.Second,
		},
		ReviewerName: "CE Associate",
		Batch: models.BatchConfig{
			StopOnError:   false,
			RatePerSecond: 0,
		},
		Notifications: models.NotificationConfig{
			TTL: DefaultNotificationTTL,
		},
		Alerts: models.AlertConfig{
			MaxPendingSummaries: 25,
			MaxBatchFailurePct:  20,
			MaxRejectionPct:     30,
		},
		EventsBackend: "jsonl",
		Export: models.ExportConfig{
			Dir:    "exports",
			Format: "json",
		},
		Log: models.LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadGlobalConfig reads .reviewconfig from the base path. Missing keys, or
// a missing file, fall back to defaults; TRV_* environment variables
// override both.
func (cm *viperConfigManager) LoadGlobalConfig() (*models.GlobalConfig, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigName(ConfigFileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(cm.basePath)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("api.base_url", cfg.API.BaseURL)
	v.SetDefault("api.timeout", cfg.API.Timeout)
	v.SetDefault("reviewer.name", cfg.ReviewerName)
	v.SetDefault("batch.stop_on_error", cfg.Batch.StopOnError)
	v.SetDefault("batch.rate_per_second", cfg.Batch.RatePerSecond)
	v.SetDefault("notifications.ttl", cfg.Notifications.TTL)
	v.SetDefault("notifications.slack.webhook_url", "")
	v.SetDefault("notifications.slack.review_url", "")
	v.SetDefault("alerts.max_pending_summaries", cfg.Alerts.MaxPendingSummaries)
	v.SetDefault("alerts.max_batch_failure_pct", cfg.Alerts.MaxBatchFailurePct)
	v.SetDefault("alerts.max_rejection_pct", cfg.Alerts.MaxRejectionPct)
	v.SetDefault("events.backend", cfg.EventsBackend)
	v.SetDefault("export.dir", cfg.Export.Dir)
	v.SetDefault("export.format", cfg.Export.Format)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading %s: %w", ConfigFileName, err)
		}
	}

	cfg.API.BaseURL = strings.TrimRight(v.GetString("api.base_url"), "/")
	cfg.API.Timeout = v.GetDuration("api.timeout")
	cfg.ReviewerName = v.GetString("reviewer.name")
	cfg.Batch.StopOnError = v.GetBool("batch.stop_on_error")
	cfg.Batch.RatePerSecond = v.GetFloat64("batch.rate_per_second")
	cfg.Notifications.TTL = v.GetDuration("notifications.ttl")
	cfg.Notifications.Slack.WebhookURL = v.GetString("notifications.slack.webhook_url")
	cfg.Notifications.Slack.ReviewURL = v.GetString("notifications.slack.review_url")
	cfg.Alerts.MaxPendingSummaries = v.GetInt("alerts.max_pending_summaries")
	cfg.Alerts.MaxBatchFailurePct = v.GetInt("alerts.max_batch_failure_pct")
	cfg.Alerts.MaxRejectionPct = v.GetInt("alerts.max_rejection_pct")
	cfg.EventsBackend = v.GetString("events.backend")
	cfg.Export.Dir = v.GetString("export.dir")
	cfg.Export.Format = v.GetString("export.format")
	cfg.Log.Level = v.GetString("log.level")
	cfg.Log.Format = v.GetString("log.format")

	return cfg, nil
}

// ValidateConfig checks cfg for invalid values and names every problem.
func (cm *viperConfigManager) ValidateConfig(cfg *models.GlobalConfig) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	var errs []string

	u, err := url.Parse(cfg.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Sprintf("api.base_url %q must be an http or https URL", cfg.API.BaseURL))
	}
	if cfg.API.Timeout < 0 {
		errs = append(errs, fmt.Sprintf("api.timeout must be non-negative, got %s", cfg.API.Timeout))
	}
	if strings.TrimSpace(cfg.ReviewerName) == "" {
		errs = append(errs, "reviewer.name must not be empty")
	}
	if cfg.Batch.RatePerSecond < 0 {
		errs = append(errs, fmt.Sprintf("batch.rate_per_second must be non-negative, got %g", cfg.Batch.RatePerSecond))
	}
	if cfg.Notifications.TTL <= 0 {
		errs = append(errs, fmt.Sprintf("notifications.ttl must be positive, got %s", cfg.Notifications.TTL))
	}
	for _, f := range []struct {
		name string
		pct  int
	}{
		{"alerts.max_batch_failure_pct", cfg.Alerts.MaxBatchFailurePct},
		{"alerts.max_rejection_pct", cfg.Alerts.MaxRejectionPct},
	} {
		if f.pct < 0 || f.pct > 100 {
			errs = append(errs, fmt.Sprintf("%s must be between 0 and 100, got %d", f.name, f.pct))
		}
	}
	if cfg.Alerts.MaxPendingSummaries < 0 {
		errs = append(errs, fmt.Sprintf("alerts.max_pending_summaries must be non-negative, got %d", cfg.Alerts.MaxPendingSummaries))
	}
	if cfg.EventsBackend != "jsonl" && cfg.EventsBackend != "sqlite" {
		errs = append(errs, fmt.Sprintf("events.backend %q is invalid, must be one of: jsonl, sqlite", cfg.EventsBackend))
	}
	if cfg.Export.Format != "json" && cfg.Export.Format != "yaml" {
		errs = append(errs, fmt.Sprintf("export.format %q is invalid, must be one of: json, yaml", cfg.Export.Format))
	}
	if cfg.Log.Format != "text" && cfg.Log.Format != "json" {
		errs = append(errs, fmt.Sprintf("log.format %q is invalid, must be one of: text, json", cfg.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
