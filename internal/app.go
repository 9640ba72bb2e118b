// Package internal provides the App struct that wires all components of the
// thread-review client together and initializes the CLI layer.
package internal

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/valter-silva-au/thread-review/internal/cli"
	"github.com/valter-silva-au/thread-review/internal/core"
	"github.com/valter-silva-au/thread-review/internal/integration"
	"github.com/valter-silva-au/thread-review/internal/logger"
	"github.com/valter-silva-au/thread-review/internal/observability"
	"github.com/valter-silva-au/thread-review/internal/storage"
	"github.com/valter-silva-au/thread-review/pkg/models"
)

// HomeEnv names the environment variable that pins the base path.
const HomeEnv = "TRV_HOME"

// stateDir holds local client state (the event log) under the base path.
const stateDir = ".trv"

// App holds all service dependencies for the thread-review client.
type App struct {
	BasePath string
	Config   *models.GlobalConfig
	Logger   zerolog.Logger

	// Configuration
	ConfigMgr core.ConfigurationManager

	// Transport
	Backend *integration.APIClient

	// Core services
	Notices *core.NotificationSink
	Machine core.SummaryStateMachine
	Review  *core.ReviewOrchestrator

	// Storage layer
	Exports *storage.ExportStore

	// Observability
	EventLog    observability.EventLog
	AlertEngine observability.AlertEngine
	MetricsCalc observability.MetricsCalculator
	Notifier    observability.Notifier
}

// NewApp creates and wires all components. basePath is the directory holding
// .reviewconfig, the optional .env file, and local state.
func NewApp(basePath string) (*App, error) {
	app := &App{BasePath: basePath}

	// --- Configuration ---
	// A missing .env is normal; real environment variables win over it.
	_ = godotenv.Load(filepath.Join(basePath, ".env"))

	app.ConfigMgr = core.NewConfigurationManager(basePath)
	cfg, err := app.ConfigMgr.LoadGlobalConfig()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	if err := app.ConfigMgr.ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	app.Config = cfg

	// --- Logging ---
	app.Logger = logger.New(cfg.Log)

	// --- Transport ---
	app.Backend = integration.NewAPIClient(cfg.API.BaseURL, cfg.API.Timeout, app.Logger)

	// --- Observability ---
	app.EventLog, err = observability.OpenEventLog(cfg.EventsBackend, filepath.Join(basePath, stateDir))
	if err != nil {
		// Non-fatal: review works without the audit trail.
		app.Logger.Warn().Err(err).Str("backend", cfg.EventsBackend).Msg("event log disabled")
		app.EventLog = nil
	}
	var events core.EventLogger
	if app.EventLog != nil {
		events = &eventLogAdapter{log: app.EventLog}
		app.AlertEngine = observability.NewAlertEngine(app.EventLog, alertThresholds(cfg.Alerts))
		app.MetricsCalc = observability.NewMetricsCalculator(app.EventLog)
	}
	if cfg.Notifications.Slack.WebhookURL != "" {
		app.Notifier = observability.NewSlackNotifier(cfg.Notifications.Slack.WebhookURL, cfg.Notifications.Slack.ReviewURL)
	}

	// --- Storage layer ---
	exportDir := cfg.Export.Dir
	if !filepath.IsAbs(exportDir) {
		exportDir = filepath.Join(basePath, exportDir)
	}
	app.Exports, err = storage.NewExportStore(exportDir, storage.ExportFormat(cfg.Export.Format))
	if err != nil {
		return nil, fmt.Errorf("configuring exports: %w", err)
	}

	// --- Core services ---
	app.Notices = core.NewNotificationSink(cfg.Notifications.TTL)
	app.Machine = core.NewSummaryStateMachine(app.Backend, cfg.ReviewerName, events, app.Logger)
	app.Review = core.NewReviewOrchestrator(core.OrchestratorOptions{
		Backend: app.Backend,
		Machine: app.Machine,
		Notices: app.Notices,
		Writer:  app.Exports,
		Events:  events,
		Logger:  app.Logger,
		Batch: core.BatchOptions{
			StopOnError: cfg.Batch.StopOnError,
			Limiter:     core.NewBatchLimiter(cfg.Batch.RatePerSecond),
		},
	})

	// --- Wire CLI ---
	cli.Review = app.Review
	cli.ExportDir = exportDir
	cli.ExportFormat = cfg.Export.Format
	cli.BatchStopOnError = cfg.Batch.StopOnError
	cli.BatchRate = cfg.Batch.RatePerSecond

	cli.EventLog = app.EventLog
	cli.AlertEngine = app.AlertEngine
	cli.MetricsCalc = app.MetricsCalc
	cli.Notifier = app.Notifier

	return app, nil
}

// Close releases resources held by the App, such as the event log handle.
// It is safe to call Close on an App whose EventLog is nil.
func (a *App) Close() error {
	if a.EventLog != nil {
		return a.EventLog.Close()
	}
	return nil
}

// ResolveBasePath determines the base path: TRV_HOME when set, else the
// nearest ancestor of the working directory containing .reviewconfig, else
// the working directory.
func ResolveBasePath() string {
	if home := os.Getenv(HomeEnv); home != "" {
		return home
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}
	for dir := cwd; ; {
		if _, err := os.Stat(filepath.Join(dir, core.ConfigFileName)); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return cwd
}

// alertThresholds applies the configured limits. Missing keys were already
// filled with defaults, so an explicit 0 means alert on any occurrence.
func alertThresholds(cfg models.AlertConfig) observability.AlertThresholds {
	th := observability.DefaultAlertThresholds()
	th.MaxPendingSummaries = cfg.MaxPendingSummaries
	th.MaxBatchFailurePct = cfg.MaxBatchFailurePct
	th.MaxRejectionPct = cfg.MaxRejectionPct
	return th
}

// --- Adapters ---

// eventLogAdapter adapts observability.EventLog to core.EventLogger.
type eventLogAdapter struct {
	log observability.EventLog
}

func (a *eventLogAdapter) LogEvent(eventType string, data map[string]any) error {
	return a.log.Write(observability.Event{
		Time:    time.Now().UTC(),
		Level:   observability.LevelFor(eventType),
		Type:    eventType,
		Message: observability.MessageFor(eventType, data),
		Data:    data,
	})
}
