package internal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/valter-silva-au/thread-review/internal/cli"
	"github.com/valter-silva-au/thread-review/internal/core"
	"github.com/valter-silva-au/thread-review/internal/observability"
	"github.com/valter-silva-au/thread-review/pkg/models"
)

func TestResolveBasePath_HomeSet(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv(HomeEnv, tmpDir)

	if got := ResolveBasePath(); got != tmpDir {
		t.Errorf("ResolveBasePath() = %q, want %q", got, tmpDir)
	}
}

func TestResolveBasePath_FindsReviewConfig(t *testing.T) {
	tmpDir := t.TempDir()
	subDir := filepath.Join(tmpDir, "sub", "nested")
	if err := os.MkdirAll(subDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(tmpDir, core.ConfigFileName), []byte("log:\n  level: info\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv(HomeEnv, "")
	t.Chdir(subDir)

	if got := ResolveBasePath(); got != tmpDir {
		t.Errorf("ResolveBasePath() = %q, want %q (should find %s in parent)", got, tmpDir, core.ConfigFileName)
	}
}

func TestResolveBasePath_FallbackToCwd(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv(HomeEnv, "")
	t.Chdir(tmpDir)

	if got := ResolveBasePath(); got != tmpDir {
		t.Errorf("ResolveBasePath() = %q, want %q (should fall back to cwd)", got, tmpDir)
	}
}

func TestNewApp_Defaults(t *testing.T) {
	tmpDir := t.TempDir()
	app, err := NewApp(tmpDir)
	if err != nil {
		t.Fatalf("NewApp() error = %v", err)
	}
	defer app.Close()

	if app.Review == nil || app.Backend == nil || app.Machine == nil {
		t.Fatal("core services not wired")
	}
	if cli.Review != app.Review {
		t.Error("cli.Review not set")
	}
	if app.Config.ReviewerName != "CE Associate" {
		t.Errorf("ReviewerName = %q, want default", app.Config.ReviewerName)
	}
	if want := filepath.Join(tmpDir, "exports"); app.Exports.Dir() != want || cli.ExportDir != want {
		t.Errorf("export dir = %q (cli %q), want %q", app.Exports.Dir(), cli.ExportDir, want)
	}
	if app.EventLog == nil || app.MetricsCalc == nil || app.AlertEngine == nil {
		t.Error("observability not wired")
	}
	if _, err := os.Stat(filepath.Join(tmpDir, stateDir, "events.jsonl")); err != nil {
		t.Errorf("expected JSONL event log: %v", err)
	}
	if app.Notifier != nil {
		t.Error("no webhook configured, Notifier should be nil")
	}
}

func TestNewApp_ReadsReviewConfig(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := `api:
  base_url: https://review.example.com/api/
  timeout: 5s
reviewer:
  name: Dana
batch:
  stop_on_error: true
  rate_per_second: 2
notifications:
  slack:
    webhook_url: https://hooks.slack.com/services/T/B/X
events:
  backend: sqlite
export:
  dir: out
  format: yaml
`
	if err := os.WriteFile(filepath.Join(tmpDir, core.ConfigFileName), []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}

	app, err := NewApp(tmpDir)
	if err != nil {
		t.Fatalf("NewApp() error = %v", err)
	}
	defer app.Close()

	if app.Config.API.BaseURL != "https://review.example.com/api" {
		t.Errorf("BaseURL = %q, want trailing slash trimmed", app.Config.API.BaseURL)
	}
	if app.Config.ReviewerName != "Dana" {
		t.Errorf("ReviewerName = %q", app.Config.ReviewerName)
	}
	if !cli.BatchStopOnError || cli.BatchRate != 2 {
		t.Errorf("batch policy = %v / %g", cli.BatchStopOnError, cli.BatchRate)
	}
	if cli.ExportFormat != "yaml" || app.Exports.Dir() != filepath.Join(tmpDir, "out") {
		t.Errorf("export = %q in %q", cli.ExportFormat, app.Exports.Dir())
	}
	if app.Notifier == nil {
		t.Error("expected Slack notifier")
	}
	if _, err := os.Stat(filepath.Join(tmpDir, stateDir, "events.db")); err != nil {
		t.Errorf("expected SQLite event log: %v", err)
	}
}

func TestNewApp_InvalidConfig(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := "api:\n  base_url: ftp://nowhere\nexport:\n  format: csv\n"
	if err := os.WriteFile(filepath.Join(tmpDir, core.ConfigFileName), []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := NewApp(tmpDir)
	if err == nil {
		t.Fatal("expected error for invalid config")
	}
	if !strings.Contains(err.Error(), "invalid configuration") || !strings.Contains(err.Error(), "api.base_url") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNewApp_LoadsDotEnv(t *testing.T) {
	tmpDir := t.TempDir()
	env := "TRV_REVIEWER_NAME=Env Reviewer\nTRV_LOG_LEVEL=error\n"
	if err := os.WriteFile(filepath.Join(tmpDir, ".env"), []byte(env), 0o644); err != nil {
		t.Fatal(err)
	}
	// Real environment variables win over .env.
	t.Setenv("TRV_LOG_LEVEL", "debug")
	t.Cleanup(func() { os.Unsetenv("TRV_REVIEWER_NAME") })

	app, err := NewApp(tmpDir)
	if err != nil {
		t.Fatalf("NewApp() error = %v", err)
	}
	defer app.Close()

	if app.Config.ReviewerName != "Env Reviewer" {
		t.Errorf("ReviewerName = %q, want value from .env", app.Config.ReviewerName)
	}
	if app.Config.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want environment value", app.Config.Log.Level)
	}
}

func TestApp_CloseWithoutEventLog(t *testing.T) {
	app := &App{}
	if err := app.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
}

func TestAlertThresholds(t *testing.T) {
	def := observability.DefaultAlertThresholds()

	got := alertThresholds(models.AlertConfig{MaxPendingSummaries: 5, MaxBatchFailurePct: 0, MaxRejectionPct: 50})
	if got.MaxPendingSummaries != 5 || got.MaxRejectionPct != 50 {
		t.Errorf("configured limits not applied: %+v", got)
	}
	if got.MaxBatchFailurePct != 0 {
		t.Errorf("MaxBatchFailurePct = %d, want the configured 0", got.MaxBatchFailurePct)
	}
	if got.StaleReviewDays != def.StaleReviewDays || got.MinDecisions != def.MinDecisions {
		t.Errorf("unconfigurable thresholds should keep defaults: %+v", got)
	}
}

func TestNewApp_ZeroAlertLimitTriggersOnAnyRejection(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := "alerts:\n  max_rejection_pct: 0\n"
	if err := os.WriteFile(filepath.Join(tmpDir, core.ConfigFileName), []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}

	app, err := NewApp(tmpDir)
	if err != nil {
		t.Fatalf("NewApp() error = %v", err)
	}
	defer app.Close()

	for i := 1; i <= 5; i++ {
		eventType := "summary.approved"
		if i == 5 {
			eventType = "summary.rejected"
		}
		if err := app.EventLog.Write(observability.Event{
			Time: time.Now().UTC(),
			Type: eventType,
			Data: map[string]any{"summary_id": i},
		}); err != nil {
			t.Fatal(err)
		}
	}

	alerts, err := app.AlertEngine.Evaluate()
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	found := false
	for _, a := range alerts {
		if a.Condition == "rejection_rate_high" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a rejection-rate alert with a 0%% limit, got %+v", alerts)
	}
}

func TestEventLogAdapter_LevelAndMessage(t *testing.T) {
	el, err := observability.NewJSONLEventLog(filepath.Join(t.TempDir(), "events.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	defer el.Close()

	adapter := &eventLogAdapter{log: el}
	if err := adapter.LogEvent("summary.rejected", map[string]any{"summary_id": 3, "reason": "wrong order"}); err != nil {
		t.Fatalf("LogEvent() = %v", err)
	}

	events, err := el.Read(observability.EventFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	e := events[0]
	if e.Level != observability.LevelWarn {
		t.Errorf("Level = %q, want WARN", e.Level)
	}
	if e.Message != "rejected summary 3" {
		t.Errorf("Message = %q", e.Message)
	}
	if e.Data["reason"] != "wrong order" {
		t.Errorf("Data = %v", e.Data)
	}
}
