// Package app wires configuration into a ready-to-run component graph.
// Both binaries build their orchestrator through here so CLI and API
// runs behave identically.
package app

import (
	"context"
	"os"

	"github.com/hashicorp/go-hclog"

	"sentinel/internal/artifact"
	"sentinel/internal/audit"
	"sentinel/internal/config"
	"sentinel/internal/fix"
	"sentinel/internal/history"
	"sentinel/internal/llm"
	"sentinel/internal/orchestrator"
	"sentinel/internal/scan"
)

// HistoryFile is the default file-backend location for run history.
const HistoryFile = ".sentinel_history.json"

func NewLogger(name, level string) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:   name,
		Output: os.Stderr,
		Level:  hclog.LevelFromString(level),
	})
}

// App is the assembled component graph for one process.
type App struct {
	Cfg          *config.Config
	Log          hclog.Logger
	Client       llm.Client
	Orchestrator *orchestrator.Orchestrator
	History      *history.Store
}

// New builds the full graph. The inference client is created eagerly so
// a bad API key fails at startup, not mid-run.
func New(ctx context.Context, cfg *config.Config, log hclog.Logger) (*App, error) {
	if err := cfg.ValidateForInference(); err != nil {
		return nil, err
	}
	client, err := llm.NewGeminiClient(ctx, cfg.APIKey, log)
	if err != nil {
		return nil, err
	}

	models := llm.NewModelFallback(cfg.PrimaryModel, cfg.FallbackModel)
	retrier := llm.NewRetrier(models, log)
	retrier.MaxAttempts = cfg.MaxRetries
	retrier.BaseDelay = cfg.BaseDelay

	auditor := audit.NewAuditor(client, retrier, log)
	auditor.Pace = cfg.Pace
	fixer := fix.NewFixer(client, retrier, log)

	opts := scan.DefaultOptions()
	opts.Extensions = cfg.Extensions
	opts.MaxFileBytes = cfg.MaxFileBytes
	collector := scan.NewCollector(opts)

	orch := orchestrator.New(collector, auditor, fixer, log)
	orch.Pace = cfg.Pace

	hist := NewHistory(cfg)
	orch.Recorder = hist

	if cfg.Artifact.Enabled {
		store, err := artifact.NewS3Store(artifact.S3Config{
			Endpoint:  cfg.Artifact.Endpoint,
			Region:    cfg.Artifact.Region,
			AccessKey: cfg.Artifact.AccessKey,
			SecretKey: cfg.Artifact.SecretKey,
			Bucket:    cfg.Artifact.Bucket,
			UseSSL:    cfg.Artifact.UseSSL,
		})
		if err != nil {
			log.Error("artifact store disabled", "error", err)
		} else {
			orch.Archiver = store
		}
	}

	return &App{
		Cfg:          cfg,
		Log:          log,
		Client:       client,
		Orchestrator: orch,
		History:      hist,
	}, nil
}

// NewHistory picks the history backend from configuration: Postgres
// when a DSN is set and reachable, the local file otherwise.
func NewHistory(cfg *config.Config) *history.Store {
	if cfg.HistoryDSN != "" {
		if s, err := history.NewPostgres(cfg.HistoryDSN); err == nil {
			return s
		}
	}
	return history.New(HistoryFile)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.Client != nil {
		_ = a.Client.Close()
	}
	if a.History != nil {
		_ = a.History.Close()
	}
}
