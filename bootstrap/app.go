// Package bootstrap assembles and manages the lifecycle of the auditing
// service: configuration, logging, storage, the audit pipeline, outbound
// sinks and the HTTP API.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"argus/api"
	"argus/audit"
	"argus/config"
	"argus/core"
	"argus/notify"
	"argus/storage"
	"argus/util/goroutine"

	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

// App holds all long-lived components of the auditing service.
type App struct {
	Logger *zap.Logger
	Sugar  *zap.SugaredLogger
	Config *config.Config

	Store    audit.BaselineStore
	Tracker  *audit.BaselineTracker
	Pipeline *audit.Pipeline
	Notifier *notify.Notifier
	API      *api.API
	Redis    *core.RedisCache

	sqliteStore *storage.SQLiteBaselineStore
}

// NewApp loads configuration and constructs every component. Nothing is
// started; call Start afterwards.
func NewApp(ctx context.Context, configPath string) (*App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load config: %v\n", err)
		return nil, err
	}

	logger, sugar := InitLogger(cfg.Log.Level)

	app := &App{
		Logger: logger,
		Sugar:  sugar,
		Config: cfg,
	}

	sensitive, err := buildSensitivityIndex(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.Storage.SQLitePath != "" {
		store, err := storage.NewSQLiteBaselineStore(cfg.Storage.SQLitePath, cfg.Storage.BaselineCacheSize, sugar)
		if err != nil {
			return nil, fmt.Errorf("failed to open baseline store: %w", err)
		}
		app.Store = store
		app.sqliteStore = store
	} else {
		sugar.Warn("No baseline storage path configured, baselines will not survive restarts")
		app.Store = storage.NewMemoryBaselineStore()
	}

	app.Tracker = audit.NewBaselineTracker(app.Store, cfg.Audit.BaselineSampleRate, sugar)
	if err := app.Tracker.Restore(ctx); err != nil {
		// Lost baselines degrade anomaly scoring but the service still works.
		sugar.Errorf("Failed to restore baselines: %v", err)
	}

	app.Notifier = notify.NewNotifier(cfg.Sinks.AlertURL, cfg.Sinks.AuditURL, cfg.Sinks.Timeout, sugar)

	pipelineCfg := audit.Config{
		EnabledEventTypes:          parseEventTypes(cfg.Audit.EnabledEventTypes, sugar),
		MinSeverityStorage:         core.ParseSeverity(cfg.Audit.MinSeverityStorage),
		MinSeverityAlert:           core.ParseSeverity(cfg.Audit.MinSeverityAlert),
		MaxEventsInMemory:          cfg.Audit.MaxEventsInMemory,
		ActionVerificationRequired: cfg.Audit.ActionVerificationRequired,
		AnomalyDetectionEnabled:    cfg.Audit.AnomalyDetectionEnabled,
		BehaviorBaselineEnabled:    cfg.Audit.BehaviorBaselineEnabled,
		FlushInterval:              cfg.Audit.FlushInterval,
		RateLimitSweepInterval:     cfg.Audit.RateLimitSweepInterval,
	}
	app.Pipeline = audit.NewPipeline(pipelineCfg, app.Tracker, app.Notifier, sensitive, sugar)

	if cfg.API.RateLimit.Redis.Enabled {
		redis := core.NewRedisCache(
			cfg.API.RateLimit.Redis.Addr,
			cfg.API.RateLimit.Redis.Password,
			cfg.API.RateLimit.Redis.DB,
			cfg.API.RateLimit.Redis.PoolSize,
			sugar,
		)
		if err := redis.Ping(ctx); err != nil {
			sugar.Warnf("Redis unavailable, API rate limiting falls back to in-memory: %v", err)
			redis.Close()
		} else {
			app.Redis = redis
		}
	}

	app.API = api.NewAPI(app.Pipeline, api.APIRateLimiterConfig{
		Limit:  cfg.API.RateLimit.Limit,
		Window: cfg.API.RateLimit.Window,
		Burst:  cfg.API.RateLimit.Burst,
	}, app.Redis, sugar)

	return app, nil
}

// buildSensitivityIndex merges the inline sensitive action/resource lists
// with the optional policy file.
func buildSensitivityIndex(cfg *config.Config) (*core.SensitivityIndex, error) {
	policies := []*core.SensitivityPolicy{{
		Actions:   cfg.Audit.SensitiveActions,
		Resources: cfg.Audit.SensitiveResources,
	}}
	if cfg.Audit.SensitivityPolicyFile != "" {
		policy, err := core.LoadSensitivityPolicy(cfg.Audit.SensitivityPolicyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load sensitivity policy: %w", err)
		}
		policies = append(policies, policy)
	}
	return core.NewSensitivityIndex(policies...), nil
}

// parseEventTypes converts configured type names, dropping unknown ones
// with a warning.
func parseEventTypes(names []string, sugar *zap.SugaredLogger) []core.EventType {
	var types []core.EventType
	for _, name := range names {
		t := core.EventType(name)
		if !t.IsValid() {
			sugar.Warnf("Ignoring unknown event type in config: %q", name)
			continue
		}
		types = append(types, t)
	}
	return types
}

// Start launches the pipeline's background loops and the API server.
func (a *App) Start(ctx context.Context) error {
	a.Pipeline.Start(ctx)

	go func() {
		defer goroutine.Recover("api-server", a.Sugar)
		if err := a.API.Start(a.Config.API.Port); err != nil && err != http.ErrServerClosed {
			a.Sugar.Fatalf("API server failed: %v", err)
		}
	}()

	a.Sugar.Infow("Argus started",
		"api_port", a.Config.API.Port,
		"alert_sink", a.Config.Sinks.AlertURL,
		"audit_sink", a.Config.Sinks.AuditURL)
	return nil
}

// WaitForShutdown blocks until SIGINT or SIGTERM.
func (a *App) WaitForShutdown() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
}

// Shutdown stops all components in dependency order: the API stops
// accepting work first, then the pipeline drains, then a final flush runs
// before storage closes.
func (a *App) Shutdown() {
	a.Sugar.Info("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	a.Sugar.Info("Phase 1: Stopping API server...")
	if err := a.API.Stop(ctx); err != nil {
		a.Sugar.Errorw("API shutdown error", "error", err)
	}

	a.Sugar.Info("Phase 2: Flushing pending events...")
	a.Pipeline.FlushNow(ctx)

	a.Sugar.Info("Phase 3: Stopping audit pipeline...")
	a.Pipeline.Stop()

	a.Sugar.Info("Phase 4: Closing storage...")
	if a.sqliteStore != nil {
		if err := a.sqliteStore.Close(); err != nil {
			a.Sugar.Errorw("Baseline store close error", "error", err)
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Sugar.Errorw("Redis close error", "error", err)
		}
	}

	a.Sugar.Info("Shutdown complete")
	_ = a.Logger.Sync()
}
