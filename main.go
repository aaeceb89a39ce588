package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/leadlink/conversions/internal/api"
	"github.com/leadlink/conversions/internal/clicks"
	"github.com/leadlink/conversions/internal/config"
	"github.com/leadlink/conversions/internal/eventlog"
	"github.com/leadlink/conversions/internal/handler"
	"github.com/leadlink/conversions/internal/leads"
	"github.com/leadlink/conversions/internal/logger"
	"github.com/leadlink/conversions/internal/profiling"
	"github.com/leadlink/conversions/internal/provider"
	"github.com/leadlink/conversions/internal/reconcile"
	"github.com/leadlink/conversions/internal/scheduler"
	"github.com/leadlink/conversions/internal/store"
	"github.com/leadlink/conversions/internal/telemetry"

	_ "github.com/lib/pq"
)

const (
	dbPingTimeout    = 5 * time.Second
	healthPingWindow = 2 * time.Second
)

func main() {
	os.Exit(run())
}

func run() int {
	profiling.StartPprofServer()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log, err := createLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		return 1
	}
	defer func() { _ = log.Sync() }()

	profiler, err := profiling.StartPyroscope(cfg.Service.Name)
	if err != nil {
		log.Warn("Continuous profiling disabled", logger.Error(err))
	}
	defer func() { _ = profiler.Stop() }()

	redisClient, err := store.NewRedisClient(store.RedisConfig{
		Address:  cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		log.Error("Failed to connect to attribution cache", logger.Error(err))
		return 1
	}
	defer func() { _ = redisClient.Close() }()

	var db *sql.DB
	if cfg.Database.Enabled {
		db, err = connectDatabase(cfg, log)
		if err != nil {
			log.Error("Failed to connect to event log database", logger.Error(err))
			return 1
		}
		defer func() { _ = db.Close() }()
	}

	return runServer(cfg, log, redisClient, db)
}

// loadConfig loads and validates configuration.
func loadConfig() (*config.Config, error) {
	configPath := config.GetConfigPath("config.yml")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if validationErr := cfg.Validate(); validationErr != nil {
		return nil, fmt.Errorf("validate config: %w", validationErr)
	}
	return cfg, nil
}

// createLogger creates a logger instance from configuration.
func createLogger(cfg *config.Config) (logger.Logger, error) {
	log, err := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Service.Debug,
	})
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return log.With(logger.String("service", cfg.Service.Name)), nil
}

// connectDatabase opens and verifies the event log database connection.
func connectDatabase(cfg *config.Config, log logger.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), dbPingTimeout)
	defer cancel()

	if pingErr := db.PingContext(ctx); pingErr != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", pingErr)
	}

	log.Info("Event log database connected",
		logger.String("host", cfg.Database.Host),
		logger.Int("port", cfg.Database.Port),
		logger.String("database", cfg.Database.Database),
	)
	return db, nil
}

// runServer wires all dependencies and starts the HTTP server.
func runServer(cfg *config.Config, log logger.Logger, redisClient *redis.Client, db *sql.DB) int {
	attrStore := store.NewRedisStore(redisClient)
	metrics := telemetry.NewMetrics()
	registry := provider.DefaultRegistry()

	clickResolver := clicks.NewClient(clicks.Config{
		BaseURL: cfg.Clicks.BaseURL,
		APIKey:  cfg.Clicks.APIKey,
		Timeout: cfg.Clicks.Timeout,
	})
	leadCreator := leads.NewClient(leads.Config{
		BaseURL: cfg.Leads.BaseURL,
		APIKey:  cfg.Leads.APIKey,
		Timeout: cfg.Leads.Timeout,
	})

	events, stopEvents := buildEventRecorder(cfg, log, db)
	defer stopEvents()

	// The timer scheduler calls back into the engine, so the engine variable
	// must exist before the scheduler closure runs.
	var engine *reconcile.Engine

	var sched scheduler.Scheduler
	var timerSched *scheduler.TimerScheduler
	if cfg.Scheduler.URL != "" {
		sched = scheduler.NewQueueClient(scheduler.QueueConfig{
			URL:         cfg.Scheduler.URL,
			CallbackURL: cfg.Scheduler.CallbackURL,
			Token:       cfg.Scheduler.Token,
		})
	} else {
		log.Warn("No scheduler queue configured, using in-process timers")
		timerSched = scheduler.NewTimerScheduler(func(ctx context.Context, body []byte) {
			var req reconcile.SweepRequest
			if err := json.Unmarshal(body, &req); err != nil {
				log.Error("Malformed timer sweep job", logger.Error(err))
				return
			}
			if _, err := engine.Sweep(ctx, req); err != nil {
				log.Error("Timer sweep failed", logger.Error(err))
			}
		})
		defer timerSched.Stop()
		sched = timerSched
	}

	engine = reconcile.New(reconcile.Config{
		Store:     attrStore,
		Clicks:    clickResolver,
		Leads:     leadCreator,
		Scheduler: sched,
		Events:    events,
		Metrics:   metrics,
		Logger:    log,
		Window:    cfg.Reconcile.Window,
		Providers: registry.Names(),
	})

	verifier := scheduler.NewVerifier(
		cfg.Scheduler.CurrentSigningKey,
		cfg.Scheduler.NextSigningKey,
		cfg.Scheduler.CallbackURL,
	)

	handlers := api.Handlers{
		Webhook: handler.NewWebhookHandler(registry, engine, cfg.Providers.Secrets, events, metrics, log),
		Track:   handler.NewTrackHandler(clickResolver, engine, cfg.Service.VisitorCookie, cfg.Service.FallbackURL, log),
		Sweep:   handler.NewSweepHandler(verifier, engine, log),
	}

	pings := api.HealthPings{
		CachePing: func() error {
			ctx, cancel := context.WithTimeout(context.Background(), healthPingWindow)
			defer cancel()
			return attrStore.Ping(ctx)
		},
	}
	if db != nil {
		pings.DBPing = db.Ping
	}

	server := api.NewServer(handlers, pings, cfg, log)

	log.Info("Conversions service starting",
		logger.Int("port", cfg.Service.Port),
		logger.Duration("reconcile_window", cfg.Reconcile.Window),
		logger.Strings("providers", registry.Names()),
	)

	if err := server.Run(); err != nil {
		log.Error("Server error", logger.Error(err))
		return 1
	}

	log.Info("Conversions service exited cleanly")
	return 0
}

// buildEventRecorder selects the event log backend. Without a database the
// records only reach the structured log.
func buildEventRecorder(cfg *config.Config, log logger.Logger, db *sql.DB) (eventlog.Recorder, func()) {
	if db == nil {
		return eventlog.NewNopRecorder(), func() {}
	}

	buf := eventlog.NewBuffer(cfg.EventLog.BufferSize)
	st := eventlog.NewStore(db, buf, log, cfg.EventLog.FlushInterval, cfg.EventLog.FlushThreshold)
	st.Start()
	return st, st.Stop
}
