package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/orrery/orrery/internal/api"
	"github.com/orrery/orrery/internal/auth"
	"github.com/orrery/orrery/internal/ephemeris"
	"github.com/orrery/orrery/internal/metrics"
	"github.com/orrery/orrery/internal/rulepack"
	"github.com/orrery/orrery/internal/stream"
	"github.com/orrery/orrery/internal/system"
	"github.com/orrery/orrery/internal/temporal"
)

func runServe(systemPath, statePath, rulesPath string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	addr := os.Getenv("ORRERY_HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	authCfg, err := loadAuthConfig(logger)
	if err != nil {
		logger.Error("invalid auth configuration", "error", err)
		os.Exit(1)
	}

	systems := system.NewStore()
	if systemPath != "" {
		f, err := os.Open(systemPath)
		if err != nil {
			logger.Error("opening system file", "path", systemPath, "error", err)
			os.Exit(1)
		}
		sys, err := system.Load(f, systemPath, logger)
		f.Close()
		if err != nil {
			logger.Error("parsing system file", "path", systemPath, "error", err)
			os.Exit(1)
		}
		report := system.Validate(sys)
		if !report.Valid() {
			for _, issue := range report.Issues {
				logger.Error("system validation issue", "node", issue.NodeID, "reason", issue.Reason)
			}
			os.Exit(1)
		}
		systems.Set(sys)
		metrics.SetSystemNodeCount(sys.Len())
		logger.Info("system loaded", "path", systemPath, "name", sys.Name, "nodes", sys.Len())
	} else {
		logger.Info("no system file given, waiting for POST /api/v1/system/load")
	}

	state, err := loadTemporalState(statePath, logger)
	if err != nil {
		logger.Error("loading temporal state", "path", statePath, "error", err)
		os.Exit(1)
	}
	temporalStore := temporal.NewStore(state)

	rules := rulepack.Default()
	if rulesPath != "" {
		f, err := os.Open(rulesPath)
		if err != nil {
			logger.Error("opening rule pack", "path", rulesPath, "error", err)
			os.Exit(1)
		}
		rules, err = rulepack.Load(f)
		f.Close()
		if err != nil {
			logger.Error("parsing rule pack", "path", rulesPath, "error", err)
			os.Exit(1)
		}
		logger.Info("rule pack loaded", "path", rulesPath, "name", rules.Name)
	}

	clockRate := loadClockRate(logger)
	clock := ephemeris.NewClock(int64(state.MasterTimeSeconds), clockRate)

	ephCfg := loadEphemerisConfig(logger)
	engine := ephemeris.NewEngine(systems, ephCfg, logger)
	frameCache := ephemeris.NewFrameCache(ephCfg, engine, systems, clock, logger)

	streamCfg := loadStreamConfig(logger)
	streamHandler := stream.NewHandler(frameCache, clock, systems, temporalStore, streamCfg, logger)

	srv := api.NewServer(addr, api.Deps{
		Logger:   logger,
		Auth:     authCfg,
		Systems:  systems,
		Temporal: temporalStore,
		Rules:    rules,
		Engine:   engine,
		Cache:    frameCache,
		Clock:    clock,
		Stream:   streamHandler,
	})

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start cache background worker.
	go frameCache.Start(ctx)

	go func() {
		logger.Info("starting server",
			"addr", addr,
			"auth_enabled", authCfg.Enabled,
			"clock_rate", clockRate,
			"active_calendar", temporalStore.ActiveKey(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server listen error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	return nil
}

func loadAuthConfig(logger *slog.Logger) (auth.Config, error) {
	cfg := auth.Config{}

	enabledStr := os.Getenv("ORRERY_AUTH_ENABLED")
	if enabledStr != "" {
		enabled, err := strconv.ParseBool(enabledStr)
		if err != nil {
			return cfg, errors.New("ORRERY_AUTH_ENABLED must be a boolean value (true/false/1/0)")
		}
		cfg.Enabled = enabled
	}

	if cfg.Enabled {
		cfg.Token = os.Getenv("ORRERY_AUTH_TOKEN")
		if cfg.Token == "" {
			return cfg, errors.New("ORRERY_AUTH_TOKEN is required when auth is enabled")
		}
		logger.Info("auth enabled")
	}

	return cfg, nil
}

// loadTemporalState reads the calendar registry from statePath, or falls back
// to a single built-in standard calendar so the service always has an active
// calendar to render.
func loadTemporalState(statePath string, logger *slog.Logger) (*temporal.State, error) {
	if statePath == "" {
		logger.Info("no state file given, using built-in standard calendar")
		return defaultTemporalState(), nil
	}

	f, err := os.Open(statePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	state, err := temporal.LoadState(f)
	if err != nil {
		return nil, err
	}
	logger.Info("temporal state loaded",
		"path", statePath,
		"calendars", len(state.Registry),
		"active", state.ActiveCalendarKey,
		"master_seconds", int64(state.MasterTimeSeconds),
	)
	return state, nil
}

func defaultTemporalState() *temporal.State {
	return &temporal.State{
		ActiveCalendarKey: "standard",
		Registry: map[string]temporal.Definition{
			"standard": {
				Name: "Standard",
				Math: temporal.MathBucketDrain,
				Bucket: &temporal.BucketDrain{
					YearSeconds:   31_536_000,
					DaySeconds:    86_400,
					HourSeconds:   3_600,
					MinuteSeconds: 60,
					Months:        []temporal.Month{{Name: "Annum", Days: 365}},
				},
			},
		},
	}
}

func loadClockRate(logger *slog.Logger) float64 {
	rate := 1.0
	if v := os.Getenv("ORRERY_CLOCK_RATE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			logger.Warn("invalid ORRERY_CLOCK_RATE value, using default", "value", v, "default", 1.0)
		} else {
			rate = f
		}
	}
	return rate
}

func loadEphemerisConfig(logger *slog.Logger) ephemeris.Config {
	cfg := ephemeris.Config{
		Step:         60,
		Horizon:      3600,
		Buffer:       300,
		Workers:      runtime.NumCPU(),
		TickInterval: time.Second,
	}

	if v := os.Getenv("ORRERY_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid ORRERY_WORKERS value, using default", "value", v, "default", cfg.Workers)
		} else {
			cfg.Workers = n
		}
	}

	if v := os.Getenv("ORRERY_CACHE_STEP"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 1 {
			logger.Warn("invalid ORRERY_CACHE_STEP value, using default", "value", v, "default", cfg.Step)
		} else {
			cfg.Step = n
		}
	}

	if v := os.Getenv("ORRERY_CACHE_HORIZON"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 1 {
			logger.Warn("invalid ORRERY_CACHE_HORIZON value, using default", "value", v, "default", cfg.Horizon)
		} else {
			cfg.Horizon = n
		}
	}

	if v := os.Getenv("ORRERY_CACHE_BUFFER"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 1 {
			logger.Warn("invalid ORRERY_CACHE_BUFFER value, using default", "value", v, "default", cfg.Buffer)
		} else {
			cfg.Buffer = n
		}
	}

	if v := os.Getenv("ORRERY_TICK_INTERVAL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid ORRERY_TICK_INTERVAL value, using default", "value", v, "default", 1)
		} else {
			cfg.TickInterval = time.Duration(n) * time.Second
		}
	}

	logger.Info("ephemeris config",
		"workers", cfg.Workers,
		"step_sim_seconds", cfg.Step,
		"horizon_sim_seconds", cfg.Horizon,
		"buffer_sim_seconds", cfg.Buffer,
		"tick_interval_seconds", cfg.TickInterval.Seconds(),
	)

	return cfg
}

func loadStreamConfig(logger *slog.Logger) stream.Config {
	cfg := stream.Config{
		MaxConcurrentPerIP: 10,
		KeepaliveInterval:  30 * time.Second,
	}

	if v := os.Getenv("ORRERY_STREAM_MAX_CONCURRENT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid ORRERY_STREAM_MAX_CONCURRENT value, using default", "value", v, "default", 10)
		} else {
			cfg.MaxConcurrentPerIP = n
		}
	}

	if v := os.Getenv("ORRERY_STREAM_KEEPALIVE_INTERVAL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid ORRERY_STREAM_KEEPALIVE_INTERVAL value, using default", "value", v, "default", 30)
		} else {
			cfg.KeepaliveInterval = time.Duration(n) * time.Second
		}
	}

	if v := os.Getenv("ORRERY_TRUST_PROXY"); v != "" {
		trust, err := strconv.ParseBool(v)
		if err != nil {
			logger.Warn("invalid ORRERY_TRUST_PROXY value, defaulting to false", "value", v)
		} else {
			cfg.TrustProxy = trust
		}
	}

	logger.Info("stream config",
		"max_concurrent_per_ip", cfg.MaxConcurrentPerIP,
		"keepalive_interval_seconds", cfg.KeepaliveInterval.Seconds(),
		"trust_proxy", cfg.TrustProxy,
	)

	return cfg
}
