package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/saviobatista/worldflightpedia/internal/commbus"
	"github.com/saviobatista/worldflightpedia/internal/config"
	"github.com/saviobatista/worldflightpedia/internal/db"
	"github.com/saviobatista/worldflightpedia/internal/hostlink"
	"github.com/saviobatista/worldflightpedia/internal/logging"
	"github.com/saviobatista/worldflightpedia/internal/module"
	"github.com/saviobatista/worldflightpedia/internal/redis"
	"github.com/saviobatista/worldflightpedia/internal/stats"
	"github.com/saviobatista/worldflightpedia/internal/types"
)

// Intervals of the background statistics jobs
const (
	persistInterval  = 5 * time.Minute
	statsLogInterval = time.Minute
)

// SessionStore records the host session row
type SessionStore interface {
	stats.Store
	CreateSession(sessionID, clientName string, startedAt time.Time) error
	EndSession(sessionID string, endedAt time.Time) error
}

// clients holds the optional backends; nil fields are disabled
type clients struct {
	nc    *nats.Conn
	db    *db.Client
	redis *redis.Client
}

func (c *clients) Close(logger *slog.Logger) {
	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			logger.Warn("error closing redis client", "err", err)
		}
	}
	if c.db != nil {
		if err := c.db.Close(); err != nil {
			logger.Warn("error closing database client", "err", err)
		}
	}
	if c.nc != nil {
		if err := c.nc.Drain(); err != nil {
			c.nc.Close()
		}
	}
}

// createClients connects NATS and, when configured, redis and the database
func createClients(cfg *config.Config) (*clients, error) {
	nc, err := nats.Connect(cfg.NATSURL, nats.Name(cfg.ClientName))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	c := &clients{nc: nc}

	if cfg.DBConnStr != "" {
		dbClient, err := db.New(cfg.DBConnStr)
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("failed to create database client: %w", err)
		}
		c.db = dbClient
	}

	if cfg.RedisAddr != "" {
		redisClient, err := redis.New(cfg.RedisAddr)
		if err != nil {
			if c.db != nil {
				_ = c.db.Close()
			}
			nc.Close()
			return nil, fmt.Errorf("failed to create Redis client: %w", err)
		}
		c.redis = redisClient
	}

	return c, nil
}

// newModule builds the module from config. status may be nil.
func newModule(cfg *config.Config, host module.Host, panel module.Panel, status module.StatusStore, logger *slog.Logger, st *stats.Stats) *module.Module {
	return module.New(host, panel, module.Config{
		POIUpdatePolicy:    cfg.POIUpdatePolicy,
		SpawnReqBase:       cfg.SpawnReqBase,
		MarkerTitle:        cfg.MarkerTitle,
		CubeTitle:          cfg.CubeTitle,
		IndexedBatch:       cfg.IndexedBatch,
		ConfirmationPolicy: cfg.ConfirmationPolicy,
		Status:             status,
		Logger:             logger,
		Stats:              st,
	})
}

// startSessionRecording creates the session row and starts periodic stats
// persistence. The returned func ends the session.
func startSessionRecording(ctx context.Context, store SessionStore, st *stats.Stats, sessionID, clientName string, startedAt time.Time, logger *slog.Logger) (func(), error) {
	if err := store.CreateSession(sessionID, clientName, startedAt); err != nil {
		return nil, err
	}
	st.SetStore(store, sessionID)

	persistCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		st.StartPersistence(persistCtx, persistInterval)
	}()

	return func() {
		cancel()
		<-done
		if err := store.EndSession(sessionID, time.Now().UTC()); err != nil {
			logger.Warn("failed to end session", "session_id", sessionID, "err", err)
		}
	}, nil
}

// newMetricsServer serves the statistics collector on addr
func newMetricsServer(addr string, st *stats.Stats) *http.Server {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		stats.NewCollector(st),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	return &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
}

// connectChannels subscribes the module to host notifications and panel
// messages
func connectChannels(host *hostlink.Client, panel *commbus.Client, m *module.Module) error {
	if err := host.Notifications(func(n types.Notification) {
		m.PushNotification(n)
	}); err != nil {
		return err
	}
	if err := panel.Subscribe(func(msg types.PanelMessage) {
		m.PushPanelMessage(msg)
	}); err != nil {
		host.Unsubscribe()
		return err
	}
	return nil
}

// logStats periodically logs statistics
func logStats(ctx context.Context, st *stats.Stats, logger *slog.Logger) {
	ticker := time.NewTicker(statsLogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			logger.Info("statistics", "stats", st.String())
		}
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	c, err := createClients(cfg)
	if err != nil {
		return err
	}
	defer c.Close(logger)

	host := hostlink.New(c.nc, logger)
	panel, err := commbus.NewWithConn(c.nc)
	if err != nil {
		return fmt.Errorf("failed to create panel channel: %w", err)
	}
	defer panel.Close()

	st := stats.New()
	st.SetLogger(logger)

	var status module.StatusStore
	if c.redis != nil {
		status = c.redis
	}
	m := newModule(cfg, host, panel, status, logger, st)
	state := m.State()

	if c.db != nil {
		endSession, err := startSessionRecording(ctx, c.db, st, state.SessionID, cfg.ClientName, state.StartedAt, logger)
		if err != nil {
			logger.Warn("session recording disabled", "err", err)
		} else {
			defer endSession()
		}
	}

	if cfg.MetricsAddr != "" {
		srv := newMetricsServer(cfg.MetricsAddr, st)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "err", err)
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	if err := connectChannels(host, panel, m); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	defer host.Unsubscribe()

	if err := hostlink.Setup(host, cfg.ClientName); err != nil {
		return err
	}
	defer hostlink.Shutdown(host)

	if err := panel.Announce(); err != nil {
		logger.Warn("failed to announce readiness", "err", err)
	}

	go logStats(ctx, st, logger)

	logger.Info("module running", "session_id", state.SessionID, "client", cfg.ClientName)
	return m.Run(ctx)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, closer := logging.New(cfg.LogLevel, cfg.LogDir, os.Stderr)
	defer closer.Close()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("module failed", "err", err)
		stop()
		closer.Close()
		os.Exit(1)
	}
	logger.Info("shut down")
}
