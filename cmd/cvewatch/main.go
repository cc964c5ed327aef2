package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hanch7274/CVEHub-sub002/internal/api"
	"github.com/hanch7274/CVEHub-sub002/internal/auth"
	"github.com/hanch7274/CVEHub-sub002/internal/bus"
	"github.com/hanch7274/CVEHub-sub002/internal/codec"
	"github.com/hanch7274/CVEHub-sub002/internal/config"
	"github.com/hanch7274/CVEHub-sub002/internal/connection"
	"github.com/hanch7274/CVEHub-sub002/internal/model"
	"github.com/hanch7274/CVEHub-sub002/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/cvewatch.yaml", "path to config file")
	subscribe := flag.String("subscribe", "", "comma-separated CVE ids to watch, e.g. CVE-2024-1234,CVE-2024-5678")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("cvewatch", version.String())
		return
	}

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	logger.Info("starting cvewatch",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	token := cfg.ResolveToken()
	if token == "" {
		logger.Error("no credential configured", "token_env", cfg.Auth.TokenEnv)
		os.Exit(1)
	}

	store := auth.NewStore(logger)
	if err := store.SetToken(token); err != nil {
		logger.Error("invalid credential", "error", err)
		os.Exit(1)
	}

	apiClient := api.NewClient(
		cfg.Server.RestURL,
		token,
		api.WithLogger(logger),
		api.WithTimeout(cfg.Server.Timeout),
		api.WithRetries(cfg.Server.MaxRetries, time.Second),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := apiClient.Health(ctx); err != nil {
		logger.Warn("api health check failed", "error", err)
	}

	manager := connection.NewManager(managerConfig(cfg), store, logger)
	registerHandlers(manager, apiClient, logger)

	for _, id := range splitList(*subscribe) {
		if err := manager.Subscribe("cve", id); err != nil {
			logger.Error("subscribe failed", "cve", id, "error", err)
			os.Exit(1)
		}
		logger.Info("watching", "cve", id)
	}

	if err := manager.Connect(); err != nil {
		logger.Error("connect failed", "error", err)
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return manager.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
	logger.Info("cvewatch stopped")
}

// registerHandlers wires connection lifecycle and CVE events to the log.
func registerHandlers(manager *connection.Manager, apiClient *api.Client, logger *slog.Logger) {
	manager.On(connection.EventStateChanged, func(evt bus.Event) {
		snap := evt.Data.(connection.Snapshot)
		logger.Info("connection state",
			"state", snap.State,
			"ready", snap.Ready,
			"session", snap.SessionID,
			"attempts", snap.Attempts,
		)
	})

	manager.On(connection.EventError, func(evt bus.Event) {
		err, ok := evt.Data.(error)
		if !ok {
			return
		}
		if connection.IsAuthError(err) {
			logger.Error("authentication required, refresh the token and restart", "error", err)
			return
		}
		logger.Warn("connection error", "error", err)
	})

	manager.On(codec.TypeConnectAck, func(evt bus.Event) {
		msg, ok := evt.Data.(codec.Message)
		if !ok {
			return
		}
		ack := codec.ParseConnectAck(msg)
		if ack.ConcurrentConnections <= 1 {
			return
		}
		// The manager already asked over the socket; the REST call catches
		// orphans the realtime server no longer tracks.
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		closed, err := apiClient.CleanupSessions(ctx, ack.SessionID)
		if err != nil {
			logger.Warn("session cleanup failed", "error", err)
			return
		}
		logger.Info("stale sessions cleaned up", "closed", closed)
	})

	manager.On("cve_updated", func(evt bus.Event) {
		msg, ok := evt.Data.(codec.Message)
		if !ok {
			return
		}
		var upd model.Update
		if err := model.DecodeEvent(msg.Data, &upd); err != nil {
			logger.Warn("bad cve_updated payload", "error", err)
			return
		}
		logger.Info("cve updated",
			"cve", upd.CVEID,
			"field", upd.Field,
			"by", upd.UpdatedBy,
		)

		// Fetch the full record so the change is shown with context.
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		cve, err := apiClient.GetCVE(ctx, upd.CVEID)
		if err != nil {
			logger.Warn("resync failed", "cve", upd.CVEID, "error", err)
			return
		}
		logger.Info("cve state",
			"cve", cve.ID,
			"title", cve.Title,
			"severity", cve.Severity,
			"status", cve.Status,
		)
	})

	manager.On("comment_added", func(evt bus.Event) {
		msg, ok := evt.Data.(codec.Message)
		if !ok {
			return
		}
		var comment model.Comment
		if err := model.DecodeEvent(msg.Data, &comment); err != nil {
			logger.Warn("bad comment_added payload", "error", err)
			return
		}
		logger.Info("comment added",
			"cve", comment.CVEID,
			"author", comment.Author,
			"content", comment.Content,
		)
	})
}

func managerConfig(cfg *config.ClientConfig) connection.ManagerConfig {
	mc := connection.DefaultManagerConfig()
	mc.URL = cfg.Server.WSURL
	mc.OpenTimeout = cfg.Transport.OpenTimeout
	mc.WriteTimeout = cfg.Transport.WriteTimeout
	mc.WatchdogTimeout = cfg.Transport.WatchdogTimeout
	mc.BufferSize = cfg.Transport.BufferSize
	mc.AckTimeout = cfg.Session.AckTimeout
	mc.UserAgent = cfg.Session.UserAgent
	mc.Path = cfg.Session.Path
	mc.ReconnectMinDelay = cfg.Reconnect.MinDelay
	mc.ReconnectMaxDelay = cfg.Reconnect.MaxDelay
	mc.MaxReconnectAttempts = cfg.Reconnect.MaxAttempts
	mc.DisableReconnect = cfg.Reconnect.Disabled
	mc.CheckInterval = cfg.Keepalive.CheckInterval
	mc.HeartbeatInterval = cfg.Keepalive.HeartbeatInterval
	return mc
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
