package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/NuclearLighthouseStudios/Screenhead-Arena-Server/internal/config"
	"github.com/NuclearLighthouseStudios/Screenhead-Arena-Server/internal/httpserver"
	"github.com/NuclearLighthouseStudios/Screenhead-Arena-Server/internal/lobby"
	"github.com/NuclearLighthouseStudios/Screenhead-Arena-Server/internal/metrics"
	"github.com/NuclearLighthouseStudios/Screenhead-Arena-Server/internal/signaling"
)

var (
	// Set via -ldflags at build time. Values may be empty in local/dev builds.
	buildCommit = ""
	buildTime   = ""
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := config.NewLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	slog.SetDefault(logger)

	logger.Info("starting screenhead-arena-server",
		"listen_addr", cfg.ListenAddr,
		"mode", cfg.Mode,
		"max_peers", cfg.MaxPeers,
		"max_lobbies", cfg.MaxLobbies,
		"no_lobby_timeout", cfg.NoLobbyTimeout,
		"ping_interval", cfg.PingInterval,
		"ws_idle_timeout", cfg.WSIdleTimeout,
	)

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		logger.Error("failed to listen", "err", err)
		os.Exit(1)
	}

	commit, built := resolveBuildInfo(buildCommit, buildTime)
	srv := httpserver.New(cfg, logger, httpserver.BuildInfo{Commit: commit, BuildTime: built})

	m := metrics.New()
	registry := lobby.NewRegistry(lobby.Config{
		MaxPeers:    cfg.MaxPeers,
		MaxLobbies:  cfg.MaxLobbies,
		JoinTimeout: cfg.NoLobbyTimeout,
	}, logger, m)

	sig := signaling.NewServer(signaling.Config{
		Registry:             registry,
		Logger:               logger,
		Metrics:              m,
		PingInterval:         cfg.PingInterval,
		IdleTimeout:          cfg.WSIdleTimeout,
		MaxMessageBytes:      cfg.MaxMessageBytes,
		MaxMessagesPerSecond: cfg.MaxMessagesPerSecond,
	})
	sig.RegisterRoutes(srv.Mux())

	// Expose internal counters in Prometheus' text format.
	srv.Mux().Handle("GET /metrics", metrics.PrometheusHandler(m))

	pingCtx, stopPings := context.WithCancel(context.Background())
	defer stopPings()
	go sig.Run(pingCtx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		registry.Close()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server exited", "err", err)
			os.Exit(1)
		}
		return
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	stopPings()
	registry.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", "err", err)
	}

	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server exited after shutdown", "err", err)
		os.Exit(1)
	}
}

func resolveBuildInfo(commit, built string) (string, string) {
	// Prefer ldflags-injected values (production builds) but fall back to the Go
	// build info when available (useful for `go run` / dev builds).
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if commit == "" {
					commit = s.Value
				}
			case "vcs.time":
				if built == "" {
					built = s.Value
				}
			}
		}
	}

	return commit, built
}
