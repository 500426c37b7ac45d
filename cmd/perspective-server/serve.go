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

	"github.com/google/uuid"
	"github.com/joeshaw/envdecode"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mostrub/perspective"
	"github.com/mostrub/perspective/engine/memengine"
	"github.com/mostrub/perspective/internal/logctx"
	"github.com/mostrub/perspective/wsbridge"
)

// Config is populated from the environment; flags override.
type Config struct {
	// ListenAddr serves the websocket endpoint. ENV: PERSPECTIVE_LISTEN_ADDR
	ListenAddr string `env:"PERSPECTIVE_LISTEN_ADDR,default=:8080"`
	// MetricsAddr serves /metrics. ENV: PERSPECTIVE_METRICS_ADDR
	MetricsAddr string `env:"PERSPECTIVE_METRICS_ADDR,default=:9090"`
	// LogLevel is one of debug, info, warn, error. ENV: PERSPECTIVE_LOG_LEVEL
	LogLevel string `env:"PERSPECTIVE_LOG_LEVEL,default=info"`
	// LogFormat is "text" or "json". ENV: PERSPECTIVE_LOG_FORMAT
	LogFormat string `env:"PERSPECTIVE_LOG_FORMAT,default=text"`
	// ShutdownGrace bounds graceful shutdown. ENV: PERSPECTIVE_SHUTDOWN_GRACE
	ShutdownGrace time.Duration `env:"PERSPECTIVE_SHUTDOWN_GRACE,default=10s"`
}

func loadConfig() (Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return cfg, fmt.Errorf("decode environment: %w", err)
	}
	return cfg, nil
}

func (c Config) logger() (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return nil, fmt.Errorf("log level %q: %w", c.LogLevel, err)
	}
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	switch c.LogFormat {
	case "json":
		h = slog.NewJSONHandler(os.Stderr, opts)
	case "text", "":
		h = slog.NewTextHandler(os.Stderr, opts)
	default:
		return nil, fmt.Errorf("log format %q: want text or json", c.LogFormat)
	}
	return slog.New(logctx.Handler{Handler: h}), nil
}

func serveCmd() *cobra.Command {
	var (
		listenAddr  string
		metricsAddr string
		logLevel    string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the router",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if listenAddr != "" {
				cfg.ListenAddr = listenAddr
			}
			if metricsAddr != "" {
				cfg.MetricsAddr = metricsAddr
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			return serve(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&listenAddr, "listen", "", "websocket listen address (overrides PERSPECTIVE_LISTEN_ADDR)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "metrics listen address (overrides PERSPECTIVE_METRICS_ADDR)")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "log level (overrides PERSPECTIVE_LOG_LEVEL)")
	return cmd
}

func serve(ctx context.Context, cfg Config) error {
	log, err := cfg.logger()
	if err != nil {
		return err
	}
	log = log.With("instance_id", uuid.NewString())
	slog.SetDefault(log)

	reg := prometheus.NewRegistry()
	srv := perspective.NewServer(memengine.New(),
		perspective.WithLogger(log),
		perspective.WithMetricsRegistry(reg),
	)

	wsMux := http.NewServeMux()
	wsMux.Handle("/ws", wsbridge.New(srv, wsbridge.WithLogger(log)))
	wsMux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	wsServer := &http.Server{Addr: cfg.ListenAddr, Handler: wsMux}
	metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("websocket endpoint listening", "addr", cfg.ListenAddr)
		if err := wsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("websocket server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		log.Info("metrics endpoint listening", "addr", cfg.MetricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down", "grace", cfg.ShutdownGrace)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
		defer cancel()
		err := wsServer.Shutdown(shutdownCtx)
		if merr := metricsServer.Shutdown(shutdownCtx); err == nil {
			err = merr
		}
		return err
	})

	return g.Wait()
}
