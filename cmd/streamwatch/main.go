// Command streamwatch runs stream assertion tests and routes failures to the
// integrations declared in the configuration file.
//
// Usage:
//
//	streamwatch -f tests.so
//	streamwatch -d ./checks -config ./streamwatch.toml
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
	"strings"
	"syscall"
	"time"

	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/streamwatch/streamwatch/internal/api"
	"github.com/streamwatch/streamwatch/internal/auth"
	"github.com/streamwatch/streamwatch/internal/config"
	"github.com/streamwatch/streamwatch/internal/engine"
	"github.com/streamwatch/streamwatch/internal/metrics"
)

const shutdownTimeout = 10 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	file := flag.String("f", "", "test plugin file")
	dir := flag.String("d", "", "directory of test plugins")
	configPath := flag.String("config", "", "path to config file (default: looked up next to the tests)")
	configName := flag.String("config-name", config.DefaultFileName, "config file name looked up next to the tests")
	logLevel := flag.String("log-level", "", "log level: debug|info|warn|error (overrides config)")
	logFormat := flag.String("log-format", "", "log format: json|text (overrides config)")
	keepAlive := flag.Bool("keep-alive", false, "keep serving status endpoints after every stream has ended")
	flag.Parse()

	slog.SetDefault(newLogger(orDefault(*logLevel, config.DefaultLogLevel), orDefault(*logFormat, config.DefaultLogFormat)))

	testPath, err := resolveTestPath(*file, *dir, flag.Args())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		flag.Usage()
		return 2
	}

	slog.Info("streamwatch starting", "tests", testPath)

	m := metrics.New()
	e, err := engine.New(engine.Options{
		TestPath:   testPath,
		ConfigPath: *configPath,
		ConfigName: *configName,
		Metrics:    m,
	})
	if err != nil {
		var se *engine.StartupError
		if errors.As(err, &se) {
			slog.Error("startup failed", "phase", se.Phase, "err", se.Err)
		} else {
			slog.Error("startup failed", "err", err)
		}
		return 1
	}

	cfg := e.Config()
	slog.SetDefault(newLogger(orDefault(*logLevel, cfg.Log.Level), orDefault(*logFormat, cfg.Log.Format)))
	slog.Info("config loaded",
		"path", e.ConfigPath(),
		"http_port", cfg.Server.HTTPPort,
		"grpc_port", cfg.Server.GRPCPort,
		"auth_mode", cfg.Server.Auth.Mode,
		"history_ttl", cfg.History.TTL,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	checker := auth.New(cfg.Server.Auth.Mode, cfg.Server.Auth.EffectiveHeader(), cfg.Server.Auth.Key())

	var grpcSrv *grpc.Server
	if cfg.Server.GRPCPort > 0 {
		grpcSrv = grpc.NewServer(
			grpc.ChainUnaryInterceptor(checker.UnaryInterceptor()),
			grpc.ChainStreamInterceptor(checker.StreamInterceptor()),
		)
		healthpb.RegisterHealthServer(grpcSrv, e.Health())

		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
		if err != nil {
			slog.Error("failed to listen on gRPC port", "port", cfg.Server.GRPCPort, "err", err)
			return 1
		}
		go func() {
			slog.Info("gRPC health service listening", "port", cfg.Server.GRPCPort)
			if err := grpcSrv.Serve(lis); err != nil {
				slog.Error("gRPC server stopped", "err", err)
			}
		}()
	}

	var httpSrv *http.Server
	if cfg.Server.HTTPPort > 0 {
		opts := []api.Option{api.WithAuth(checker), api.WithMetrics(m.Handler())}
		for alias, h := range e.Sockets() {
			opts = append(opts, api.WithSocket(alias, h))
			slog.Info("websocket integration mounted", "alias", alias, "path", "/ws/"+alias)
		}
		httpSrv = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
			Handler:           api.New(e, e.History(), opts...),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("HTTP server stopped", "err", err)
			}
		}()
	}

	go func() {
		err := config.Watch(ctx, e.ConfigPath(), cfg, func(_ *config.Config, ch config.Change) {
			slog.Warn("config changed, restart streamwatch to apply",
				"added", ch.Added,
				"removed", ch.Removed,
				"modified", ch.Modified,
				"sections", ch.Sections,
			)
		})
		if err != nil {
			slog.Warn("config watch disabled", "err", err)
		}
	}()

	if err := e.Start(ctx); err != nil {
		slog.Error("failed to start streams", "err", err)
		return 1
	}

	select {
	case <-ctx.Done():
	case <-e.Done():
		slog.Info("all streams ended")
		if *keepAlive {
			<-ctx.Done()
		}
	}

	slog.Info("streamwatch shutting down")
	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()

	code := 0
	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("engine shutdown incomplete", "err", err)
		code = 1
	}
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	if httpSrv != nil {
		httpSrv.Shutdown(shutdownCtx) //nolint:errcheck
	}
	return code
}

// resolveTestPath accepts exactly one of -f, -d or a positional path.
func resolveTestPath(file, dir string, args []string) (string, error) {
	var paths []string
	for _, p := range []string{file, dir} {
		if p != "" {
			paths = append(paths, p)
		}
	}
	paths = append(paths, args...)
	switch len(paths) {
	case 1:
		return paths[0], nil
	case 0:
		return "", errors.New("a test file (-f) or directory (-d) is required")
	default:
		return "", fmt.Errorf("exactly one test path is allowed, got %d", len(paths))
	}
}

func newLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if format == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}
