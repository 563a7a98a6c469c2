// Command weatherwire serves weather tools over the MCP streamable HTTP
// transport, backed by the National Weather Service API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/weatherwire/weatherwire/internal/config"
	"github.com/weatherwire/weatherwire/internal/logctx"
	"github.com/weatherwire/weatherwire/mcp"
	"github.com/weatherwire/weatherwire/mcpservice"
	"github.com/weatherwire/weatherwire/sessions/memoryhost"
	"github.com/weatherwire/weatherwire/streaminghttp"
	"github.com/weatherwire/weatherwire/weather"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to a TOML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "weatherwire: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log := slog.New(logctx.Handler{
		Handler: slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}),
	})
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := weather.NewClient(
		weather.WithBaseURL(cfg.UpstreamBaseURL),
		weather.WithHTTPClient(&http.Client{Timeout: cfg.UpstreamTimeout.Value()}),
	)

	srv := mcpservice.NewServer(
		mcpservice.WithServerInfo(mcp.ImplementationInfo{Name: "weatherwire", Version: version}),
		mcpservice.WithInstructions("Weather tools backed by the US National Weather Service. Use get_alerts for active state alerts and get_forecast for a location forecast."),
		mcpservice.WithToolsCapability(mcpservice.NewToolsContainer(
			weather.NewAlertsTool(client),
			weather.NewForecastTool(client),
		)),
	)

	handler, err := streaminghttp.New(ctx, cfg.PublicEndpoint, memoryhost.New(), srv,
		streaminghttp.WithLogger(log),
		streaminghttp.WithServerName("weatherwire"),
	)
	if err != nil {
		return fmt.Errorf("build handler: %w", err)
	}

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server.listening", slog.String("addr", cfg.ListenAddr), slog.String("endpoint", cfg.PublicEndpoint))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	log.Info("server.shutdown.start")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info("server.shutdown.done")
	return nil
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
