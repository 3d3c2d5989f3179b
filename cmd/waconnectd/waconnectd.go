// Command waconnectd serves the WhatsApp embedded-signup relay surface.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/instahelp/waconnect/app"
	"github.com/instahelp/waconnect/config"
	"github.com/instahelp/waconnect/internal"
	"github.com/instahelp/waconnect/metrics"
	"github.com/instahelp/waconnect/relaysrv"
	"github.com/instahelp/waconnect/reporting"
)

var (
	configPath = flag.String("config", "waconnect.json", "Path to the config file")
	logLevel   = flag.String("log-level", "", "Logging level (trace, debug, info, warn, error); overrides the config file")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v\n", err)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	level, err := internal.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		slog.Warn("unknown log level, using info", "level", cfg.LogLevel)
	}
	var out io.Writer = os.Stdout
	if cfg.LogPath != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   filepath.Join(cfg.LogPath, app.LogFileName),
			MaxSize:    10, // MB
			MaxBackups: 3,
		})
	}
	slog.SetDefault(internal.NewLogger(out, level))

	reporting.Init(cfg.SentryDSN, app.Version)
	defer func() {
		if r := recover(); r != nil {
			reporting.PanicListener(fmt.Sprintf("waconnectd panic: %v", r))
			panic(r)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.OTLPAddr != "" {
		shutdown, err := metrics.SetupOTelSDK(ctx, metrics.Config{
			Endpoint:       cfg.OTLPAddr,
			MetricsEnabled: true,
			TracesEnabled:  true,
			SampleRate:     0.1,
		})
		if err != nil {
			slog.Error("setting up telemetry", "error", err)
		} else {
			defer shutdown(context.Background())
		}
	}

	slog.Info("Starting waconnectd", "version", app.Version, "config", *configPath)
	srv := relaysrv.New(cfg, *configPath, slog.Default())
	if err := srv.Run(ctx); err != nil {
		log.Fatalf("Relay server failed: %v\n", err)
	}
	slog.Info("Shut down cleanly")
}
