package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"strings"
	"time"

	"tripact/config"
	"tripact/core/events"
	"tripact/ledger"
	"tripact/observability/logging"
	oteli "tripact/observability/otel"
	"tripact/registry"
	"tripact/rpc"
)

const envVar = "TRIPACT_ENV"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv(envVar))
	logger := logging.Setup("tripactd", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	if cfg.Telemetry.Traces || cfg.Telemetry.Metrics {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		shutdown, err := oteli.Init(ctx, oteli.Config{
			ServiceName: "tripactd",
			Environment: env,
			Endpoint:    cfg.Telemetry.Endpoint,
			Insecure:    cfg.Telemetry.Insecure,
			Metrics:     cfg.Telemetry.Metrics,
			Traces:      cfg.Telemetry.Traces,
		})
		cancel()
		if err != nil {
			logger.Error("failed to init telemetry", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := shutdown(ctx); err != nil {
				logger.Error("telemetry shutdown failed", slog.Any("error", err))
			}
		}()
	}

	journal := events.NewJournal()
	reg := registry.New()
	reg.SetEmitter(journal)
	reg.SetEmergencyWait(cfg.EmergencyWait())
	for _, symbol := range cfg.Currencies {
		token, err := ledger.NewToken(symbol)
		if err != nil {
			logger.Error("invalid settlement currency", slog.String("symbol", symbol), slog.Any("error", err))
			os.Exit(1)
		}
		reg.AllowCurrency(token)
		logger.Info("settlement currency enabled", slog.String("symbol", token.Symbol()))
	}

	server := rpc.NewServer(reg, journal, rpc.ServerConfig{
		Auth: rpc.AuthConfig{
			Enabled:    cfg.Auth.Enabled,
			HMACSecret: cfg.Auth.HMACSecret,
			Issuer:     cfg.Auth.Issuer,
			Audience:   cfg.Auth.Audience,
			ClockSkew:  cfg.Auth.ClockSkew(),
		},
		RequestsPerMinute: cfg.RequestsPerMinute,
		Burst:             cfg.Burst,
		Logger:            logger,
	})
	if err := server.Start(cfg.ListenAddress); err != nil {
		logger.Error("rpc server exited", slog.Any("error", err))
		os.Exit(1)
	}
}
