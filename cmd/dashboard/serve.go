package main

import (
	"context"
	"time"

	"github.com/octabyte/mmm-dashboard/config"
	"github.com/octabyte/mmm-dashboard/interfaces/http/server"
	"github.com/octabyte/mmm-dashboard/otel"
	"github.com/octabyte/mmm-dashboard/otel/metrics"
	"github.com/octabyte/mmm-dashboard/proxy"
	"github.com/octabyte/mmm-dashboard/utils/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		port       string
		backendURL string
		namespace  string
		timeout    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the backend relay HTTP server",
		Long: `Serve forwards every request under the proxy namespace to the modeling
backend, passing Authorization and Content-Type through and relaying the
response unchanged. Flags override the environment.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if flags.Changed("port") {
				a.cfg.Port = port
			}
			if flags.Changed("backend-url") {
				a.cfg.BackendURL = backendURL
			}
			if flags.Changed("namespace") {
				a.cfg.ProxyNamespace = namespace
			}
			if flags.Changed("timeout") {
				a.cfg.BackendTimeout = timeout
			}
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			return serve(cmd.Context(), a.cfg)
		},
	}

	cmd.Flags().StringVar(&port, "port", "", "listen port (PORT)")
	cmd.Flags().StringVar(&backendURL, "backend-url", "", "modeling backend origin (BACKEND_URL)")
	cmd.Flags().StringVar(&namespace, "namespace", "", "path prefix relayed to the backend (PROXY_NAMESPACE)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "upstream request timeout (BACKEND_TIMEOUT)")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	shutdown, err := otel.InitOpenTelemetry(ctx, otel.OtelConfig{
		Enabled:     cfg.OtelEnabled,
		Endpoint:    cfg.OtelEndpoint,
		ServiceName: cfg.ServiceName,
		Environment: cfg.Env,
		SampleRate:  cfg.OtelSampleRate,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.LogWarn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	metricsOn := cfg.MetricsEnabled || cfg.OtelEnabled
	if metricsOn {
		if err := metrics.Init(cfg.ServiceName); err != nil {
			return err
		}
	}

	relay, err := proxy.New(proxy.Config{
		BackendURL:   cfg.BackendURL,
		Namespace:    cfg.ProxyNamespace,
		Timeout:      cfg.BackendTimeout,
		ServiceName:  cfg.ServiceName,
		LogBodyLimit: cfg.LogBodyLimit,
	})
	if err != nil {
		return err
	}

	serverCfg := server.Config{
		Port:         cfg.Port,
		ServiceName:  cfg.ServiceName,
		BodyLimit:    cfg.BodyLimit,
		AllowOrigins: cfg.AllowOrigins,
		Tracing:      cfg.OtelEnabled,
		Metrics:      metricsOn,
	}
	logger.LogInfo("relaying backend requests",
		zap.String("namespace", cfg.ProxyNamespace),
		zap.String("backend", cfg.BackendURL),
		zap.Duration("timeout", cfg.BackendTimeout),
	)
	return server.Run(ctx, server.New(serverCfg, relay), serverCfg)
}
