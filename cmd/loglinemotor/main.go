// Command loglinemotor runs the DSL orchestration engine's HTTP+SSE
// gateway as a standalone daemon.
//
// Bootstrap order: config load, then env override, then
// logging/observability/metrics init, then store init, then the
// long-running server with signal-driven graceful shutdown, laid out as
// a cobra command tree.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/logline-motor/motor/internal/broker"
	"github.com/logline-motor/motor/internal/config"
	"github.com/logline-motor/motor/internal/dslparse"
	"github.com/logline-motor/motor/internal/httpapi"
	"github.com/logline-motor/motor/internal/logging"
	"github.com/logline-motor/motor/internal/metrics"
	"github.com/logline-motor/motor/internal/observability"
	"github.com/logline-motor/motor/internal/pluginhost"
	"github.com/logline-motor/motor/internal/runtime"
	"github.com/logline-motor/motor/internal/store"
)

var configFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "loglinemotor",
		Short: "DSL orchestration engine",
		Long:  "logline-motor parses orchestration DSL commands, evaluates rulesets, and streams the resulting event timeline over SSE.",
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to JSON or YAML config file (optional, env vars override)")
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(parseCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var (
		bindAddr string
		logLevel string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.DefaultConfig()
			if configFile != "" {
				var err error
				cfg, err = config.LoadFromFile(configFile)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
			}
			config.LoadFromEnv(cfg)

			if cmd.Flags().Changed("bind") {
				cfg.HTTP.BindAddress = bindAddr
			}
			if cmd.Flags().Changed("log-level") {
				cfg.Observability.Logging.Level = logLevel
			}

			logging.Setup(cfg.Observability.Logging.Format, cfg.Observability.Logging.Level)

			ctx := context.Background()

			stopTracing, err := observability.Init(ctx, observability.Config{
				Enabled:        cfg.Observability.Tracing.Enabled,
				Exporter:       cfg.Observability.Tracing.Exporter,
				Endpoint:       cfg.Observability.Tracing.Endpoint,
				ServiceName:    cfg.Observability.Tracing.ServiceName,
				ServiceVersion: httpapi.Version,
				SampleRate:     cfg.Observability.Tracing.SampleRate,
			})
			if err != nil {
				return fmt.Errorf("init tracing: %w", err)
			}
			defer stopTracing(context.Background())

			if cfg.Observability.Metrics.Enabled {
				metrics.InitPrometheus("logline", nil)
			}

			var dbCheck httpapi.Checker
			switch cfg.Store.Backend {
			case config.StoreBackendPostgres:
				pg, err := store.NewPostgresStore(ctx, cfg.Store.Postgres.DSN)
				if err != nil {
					return fmt.Errorf("connect postgres: %w", err)
				}
				defer pg.Close()
				dbCheck = pg.Ping
				logging.Op().Info("persistence backend ready", "backend", "postgres")
			case config.StoreBackendRedis:
				rs := store.NewRedisStore(cfg.Store.Redis.Addr, cfg.Store.Redis.Password, cfg.Store.Redis.DB)
				defer rs.Close()
				dbCheck = rs.Ping
				logging.Op().Info("persistence backend ready", "backend", "redis")
			default:
				logging.Op().Info("persistence backend ready", "backend", "memory")
			}

			var opts []runtime.Option
			opts = append(opts, runtime.WithMaxOrchestrationConcurrency(cfg.MaxOrchestrationConcurrency))

			var host *pluginhost.Host
			if cfg.Plugins.Enabled {
				var err error
				host, err = pluginhost.New(ctx, pluginhost.Config{
					Enabled:         cfg.Plugins.Enabled,
					Directory:       cfg.Plugins.Directory,
					RefreshInterval: cfg.Plugins.RefreshInterval,
				})
				if err != nil {
					return fmt.Errorf("init plugin host: %w", err)
				}
				opts = append(opts, runtime.WithPlugins(host))
				logging.Op().Info("plugin host ready", "directory", cfg.Plugins.Directory)
			}

			rt := runtime.New(broker.Config{
				RetentionSize:       cfg.Stream.BufferSize,
				SubscriberQueueSize: cfg.Stream.SubscriberQueueSize,
				HeartbeatInterval:   cfg.Stream.HeartbeatInterval,
			}, opts...)
			defer rt.Close()

			gw := httpapi.New(rt, httpapi.Config{
				APIPrefix:     cfg.HTTP.APIPrefix,
				CORSOrigin:    cfg.HTTP.CORSOrigin,
				DatabaseCheck: dbCheck,
			})

			httpServer := &http.Server{
				Addr:    cfg.HTTP.BindAddress,
				Handler: gw,
			}

			go func() {
				logging.Op().Info("gateway listening", "addr", cfg.HTTP.BindAddress)
				if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logging.Op().Error("gateway server error", "error", err)
				}
			}()

			if cfg.Observability.Metrics.Enabled {
				metricsAddr := fmt.Sprintf(":%d", cfg.Observability.Metrics.Port)
				metricsMux := http.NewServeMux()
				metricsMux.Handle(cfg.Observability.Metrics.Path, metrics.PrometheusHandler())
				metricsMux.Handle(cfg.Observability.Metrics.Path+"/json", metrics.Global().JSONHandler())
				metricsMux.Handle(cfg.Observability.Metrics.Path+"/timeseries", metrics.Global().TimeSeriesHandler())
				metricsServer := &http.Server{Addr: metricsAddr, Handler: metricsMux}
				go func() {
					logging.Op().Info("metrics listening", "addr", metricsAddr)
					if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						logging.Op().Error("metrics server error", "error", err)
					}
				}()
				defer func() {
					ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					metricsServer.Shutdown(ctx)
				}()
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			<-sigCh
			logging.Op().Info("shutdown signal received")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logging.Op().Warn("gateway shutdown error", "error", err)
			}
			if host != nil {
				if err := host.Close(shutdownCtx); err != nil {
					logging.Op().Warn("plugin host shutdown error", "error", err)
				}
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&bindAddr, "bind", "", "HTTP bind address")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Log level")

	return cmd
}

func parseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "parse <command>",
		Short: "Parse a DSL command and print its AST as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ast, err := dslparse.Parse(args[0])
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(ast, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}
