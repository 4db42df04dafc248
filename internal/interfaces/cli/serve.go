package cli

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/turtacn/cfpminer/internal/config"
	"github.com/turtacn/cfpminer/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/cfpminer/internal/infrastructure/monitoring/logging"
	apihttp "github.com/turtacn/cfpminer/internal/interfaces/http"
	"github.com/turtacn/cfpminer/internal/interfaces/http/handlers"
	"github.com/turtacn/cfpminer/internal/interfaces/http/middleware"
	"github.com/turtacn/cfpminer/pkg/errors"
)

func NewServeCmd() *cobra.Command {
	var (
		host      string
		port      int
		cacheSize int
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve stored snapshots over HTTP",
		Long: "Starts the query API on the configured address.  Snapshots are loaded on\n" +
			"first use and kept in an LRU cache.  When a config file is in use, edits to\n" +
			"log.level take effect without a restart.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			cmd.SetContext(ctx)

			return runWithDeps(cmd, func(ctx context.Context, cliCtx *CLIContext, d *deps) error {
				cfg := cliCtx.Config
				srvCfg := cfg.Server
				if cmd.Flags().Changed("host") {
					srvCfg.Host = host
				}
				if cmd.Flags().Changed("port") {
					srvCfg.Port = port
				}

				if cliCtx.ConfigPath != "" {
					watchLogLevel(cliCtx)
				}

				miners, err := handlers.NewMinerCache(d.Service.Load, cacheSize)
				if err != nil {
					return err
				}
				router := apihttp.NewRouter(apihttp.RouterConfig{
					IndexHandler: handlers.NewIndexHandler(d.Service, miners, d.Decoder, cliCtx.Logger),
					HealthHandler: handlers.NewHealthHandler(Version,
						handlers.RepositoryChecker{Backend: cfg.Storage.Backend, Repo: d.Repo}),
					Logger:           cliCtx.Logger,
					Logging:          middleware.DefaultLoggingConfig(),
					MetricsCollector: d.Collector,
					Metrics:          d.Metrics,
					MetricsPath:      cfg.Metrics.Path,
					Mode:             srvCfg.Mode,
				})
				return apihttp.NewServer(srvCfg, router, cliCtx.Logger).Run(ctx)
			})
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "listen host (overrides server.host)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (overrides server.port)")
	cmd.Flags().IntVar(&cacheSize, "cache-size", handlers.DefaultMinerCacheSize, "number of snapshots kept in memory")
	return cmd
}

// watchLogLevel applies log.level edits to the running logger.
func watchLogLevel(cliCtx *CLIContext) {
	config.Watch(cliCtx.ConfigPath, func(cfg *config.Config) {
		lvl, err := logging.ParseLevel(cfg.Log.Level)
		if err != nil {
			cliCtx.Logger.Warn("ignoring log level change", logging.Err(err))
			return
		}
		if lvl != cliCtx.LogLevel.Level() {
			cliCtx.LogLevel.SetLevel(lvl)
			cliCtx.Logger.Info("log level changed", logging.String("level", lvl.String()))
		}
	})
}

// ─────────────────────────────────────────────────────────────────────────────
// events
// ─────────────────────────────────────────────────────────────────────────────

func NewEventsCmd() *cobra.Command {
	var fromLatest bool
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Print mined and filtered events from Kafka as JSON lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			if !cliCtx.Config.Kafka.Enabled {
				return errors.Configuration("kafka is disabled").WithDetail("set kafka.enabled to consume events")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ccfg := kafka.ConsumerConfigFrom(cliCtx.Config.Kafka)
			ccfg.FromLatest = fromLatest
			enc := json.NewEncoder(cmd.OutOrStdout())
			consumer, err := kafka.NewConsumer(ccfg, func(_ context.Context, _ string, env *kafka.EventEnvelope) error {
				return enc.Encode(env)
			}, cliCtx.Logger)
			if err != nil {
				return err
			}
			defer consumer.Close()

			err = consumer.Run(ctx)
			st := consumer.Stats()
			cliCtx.Logger.Info("event consumer stopped",
				logging.Int64("consumed", st.Consumed),
				logging.Int64("handled", st.Handled),
				logging.Int64("failed", st.Failed))
			return err
		},
	}
	cmd.Flags().BoolVar(&fromLatest, "from-latest", false, "start at the newest offset when the group has none")
	return cmd
}
