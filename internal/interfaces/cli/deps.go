package cli

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/turtacn/cfpminer/internal/application/mining"
	"github.com/turtacn/cfpminer/internal/chem/circular"
	"github.com/turtacn/cfpminer/internal/chem/smiles"
	"github.com/turtacn/cfpminer/internal/domain/fragment"
	"github.com/turtacn/cfpminer/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/cfpminer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/cfpminer/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/cfpminer/pkg/errors"
)

// deps holds everything a command needs to run mining sessions.
type deps struct {
	Service   *mining.Service
	Repo      fragment.SnapshotRepository
	Decoder   fragment.Decoder
	Collector prometheus.MetricsCollector
	Metrics   *prometheus.MiningMetrics

	closers []io.Closer
	logger  logging.Logger
}

// newDeps opens the configured snapshot store, the metrics collector and,
// when enabled, the Kafka producer.
func newDeps(ctx context.Context, cliCtx *CLIContext) (*deps, error) {
	cfg := cliCtx.Config
	d := &deps{logger: cliCtx.Logger, Decoder: smiles.NewParser()}

	if cfg.Metrics.Enabled {
		collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{
			Namespace:            cfg.Metrics.Namespace,
			Subsystem:            cfg.Metrics.Subsystem,
			EnableProcessMetrics: true,
			EnableGoMetrics:      true,
		}, cliCtx.Logger)
		if err != nil {
			return nil, err
		}
		d.Collector = collector
		d.Metrics = prometheus.NewMiningMetrics(collector)
	}

	repo, closer, err := mining.OpenRepository(ctx, cfg.Storage, cliCtx.Logger)
	if err != nil {
		return nil, err
	}
	d.closers = append(d.closers, closer)
	d.Repo = mining.Instrument(repo, cfg.Storage.Backend, d.Metrics)

	opts := []mining.Option{mining.WithLogger(cliCtx.Logger), mining.WithMetrics(d.Metrics)}
	if cfg.Kafka.Enabled {
		producer, err := kafka.NewProducer(kafka.ProducerConfigFrom(cfg.Kafka), cliCtx.Logger)
		if err != nil {
			d.Close()
			return nil, err
		}
		d.closers = append(d.closers, producer)
		opts = append(opts, mining.WithEvents(kafka.NewEventPublisher(producer,
			kafka.Topics{Mined: cfg.Kafka.TopicMined, Filtered: cfg.Kafka.TopicFiltered},
			cliCtx.Logger)))
	}

	svc, err := mining.NewService(d.Repo, d.Decoder, circular.NewGenerator(), opts...)
	if err != nil {
		d.Close()
		return nil, err
	}
	d.Service = svc
	return d, nil
}

// Close releases resources in reverse order of acquisition.
func (d *deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i].Close(); err != nil {
			d.logger.Warn("close failed", logging.Err(err))
		}
	}
	d.closers = nil
}

// runWithDeps builds deps for one command invocation and converts invariant
// panics raised while fn runs into errors.
func runWithDeps(cmd *cobra.Command, fn func(ctx context.Context, cliCtx *CLIContext, d *deps) error) (err error) {
	defer errors.RecoverInvariant(&err)

	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd, cliCtx)
	defer cancel()

	d, err := newDeps(ctx, cliCtx)
	if err != nil {
		return err
	}
	defer d.Close()
	return fn(ctx, cliCtx, d)
}
