package main

import (
	"context"
	"io"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/hashicorp/go-multierror"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	httpadapter "github.com/couchcryptid/bikeshare-etl/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/bikeshare-etl/internal/adapter/kafka"
	"github.com/couchcryptid/bikeshare-etl/internal/adapter/openmeteo"
	"github.com/couchcryptid/bikeshare-etl/internal/adapter/postgres"
	"github.com/couchcryptid/bikeshare-etl/internal/archive"
	"github.com/couchcryptid/bikeshare-etl/internal/config"
	"github.com/couchcryptid/bikeshare-etl/internal/domain"
	"github.com/couchcryptid/bikeshare-etl/internal/observability"
	"github.com/couchcryptid/bikeshare-etl/internal/pipeline"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Provision the database and load trips and weather",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return run(ctx, cfg, logger)
	},
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.OTLPEndpoint, "bikeshare-etl")
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("trace exporter shutdown failed", "error", err)
		}
	}()

	s3Client, err := archive.NewS3Client(cfg.AWSRegion)
	if err != nil {
		return err
	}

	deps := pipeline.Deps{
		Connect: func(ctx context.Context, ep domain.Endpoint) (pipeline.Database, error) {
			db, err := postgres.Open(ctx, adminConn(cfg, ep), logger, metrics)
			if err != nil {
				return nil, err
			}
			return db, nil
		},
		Streamer: archive.NewStreamer(s3Client, archive.Config{
			Bucket: cfg.S3Bucket,
			Prefix: cfg.S3Prefix,
			Dir:    cfg.CSVDir,
		}, clock, logger, metrics),
		Transformer: pipeline.NewTripTransformer(cfg.AllowUnknownShape, metrics, logger),
		Weather:     openmeteo.NewClient(cfg.WeatherURL, cfg.WeatherTimeout, weatherQuery(cfg), logger),
	}

	if cfg.ProvisionDatabase() {
		prov, err := newProvisioner(cfg, logger)
		if err != nil {
			return err
		}
		deps.Provisioner = prov
	}

	var closers []io.Closer
	if len(cfg.KafkaBrokers) > 0 {
		notifier := kafkaadapter.NewNotifier(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		deps.Notifier = notifier
		closers = append(closers, notifier)
		logger.Info("stage events enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	p := pipeline.New(deps, pipeline.Options{
		Endpoint: configuredEndpoint(cfg),
		CSVDir:   cfg.CSVDir,
		Role: domain.ReadOnlyRole{
			Name:            cfg.ROUser,
			Password:        cfg.ROPassword,
			ConnectionLimit: cfg.ROConnectionLimit,
		},
	}, clock, logger, metrics)

	g, gctx := errgroup.WithContext(ctx)
	opsCtx, stopOps := context.WithCancel(gctx)
	defer stopOps()

	if cfg.HTTPAddr != "" {
		srv := httpadapter.NewServer(cfg.HTTPAddr, p, prometheus.DefaultGatherer, cfg.ShutdownTimeout, logger)
		g.Go(func() error { return srv.Run(opsCtx) })
	}

	g.Go(func() error {
		defer stopOps()
		return p.Run(gctx)
	})

	result := multierror.Append(nil, g.Wait())
	for _, c := range closers {
		result = multierror.Append(result, c.Close())
	}
	return result.ErrorOrNil()
}

func adminConn(cfg *config.Config, ep domain.Endpoint) postgres.ConnConfig {
	return postgres.ConnConfig{
		Endpoint: ep,
		User:     cfg.PGUser,
		Password: cfg.PGPassword,
		SSLMode:  cfg.PGSSLMode,
	}
}

func configuredEndpoint(cfg *config.Config) domain.Endpoint {
	return domain.Endpoint{Host: cfg.PGHost, Port: cfg.PGPort, Database: cfg.PGDatabase}
}

func weatherQuery(cfg *config.Config) openmeteo.Query {
	return openmeteo.Query{
		Latitude:  cfg.WeatherLatitude,
		Longitude: cfg.WeatherLongitude,
		StartDate: cfg.WeatherStartDate,
		EndDate:   cfg.WeatherEndDate,
		Timezone:  cfg.WeatherTimezone,
		Daily:     domain.DailyMetrics,
		Hourly:    domain.HourlyMetrics,
	}
}
