package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"github.com/northgatelabs/streamsink/internal/config"
	"github.com/northgatelabs/streamsink/internal/consumer"
	"github.com/northgatelabs/streamsink/internal/sink"
	"github.com/northgatelabs/streamsink/internal/storage"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const defaultMetricsShutdownTimeout = 10 * time.Second

// BuildInfo is a Prometheus gauge for build metadata.
var BuildInfo = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "streamsink_build_info",
		Help: "Build information for streamsink",
	},
	[]string{"version", "commit", "date"},
)

func init() {
	prometheus.MustRegister(BuildInfo)
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  = flag.String("config", "", "path to TOML configuration file")
		brokers     = flag.StringSlice("kafka-brokers", nil, "kafka broker addresses (overrides config)")
		group       = flag.String("kafka-group", "", "kafka consumer group (overrides config)")
		bucket      = flag.String("s3-bucket", "", "S3 bucket name (overrides config)")
		region      = flag.String("s3-region", "", "AWS region (overrides config)")
		verbose     = flag.Bool("verbose", false, "verbose mode - show debug logs")
		showVersion = flag.Bool("version", false, "show version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("version: %s, commit: %s, date: %s\n", version, commit, date)
		return nil
	}

	log := newLogger(*verbose)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if len(*brokers) > 0 {
		cfg.Kafka.Brokers = *brokers
	}
	if *group != "" {
		cfg.Kafka.Group = *group
	}
	if *bucket != "" {
		cfg.S3.Bucket = *bucket
	}
	if *region != "" {
		cfg.S3.Region = *region
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var metricsErrCh <-chan error
	if cfg.Metrics.Addr != "" {
		BuildInfo.WithLabelValues(version, commit, date).Set(1)
		metricsErrCh = startMetricsServer(ctx, log, cfg.Metrics.Addr, defaultMetricsShutdownTimeout)
	}

	store, err := storage.NewS3Storage(ctx, &storage.S3Config{
		Logger:          log,
		Region:          cfg.S3.Region,
		Bucket:          cfg.S3.Bucket,
		AccessKeyID:     cfg.S3.AccessKeyID,
		SecretAccessKey: cfg.S3.SecretAccessKey,
		Endpoint:        cfg.S3.EndpointURL,
		ForcePathStyle:  cfg.S3.ForcePathStyle,
		PartSize:        cfg.S3.PartSizeBytes,
	})
	if err != nil {
		return fmt.Errorf("failed to create storage: %w", err)
	}

	sinkMetrics := sink.NewMetrics(prometheus.DefaultRegisterer)
	snk, err := sink.New(&sink.Config{
		Logger:            log,
		Storage:           store,
		Metrics:           sinkMetrics,
		Format:            cfg.Sink.Format,
		FormatConfig:      cfg.Sink.FormatConfig,
		Partitioner:       cfg.Sink.Partitioner,
		PartitionerConfig: cfg.Sink.PartitionerConfig,
		Prefix:            cfg.Sink.Prefix,
		FlushCount:        cfg.Sink.FlushCount,
		RotateInterval:    time.Duration(cfg.Sink.RotateInterval),
	})
	if err != nil {
		return fmt.Errorf("failed to create sink: %w", err)
	}
	if err := snk.Start(ctx); err != nil {
		return fmt.Errorf("failed to start sink: %w", err)
	}

	consumerMetrics := consumer.NewMetrics(prometheus.DefaultRegisterer)
	cons, err := consumer.New(&consumer.Config{
		Logger:     log,
		Sink:       snk,
		Metrics:    consumerMetrics,
		Brokers:    cfg.Kafka.Brokers,
		Topics:     cfg.Kafka.Topics,
		Group:      cfg.Kafka.Group,
		User:       cfg.Kafka.User,
		Password:   cfg.Kafka.Password,
		DisableTLS: cfg.Kafka.DisableTLS,
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	log.Info("starting streamsink",
		"topics", cfg.Kafka.Topics,
		"group", cfg.Kafka.Group,
		"bucket", cfg.S3.Bucket,
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- cons.Run(ctx)
	}()

	var runErr error
	select {
	case runErr = <-errCh:
	case err, ok := <-metricsErrCh:
		if ok && err != nil {
			runErr = fmt.Errorf("metrics server error: %w", err)
		}
		cancel()
		<-errCh
	case <-ctx.Done():
		<-errCh
	}

	// Closing the client revokes the assignment, which force-flushes every
	// writer; the explicit Close afterwards is a no-op safety net for the
	// case where the group had already lost its partitions.
	cons.Close()
	if err := snk.Close(context.Background(), nil); err != nil {
		log.Error("failed to close sink", "error", err)
	}
	if err := snk.Stop(); err != nil {
		return fmt.Errorf("failed to stop sink: %w", err)
	}

	if runErr != nil {
		return fmt.Errorf("consumer error: %w", runErr)
	}
	log.Info("streamsink stopped")
	return nil
}

func newLogger(verbose bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level: logLevel,
	}))
}

func startMetricsServer(ctx context.Context, log *slog.Logger, addr string, shutdownTimeout time.Duration) <-chan error {
	errCh := make(chan error, 1)

	go func() {
		defer close(errCh)

		listener, err := net.Listen("tcp", addr)
		if err != nil {
			errCh <- err
			return
		}
		defer listener.Close()

		log.Info("prometheus metrics server listening", "address", listener.Addr().String())

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		httpSrv := &http.Server{Handler: mux}

		go func() {
			<-ctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = httpSrv.Shutdown(sctx)
		}()

		err = httpSrv.Serve(listener)
		if errors.Is(err, http.ErrServerClosed) {
			return
		}
		if err != nil {
			errCh <- err
		}
	}()

	return errCh
}
