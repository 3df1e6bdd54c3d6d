package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"fieldmission/internal/api"
	"fieldmission/internal/blob"
	"fieldmission/internal/config"
	"fieldmission/internal/connectivity"
	"fieldmission/internal/kv"
	"fieldmission/internal/logging"
	"fieldmission/internal/observability"
	"fieldmission/internal/queue"
	"fieldmission/internal/session"

	"github.com/prometheus/client_golang/prometheus"
)

// app holds the components shared by every subcommand.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	store    kv.Store
	blobs    blob.Store
	sessions *session.Store
	prefs    *session.Preferences
	queue    *queue.Queue
	client   *api.Client
	stats    *observability.ExpvarMetricsRecorder
	registry *prometheus.Registry
	metrics  observability.MetricsRecorder
	tracer   observability.Tracer
	stdout   io.Writer
	stderr   io.Writer
}

func newApp(ctx context.Context, cfg config.Config, tracer observability.Tracer, stdout, stderr io.Writer) (*app, error) {
	logger := logging.New(stderr, cfg.LogLevel, cfg.LogFormat)
	store, err := kv.Open(ctx, kv.Options{
		Driver:      kv.Driver(cfg.StorageDriver),
		SQLitePath:  cfg.SQLitePath,
		PostgresDSN: cfg.PostgresDSN,
	})
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	blobs, err := blob.Open(ctx, blob.Options{
		Driver: blob.Driver(cfg.BlobDriver),
		Root:   cfg.BlobRoot,
		S3: blob.S3Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			PathStyle: cfg.S3PathStyle,
		},
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("open photo store: %w", err)
	}
	stats := observability.NewExpvarMetricsRecorder("")
	registry := prometheus.NewRegistry()
	prom, err := observability.NewPrometheusMetricsRecorder(registry, cfg.MetricsNamespace)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	metrics := observability.Multi{stats, prom}
	if tracer == nil {
		tracer = observability.NoopTracer{}
	}
	sessions := session.NewStore(store, logger)
	q := queue.New(store, queue.WithLogger(logger), queue.WithMetrics(metrics), queue.WithTracer(tracer))
	q.Load(ctx)
	return &app{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		blobs:    blobs,
		sessions: sessions,
		prefs:    session.NewPreferences(store, logger),
		queue:    q,
		client: api.New(cfg.APIBaseURL, sessions,
			api.WithTimeout(cfg.RequestTimeout),
			api.WithRateLimit(cfg.SearchRatePerSecond),
			api.WithPageSize(cfg.SearchLimit),
			api.WithLogger(logger),
		),
		stats:    stats,
		registry: registry,
		metrics:  metrics,
		tracer:   tracer,
		stdout:   stdout,
		stderr:   stderr,
	}, nil
}

// probe returns the connectivity source; offline forces the queued path.
func (a *app) probe(offline bool) connectivity.Probe {
	if offline {
		return connectivity.NewStatic(false)
	}
	return connectivity.NewHTTPProbe(a.cfg.ProbeURL, a.cfg.RequestTimeout)
}

func (a *app) Close() error { return a.store.Close() }

func (a *app) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(a.stdout, format, args...)
}
