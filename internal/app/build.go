// Package app wires configuration into a running speech service.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/ent0n29/soundboard/internal/artifacts"
	"github.com/ent0n29/soundboard/internal/backend"
	"github.com/ent0n29/soundboard/internal/config"
	"github.com/ent0n29/soundboard/internal/history"
	"github.com/ent0n29/soundboard/internal/httpapi"
	"github.com/ent0n29/soundboard/internal/jobs"
	"github.com/ent0n29/soundboard/internal/observability"
	"github.com/ent0n29/soundboard/internal/service"
	"github.com/ent0n29/soundboard/internal/speech"
	"github.com/ent0n29/soundboard/internal/telemetry"
)

type BuildResult struct {
	Config    config.Config
	API       *httpapi.Server
	Service   *service.Service
	Jobs      *jobs.Manager
	Metrics   *observability.Metrics
	Telemetry *telemetry.Provider

	// Cleanup releases external resources (backend process, DB, NATS, exporters).
	Cleanup func(ctx context.Context) error
}

func Build(ctx context.Context, cfg config.Config, logger *log.Logger) (*BuildResult, error) {
	var closers []func(context.Context) error
	cleanup := func(ctx context.Context) error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](ctx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
	fail := func(err error) (*BuildResult, error) {
		_ = cleanup(context.Background())
		return nil, err
	}

	metrics := observability.NewMetrics(cfg.Server.MetricsNamespace)

	store, err := history.NewStore(ctx, cfg.History.DatabaseURL)
	if err != nil {
		return fail(fmt.Errorf("history store init failed: %w", err))
	}
	closers = append(closers, func(context.Context) error { return store.Close() })

	be, err := backend.New(cfg.Backend, logger)
	if err != nil {
		return fail(fmt.Errorf("backend init failed: %w", err))
	}
	closers = append(closers, func(context.Context) error { return be.Close() })

	dir, err := artifacts.NewDir(cfg.Output.Dir)
	if err != nil {
		return fail(fmt.Errorf("output dir init failed: %w", err))
	}

	var mirror service.Mirror
	if cfg.Artifacts.NatsURL != "" {
		m, err := artifacts.ConnectMirror(cfg.Artifacts.NatsURL, cfg.Artifacts.Bucket, logger)
		if err != nil {
			return fail(fmt.Errorf("artifact mirror init failed: %w", err))
		}
		closers = append(closers, func(context.Context) error { return m.Close() })
		mirror = m
	}

	tp, err := telemetry.Setup(ctx, cfg.Telemetry, logger)
	if err != nil {
		return fail(fmt.Errorf("telemetry init failed: %w", err))
	}
	closers = append(closers, tp.Shutdown)

	jobManager := jobs.NewManager(cfg.Server.JobRetention)
	jobManager.SetExpireHook(func(j jobs.Job) {
		logger.Debug("job expired", "job_id", j.ID, "status", j.Status)
	})

	delivery, ok := speech.ParseDeliveryMode(cfg.Output.Delivery)
	if !ok {
		return fail(fmt.Errorf("invalid delivery mode %q", cfg.Output.Delivery))
	}

	svc, err := service.New(service.Options{
		Backend:      be,
		Limits:       cfg.Limits,
		Output:       dir,
		Delivery:     delivery,
		Concat:       cfg.Output.Concat,
		SfxEnabled:   cfg.Output.SfxEnabled,
		DefaultVoice: cfg.Output.DefaultVoice,
		SampleRate:   cfg.Backend.SampleRate,
		Jobs:         jobManager,
		History:      store,
		Mirror:       mirror,
		Metrics:      metrics,
		Tracer:       tp.Tracer(),
		Logger:       logger.WithPrefix("service"),
	})
	if err != nil {
		return fail(fmt.Errorf("service init failed: %w", err))
	}

	logger.Info("speech service ready",
		"backend", be.Name(),
		"delivery", delivery,
		"history", historyMode(cfg.History.DatabaseURL),
		"mirror", mirror != nil,
		"output_dir", dir.Root(),
	)

	return &BuildResult{
		Config:    cfg,
		API:       httpapi.New(cfg.Server, svc, logger),
		Service:   svc,
		Jobs:      jobManager,
		Metrics:   metrics,
		Telemetry: tp,
		Cleanup:   cleanup,
	}, nil
}

func historyMode(url string) string {
	if url == "" {
		return "memory"
	}
	return "database"
}
