// Package app wires the importer together and runs one invocation. It
// resolves the requested sources, imports each and then reports the
// summaries to stdout, chat channels and the Pushgateway.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/alanyoungcy/mpimport/internal/config"
	"github.com/alanyoungcy/mpimport/internal/domain"
	"github.com/alanyoungcy/mpimport/internal/pipeline"
)

// Request is one CLI invocation.
type Request struct {
	// Source is "ozon", "wb" or "all".
	Source    string
	Client    string
	DateFrom  string
	DateTo    string
	LastNDays int
	Scope     pipeline.Scope
}

// Plans expands the request into one plan per source. client falls back to
// the configured default.
func (r Request) Plans(defaultClient string) ([]pipeline.Plan, error) {
	var sources []domain.SourceCode
	if r.Source == "all" {
		sources = domain.AllSources
	} else {
		src, err := domain.ParseSourceCode(r.Source)
		if err != nil {
			return nil, fmt.Errorf("app: %w: %v", domain.ErrValidation, err)
		}
		sources = []domain.SourceCode{src}
	}

	client := r.Client
	if client == "" {
		client = defaultClient
	}
	if client == "" {
		return nil, fmt.Errorf("app: %w: --client is required when import.client_name is not set", domain.ErrValidation)
	}

	plans := make([]pipeline.Plan, 0, len(sources))
	for _, src := range sources {
		plans = append(plans, pipeline.Plan{
			Source:    src,
			Client:    client,
			DateFrom:  r.DateFrom,
			DateTo:    r.DateTo,
			LastNDays: r.LastNDays,
			Scope:     r.Scope,
		})
	}
	return plans, nil
}

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	out     io.Writer
	closers []func()
}

// New creates a new App. Summaries are printed to stdout.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
		out:    os.Stdout,
	}
}

// Run wires the dependencies for the requested sources and imports them.
// The returned error is the first fatal failure; record-level skips are not
// errors.
func (a *App) Run(ctx context.Context, req Request) error {
	plans, err := req.Plans(a.cfg.Import.ClientName)
	if err != nil {
		return err
	}
	if _, err := plans[0].Window(time.Now()); err != nil {
		return fmt.Errorf("app: %w", err)
	}

	sources := make([]domain.SourceCode, len(plans))
	for i, p := range plans {
		sources[i] = p.Source
	}

	// Checked before Wire dials the warehouse.
	for _, p := range plans {
		if err := a.cfg.RequireCredentials(p.Source); err != nil {
			a.printFailed(plans, err)
			return fmt.Errorf("app: %w", err)
		}
	}

	deps, cleanup, err := Wire(ctx, a.cfg, sources, a.logger)
	if err != nil {
		err = fmt.Errorf("app: wire dependencies: %w", err)
		a.printFailed(plans, err)
		return err
	}
	a.closers = append(a.closers, cleanup)

	summaries, runErr := deps.Orchestrator.RunAll(ctx, plans)

	// Reporting runs even when the import was interrupted.
	reportCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	for _, s := range summaries {
		if s == nil {
			continue
		}
		s.Print(a.out)
		deps.Metrics.Observe(s)
		if err := deps.Notifier.Report(reportCtx, s); err != nil {
			a.logger.WarnContext(ctx, "run report not delivered", slog.String("error", err.Error()))
		}
	}

	if url := a.cfg.Metrics.PushgatewayURL; url != "" {
		if err := deps.Metrics.Push(reportCtx, url, a.cfg.Metrics.Job, plans[0].Client); err != nil {
			a.logger.WarnContext(ctx, "metrics push failed", slog.String("error", err.Error()))
		}
	}
	return runErr
}

func (a *App) printFailed(plans []pipeline.Plan, err error) {
	now := time.Now()
	for _, p := range plans {
		pipeline.FailedSummary(p, now, err).Print(a.out)
	}
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
