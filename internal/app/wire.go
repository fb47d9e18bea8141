package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	s3blob "github.com/alanyoungcy/mpimport/internal/blob/s3"
	"github.com/alanyoungcy/mpimport/internal/cache/redis"
	"github.com/alanyoungcy/mpimport/internal/config"
	"github.com/alanyoungcy/mpimport/internal/domain"
	"github.com/alanyoungcy/mpimport/internal/metrics"
	"github.com/alanyoungcy/mpimport/internal/notify"
	"github.com/alanyoungcy/mpimport/internal/pipeline"
	"github.com/alanyoungcy/mpimport/internal/platform/httpapi"
	"github.com/alanyoungcy/mpimport/internal/platform/ozon"
	"github.com/alanyoungcy/mpimport/internal/platform/wb"
	"github.com/alanyoungcy/mpimport/internal/ratelimit"
	"github.com/alanyoungcy/mpimport/internal/retry"
	"github.com/alanyoungcy/mpimport/internal/store/postgres"
)

// Dependencies bundles everything a run needs. It is constructed by Wire
// and torn down by the returned cleanup function.
type Dependencies struct {
	Orchestrator *pipeline.Orchestrator
	Metrics      *metrics.Registry
	Notifier     *notify.Notifier

	// Stores
	Facts     domain.FactWriter
	RawEvents domain.RawEventStore
	Refs      *postgres.ReferenceStore

	// Optional
	Locks  domain.LockManager
	Mirror domain.BlobWriter
}

// gateFactory returns the shared Redis gate for a source, or nil.
type gateFactory func(name string, interval time.Duration) ratelimit.Gate

// Wire constructs the concrete implementations for the given sources and
// returns them together with a cleanup function that releases them in
// reverse order.
func Wire(ctx context.Context, cfg *config.Config, sources []domain.SourceCode, logger *slog.Logger) (*Dependencies, func(), error) {
	if logger == nil {
		logger = slog.Default()
	}

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{Metrics: metrics.NewRegistry()}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Warehouse.DSN,
		Host:     cfg.Warehouse.Host,
		Port:     cfg.Warehouse.Port,
		Database: cfg.Warehouse.Database,
		User:     cfg.Warehouse.User,
		Password: cfg.Warehouse.Password,
		SSLMode:  cfg.Warehouse.SSLMode,
		MaxConns: cfg.Warehouse.PoolMaxConns,
		MinConns: cfg.Warehouse.PoolMinConns,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	pool := pgClient.Pool()
	facts := postgres.NewFactStore(pool)
	raw := postgres.NewRawEventStore(pool)
	deps.Facts = facts
	deps.RawEvents = raw
	deps.Refs = postgres.NewReferenceStore(pool)

	// --- Redis (optional) ---
	var gates gateFactory
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			Namespace:  cfg.Redis.Namespace,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.Locks = redis.NewLockManager(redisClient, logger)
		if cfg.Redis.SharedRateGate {
			gates = func(name string, interval time.Duration) ratelimit.Gate {
				return redis.NewGate(redisClient, name, interval)
			}
		}
	}

	// --- S3 raw payload mirror (optional) ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			Prefix:         cfg.S3.Prefix,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Mirror = s3blob.NewWriter(s3Client)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender("", cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Marketplace connectors ---
	connectors, err := buildConnectors(cfg, sources, gates, deps.Metrics, logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	writePolicy := retry.Once(cfg.Import.WriteRetryDelay.Duration)
	recorder := pipeline.NewRecorder(raw, deps.Mirror, logger)
	deps.Orchestrator = pipeline.NewOrchestrator(connectors, deps.Refs, deps.Refs, facts, recorder,
		pipeline.Options{
			Locks:       deps.Locks,
			LockTTL:     cfg.Import.LockTTL.Duration,
			WritePolicy: &writePolicy,
		}, logger)

	return deps, cleanup, nil
}

// buildConnectors creates one connector per requested source, each with its
// own limiter, retry policy and HTTP transport.
func buildConnectors(cfg *config.Config, sources []domain.SourceCode, gates gateFactory, reg *metrics.Registry, logger *slog.Logger) ([]pipeline.Connector, error) {
	var out []pipeline.Connector
	for _, src := range sources {
		if err := cfg.RequireCredentials(src); err != nil {
			return nil, fmt.Errorf("wire: %w", err)
		}

		switch src {
		case domain.SourceOzon:
			oc := cfg.Sources.Ozon
			api := httpapi.New(httpapi.Config{
				Source:             domain.SourceOzon,
				BaseURL:            oc.BaseURL,
				Timeout:            oc.RequestTimeout.Duration,
				InsecureSkipVerify: oc.InsecureSkipVerify,
			},
				ozon.Authorizer(oc.ClientID, oc.APIKey),
				newGate("ozon", oc.MinInterval.Duration, gates),
				retryPolicy(oc.Retry, reg.RetryObserver("ozon")),
				logger,
			)
			out = append(out, ozon.NewConnector(ozon.NewClient(api), ozon.Options{
				PageSize:        oc.PageSize,
				ReturnsPageSize: oc.ReturnsPageSize,
				OffsetCeiling:   oc.OffsetCeiling,
				IncludeFBO:      oc.IncludeFBO,
			}))

		case domain.SourceWB:
			wc := cfg.Sources.WB
			auth := wb.Authorizer(wc.APIKey)
			policy := retryPolicy(wc.Retry, reg.RetryObserver("wb"))
			stats := httpapi.New(httpapi.Config{
				Source:             domain.SourceWB,
				BaseURL:            wc.StatisticsURL,
				Timeout:            wc.RequestTimeout.Duration,
				InsecureSkipVerify: wc.InsecureSkipVerify,
			}, auth, newGate("wb", wc.MinInterval.Duration, gates), policy, logger)
			content := httpapi.New(httpapi.Config{
				Source:             domain.SourceWB,
				BaseURL:            wc.ContentURL,
				Timeout:            wc.RequestTimeout.Duration,
				InsecureSkipVerify: wc.InsecureSkipVerify,
			}, auth, newGate("wb_content", wc.ContentMinInterval.Duration, gates), policy, logger)

			if wc.ClientID != "" {
				logger.Info("wildberries seller", slog.String("seller_id", wc.ClientID))
			}
			out = append(out, wb.NewConnector(wb.NewClient(stats, content), wb.Options{
				SalesPageSize:  wc.SalesPageSize,
				ReportPageSize: wc.ReportPageSize,
				CardsPageSize:  wc.CardsPageSize,
			}))

		default:
			return nil, fmt.Errorf("wire: unknown source %q", src)
		}
	}
	return out, nil
}

// newGate returns the in-process limiter for name, chained with the shared
// Redis gate when one is configured.
func newGate(name string, interval time.Duration, gates gateFactory) ratelimit.Gate {
	local := ratelimit.New(name, interval)
	if gates == nil {
		return local
	}
	return ratelimit.Chain{local, gates(name, interval)}
}

func retryPolicy(rc config.RetryConfig, onRetry func(int, time.Duration, error)) retry.Policy {
	return retry.Policy{
		MaxAttempts: rc.MaxAttempts,
		BaseDelay:   rc.BaseDelay.Duration,
		MaxDelay:    rc.MaxDelay.Duration,
		Jitter:      rc.Jitter,
		OnRetry:     onRetry,
	}
}
