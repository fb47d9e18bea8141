package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/mpimport/internal/domain"
	"github.com/alanyoungcy/mpimport/internal/retry"
)

// DefaultLockTTL bounds how long a crashed run can block the next one.
const DefaultLockTTL = 2 * time.Hour

// Plan is one requested import: a source, a client account, a date range and
// the kinds of data to pull. Exactly one of DateFrom/DateTo or LastNDays is
// set.
type Plan struct {
	Source    domain.SourceCode
	Client    string
	DateFrom  string
	DateTo    string
	LastNDays int
	Scope     Scope
}

// Window resolves the plan's date flags against now.
func (p Plan) Window(now time.Time) (domain.Window, error) {
	switch {
	case p.LastNDays > 0 && (p.DateFrom != "" || p.DateTo != ""):
		return domain.Window{}, fmt.Errorf("%w: --last-n-days cannot be combined with --date-from/--date-to", domain.ErrValidation)
	case p.LastNDays > 0:
		return domain.LastNDays(p.LastNDays, now)
	case p.DateFrom != "" && p.DateTo != "":
		return domain.NewWindow(p.DateFrom, p.DateTo)
	default:
		return domain.Window{}, fmt.Errorf("%w: either --date-from and --date-to or --last-n-days is required", domain.ErrValidation)
	}
}

// Options holds the optional collaborators of an Orchestrator.
type Options struct {
	// Locks, when set, serialises runs of the same source and client
	// across processes.
	Locks   domain.LockManager
	LockTTL time.Duration
	// WritePolicy governs page writes. Defaults to one retry after 500ms.
	WritePolicy *retry.Policy
}

// Orchestrator drives imports: one sequential walk per source, each page
// recorded raw, normalized and written in its own transaction.
type Orchestrator struct {
	connectors  map[domain.SourceCode]Connector
	refs        domain.ReferenceStore
	catalog     domain.ProductCatalog
	writer      domain.FactWriter
	recorder    *Recorder
	locks       domain.LockManager
	lockTTL     time.Duration
	writePolicy retry.Policy
	logger      *slog.Logger
	now         func() time.Time
}

// NewOrchestrator creates an Orchestrator over the given connectors.
func NewOrchestrator(
	connectors []Connector,
	refs domain.ReferenceStore,
	catalog domain.ProductCatalog,
	writer domain.FactWriter,
	recorder *Recorder,
	opts Options,
	logger *slog.Logger,
) *Orchestrator {
	byCode := make(map[domain.SourceCode]Connector, len(connectors))
	for _, c := range connectors {
		byCode[c.Source()] = c
	}
	ttl := opts.LockTTL
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	policy := retry.Once(500 * time.Millisecond)
	if opts.WritePolicy != nil {
		policy = *opts.WritePolicy
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		connectors:  byCode,
		refs:        refs,
		catalog:     catalog,
		writer:      writer,
		recorder:    recorder,
		locks:       opts.Locks,
		lockTTL:     ttl,
		writePolicy: policy,
		logger:      logger.With(slog.String("component", "orchestrator")),
		now:         time.Now,
	}
}

// RunAll runs each plan in its own goroutine. Sources share nothing but the
// stores, so one failing does not stop the others. Summaries are returned
// in plan order; the error is the first failure.
func (o *Orchestrator) RunAll(ctx context.Context, plans []Plan) ([]*Summary, error) {
	summaries := make([]*Summary, len(plans))
	var g errgroup.Group
	for i, plan := range plans {
		i, plan := i, plan
		g.Go(func() error {
			sum, err := o.Run(ctx, plan)
			summaries[i] = sum
			return err
		})
	}
	err := g.Wait()
	return summaries, err
}

// Run imports one plan. The summary is always returned, describing as much
// as was done before any failure.
func (o *Orchestrator) Run(ctx context.Context, plan Plan) (*Summary, error) {
	sum := newSummary(plan, o.now())
	logger := o.logger.With(
		slog.String("source", string(plan.Source)),
		slog.String("client", plan.Client),
	)

	err := o.run(ctx, plan, sum, logger)
	sum.Finished = o.now()
	if err != nil {
		o.transition(sum, StateFailed, logger)
		sum.Err = err
		logger.Error("import failed",
			slog.Int("pages", sum.Pages),
			slog.Int("records", sum.Records),
			slog.Bool("fatal", domain.IsFatal(err)),
			slog.String("error", err.Error()),
		)
		return sum, err
	}

	o.transition(sum, StateDone, logger)
	logger.Info("import complete",
		slog.String("window", sum.Window.String()),
		slog.Int("pages", sum.Pages),
		slog.Int("records", sum.Records),
		slog.Int("skipped", sum.Skipped),
		slog.Int("written", sum.Written().Total()),
	)
	return sum, nil
}

func (o *Orchestrator) run(ctx context.Context, plan Plan, sum *Summary, logger *slog.Logger) error {
	o.transition(sum, StateWindowing, logger)
	window, err := plan.Window(o.now())
	if err != nil {
		return err
	}
	sum.Window = window

	conn, ok := o.connectors[plan.Source]
	if !ok {
		return fmt.Errorf("pipeline: %w: no connector for source %q", domain.ErrMissingCreds, plan.Source)
	}

	if o.locks != nil {
		key := LockKey(plan.Source, plan.Client)
		unlock, err := o.locks.Acquire(ctx, key, o.lockTTL)
		if err != nil {
			return fmt.Errorf("pipeline: lock %s: %w", key, err)
		}
		defer unlock()
	}

	source, err := o.refs.SourceByCode(ctx, plan.Source)
	if err != nil {
		return fmt.Errorf("pipeline: resolve source %s: %w", plan.Source, err)
	}
	client, err := o.refs.ClientByName(ctx, plan.Client)
	if err != nil {
		return fmt.Errorf("pipeline: resolve client %q: %w", plan.Client, err)
	}
	attr := domain.Attribution{SourceID: source.ID, ClientID: client.ID, Source: plan.Source}

	var products domain.ProductLookup = domain.ProductIndex{}
	if plan.Scope != ScopeProducts {
		if products, err = o.catalog.ProductIndex(ctx, source.ID, client.ID); err != nil {
			return fmt.Errorf("pipeline: load products: %w", err)
		}
	}

	logger.Info("import starting",
		slog.String("window", window.String()),
		slog.String("scope", plan.Scope.String()),
	)
	for _, ds := range conn.Datasets(products) {
		if !plan.Scope.Includes(ds.Kind) {
			continue
		}
		if err := o.runDataset(ctx, ds, window, attr, sum, logger); err != nil {
			return err
		}
	}

	o.transition(sum, StateSummarizing, logger)
	return nil
}

func (o *Orchestrator) runDataset(ctx context.Context, ds Dataset, window domain.Window, attr domain.Attribution, sum *Summary, logger *slog.Logger) error {
	logger = logger.With(slog.String("dataset", ds.Name))
	walker := ds.Walker(window)

	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("pipeline: %s stopped before page %d: %w", ds.Name, walker.Pages()+1, err)
		}

		o.transition(sum, StateFetching, logger)
		page, ok, err := walker.Next(ctx)
		if err != nil {
			return fmt.Errorf("pipeline: fetch %s: %w", ds.Name, err)
		}
		if !ok {
			break
		}
		sum.Pages++
		sum.Records += page.Len()

		// The page is already paid for; finish it even if the run is
		// being cancelled.
		o.transition(sum, StateWriting, logger)
		if err := o.processPage(context.WithoutCancel(ctx), ds, page, attr, sum, logger); err != nil {
			return err
		}
		logger.Debug("page done",
			slog.Int("page", walker.Pages()),
			slog.Int("records", page.Len()),
			slog.String("next", walker.Position()),
		)
	}

	if walker.Truncated() {
		sum.Truncated = append(sum.Truncated, ds.Name)
		logger.Warn("offset ceiling reached, window may be incomplete",
			slog.String("window", window.String()),
			slog.String("offset", walker.Position()),
		)
	}
	logger.Info("dataset complete", slog.Int("requests", walker.Pages()))
	return nil
}

func (o *Orchestrator) processPage(ctx context.Context, ds Dataset, page domain.RawPage, attr domain.Attribution, sum *Summary, logger *slog.Logger) error {
	if _, err := o.recorder.Record(ctx, ds.EventType, page.Body, attr); err != nil {
		sum.RawFailed++
	} else {
		sum.RawRecorded++
	}

	var batch domain.Normalized
	for i, rec := range page.Records {
		n, err := ds.Normalize(ctx, rec, attr)
		if err != nil {
			sum.skip(ds.Name, err)
			logger.Warn("record skipped", slog.Int("index", i), slog.String("error", err.Error()))
			continue
		}
		sum.Normalized++
		batch.Orders = append(batch.Orders, n.Orders...)
		batch.Transactions = append(batch.Transactions, n.Transactions...)
		batch.Products = append(batch.Products, n.Products...)
	}

	res, err := upsert(ctx, o.writePolicy, o.writer.UpsertOrders, batch.Orders)
	if err != nil {
		return fmt.Errorf("pipeline: write %s orders: %w", ds.Name, err)
	}
	sum.Orders.Add(res)

	res, err = upsert(ctx, o.writePolicy, o.writer.UpsertTransactions, batch.Transactions)
	if err != nil {
		return fmt.Errorf("pipeline: write %s transactions: %w", ds.Name, err)
	}
	sum.Transactions.Add(res)

	res, err = upsert(ctx, o.writePolicy, o.writer.UpsertProducts, batch.Products)
	if err != nil {
		return fmt.Errorf("pipeline: write %s products: %w", ds.Name, err)
	}
	sum.Products.Add(res)
	return nil
}

func upsert[T any](ctx context.Context, policy retry.Policy, write func(context.Context, []T) (domain.WriteResult, error), rows []T) (domain.WriteResult, error) {
	if len(rows) == 0 {
		return domain.WriteResult{}, nil
	}
	var res domain.WriteResult
	err := policy.Do(ctx, func(ctx context.Context) error {
		r, err := write(ctx, rows)
		if err != nil {
			return err
		}
		res = r
		return nil
	})
	var exhausted *retry.ExhaustedError
	if errors.As(err, &exhausted) {
		err = exhausted.Err
	}
	return res, err
}

func (o *Orchestrator) transition(sum *Summary, next State, logger *slog.Logger) {
	if sum.State == next {
		return
	}
	logger.Debug("state change", slog.String("from", string(sum.State)), slog.String("to", string(next)))
	sum.State = next
}

// LockKey names the run lock of a source and client.
func LockKey(source domain.SourceCode, client string) string {
	return "import:" + string(source) + ":" + client
}
