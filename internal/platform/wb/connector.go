package wb

import (
	"context"

	"github.com/alanyoungcy/mpimport/internal/domain"
	"github.com/alanyoungcy/mpimport/internal/pipeline"
)

// Options tunes paging per endpoint.
type Options struct {
	SalesPageSize  int
	ReportPageSize int
	CardsPageSize  int
}

// DefaultOptions mirrors the documented Wildberries maximums.
func DefaultOptions() Options {
	return Options{
		SalesPageSize:  80000,
		ReportPageSize: 100000,
		CardsPageSize:  100,
	}
}

// Connector exposes the Wildberries datasets to the import pipeline.
type Connector struct {
	client *Client
	opts   Options
}

// NewConnector creates a Connector. Zero option fields take defaults.
func NewConnector(client *Client, opts Options) *Connector {
	def := DefaultOptions()
	if opts.SalesPageSize <= 0 {
		opts.SalesPageSize = def.SalesPageSize
	}
	if opts.ReportPageSize <= 0 {
		opts.ReportPageSize = def.ReportPageSize
	}
	if opts.CardsPageSize <= 0 {
		opts.CardsPageSize = def.CardsPageSize
	}
	return &Connector{client: client, opts: opts}
}

// Source implements pipeline.Connector.
func (c *Connector) Source() domain.SourceCode { return domain.SourceWB }

// Datasets implements pipeline.Connector.
func (c *Connector) Datasets(products domain.ProductLookup) []pipeline.Dataset {
	norm := NewNormalizer(products)

	return []pipeline.Dataset{
		{
			Name:      "sales",
			Kind:      pipeline.KindOrders,
			EventType: domain.EventWbSale,
			Walker: func(w domain.Window) pipeline.Walker {
				return pipeline.NewCursorWalker(c.client.Sales, w.From.Format(domain.DateLayout), c.opts.SalesPageSize)
			},
			Normalize: norm.Sale,
		},
		{
			Name:      "report_detail",
			Kind:      pipeline.KindTransactions,
			EventType: domain.EventWbFinanceDetail,
			Walker: func(w domain.Window) pipeline.Walker {
				return pipeline.NewCursorWalker(func(ctx context.Context, cursor string) (domain.RawPage, error) {
					return c.client.ReportDetail(ctx, w, cursor, c.opts.ReportPageSize)
				}, "0", c.opts.ReportPageSize)
			},
			Normalize: norm.ReportDetail,
		},
		{
			Name:      "cards",
			Kind:      pipeline.KindProducts,
			EventType: domain.EventWbCard,
			Walker: func(domain.Window) pipeline.Walker {
				return pipeline.NewCursorWalker(func(ctx context.Context, cursor string) (domain.RawPage, error) {
					return c.client.Cards(ctx, cursor, c.opts.CardsPageSize)
				}, "", c.opts.CardsPageSize)
			},
			Normalize: norm.Card,
		},
	}
}
