package ozon

import (
	"context"

	"github.com/alanyoungcy/mpimport/internal/domain"
	"github.com/alanyoungcy/mpimport/internal/pipeline"
)

// Options tunes paging per endpoint.
type Options struct {
	PageSize        int
	ReturnsPageSize int
	// OffsetCeiling caps offset-paginated walks; the Seller API rejects
	// offsets beyond it.
	OffsetCeiling int
	IncludeFBO    bool
}

// DefaultOptions mirrors the Seller API maximums.
func DefaultOptions() Options {
	return Options{
		PageSize:        1000,
		ReturnsPageSize: 500,
		OffsetCeiling:   80000,
		IncludeFBO:      true,
	}
}

// Connector exposes the Ozon datasets to the import pipeline.
type Connector struct {
	client *Client
	opts   Options
}

// NewConnector creates a Connector. Zero option fields take defaults.
func NewConnector(client *Client, opts Options) *Connector {
	def := DefaultOptions()
	if opts.PageSize <= 0 {
		opts.PageSize = def.PageSize
	}
	if opts.ReturnsPageSize <= 0 {
		opts.ReturnsPageSize = def.ReturnsPageSize
	}
	if opts.OffsetCeiling == 0 {
		opts.OffsetCeiling = def.OffsetCeiling
	}
	return &Connector{client: client, opts: opts}
}

// Source implements pipeline.Connector.
func (c *Connector) Source() domain.SourceCode { return domain.SourceOzon }

// Datasets implements pipeline.Connector.
func (c *Connector) Datasets(products domain.ProductLookup) []pipeline.Dataset {
	norm := NewNormalizer(products)
	size, ceiling := c.opts.PageSize, c.opts.OffsetCeiling

	sets := []pipeline.Dataset{{
		Name:      "fbs_postings",
		Kind:      pipeline.KindOrders,
		EventType: domain.EventOzonPosting,
		Walker: func(w domain.Window) pipeline.Walker {
			return pipeline.NewOffsetWalker(func(ctx context.Context, offset, limit int) (domain.RawPage, error) {
				return c.client.FBSPostings(ctx, w, offset, limit)
			}, size, ceiling)
		},
		Normalize: norm.Posting,
	}}

	if c.opts.IncludeFBO {
		sets = append(sets, pipeline.Dataset{
			Name:      "fbo_postings",
			Kind:      pipeline.KindOrders,
			EventType: domain.EventOzonPosting,
			Walker: func(w domain.Window) pipeline.Walker {
				return pipeline.NewOffsetWalker(func(ctx context.Context, offset, limit int) (domain.RawPage, error) {
					return c.client.FBOPostings(ctx, w, offset, limit)
				}, size, ceiling)
			},
			Normalize: norm.Posting,
		})
	}

	return append(sets,
		pipeline.Dataset{
			Name:      "returns",
			Kind:      pipeline.KindOrders,
			EventType: domain.EventOzonReturn,
			Walker: func(w domain.Window) pipeline.Walker {
				return pipeline.NewCursorWalker(func(ctx context.Context, cursor string) (domain.RawPage, error) {
					return c.client.Returns(ctx, w, cursor, c.opts.ReturnsPageSize)
				}, "", c.opts.ReturnsPageSize)
			},
			Normalize: norm.Return,
		},
		pipeline.Dataset{
			Name:      "finance",
			Kind:      pipeline.KindTransactions,
			EventType: domain.EventOzonFinance,
			Walker: func(w domain.Window) pipeline.Walker {
				return pipeline.NewOffsetWalker(func(ctx context.Context, offset, limit int) (domain.RawPage, error) {
					return c.client.FinanceOperations(ctx, w, offset, limit)
				}, size, ceiling)
			},
			Normalize: norm.FinanceOperation,
		},
		pipeline.Dataset{
			Name:      "products",
			Kind:      pipeline.KindProducts,
			EventType: domain.EventOzonProduct,
			Walker: func(domain.Window) pipeline.Walker {
				return pipeline.NewCursorWalker(func(ctx context.Context, cursor string) (domain.RawPage, error) {
					return c.client.Products(ctx, cursor, size)
				}, "", size)
			},
			Normalize: norm.Product,
		},
	)
}
