package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/mpimport/internal/domain"
)

// ReferenceStore reads sources, clients and dim_products. It implements
// domain.ReferenceStore and domain.ProductCatalog.
type ReferenceStore struct {
	pool *pgxpool.Pool
}

// NewReferenceStore creates a new ReferenceStore backed by the given pool.
func NewReferenceStore(pool *pgxpool.Pool) *ReferenceStore {
	return &ReferenceStore{pool: pool}
}

// SourceByCode returns the sources row for code, or domain.ErrNotFound.
func (s *ReferenceStore) SourceByCode(ctx context.Context, code domain.SourceCode) (domain.Source, error) {
	const query = `SELECT id, code, name FROM sources WHERE code = $1`
	var src domain.Source
	var c string
	err := s.pool.QueryRow(ctx, query, string(code)).Scan(&src.ID, &c, &src.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Source{}, fmt.Errorf("postgres: source %s: %w", code, domain.ErrNotFound)
		}
		return domain.Source{}, fmt.Errorf("postgres: get source %s: %w", code, err)
	}
	src.Code = domain.SourceCode(c)
	return src, nil
}

// ClientByName returns the clients row called name, or domain.ErrNotFound.
func (s *ReferenceStore) ClientByName(ctx context.Context, name string) (domain.Client, error) {
	const query = `SELECT id, name FROM clients WHERE name = $1`
	var c domain.Client
	err := s.pool.QueryRow(ctx, query, name).Scan(&c.ID, &c.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Client{}, fmt.Errorf("postgres: client %q: %w", name, domain.ErrNotFound)
		}
		return domain.Client{}, fmt.Errorf("postgres: get client %q: %w", name, err)
	}
	return c, nil
}

// ProductIndex loads the products of a source visible to a client into
// memory. Rows without a client are shared by all clients.
func (s *ReferenceStore) ProductIndex(ctx context.Context, sourceID, clientID int64) (domain.ProductLookup, error) {
	const query = `
		SELECT id, external_sku, COALESCE(offer_id, ''), COALESCE(name, ''), cost_price::text
		FROM dim_products
		WHERE source_id = $1 AND (client_id = $2 OR client_id IS NULL)
		ORDER BY id`
	rows, err := s.pool.Query(ctx, query, sourceID, clientID)
	if err != nil {
		return nil, fmt.Errorf("postgres: load products: %w", err)
	}
	defer rows.Close()

	idx := domain.ProductIndex{}
	for rows.Next() {
		p := domain.Product{SourceID: sourceID, ClientID: clientID}
		var cost *string
		if err := rows.Scan(&p.ID, &p.ExternalSKU, &p.OfferID, &p.Name, &cost); err != nil {
			return nil, fmt.Errorf("postgres: scan product: %w", err)
		}
		if cost != nil {
			d, err := decimal.NewFromString(*cost)
			if err != nil {
				return nil, fmt.Errorf("postgres: product %d cost_price %q: %w", p.ID, *cost, err)
			}
			p.CostPrice = decimal.NewNullDecimal(d)
		}
		idx.Add(p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: load products rows: %w", err)
	}
	return idx, nil
}

// Compile-time interface checks.
var (
	_ domain.ReferenceStore = (*ReferenceStore)(nil)
	_ domain.ProductCatalog = (*ReferenceStore)(nil)
)
