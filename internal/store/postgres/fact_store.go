package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/mpimport/internal/domain"
)

// FactStore implements domain.FactWriter. Every call is one transaction:
// a page is written completely or not at all.
type FactStore struct {
	pool *pgxpool.Pool
}

// NewFactStore creates a new FactStore backed by the given connection pool.
func NewFactStore(pool *pgxpool.Pool) *FactStore {
	return &FactStore{pool: pool}
}

// xmax is zero only on a row version created by this statement, which
// tells a fresh insert apart from a conflict update.
const upsertOrderSQL = `
	INSERT INTO fact_orders (
		order_id, sku, product_id, client_id, source_id, transaction_type,
		qty, price, cost_price, order_date, created_at
	) VALUES (
		$1, $2, $3, $4, $5, $6,
		$7::numeric, $8::numeric, $9::numeric, $10, $11
	)
	ON CONFLICT (source_id, order_id, sku, transaction_type) DO UPDATE SET
		product_id = EXCLUDED.product_id,
		client_id  = EXCLUDED.client_id,
		qty        = EXCLUDED.qty,
		price      = EXCLUDED.price,
		cost_price = EXCLUDED.cost_price,
		order_date = EXCLUDED.order_date
	RETURNING (xmax = 0)`

const upsertTransactionSQL = `
	INSERT INTO fact_transactions (
		transaction_id, client_id, source_id, transaction_type,
		amount, related_order_id, transaction_date, created_at
	) VALUES (
		$1, $2, $3, $4,
		$5::numeric, $6, $7, $8
	)
	ON CONFLICT (source_id, transaction_id) DO UPDATE SET
		client_id        = EXCLUDED.client_id,
		transaction_type = EXCLUDED.transaction_type,
		amount           = EXCLUDED.amount,
		related_order_id = EXCLUDED.related_order_id,
		transaction_date = EXCLUDED.transaction_date
	RETURNING (xmax = 0)`

// cost_price is owned by the seller's own bookkeeping and is left alone.
const upsertProductSQL = `
	INSERT INTO dim_products (source_id, client_id, external_sku, offer_id, name)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (source_id, external_sku) DO UPDATE SET
		client_id = EXCLUDED.client_id,
		offer_id  = COALESCE(EXCLUDED.offer_id, dim_products.offer_id),
		name      = COALESCE(EXCLUDED.name, dim_products.name)
	RETURNING (xmax = 0)`

// UpsertOrders inserts or refreshes orders keyed on
// (source_id, order_id, sku, transaction_type). created_at keeps the value
// of the first import.
func (s *FactStore) UpsertOrders(ctx context.Context, orders []domain.Order) (domain.WriteResult, error) {
	batch := &pgx.Batch{}
	for _, o := range orders {
		batch.Queue(upsertOrderSQL,
			o.OrderID, o.SKU, o.ProductID, o.ClientID, o.SourceID, string(o.TransactionType),
			o.Qty.String(), o.Price.String(), o.CostPrice.String(), o.OrderDate, o.CreatedAt,
		)
	}
	return s.sendInTx(ctx, "order", batch)
}

// UpsertTransactions inserts or refreshes transactions keyed on
// (source_id, transaction_id).
func (s *FactStore) UpsertTransactions(ctx context.Context, txs []domain.Transaction) (domain.WriteResult, error) {
	batch := &pgx.Batch{}
	for _, t := range txs {
		batch.Queue(upsertTransactionSQL,
			t.TransactionID, t.ClientID, t.SourceID, string(t.TransactionType),
			t.Amount.String(), t.RelatedOrderID, t.TransactionDate, t.CreatedAt,
		)
	}
	return s.sendInTx(ctx, "transaction", batch)
}

// UpsertProducts inserts or refreshes dim_products keyed on
// (source_id, external_sku).
func (s *FactStore) UpsertProducts(ctx context.Context, products []domain.Product) (domain.WriteResult, error) {
	batch := &pgx.Batch{}
	for _, p := range products {
		batch.Queue(upsertProductSQL,
			p.SourceID, p.ClientID, p.ExternalSKU, nullIfEmpty(p.OfferID), nullIfEmpty(p.Name),
		)
	}
	return s.sendInTx(ctx, "product", batch)
}

func (s *FactStore) sendInTx(ctx context.Context, what string, batch *pgx.Batch) (domain.WriteResult, error) {
	var res domain.WriteResult
	if batch.Len() == 0 {
		return res, nil
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return res, fmt.Errorf("postgres: begin %s batch: %w", what, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	br := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		var inserted bool
		if err := br.QueryRow().Scan(&inserted); err != nil {
			_ = br.Close()
			return domain.WriteResult{}, fmt.Errorf("postgres: upsert %s batch item %d: %w", what, i, err)
		}
		if inserted {
			res.Inserted++
		} else {
			res.Updated++
		}
	}
	if err := br.Close(); err != nil {
		return domain.WriteResult{}, fmt.Errorf("postgres: close %s batch: %w", what, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.WriteResult{}, fmt.Errorf("postgres: commit %s batch: %w", what, err)
	}
	return res, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Compile-time interface check.
var _ domain.FactWriter = (*FactStore)(nil)
