package domain

import (
	"context"
	"time"
)

// WriteResult counts the effect of an idempotent upsert batch.
type WriteResult struct {
	Inserted int
	Updated  int
}

// Total returns inserted plus updated rows.
func (r WriteResult) Total() int { return r.Inserted + r.Updated }

// Add accumulates another result.
func (r *WriteResult) Add(o WriteResult) {
	r.Inserted += o.Inserted
	r.Updated += o.Updated
}

// FactWriter upserts canonical records keyed on their natural key. Each
// call is atomic: either every row of the batch is applied or none is.
type FactWriter interface {
	UpsertOrders(ctx context.Context, orders []Order) (WriteResult, error)
	UpsertTransactions(ctx context.Context, txs []Transaction) (WriteResult, error)
	UpsertProducts(ctx context.Context, products []Product) (WriteResult, error)
}

// RawEventStore appends verbatim API pages to raw_events.
type RawEventStore interface {
	Append(ctx context.Context, ev RawEvent) (int64, error)
}

// ReferenceStore reads the provisioning-owned reference tables.
type ReferenceStore interface {
	SourceByCode(ctx context.Context, code SourceCode) (Source, error)
	ClientByName(ctx context.Context, name string) (Client, error)
}

// ProductLookup resolves a marketplace SKU (or seller offer id) against
// dim_products. ok is false on a miss, which is not an error.
type ProductLookup interface {
	LookupProduct(ctx context.Context, sku string) (ref ProductRef, ok bool, err error)
}

// ProductCatalog loads the product lookup for one source/client pair.
type ProductCatalog interface {
	ProductIndex(ctx context.Context, sourceID, clientID int64) (ProductLookup, error)
}

// LockManager hands out exclusive, expiring locks.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}
