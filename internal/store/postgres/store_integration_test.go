//go:build integration

package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/alanyoungcy/mpimport/internal/domain"
)

// fixtureSchema mirrors the warehouse tables the importer reads and writes.
const fixtureSchema = `
CREATE TABLE sources (
	id   BIGSERIAL PRIMARY KEY,
	code TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL
);
CREATE TABLE clients (
	id   BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL UNIQUE
);
CREATE TABLE dim_products (
	id           BIGSERIAL PRIMARY KEY,
	source_id    BIGINT NOT NULL REFERENCES sources(id),
	client_id    BIGINT REFERENCES clients(id),
	external_sku TEXT NOT NULL,
	offer_id     TEXT,
	name         TEXT,
	cost_price   NUMERIC(18,2),
	UNIQUE (source_id, external_sku)
);
CREATE TABLE fact_orders (
	id               BIGSERIAL PRIMARY KEY,
	order_id         TEXT NOT NULL,
	sku              TEXT NOT NULL,
	product_id       BIGINT REFERENCES dim_products(id),
	client_id        BIGINT NOT NULL REFERENCES clients(id),
	source_id        BIGINT NOT NULL REFERENCES sources(id),
	transaction_type TEXT NOT NULL,
	qty              NUMERIC(18,3) NOT NULL,
	price            NUMERIC(18,2) NOT NULL,
	cost_price       NUMERIC(18,2) NOT NULL,
	order_date       TIMESTAMPTZ NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL,
	UNIQUE (source_id, order_id, sku, transaction_type)
);
CREATE TABLE fact_transactions (
	id               BIGSERIAL PRIMARY KEY,
	transaction_id   TEXT NOT NULL,
	client_id        BIGINT NOT NULL REFERENCES clients(id),
	source_id        BIGINT NOT NULL REFERENCES sources(id),
	transaction_type TEXT NOT NULL,
	amount           NUMERIC(18,2) NOT NULL,
	related_order_id TEXT,
	transaction_date TIMESTAMPTZ NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL,
	UNIQUE (source_id, transaction_id)
);
CREATE TABLE raw_events (
	id         BIGSERIAL PRIMARY KEY,
	event_type TEXT NOT NULL,
	payload    JSONB NOT NULL,
	source_id  BIGINT NOT NULL REFERENCES sources(id),
	client_id  BIGINT NOT NULL REFERENCES clients(id),
	created_at TIMESTAMPTZ NOT NULL
);
INSERT INTO sources (code, name) VALUES ('ozon', 'Ozon'), ('wb', 'Wildberries');
INSERT INTO clients (name) VALUES ('acme');
INSERT INTO dim_products (source_id, client_id, external_sku, offer_id, name, cost_price)
VALUES (1, NULL, '1001', 'ART-1', 'Mug', 120.50);
`

func newTestClient(t *testing.T) *Client {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("warehouse"),
		tcpostgres.WithUsername("etl"),
		tcpostgres.WithPassword("etl"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	client, err := New(ctx, ClientConfig{DSN: dsn})
	require.NoError(t, err)
	t.Cleanup(client.Close)

	_, err = client.Pool().Exec(ctx, fixtureSchema)
	require.NoError(t, err)
	return client
}

func TestStores_Integration(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	refs := NewReferenceStore(client.Pool())
	facts := NewFactStore(client.Pool())
	raw := NewRawEventStore(client.Pool())

	src, err := refs.SourceByCode(ctx, domain.SourceOzon)
	require.NoError(t, err)
	assert.Equal(t, "Ozon", src.Name)

	_, err = refs.SourceByCode(ctx, "amazon")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	acme, err := refs.ClientByName(ctx, "acme")
	require.NoError(t, err)
	_, err = refs.ClientByName(ctx, "nobody")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	t.Run("product index", func(t *testing.T) {
		idx, err := refs.ProductIndex(ctx, src.ID, acme.ID)
		require.NoError(t, err)
		ref, ok, err := idx.LookupProduct(ctx, "1001")
		require.NoError(t, err)
		require.True(t, ok)
		assert.True(t, ref.CostPrice.Equal(decimal.RequireFromString("120.5")))

		byOffer, ok, err := idx.LookupProduct(ctx, "ART-1")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, ref.ID, byOffer.ID)
	})

	t.Run("orders are idempotent", func(t *testing.T) {
		first := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)
		orders := []domain.Order{
			{
				OrderID: "P-1", SKU: "1001", ClientID: acme.ID, SourceID: src.ID,
				TransactionType: domain.OrderTypeSale, Qty: decimal.NewFromInt(2),
				Price: decimal.RequireFromString("499.90"), CostPrice: decimal.RequireFromString("120.5"),
				OrderDate: first, CreatedAt: first,
			},
			{
				OrderID: "P-1", SKU: "1001", ClientID: acme.ID, SourceID: src.ID,
				TransactionType: domain.OrderTypeReturn, Qty: decimal.NewFromInt(1),
				Price: decimal.RequireFromString("499.90"), CostPrice: decimal.Zero,
				OrderDate: first, CreatedAt: first,
			},
		}
		res, err := facts.UpsertOrders(ctx, orders)
		require.NoError(t, err)
		assert.Equal(t, domain.WriteResult{Inserted: 2}, res)

		orders[0].Qty = decimal.NewFromInt(3)
		orders[0].CreatedAt = first.Add(24 * time.Hour)
		res, err = facts.UpsertOrders(ctx, orders)
		require.NoError(t, err)
		assert.Equal(t, domain.WriteResult{Updated: 2}, res)

		var count int
		var qty string
		var created time.Time
		require.NoError(t, client.Pool().QueryRow(ctx, `SELECT count(*) FROM fact_orders`).Scan(&count))
		require.NoError(t, client.Pool().QueryRow(ctx,
			`SELECT qty::text, created_at FROM fact_orders WHERE transaction_type = 'sale'`).Scan(&qty, &created))
		assert.Equal(t, 2, count)
		assert.True(t, decimal.RequireFromString(qty).Equal(decimal.NewFromInt(3)))
		assert.True(t, created.Equal(first), "created_at keeps the first import")
	})

	t.Run("failed batch writes nothing", func(t *testing.T) {
		ts := time.Date(2025, 1, 11, 0, 0, 0, 0, time.UTC)
		txs := []domain.Transaction{
			{TransactionID: "op-1", ClientID: acme.ID, SourceID: src.ID, TransactionType: domain.TxCommission,
				Amount: decimal.RequireFromString("-12.30"), TransactionDate: ts, CreatedAt: ts},
			{TransactionID: "op-2", ClientID: 999, SourceID: src.ID, TransactionType: domain.TxCommission,
				Amount: decimal.RequireFromString("-1"), TransactionDate: ts, CreatedAt: ts},
		}
		_, err := facts.UpsertTransactions(ctx, txs)
		require.Error(t, err)

		var count int
		require.NoError(t, client.Pool().QueryRow(ctx, `SELECT count(*) FROM fact_transactions`).Scan(&count))
		assert.Zero(t, count)

		res, err := facts.UpsertTransactions(ctx, txs[:1])
		require.NoError(t, err)
		assert.Equal(t, 1, res.Inserted)
	})

	t.Run("products keep cost price", func(t *testing.T) {
		clientID := acme.ID
		res, err := facts.UpsertProducts(ctx, []domain.Product{
			{SourceID: src.ID, ClientID: clientID, ExternalSKU: "1001", OfferID: "ART-1", Name: "Mug, large"},
			{SourceID: src.ID, ClientID: clientID, ExternalSKU: "1002", OfferID: "ART-2"},
		})
		require.NoError(t, err)
		assert.Equal(t, domain.WriteResult{Inserted: 1, Updated: 1}, res)

		var name, cost string
		require.NoError(t, client.Pool().QueryRow(ctx,
			`SELECT name, cost_price::text FROM dim_products WHERE external_sku = '1001'`).Scan(&name, &cost))
		assert.Equal(t, "Mug, large", name)
		assert.Equal(t, "120.50", cost)
	})

	t.Run("raw events", func(t *testing.T) {
		payload := json.RawMessage(`{"result":{"postings":[]}}`)
		id, err := raw.Append(ctx, domain.RawEvent{
			EventType: domain.EventOzonPosting, Payload: payload,
			SourceID: src.ID, ClientID: acme.ID, CreatedAt: time.Now().UTC(),
		})
		require.NoError(t, err)
		assert.Positive(t, id)

		events, err := raw.List(ctx, src.ID, domain.EventOzonPosting, 10)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.JSONEq(t, string(payload), string(events[0].Payload))
	})
}
