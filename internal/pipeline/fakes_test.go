package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/mpimport/internal/domain"
)

// memWarehouse is an in-memory stand-in for the Postgres stores with the
// same natural-key upsert semantics.
type memWarehouse struct {
	mu           sync.Mutex
	orders       map[domain.OrderKey]domain.Order
	transactions map[domain.TransactionKey]domain.Transaction
	products     map[string]domain.Product
	raw          []domain.RawEvent
	rawErr       error
	// failWrites fails that many upcoming write calls.
	failWrites int
	writeCalls int
	sources    map[domain.SourceCode]domain.Source
	clients    map[string]domain.Client
}

func newMemWarehouse() *memWarehouse {
	return &memWarehouse{
		orders:       map[domain.OrderKey]domain.Order{},
		transactions: map[domain.TransactionKey]domain.Transaction{},
		products:     map[string]domain.Product{},
		sources: map[domain.SourceCode]domain.Source{
			domain.SourceOzon: {ID: 1, Code: domain.SourceOzon, Name: "Ozon"},
			domain.SourceWB:   {ID: 2, Code: domain.SourceWB, Name: "Wildberries"},
		},
		clients: map[string]domain.Client{"acme": {ID: 7, Name: "acme"}},
	}
}

func (m *memWarehouse) failing() error {
	m.writeCalls++
	if m.failWrites > 0 {
		m.failWrites--
		return errors.New("deadlock detected")
	}
	return nil
}

func (m *memWarehouse) UpsertOrders(_ context.Context, orders []domain.Order) (domain.WriteResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failing(); err != nil {
		return domain.WriteResult{}, err
	}
	var res domain.WriteResult
	for _, o := range orders {
		if prev, ok := m.orders[o.Key()]; ok {
			o.CreatedAt = prev.CreatedAt
			res.Updated++
		} else {
			res.Inserted++
		}
		m.orders[o.Key()] = o
	}
	return res, nil
}

func (m *memWarehouse) UpsertTransactions(_ context.Context, txs []domain.Transaction) (domain.WriteResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failing(); err != nil {
		return domain.WriteResult{}, err
	}
	var res domain.WriteResult
	for _, t := range txs {
		if prev, ok := m.transactions[t.Key()]; ok {
			t.CreatedAt = prev.CreatedAt
			res.Updated++
		} else {
			res.Inserted++
		}
		m.transactions[t.Key()] = t
	}
	return res, nil
}

func (m *memWarehouse) UpsertProducts(_ context.Context, products []domain.Product) (domain.WriteResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failing(); err != nil {
		return domain.WriteResult{}, err
	}
	var res domain.WriteResult
	for _, p := range products {
		key := fmt.Sprintf("%d/%s", p.SourceID, p.ExternalSKU)
		if _, ok := m.products[key]; ok {
			res.Updated++
		} else {
			res.Inserted++
		}
		m.products[key] = p
	}
	return res, nil
}

func (m *memWarehouse) Append(_ context.Context, ev domain.RawEvent) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rawErr != nil {
		return 0, m.rawErr
	}
	m.raw = append(m.raw, ev)
	return int64(len(m.raw)), nil
}

func (m *memWarehouse) SourceByCode(_ context.Context, code domain.SourceCode) (domain.Source, error) {
	s, ok := m.sources[code]
	if !ok {
		return domain.Source{}, domain.ErrNotFound
	}
	return s, nil
}

func (m *memWarehouse) ClientByName(_ context.Context, name string) (domain.Client, error) {
	c, ok := m.clients[name]
	if !ok {
		return domain.Client{}, domain.ErrNotFound
	}
	return c, nil
}

func (m *memWarehouse) ProductIndex(context.Context, int64, int64) (domain.ProductLookup, error) {
	return domain.ProductIndex{"SKU-1": {ID: 100}}, nil
}

func (m *memWarehouse) orderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

// stubConnector serves fixed datasets.
type stubConnector struct {
	source   domain.SourceCode
	datasets []Dataset
}

func (c stubConnector) Source() domain.SourceCode               { return c.source }
func (c stubConnector) Datasets(domain.ProductLookup) []Dataset { return c.datasets }

// pagedSales serves the given record pages through a cursor walker with
// the given page size.
func pagedSales(pageSize int, pages ...[]json.RawMessage) func(domain.Window) Walker {
	return func(domain.Window) Walker {
		return NewCursorWalker(func(_ context.Context, cursor string) (domain.RawPage, error) {
			i := 0
			if cursor != "" {
				fmt.Sscanf(cursor, "%d", &i)
			}
			if i >= len(pages) {
				return domain.RawPage{}, nil
			}
			body, err := json.Marshal(pages[i])
			if err != nil {
				return domain.RawPage{}, err
			}
			return domain.RawPage{Body: body, Records: pages[i], Cursor: fmt.Sprint(i + 1)}, nil
		}, "", pageSize)
	}
}

func saleRecords(from, n int) []json.RawMessage {
	out := make([]json.RawMessage, n)
	for i := range out {
		out[i] = json.RawMessage(fmt.Sprintf(`{"id":"ord-%d","sku":"SKU-%d","price":"1 0%d,50"}`, from+i, (from+i)%3, (from+i)%10))
	}
	return out
}

var saleDate = time.Date(2024, 1, 3, 12, 0, 0, 0, time.UTC)

func normalizeSale(ctx context.Context, rec json.RawMessage, attr domain.Attribution) (domain.Normalized, error) {
	var r struct {
		ID    string `json:"id"`
		SKU   string `json:"sku"`
		Price string `json:"price"`
	}
	if err := json.Unmarshal(rec, &r); err != nil {
		return domain.Normalized{}, fmt.Errorf("%w: %v", domain.ErrNormalization, err)
	}
	price, err := domain.ParseDecimal(r.Price)
	if err != nil {
		return domain.Normalized{}, err
	}
	o := domain.Order{
		OrderID:         r.ID,
		SKU:             r.SKU,
		ClientID:        attr.ClientID,
		SourceID:        attr.SourceID,
		TransactionType: domain.OrderTypeSale,
		Qty:             decimal.NewFromInt(1),
		Price:           price,
		OrderDate:       saleDate,
		CreatedAt:       time.Now(),
	}
	return domain.Normalized{Orders: []domain.Order{o}}, nil
}

type fakeLocks struct {
	held     map[string]bool
	acquired []string
}

func (l *fakeLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	if l.held[key] {
		return nil, domain.ErrLockHeld
	}
	if l.held == nil {
		l.held = map[string]bool{}
	}
	l.held[key] = true
	l.acquired = append(l.acquired, key)
	return func() { delete(l.held, key) }, nil
}
