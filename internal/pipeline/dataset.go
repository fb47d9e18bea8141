package pipeline

import (
	"context"
	"encoding/json"

	"github.com/alanyoungcy/mpimport/internal/domain"
)

// Kind names the fact table a dataset feeds.
type Kind int

const (
	KindOrders Kind = iota + 1
	KindTransactions
	KindProducts
)

func (k Kind) String() string {
	switch k {
	case KindOrders:
		return "orders"
	case KindTransactions:
		return "transactions"
	case KindProducts:
		return "products"
	default:
		return "unknown"
	}
}

// NormalizeFunc converts one raw record into canonical rows. An error
// skips the record; it never aborts the page.
type NormalizeFunc func(ctx context.Context, rec json.RawMessage, attr domain.Attribution) (domain.Normalized, error)

// Dataset is one importable endpoint of a marketplace.
type Dataset struct {
	Name      string
	Kind      Kind
	EventType string
	Walker    func(w domain.Window) Walker
	Normalize NormalizeFunc
}

// Connector exposes the datasets of one marketplace. products resolves
// SKUs for the run's client and is never nil.
type Connector interface {
	Source() domain.SourceCode
	Datasets(products domain.ProductLookup) []Dataset
}

// Scope selects which kinds a run imports.
type Scope int

const (
	// ScopeFacts imports orders and transactions, the default.
	ScopeFacts Scope = iota
	ScopeOrders
	ScopeTransactions
	ScopeProducts
)

// Includes reports whether datasets of kind k run under s.
func (s Scope) Includes(k Kind) bool {
	switch s {
	case ScopeOrders:
		return k == KindOrders
	case ScopeTransactions:
		return k == KindTransactions
	case ScopeProducts:
		return k == KindProducts
	default:
		return k == KindOrders || k == KindTransactions
	}
}

func (s Scope) String() string {
	switch s {
	case ScopeOrders:
		return "orders"
	case ScopeTransactions:
		return "transactions"
	case ScopeProducts:
		return "products"
	default:
		return "orders+transactions"
	}
}
