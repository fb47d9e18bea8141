package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderType distinguishes sales from returns in fact_orders.
type OrderType string

const (
	OrderTypeSale   OrderType = "sale"
	OrderTypeReturn OrderType = "return"
)

// Order is one canonical line of fact_orders. The natural key is
// (SourceID, OrderID, SKU, TransactionType).
type Order struct {
	OrderID         string
	SKU             string
	ProductID       *int64 // nil when the SKU is not in dim_products
	ClientID        int64
	SourceID        int64
	TransactionType OrderType
	Qty             decimal.Decimal
	Price           decimal.Decimal
	CostPrice       decimal.Decimal
	OrderDate       time.Time
	CreatedAt       time.Time
}

// Key returns the natural uniqueness key used for upserts.
func (o Order) Key() OrderKey {
	return OrderKey{SourceID: o.SourceID, OrderID: o.OrderID, SKU: o.SKU, Type: o.TransactionType}
}

// OrderKey is the natural key of fact_orders.
type OrderKey struct {
	SourceID int64
	OrderID  string
	SKU      string
	Type     OrderType
}
