package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// Product is a row of the dim_products reference table.
type Product struct {
	ID          int64
	SourceID    int64
	ClientID    int64
	ExternalSKU string
	OfferID     string
	Name        string
	// CostPrice is maintained by the seller outside the import; product
	// syncs never overwrite it.
	CostPrice decimal.NullDecimal
}

// ProductRef is what normalizers need from a product lookup.
type ProductRef struct {
	ID        int64
	CostPrice decimal.Decimal
}

// ProductIndex is an in-memory ProductLookup keyed by SKU and offer id.
type ProductIndex map[string]ProductRef

// LookupProduct implements ProductLookup.
func (idx ProductIndex) LookupProduct(_ context.Context, sku string) (ProductRef, bool, error) {
	ref, ok := idx[sku]
	return ref, ok, nil
}

// Add indexes p under its external SKU and offer id.
func (idx ProductIndex) Add(p Product) {
	ref := ProductRef{ID: p.ID}
	if p.CostPrice.Valid {
		ref.CostPrice = p.CostPrice.Decimal
	}
	if p.ExternalSKU != "" {
		idx[p.ExternalSKU] = ref
	}
	if p.OfferID != "" {
		if _, taken := idx[p.OfferID]; !taken {
			idx[p.OfferID] = ref
		}
	}
}
