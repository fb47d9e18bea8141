package ozon

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/mpimport/internal/domain"
)

const statusCancelled = "cancelled"

// Normalizer converts Seller API records into canonical rows.
type Normalizer struct {
	products domain.ProductLookup
	now      func() time.Time
}

// NewNormalizer creates a Normalizer resolving SKUs through products.
func NewNormalizer(products domain.ProductLookup) *Normalizer {
	if products == nil {
		products = domain.ProductIndex{}
	}
	return &Normalizer{products: products, now: time.Now}
}

// Posting expands a posting into one sale per product line. A cancelled
// posting keeps its lines with zero quantity so a sale imported before the
// cancellation is overwritten on re-import.
func (n *Normalizer) Posting(ctx context.Context, rec json.RawMessage, attr domain.Attribution) (domain.Normalized, error) {
	var p OzonPosting
	if err := json.Unmarshal(rec, &p); err != nil {
		return domain.Normalized{}, fmt.Errorf("%w: posting: %v", domain.ErrNormalization, err)
	}
	if p.PostingNumber == "" {
		return domain.Normalized{}, fmt.Errorf("%w: posting without posting_number", domain.ErrNormalization)
	}
	cancelled := p.Status == statusCancelled
	if cancelled && len(p.Products) == 0 {
		return domain.Normalized{}, nil
	}

	stamp := p.InProcessAt
	if stamp == "" {
		stamp = p.CreatedAt
	}
	orderDate, err := domain.ParseMarketTime(stamp)
	if err != nil {
		return domain.Normalized{}, fmt.Errorf("posting %s: %w", p.PostingNumber, err)
	}
	if len(p.Products) == 0 {
		return domain.Normalized{}, fmt.Errorf("%w: posting %s has no products", domain.ErrNormalization, p.PostingNumber)
	}

	out := domain.Normalized{Orders: make([]domain.Order, 0, len(p.Products))}
	for i, line := range p.Products {
		price, err := line.Price.Require("price")
		if err != nil {
			return domain.Normalized{}, fmt.Errorf("posting %s line %d: %w", p.PostingNumber, i, err)
		}
		o, err := n.order(ctx, attr, p.PostingNumber, line.SKU, line.OfferID, line.Quantity, price, orderDate, domain.OrderTypeSale)
		if err != nil {
			return domain.Normalized{}, fmt.Errorf("posting %s line %d: %w", p.PostingNumber, i, err)
		}
		if cancelled {
			o.Qty = decimal.Zero
		}
		out.Orders = append(out.Orders, o)
	}
	return out, nil
}

// Return converts a returned item into a return order.
func (n *Normalizer) Return(ctx context.Context, rec json.RawMessage, attr domain.Attribution) (domain.Normalized, error) {
	var r OzonReturn
	if err := json.Unmarshal(rec, &r); err != nil {
		return domain.Normalized{}, fmt.Errorf("%w: return: %v", domain.ErrNormalization, err)
	}
	orderID := r.PostingNumber
	if orderID == "" {
		orderID = r.OrderNumber
	}
	if orderID == "" {
		return domain.Normalized{}, fmt.Errorf("%w: return %d without posting_number", domain.ErrNormalization, r.ID)
	}
	returnDate, err := domain.ParseMarketTime(r.Logistic.ReturnDate)
	if err != nil {
		return domain.Normalized{}, fmt.Errorf("return %d: %w", r.ID, err)
	}
	price, err := r.Product.Price.Price.Require("price")
	if err != nil {
		return domain.Normalized{}, fmt.Errorf("return %d: %w", r.ID, err)
	}
	o, err := n.order(ctx, attr, orderID, r.Product.SKU, r.Product.OfferID, r.Product.Quantity, price, returnDate, domain.OrderTypeReturn)
	if err != nil {
		return domain.Normalized{}, fmt.Errorf("return %d: %w", r.ID, err)
	}
	return domain.Normalized{Orders: []domain.Order{o}}, nil
}

func (n *Normalizer) order(ctx context.Context, attr domain.Attribution, orderID string, sku int64, offerID string, qty int64, price decimal.Decimal, at time.Time, typ domain.OrderType) (domain.Order, error) {
	if sku == 0 {
		return domain.Order{}, fmt.Errorf("%w: missing sku", domain.ErrNormalization)
	}
	if qty <= 0 {
		return domain.Order{}, fmt.Errorf("%w: quantity %d", domain.ErrNormalization, qty)
	}
	skuStr := strconv.FormatInt(sku, 10)

	o := domain.Order{
		OrderID:         orderID,
		SKU:             skuStr,
		ClientID:        attr.ClientID,
		SourceID:        attr.SourceID,
		TransactionType: typ,
		Qty:             decimal.NewFromInt(qty),
		Price:           price,
		CostPrice:       decimal.Zero,
		OrderDate:       at,
		CreatedAt:       n.now().UTC(),
	}

	ref, ok, err := n.lookup(ctx, skuStr, offerID)
	if err != nil {
		return domain.Order{}, err
	}
	if ok {
		id := ref.ID
		o.ProductID = &id
		o.CostPrice = ref.CostPrice
	}
	return o, nil
}

// lookup resolves a line by the seller's offer id. Synced products are keyed
// by Ozon product_id, a different number space from the posting sku, so the
// sku is only consulted for lines that carry no offer id.
func (n *Normalizer) lookup(ctx context.Context, sku, offerID string) (domain.ProductRef, bool, error) {
	if offerID != "" {
		return n.products.LookupProduct(ctx, offerID)
	}
	return n.products.LookupProduct(ctx, sku)
}

// FinanceOperation decomposes an accrual into typed transactions whose
// amounts add up to the operation total.
func (n *Normalizer) FinanceOperation(_ context.Context, rec json.RawMessage, attr domain.Attribution) (domain.Normalized, error) {
	var op OzonFinanceOperation
	if err := json.Unmarshal(rec, &op); err != nil {
		return domain.Normalized{}, fmt.Errorf("%w: finance operation: %v", domain.ErrNormalization, err)
	}
	if op.OperationID == 0 {
		return domain.Normalized{}, fmt.Errorf("%w: operation without operation_id", domain.ErrNormalization)
	}
	total, err := op.Amount.Require("amount")
	if err != nil {
		return domain.Normalized{}, fmt.Errorf("operation %d: %w", op.OperationID, err)
	}
	at, err := domain.ParseMarketTime(op.OperationDate)
	if err != nil {
		return domain.Normalized{}, fmt.Errorf("operation %d: %w", op.OperationID, err)
	}

	var related *string
	if pn := op.Posting.PostingNumber; pn != "" {
		related = &pn
	}
	id := strconv.FormatInt(op.OperationID, 10)
	created := n.now().UTC()

	var out domain.Normalized
	rest := total
	add := func(suffix string, typ domain.TransactionType, amount decimal.Decimal) {
		if amount.IsZero() {
			return
		}
		txID := id
		if suffix != "" {
			txID = id + ":" + suffix
		}
		out.Transactions = append(out.Transactions, domain.Transaction{
			TransactionID:   txID,
			ClientID:        attr.ClientID,
			SourceID:        attr.SourceID,
			TransactionType: typ,
			Amount:          amount,
			RelatedOrderID:  related,
			TransactionDate: at,
			CreatedAt:       created,
		})
		rest = rest.Sub(amount)
	}

	add("accrual", domain.TxAccrual, op.AccrualsForSale.Decimal)
	add("commission", domain.TxCommission, op.SaleCommission.Decimal)
	add("logistics", domain.TxLogistics, op.DeliveryCharge.Decimal.Add(op.ReturnDeliveryCharge.Decimal))

	services := make(map[string]decimal.Decimal, len(op.Services))
	var names []string
	for _, s := range op.Services {
		if _, seen := services[s.Name]; !seen {
			names = append(names, s.Name)
		}
		services[s.Name] = services[s.Name].Add(s.Price.Decimal)
	}
	for _, name := range names {
		add(name, classifyService(name), services[name])
	}

	// Whatever the components do not explain is booked under the
	// operation's own id.
	add("", classifyOperation(op), rest)
	return out, nil
}

// Product converts a catalogue item into a dim_products row.
func (n *Normalizer) Product(_ context.Context, rec json.RawMessage, attr domain.Attribution) (domain.Normalized, error) {
	var p OzonProduct
	if err := json.Unmarshal(rec, &p); err != nil {
		return domain.Normalized{}, fmt.Errorf("%w: product: %v", domain.ErrNormalization, err)
	}
	if p.ProductID == 0 {
		return domain.Normalized{}, fmt.Errorf("%w: product without product_id", domain.ErrNormalization)
	}
	return domain.Normalized{Products: []domain.Product{{
		SourceID:    attr.SourceID,
		ClientID:    attr.ClientID,
		ExternalSKU: strconv.FormatInt(p.ProductID, 10),
		OfferID:     p.OfferID,
		Name:        p.Name,
	}}}, nil
}

func classifyOperation(op OzonFinanceOperation) domain.TransactionType {
	if t := classifyService(op.OperationType); t != domain.TxOther {
		return t
	}
	switch op.Type {
	case "orders", "returns":
		return domain.TxAccrual
	case "compensation":
		return domain.TxPayout
	}
	return domain.TxOther
}

func classifyService(name string) domain.TransactionType {
	s := strings.ToLower(name)
	switch {
	case strings.Contains(s, "acquiring"):
		return domain.TxAcquiring
	case strings.Contains(s, "storage"):
		return domain.TxStorage
	case strings.Contains(s, "penalty"), strings.Contains(s, "fine"), strings.Contains(s, "defect"):
		return domain.TxPenalty
	case strings.Contains(s, "commission"):
		return domain.TxCommission
	case strings.Contains(s, "logistic"), strings.Contains(s, "deliv"), strings.Contains(s, "fulfillment"),
		strings.Contains(s, "dropoff"), strings.Contains(s, "pickup"), strings.Contains(s, "flow"):
		return domain.TxLogistics
	case strings.Contains(s, "payout"), strings.Contains(s, "withdrawal"):
		return domain.TxPayout
	}
	return domain.TxOther
}
