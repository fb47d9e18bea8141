package wb

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

// docReturn marks realization report rows that reverse a sale.
const docReturn = "Возврат"

// Normalizer converts Wildberries records into canonical rows.
type Normalizer struct {
	products domain.ProductLookup
	now      func() time.Time
}

// NewNormalizer creates a Normalizer resolving nmIDs through products.
func NewNormalizer(products domain.ProductLookup) *Normalizer {
	if products == nil {
		products = domain.ProductIndex{}
	}
	return &Normalizer{products: products, now: time.Now}
}

// Sale converts a sales feed row into a sale or return order. Prices are
// stored unsigned; the order type carries the direction.
func (n *Normalizer) Sale(ctx context.Context, rec json.RawMessage, attr domain.Attribution) (domain.Normalized, error) {
	var s WbSaleRecord
	if err := json.Unmarshal(rec, &s); err != nil {
		return domain.Normalized{}, fmt.Errorf("%w: sale: %v", domain.ErrNormalization, err)
	}

	var typ domain.OrderType
	switch {
	case strings.HasPrefix(s.SaleID, "S"):
		typ = domain.OrderTypeSale
	case strings.HasPrefix(s.SaleID, "R"):
		typ = domain.OrderTypeReturn
	default:
		return domain.Normalized{}, fmt.Errorf("%w: unsupported saleID %q", domain.ErrNormalization, s.SaleID)
	}

	orderID := s.Srid
	if orderID == "" {
		orderID = s.GNumber
	}
	if orderID == "" {
		return domain.Normalized{}, fmt.Errorf("%w: sale %s without srid", domain.ErrNormalization, s.SaleID)
	}
	if s.NmID == 0 {
		return domain.Normalized{}, fmt.Errorf("%w: sale %s without nmId", domain.ErrNormalization, s.SaleID)
	}

	price, err := s.PriceWithDisc.Require("priceWithDisc")
	if err != nil {
		if price, err = s.FinishedPrice.Require("finishedPrice"); err != nil {
			return domain.Normalized{}, fmt.Errorf("sale %s: %w", s.SaleID, err)
		}
	}
	orderDate, err := domain.ParseMarketTime(s.Date)
	if err != nil {
		return domain.Normalized{}, fmt.Errorf("sale %s: %w", s.SaleID, err)
	}

	sku := strconv.FormatInt(s.NmID, 10)
	o := domain.Order{
		OrderID:         orderID,
		SKU:             sku,
		ClientID:        attr.ClientID,
		SourceID:        attr.SourceID,
		TransactionType: typ,
		Qty:             decimal.NewFromInt(1),
		Price:           price.Abs(),
		CostPrice:       decimal.Zero,
		OrderDate:       orderDate,
		CreatedAt:       n.now().UTC(),
	}

	ref, ok, err := n.products.LookupProduct(ctx, sku)
	if err == nil && !ok && s.SupplierArticle != "" {
		ref, ok, err = n.products.LookupProduct(ctx, s.SupplierArticle)
	}
	if err != nil {
		return domain.Normalized{}, err
	}
	if ok {
		id := ref.ID
		o.ProductID = &id
		o.CostPrice = ref.CostPrice
	}
	return domain.Normalized{Orders: []domain.Order{o}}, nil
}

// ReportDetail splits a realization report row into the amounts that move
// money to or from the seller. Their sum is the row's net effect on the
// payout: ppvz_for_pay less logistics, penalties, storage, deductions and
// paid acceptance.
func (n *Normalizer) ReportDetail(_ context.Context, rec json.RawMessage, attr domain.Attribution) (domain.Normalized, error) {
	var r WbReportDetailRecord
	if err := json.Unmarshal(rec, &r); err != nil {
		return domain.Normalized{}, fmt.Errorf("%w: report row: %v", domain.ErrNormalization, err)
	}
	if r.RrdID == 0 {
		return domain.Normalized{}, fmt.Errorf("%w: report row without rrd_id", domain.ErrNormalization)
	}
	stamp := r.RrDt
	if stamp == "" {
		stamp = r.SaleDt
	}
	at, err := domain.ParseMarketTime(stamp)
	if err != nil {
		return domain.Normalized{}, fmt.Errorf("report row %d: %w", r.RrdID, err)
	}

	var related *string
	if r.Srid != "" {
		srid := r.Srid
		related = &srid
	}
	id := strconv.FormatInt(r.RrdID, 10)
	created := n.now().UTC()

	payout := r.PpvzForPay.Decimal
	if r.DocTypeName == docReturn {
		payout = payout.Neg()
	}

	var out domain.Normalized
	for _, part := range []struct {
		suffix string
		typ    domain.TransactionType
		amount decimal.Decimal
	}{
		{"payout", domain.TxPayout, payout},
		{"logistics", domain.TxLogistics, r.DeliveryRub.Decimal.Neg()},
		{"penalty", domain.TxPenalty, r.Penalty.Decimal.Neg()},
		{"storage", domain.TxStorage, r.StorageFee.Decimal.Neg()},
		{"deduction", domain.TxOther, r.Deduction.Decimal.Neg()},
		{"acceptance", domain.TxOther, r.Acceptance.Decimal.Neg()},
	} {
		if part.amount.IsZero() {
			continue
		}
		out.Transactions = append(out.Transactions, domain.Transaction{
			TransactionID:   id + ":" + part.suffix,
			ClientID:        attr.ClientID,
			SourceID:        attr.SourceID,
			TransactionType: part.typ,
			Amount:          part.amount,
			RelatedOrderID:  related,
			TransactionDate: at,
			CreatedAt:       created,
		})
	}
	return out, nil
}

// Card converts a product card into a dim_products row keyed by nmID.
func (n *Normalizer) Card(_ context.Context, rec json.RawMessage, attr domain.Attribution) (domain.Normalized, error) {
	var c WbCard
	if err := json.Unmarshal(rec, &c); err != nil {
		return domain.Normalized{}, fmt.Errorf("%w: card: %v", domain.ErrNormalization, err)
	}
	if c.NmID == 0 {
		return domain.Normalized{}, fmt.Errorf("%w: card without nmID", domain.ErrNormalization)
	}
	return domain.Normalized{Products: []domain.Product{{
		SourceID:    attr.SourceID,
		ClientID:    attr.ClientID,
		ExternalSKU: strconv.FormatInt(c.NmID, 10),
		OfferID:     c.VendorCode,
		Name:        c.Title,
	}}}, nil
}
