package wb

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/mpimport/internal/domain"
)

var testAttr = domain.Attribution{SourceID: 2, ClientID: 5, Source: domain.SourceWB}

func testNormalizer(idx domain.ProductIndex) *Normalizer {
	n := NewNormalizer(idx)
	n.now = func() time.Time { return time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC) }
	return n
}

func TestNormalizer_SaleAndReturn(t *testing.T) {
	idx := domain.ProductIndex{}
	idx.Add(domain.Product{ID: 9, ExternalSKU: "12345678", CostPrice: decimal.NewNullDecimal(decimal.NewFromInt(300))})

	sale := json.RawMessage(`{"date":"2024-01-02T13:00:00","saleID":"S9876","srid":"abc.1","nmId":12345678,"priceWithDisc":"1 234,50"}`)
	out, err := testNormalizer(idx).Sale(context.Background(), sale, testAttr)
	require.NoError(t, err)
	require.Len(t, out.Orders, 1)
	o := out.Orders[0]
	assert.Equal(t, "abc.1", o.OrderID)
	assert.Equal(t, "12345678", o.SKU)
	assert.Equal(t, domain.OrderTypeSale, o.TransactionType)
	assert.True(t, o.Price.Equal(decimal.RequireFromString("1234.50")))
	assert.True(t, o.Qty.Equal(decimal.NewFromInt(1)))
	require.NotNil(t, o.ProductID)
	assert.Equal(t, int64(9), *o.ProductID)
	assert.True(t, o.CostPrice.Equal(decimal.NewFromInt(300)))
	assert.True(t, o.OrderDate.Equal(time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)))
	assert.Equal(t, int64(2), o.SourceID)

	ret := json.RawMessage(`{"date":"2024-01-04T09:00:00","saleID":"R111","srid":"abc.1","nmId":5,"priceWithDisc":-990}`)
	out, err = testNormalizer(idx).Sale(context.Background(), ret, testAttr)
	require.NoError(t, err)
	require.Len(t, out.Orders, 1)
	assert.Equal(t, domain.OrderTypeReturn, out.Orders[0].TransactionType)
	assert.True(t, out.Orders[0].Price.Equal(decimal.NewFromInt(990)))
	assert.Nil(t, out.Orders[0].ProductID, "unknown SKU is kept without a product reference")
	assert.Equal(t, "5", out.Orders[0].SKU)
}

func TestNormalizer_SaleRejects(t *testing.T) {
	tests := map[string]string{
		"storno":       `{"date":"2024-01-02","saleID":"A1","srid":"x","nmId":1,"priceWithDisc":1}`,
		"no srid":      `{"date":"2024-01-02","saleID":"S1","nmId":1,"priceWithDisc":1}`,
		"no nmId":      `{"date":"2024-01-02","saleID":"S1","srid":"x","priceWithDisc":1}`,
		"bad price":    `{"date":"2024-01-02","saleID":"S1","srid":"x","nmId":1,"priceWithDisc":"n/a"}`,
		"no price":     `{"date":"2024-01-02","saleID":"S1","srid":"x","nmId":1}`,
		"bad date":     `{"date":"later","saleID":"S1","srid":"x","nmId":1,"priceWithDisc":1}`,
		"not a record": `[1,2]`,
	}
	for name, rec := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := testNormalizer(nil).Sale(context.Background(), json.RawMessage(rec), testAttr)
			assert.ErrorIs(t, err, domain.ErrNormalization)
		})
	}
}

func TestNormalizer_SaleFallsBackToFinishedPrice(t *testing.T) {
	rec := json.RawMessage(`{"date":"2024-01-02","saleID":"S1","srid":"x","nmId":1,"finishedPrice":"450.10"}`)
	out, err := testNormalizer(nil).Sale(context.Background(), rec, testAttr)
	require.NoError(t, err)
	assert.True(t, out.Orders[0].Price.Equal(decimal.RequireFromString("450.10")))
}

func TestNormalizer_ReportDetail(t *testing.T) {
	rec := json.RawMessage(`{
		"rrd_id": 501,
		"doc_type_name": "Продажа",
		"supplier_oper_name": "Продажа",
		"rr_dt": "2024-01-03",
		"srid": "abc.1",
		"ppvz_for_pay": 850.25,
		"delivery_rub": "55",
		"penalty": 0,
		"storage_fee": 1.5,
		"deduction": null
	}`)
	out, err := testNormalizer(nil).ReportDetail(context.Background(), rec, testAttr)
	require.NoError(t, err)
	require.Len(t, out.Transactions, 3)

	byID := map[string]domain.Transaction{}
	sum := decimal.Zero
	for _, tx := range out.Transactions {
		byID[tx.TransactionID] = tx
		sum = sum.Add(tx.Amount)
		assert.Equal(t, "abc.1", *tx.RelatedOrderID)
	}
	assert.Equal(t, domain.TxPayout, byID["501:payout"].TransactionType)
	assert.True(t, byID["501:logistics"].Amount.Equal(decimal.NewFromInt(-55)))
	assert.Equal(t, domain.TxStorage, byID["501:storage"].TransactionType)
	assert.True(t, sum.Equal(decimal.RequireFromString("793.75")), "sum %s", sum)
}

func TestNormalizer_ReportDetailReturnNegatesPayout(t *testing.T) {
	rec := json.RawMessage(`{"rrd_id": 502, "doc_type_name": "Возврат", "rr_dt": "2024-01-03", "ppvz_for_pay": 100}`)
	out, err := testNormalizer(nil).ReportDetail(context.Background(), rec, testAttr)
	require.NoError(t, err)
	require.Len(t, out.Transactions, 1)
	assert.True(t, out.Transactions[0].Amount.Equal(decimal.NewFromInt(-100)))
	assert.Nil(t, out.Transactions[0].RelatedOrderID)
}

func TestNormalizer_ReportDetailRejects(t *testing.T) {
	_, err := testNormalizer(nil).ReportDetail(context.Background(), json.RawMessage(`{"rr_dt":"2024-01-03"}`), testAttr)
	assert.ErrorIs(t, err, domain.ErrNormalization)

	_, err = testNormalizer(nil).ReportDetail(context.Background(), json.RawMessage(`{"rrd_id": 1, "rr_dt":"2024-01-03", "penalty":"1,2,3"}`), testAttr)
	assert.ErrorIs(t, err, domain.ErrNormalization)
}

func TestNormalizer_Card(t *testing.T) {
	out, err := testNormalizer(nil).Card(context.Background(),
		json.RawMessage(`{"nmID": 12345678, "vendorCode": "ART-1", "title": "Кружка"}`), testAttr)
	require.NoError(t, err)
	require.Len(t, out.Products, 1)
	p := out.Products[0]
	assert.Equal(t, "12345678", p.ExternalSKU)
	assert.Equal(t, "ART-1", p.OfferID)
	assert.Equal(t, "Кружка", p.Name)
}
