package wb

import (
	"encoding/json"

	"github.com/alanyoungcy/mpimport/internal/domain"
)

// WbSaleRecord is one row of the statistics sales feed. Every row is a
// single unit; returns carry an "R" saleID and negative amounts.
type WbSaleRecord struct {
	Date            string             `json:"date"`
	LastChangeDate  string             `json:"lastChangeDate"`
	SupplierArticle string             `json:"supplierArticle"`
	TechSize        string             `json:"techSize"`
	Barcode         string             `json:"barcode"`
	TotalPrice      domain.FlexDecimal `json:"totalPrice"`
	DiscountPercent domain.FlexDecimal `json:"discountPercent"`
	PriceWithDisc   domain.FlexDecimal `json:"priceWithDisc"`
	FinishedPrice   domain.FlexDecimal `json:"finishedPrice"`
	ForPay          domain.FlexDecimal `json:"forPay"`
	WarehouseName   string             `json:"warehouseName"`
	NmID            int64              `json:"nmId"`
	SaleID          string             `json:"saleID"` // "S..." sale, "R..." return
	GNumber         string             `json:"gNumber"`
	Srid            string             `json:"srid"`
}

// WbReportDetailRecord is one line of the weekly realization report.
// Charges are reported as positive numbers.
type WbReportDetailRecord struct {
	RrdID               int64              `json:"rrd_id"`
	RealizationReportID int64              `json:"realizationreport_id"`
	DocTypeName         string             `json:"doc_type_name"`      // "Продажа", "Возврат", ""
	SupplierOperName    string             `json:"supplier_oper_name"` // "Продажа", "Логистика", "Штраф", "Хранение", ...
	OrderDt             string             `json:"order_dt"`
	SaleDt              string             `json:"sale_dt"`
	RrDt                string             `json:"rr_dt"`
	NmID                int64              `json:"nm_id"`
	SaName              string             `json:"sa_name"`
	Quantity            int64              `json:"quantity"`
	RetailAmount        domain.FlexDecimal `json:"retail_amount"`
	PpvzForPay          domain.FlexDecimal `json:"ppvz_for_pay"`
	PpvzSalesCommission domain.FlexDecimal `json:"ppvz_sales_commission"`
	AcquiringFee        domain.FlexDecimal `json:"acquiring_fee"`
	DeliveryRub         domain.FlexDecimal `json:"delivery_rub"`
	Penalty             domain.FlexDecimal `json:"penalty"`
	StorageFee          domain.FlexDecimal `json:"storage_fee"`
	Deduction           domain.FlexDecimal `json:"deduction"`
	Acceptance          domain.FlexDecimal `json:"acceptance"`
	Srid                string             `json:"srid"`
}

// WbCard is one product card of the content API.
type WbCard struct {
	NmID       int64  `json:"nmID"`
	VendorCode string `json:"vendorCode"`
	Title      string `json:"title"`
	Brand      string `json:"brand"`
	UpdatedAt  string `json:"updatedAt"`
}

type cardsListRequest struct {
	Settings struct {
		Cursor cardsCursor `json:"cursor"`
		Filter struct {
			WithPhoto int `json:"withPhoto"`
		} `json:"filter"`
	} `json:"settings"`
}

type cardsCursor struct {
	Limit     int    `json:"limit,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
	NmID      int64  `json:"nmID,omitempty"`
	Total     int    `json:"total,omitempty"`
}

type cardsListResponse struct {
	Cards  []json.RawMessage `json:"cards"`
	Cursor cardsCursor       `json:"cursor"`
}
