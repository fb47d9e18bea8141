package ozon

import (
	"encoding/json"

	"github.com/alanyoungcy/mpimport/internal/domain"
)

// --------------------------------------------------------------------------
// Seller API DTOs
// --------------------------------------------------------------------------

// OzonPosting is one FBS/FBO shipment from /v3/posting/fbs/list or
// /v2/posting/fbo/list.
type OzonPosting struct {
	PostingNumber string               `json:"posting_number"`
	OrderID       int64                `json:"order_id"`
	OrderNumber   string               `json:"order_number"`
	Status        string               `json:"status"` // "awaiting_packaging", "delivering", "delivered", "cancelled", ...
	InProcessAt   string               `json:"in_process_at"`
	CreatedAt     string               `json:"created_at"`
	Products      []OzonPostingProduct `json:"products"`
}

// OzonPostingProduct is a product line inside a posting.
type OzonPostingProduct struct {
	SKU          int64              `json:"sku"`
	OfferID      string             `json:"offer_id"`
	Name         string             `json:"name"`
	Quantity     int64              `json:"quantity"`
	Price        domain.FlexDecimal `json:"price"` // quoted, e.g. "1390.000000"
	CurrencyCode string             `json:"currency_code"`
}

// OzonReturn is one item of /v1/returns/list.
type OzonReturn struct {
	ID            int64             `json:"id"`
	OrderID       int64             `json:"order_id"`
	OrderNumber   string            `json:"order_number"`
	PostingNumber string            `json:"posting_number"`
	Type          string            `json:"type"` // "Cancellation", "ClientReturn", ...
	Product       OzonReturnProduct `json:"product"`
	Logistic      struct {
		ReturnDate string `json:"return_date"`
	} `json:"logistic"`
}

// OzonReturnProduct is the returned product of an OzonReturn.
type OzonReturnProduct struct {
	SKU      int64  `json:"sku"`
	OfferID  string `json:"offer_id"`
	Name     string `json:"name"`
	Quantity int64  `json:"quantity"`
	Price    struct {
		CurrencyCode string             `json:"currency_code"`
		Price        domain.FlexDecimal `json:"price"`
	} `json:"price"`
}

// OzonFinanceOperation is one accrual of /v3/finance/transaction/list.
// Amounts are signed from the seller's side: charges are negative.
type OzonFinanceOperation struct {
	OperationID          int64                `json:"operation_id"`
	OperationType        string               `json:"operation_type"`
	OperationDate        string               `json:"operation_date"` // "2024-01-02 00:00:00", Moscow time
	OperationTypeName    string               `json:"operation_type_name"`
	Type                 string               `json:"type"` // "orders", "returns", "services", "compensation", "transferDelivery", "other"
	AccrualsForSale      domain.FlexDecimal   `json:"accruals_for_sale"`
	SaleCommission       domain.FlexDecimal   `json:"sale_commission"`
	DeliveryCharge       domain.FlexDecimal   `json:"delivery_charge"`
	ReturnDeliveryCharge domain.FlexDecimal   `json:"return_delivery_charge"`
	Amount               domain.FlexDecimal   `json:"amount"`
	Posting              OzonFinancePosting   `json:"posting"`
	Items                []OzonFinanceItem    `json:"items"`
	Services             []OzonFinanceService `json:"services"`
}

// OzonFinancePosting links an operation to a shipment.
type OzonFinancePosting struct {
	DeliverySchema string `json:"delivery_schema"`
	OrderDate      string `json:"order_date"`
	PostingNumber  string `json:"posting_number"`
	WarehouseID    int64  `json:"warehouse_id"`
}

// OzonFinanceItem is a product touched by an operation.
type OzonFinanceItem struct {
	Name string `json:"name"`
	SKU  int64  `json:"sku"`
}

// OzonFinanceService is an itemised charge of an operation.
type OzonFinanceService struct {
	Name  string             `json:"name"`
	Price domain.FlexDecimal `json:"price"`
}

// OzonProduct is one item of /v3/product/list.
type OzonProduct struct {
	ProductID int64  `json:"product_id"`
	OfferID   string `json:"offer_id"`
	Archived  bool   `json:"archived"`
	Name      string `json:"name"` // only present on /v3/product/info/list
}

// --------------------------------------------------------------------------
// Envelopes
// --------------------------------------------------------------------------

type fbsListResponse struct {
	Result struct {
		Postings []json.RawMessage `json:"postings"`
		HasNext  bool              `json:"has_next"`
	} `json:"result"`
}

type fboListResponse struct {
	Result []json.RawMessage `json:"result"`
}

type returnsListResponse struct {
	Returns []json.RawMessage `json:"returns"`
	HasNext bool              `json:"has_next"`
}

type financeListResponse struct {
	Result struct {
		Operations []json.RawMessage `json:"operations"`
		PageCount  int               `json:"page_count"`
		RowCount   int               `json:"row_count"`
	} `json:"result"`
}

type productListResponse struct {
	Result struct {
		Items  []json.RawMessage `json:"items"`
		Total  int               `json:"total"`
		LastID string            `json:"last_id"`
	} `json:"result"`
}

// --------------------------------------------------------------------------
// Request bodies
// --------------------------------------------------------------------------

type postingListRequest struct {
	Dir    string            `json:"dir"`
	Filter postingListFilter `json:"filter"`
	Limit  int               `json:"limit"`
	Offset int               `json:"offset"`
	With   struct {
		FinancialData bool `json:"financial_data"`
	} `json:"with"`
}

type postingListFilter struct {
	Since string `json:"since"`
	To    string `json:"to"`
}

type returnsListRequest struct {
	Filter struct {
		LogisticReturnDate struct {
			TimeFrom string `json:"time_from"`
			TimeTo   string `json:"time_to"`
		} `json:"logistic_return_date"`
	} `json:"filter"`
	Limit  int   `json:"limit"`
	LastID int64 `json:"last_id"`
}

type financeListRequest struct {
	Filter struct {
		Date struct {
			From string `json:"from"`
			To   string `json:"to"`
		} `json:"date"`
		TransactionType string `json:"transaction_type"`
	} `json:"filter"`
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

type productListRequest struct {
	Filter struct {
		Visibility string `json:"visibility"`
	} `json:"filter"`
	LastID string `json:"last_id"`
	Limit  int    `json:"limit"`
}
