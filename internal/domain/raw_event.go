package domain

import (
	"encoding/json"
	"time"
)

// Raw event types written to raw_events.event_type.
const (
	EventOzonPosting     = "ozon_posting"
	EventOzonReturn      = "ozon_return"
	EventOzonFinance     = "ozon_finance_transaction"
	EventOzonProduct     = "ozon_product"
	EventWbSale          = "wb_sale"
	EventWbFinanceDetail = "wb_finance_detail"
	EventWbCard          = "wb_card"
)

// RawEvent is one append-only audit row holding a verbatim API page.
type RawEvent struct {
	ID        int64
	EventType string
	Payload   json.RawMessage
	SourceID  int64
	ClientID  int64
	CreatedAt time.Time
}
