package domain

import "encoding/json"

// RawPage is one response page as returned by a marketplace API: the verbatim
// body plus the records extracted from its envelope.
type RawPage struct {
	Body    json.RawMessage
	Records []json.RawMessage
	// Cursor is the pagination token echoed by this page, empty for
	// offset-paginated endpoints.
	Cursor string
	// Total is the server-reported total or page count where the API
	// provides one, zero otherwise.
	Total int
}

// Len returns the number of records on the page.
func (p RawPage) Len() int { return len(p.Records) }

// Normalized is the canonical output of normalizing one raw record. A single
// marketplace record can expand into several rows (an Ozon posting with three
// products yields three orders).
type Normalized struct {
	Orders       []Order
	Transactions []Transaction
	Products     []Product
}

// Len returns the number of canonical rows.
func (n Normalized) Len() int {
	return len(n.Orders) + len(n.Transactions) + len(n.Products)
}
