// Package ozon reads postings, returns, finance operations and the product
// list from the Ozon Seller API.
package ozon

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/alanyoungcy/mpimport/internal/domain"
	"github.com/alanyoungcy/mpimport/internal/platform/httpapi"
)

// DefaultBaseURL is the production Seller API host.
const DefaultBaseURL = "https://api-seller.ozon.ru"

const (
	pathFBSList     = "/v3/posting/fbs/list"
	pathFBOList     = "/v2/posting/fbo/list"
	pathReturnsList = "/v1/returns/list"
	pathFinanceList = "/v3/finance/transaction/list"
	pathProductList = "/v3/product/list"
)

// Fetcher performs one API call and extracts its page.
type Fetcher interface {
	Fetch(ctx context.Context, req httpapi.Request, extract func([]byte) (domain.RawPage, error)) (domain.RawPage, error)
}

// Authorizer sets the Client-Id and Api-Key headers.
func Authorizer(clientID, apiKey string) httpapi.Authorizer {
	return func(req *http.Request) {
		req.Header.Set("Client-Id", clientID)
		req.Header.Set("Api-Key", apiKey)
	}
}

// Client is the Ozon Seller API client. Each method fetches exactly one page.
type Client struct {
	api Fetcher
}

// NewClient creates a Client on top of a configured transport.
func NewClient(api Fetcher) *Client {
	return &Client{api: api}
}

// FBSPostings returns postings shipped from the seller's warehouse.
func (c *Client) FBSPostings(ctx context.Context, w domain.Window, offset, limit int) (domain.RawPage, error) {
	return c.api.Fetch(ctx, httpapi.Request{
		Method: http.MethodPost,
		Path:   pathFBSList,
		Body:   newPostingListRequest(w, offset, limit),
	}, func(body []byte) (domain.RawPage, error) {
		var env fbsListResponse
		if err := json.Unmarshal(body, &env); err != nil {
			return domain.RawPage{}, err
		}
		return domain.RawPage{Records: env.Result.Postings}, nil
	})
}

// FBOPostings returns postings fulfilled from Ozon warehouses.
func (c *Client) FBOPostings(ctx context.Context, w domain.Window, offset, limit int) (domain.RawPage, error) {
	return c.api.Fetch(ctx, httpapi.Request{
		Method: http.MethodPost,
		Path:   pathFBOList,
		Body:   newPostingListRequest(w, offset, limit),
	}, func(body []byte) (domain.RawPage, error) {
		var env fboListResponse
		if err := json.Unmarshal(body, &env); err != nil {
			return domain.RawPage{}, err
		}
		return domain.RawPage{Records: env.Result}, nil
	})
}

// Returns lists returns whose logistic return date falls in w, continuing
// after lastID. The page cursor is the id of its last return.
func (c *Client) Returns(ctx context.Context, w domain.Window, lastID string, limit int) (domain.RawPage, error) {
	var req returnsListRequest
	req.Filter.LogisticReturnDate.TimeFrom = formatTime(w.From)
	req.Filter.LogisticReturnDate.TimeTo = formatTime(lastSecond(w))
	req.Limit = limit
	if lastID != "" {
		id, err := strconv.ParseInt(lastID, 10, 64)
		if err != nil {
			return domain.RawPage{}, fmt.Errorf("ozon: returns cursor %q: %w", lastID, err)
		}
		req.LastID = id
	}

	return c.api.Fetch(ctx, httpapi.Request{
		Method: http.MethodPost,
		Path:   pathReturnsList,
		Body:   req,
	}, func(body []byte) (domain.RawPage, error) {
		var env returnsListResponse
		if err := json.Unmarshal(body, &env); err != nil {
			return domain.RawPage{}, err
		}
		page := domain.RawPage{Records: env.Returns}
		if n := len(env.Returns); n > 0 {
			var last struct {
				ID int64 `json:"id"`
			}
			if err := json.Unmarshal(env.Returns[n-1], &last); err != nil {
				return domain.RawPage{}, fmt.Errorf("returns cursor: %w", err)
			}
			page.Cursor = strconv.FormatInt(last.ID, 10)
		}
		return page, nil
	})
}

// FinanceOperations lists accruals in w. The endpoint is page-numbered, so
// offset must be a multiple of limit.
func (c *Client) FinanceOperations(ctx context.Context, w domain.Window, offset, limit int) (domain.RawPage, error) {
	var req financeListRequest
	req.Filter.Date.From = formatTime(w.From)
	req.Filter.Date.To = formatTime(lastSecond(w))
	req.Filter.TransactionType = "all"
	req.PageSize = limit
	req.Page = offset/limit + 1

	return c.api.Fetch(ctx, httpapi.Request{
		Method: http.MethodPost,
		Path:   pathFinanceList,
		Body:   req,
	}, func(body []byte) (domain.RawPage, error) {
		var env financeListResponse
		if err := json.Unmarshal(body, &env); err != nil {
			return domain.RawPage{}, err
		}
		return domain.RawPage{Records: env.Result.Operations, Total: env.Result.RowCount}, nil
	})
}

// Products lists the seller's catalogue after lastID.
func (c *Client) Products(ctx context.Context, lastID string, limit int) (domain.RawPage, error) {
	var req productListRequest
	req.Filter.Visibility = "ALL"
	req.LastID = lastID
	req.Limit = limit

	return c.api.Fetch(ctx, httpapi.Request{
		Method: http.MethodPost,
		Path:   pathProductList,
		Body:   req,
	}, func(body []byte) (domain.RawPage, error) {
		var env productListResponse
		if err := json.Unmarshal(body, &env); err != nil {
			return domain.RawPage{}, err
		}
		return domain.RawPage{
			Records: env.Result.Items,
			Cursor:  env.Result.LastID,
			Total:   env.Result.Total,
		}, nil
	})
}

func newPostingListRequest(w domain.Window, offset, limit int) postingListRequest {
	req := postingListRequest{
		Dir:    "ASC",
		Filter: postingListFilter{Since: formatTime(w.From), To: formatTime(lastSecond(w))},
		Limit:  limit,
		Offset: offset,
	}
	req.With.FinancialData = true
	return req
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// lastSecond is the inclusive end of w as the Seller API expects it.
func lastSecond(w domain.Window) time.Time {
	return w.End().Add(-time.Second)
}
