// Package wb reads sales, the realization report and product cards from
// the Wildberries seller APIs.
package wb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/alanyoungcy/mpimport/internal/domain"
	"github.com/alanyoungcy/mpimport/internal/platform/httpapi"
)

const (
	// DefaultStatisticsURL serves sales and the realization report.
	DefaultStatisticsURL = "https://statistics-api.wildberries.ru"
	// DefaultContentURL serves product cards.
	DefaultContentURL = "https://content-api.wildberries.ru"
)

const (
	pathSales        = "/api/v1/supplier/sales"
	pathReportDetail = "/api/v5/supplier/reportDetailByPeriod"
	pathCardsList    = "/content/v2/get/cards/list"
)

// Fetcher performs one API call and extracts its page.
type Fetcher interface {
	Fetch(ctx context.Context, req httpapi.Request, extract func([]byte) (domain.RawPage, error)) (domain.RawPage, error)
}

// Authorizer sets the token header used by every Wildberries API.
func Authorizer(apiKey string) httpapi.Authorizer {
	return func(req *http.Request) {
		req.Header.Set("Authorization", apiKey)
	}
}

// Client is the Wildberries API client. Statistics and content live on
// different hosts with separate limits, so each gets its own transport.
type Client struct {
	stats   Fetcher
	content Fetcher
}

// NewClient creates a Client.
func NewClient(stats, content Fetcher) *Client {
	return &Client{stats: stats, content: content}
}

// Sales returns sales and returns changed at or after dateFrom. The page
// cursor is the lastChangeDate of its final row.
func (c *Client) Sales(ctx context.Context, dateFrom string) (domain.RawPage, error) {
	q := url.Values{}
	q.Set("dateFrom", dateFrom)
	q.Set("flag", "0")

	return c.stats.Fetch(ctx, httpapi.Request{
		Method: http.MethodGet,
		Path:   pathSales,
		Query:  q,
	}, func(body []byte) (domain.RawPage, error) {
		records, err := decodeArray(body)
		if err != nil {
			return domain.RawPage{}, err
		}
		page := domain.RawPage{Records: records}
		if n := len(records); n > 0 {
			var last struct {
				LastChangeDate string `json:"lastChangeDate"`
			}
			if err := json.Unmarshal(records[n-1], &last); err != nil {
				return domain.RawPage{}, fmt.Errorf("sales cursor: %w", err)
			}
			page.Cursor = last.LastChangeDate
		}
		return page, nil
	})
}

// ReportDetail returns realization report rows of w after rrdID. The page
// cursor is the rrd_id of its final row.
func (c *Client) ReportDetail(ctx context.Context, w domain.Window, rrdID string, limit int) (domain.RawPage, error) {
	if rrdID == "" {
		rrdID = "0"
	}
	q := url.Values{}
	q.Set("dateFrom", w.From.Format(domain.DateLayout))
	q.Set("dateTo", w.To.Format(domain.DateLayout))
	q.Set("limit", strconv.Itoa(limit))
	q.Set("rrdid", rrdID)

	return c.stats.Fetch(ctx, httpapi.Request{
		Method: http.MethodGet,
		Path:   pathReportDetail,
		Query:  q,
	}, func(body []byte) (domain.RawPage, error) {
		records, err := decodeArray(body)
		if err != nil {
			return domain.RawPage{}, err
		}
		page := domain.RawPage{Records: records}
		if n := len(records); n > 0 {
			var last struct {
				RrdID int64 `json:"rrd_id"`
			}
			if err := json.Unmarshal(records[n-1], &last); err != nil {
				return domain.RawPage{}, fmt.Errorf("report cursor: %w", err)
			}
			page.Cursor = strconv.FormatInt(last.RrdID, 10)
		}
		return page, nil
	})
}

// Cards lists product cards after cursor, which is "" or the
// "updatedAt|nmID" pair returned with the previous page.
func (c *Client) Cards(ctx context.Context, cursor string, limit int) (domain.RawPage, error) {
	var req cardsListRequest
	req.Settings.Filter.WithPhoto = -1
	req.Settings.Cursor.Limit = limit
	if cursor != "" {
		updatedAt, nm, ok := strings.Cut(cursor, "|")
		nmID, err := strconv.ParseInt(nm, 10, 64)
		if !ok || err != nil {
			return domain.RawPage{}, fmt.Errorf("wb: cards cursor %q is malformed", cursor)
		}
		req.Settings.Cursor.UpdatedAt = updatedAt
		req.Settings.Cursor.NmID = nmID
	}

	return c.content.Fetch(ctx, httpapi.Request{
		Method: http.MethodPost,
		Path:   pathCardsList,
		Body:   req,
	}, func(body []byte) (domain.RawPage, error) {
		var env cardsListResponse
		if err := json.Unmarshal(body, &env); err != nil {
			return domain.RawPage{}, err
		}
		page := domain.RawPage{Records: env.Cards, Total: env.Cursor.Total}
		if env.Cursor.NmID != 0 {
			page.Cursor = env.Cursor.UpdatedAt + "|" + strconv.FormatInt(env.Cursor.NmID, 10)
		}
		return page, nil
	})
}

// decodeArray reads a top-level JSON array. The statistics API answers an
// exhausted report with 204 and no body.
func decodeArray(body []byte) ([]json.RawMessage, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return nil, nil
	}
	var records []json.RawMessage
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, err
	}
	return records, nil
}
