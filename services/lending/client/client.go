package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"foxylend/services/lending/server"
)

// Config controls how the Client reaches lendingd.
type Config struct {
	BaseURL       string
	BearerToken   string
	Timeout       time.Duration
	AllowInsecure bool
}

// Client is a thin wrapper around the lendingd HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
	bearer  string
}

// APIError is returned for non-2xx responses.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("lendingd %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("lendingd %d: %s", e.Status, e.Message)
}

// New constructs a Client from cfg.
func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	transport := &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: cfg.AllowInsecure}} //nolint:gosec // development flag
	return &Client{
		baseURL: base,
		http:    &http.Client{Timeout: timeout, Transport: transport},
		bearer:  strings.TrimSpace(cfg.BearerToken),
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = &buf
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Client", "lend-cli")
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call lendingd: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode, Message: resp.Status}
		var payload struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if json.NewDecoder(resp.Body).Decode(&payload) == nil && payload.Error != "" {
			apiErr.Message = payload.Error
			apiErr.Code = payload.Code
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func pageQuery(page, limit uint64) string {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.FormatUint(page, 10))
	}
	if limit > 0 {
		q.Set("limit", strconv.FormatUint(limit, 10))
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

func (c *Client) Params(ctx context.Context) (*server.ParamsView, error) {
	var out server.ParamsView
	if err := c.do(ctx, http.MethodGet, "/v1/params", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Stats(ctx context.Context) (*server.StatsView, error) {
	var out server.StatsView
	if err := c.do(ctx, http.MethodGet, "/v1/stats", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Offer(ctx context.Context, id uint16) (*server.OfferView, error) {
	var out server.OfferView
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/v1/offers/%d", id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Quote(ctx context.Context, id uint16) (*server.QuoteView, error) {
	var out server.QuoteView
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/v1/offers/%d/quote", id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Offers(ctx context.Context, page, limit uint64) ([]server.OfferView, error) {
	var out []server.OfferView
	if err := c.do(ctx, http.MethodGet, "/v1/offers"+pageQuery(page, limit), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) OffersByOwner(ctx context.Context, owner string, page, limit uint64) ([]server.OfferView, error) {
	var out []server.OfferView
	path := "/v1/owners/" + url.PathEscape(owner) + "/offers" + pageQuery(page, limit)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) OffersByBorrower(ctx context.Context, borrower string, page, limit uint64) ([]server.OfferView, error) {
	var out []server.OfferView
	path := "/v1/borrowers/" + url.PathEscape(borrower) + "/offers" + pageQuery(page, limit)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// OffersByPrice lists open offers above threshold. order is "asc" or "desc".
func (c *Client) OffersByPrice(ctx context.Context, threshold, order string, page, limit uint64) ([]server.OfferView, error) {
	q := url.Values{}
	q.Set("threshold", threshold)
	if order != "" {
		q.Set("order", order)
	}
	if page > 0 {
		q.Set("page", strconv.FormatUint(page, 10))
	}
	if limit > 0 {
		q.Set("limit", strconv.FormatUint(limit, 10))
	}
	var out []server.OfferView
	if err := c.do(ctx, http.MethodGet, "/v1/offers/by-price?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Collections(ctx context.Context, page, limit uint64) ([]server.CollectionView, error) {
	var out []server.CollectionView
	if err := c.do(ctx, http.MethodGet, "/v1/collections"+pageQuery(page, limit), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Collection(ctx context.Context, id uint16) (*server.CollectionView, error) {
	var out server.CollectionView
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/v1/collections/%d", id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Lend(ctx context.Context, req server.LendRequest) (*server.ResultView, error) {
	var out server.ResultView
	if err := c.do(ctx, http.MethodPost, "/v1/offers", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Cancel(ctx context.Context, id uint16) (*server.ResultView, error) {
	var out server.ResultView
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/v1/offers/%d/cancel", id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Borrow(ctx context.Context, id uint16, req server.BorrowRequest) (*server.ResultView, error) {
	var out server.ResultView
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/v1/offers/%d/borrow", id), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Repay(ctx context.Context, id uint16, req server.FundsRequest) (*server.ResultView, error) {
	var out server.ResultView
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/v1/offers/%d/repay", id), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpsertCollection(ctx context.Context, req server.CollectionRequest) (*server.ResultView, error) {
	var out server.ResultView
	if err := c.do(ctx, http.MethodPost, "/v1/admin/collections", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateFloorPrice(ctx context.Context, id uint16, price string) (*server.ResultView, error) {
	var out server.ResultView
	path := fmt.Sprintf("/v1/admin/collections/%d/floor-price", id)
	if err := c.do(ctx, http.MethodPost, path, server.FloorPriceRequest{FloorPrice: price}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateAdmin(ctx context.Context, admin string) (*server.ResultView, error) {
	var out server.ResultView
	if err := c.do(ctx, http.MethodPost, "/v1/admin/admin", server.AdminRequest{Admin: admin}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateInterestSplit(ctx context.Context, split uint64) (*server.ResultView, error) {
	var out server.ResultView
	if err := c.do(ctx, http.MethodPost, "/v1/admin/interest-split", server.InterestSplitRequest{InterestSplit: split}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// OutboxJobs lists transfer instructions. Admin only.
func (c *Client) OutboxJobs(ctx context.Context, status string, limit uint64) ([]server.JobView, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if limit > 0 {
		q.Set("limit", strconv.FormatUint(limit, 10))
	}
	path := "/v1/admin/outbox"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out []server.JobView
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
