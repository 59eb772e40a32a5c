// Package api is a thin client for the POS backend's REST endpoints.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/loclhse/toolbanhangUIUX/internal/pos"
	"github.com/oklog/ulid/v2"
	log "github.com/sirupsen/logrus"
)

const maxErrorBody = 4 << 10

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: %d", e.Method, e.Path, e.Code)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Code, e.Body)
}

// NotFound reports whether the backend answered 404.
func (e *StatusError) NotFound() bool { return e.Code == http.StatusNotFound }

// Client makes REST calls to the POS backend.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
	log     log.FieldLogger

	onCreated func(pos.Order)
}

// NewClient creates a client targeting baseURL (e.g. "http://127.0.0.1:8080").
func NewClient(baseURL, token string, timeout time.Duration, logger log.FieldLogger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
		log:     logger.WithField("component", "api"),
	}
}

// OnOrderCreated registers fn to run after every successful CreateOrder,
// so the new order can be shown before any fetch or event confirms it.
func (c *Client) OnOrderCreated(fn func(pos.Order)) { c.onCreated = fn }

// ListOrders fetches /api/orders.
func (c *Client) ListOrders(ctx context.Context) ([]pos.Order, error) {
	var out []pos.Order
	if err := c.do(ctx, http.MethodGet, "/api/orders", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetOrder fetches /api/orders/{id}.
func (c *Client) GetOrder(ctx context.Context, id pos.ID) (*pos.Order, error) {
	var o pos.Order
	if err := c.do(ctx, http.MethodGet, orderPath(id), nil, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// CreateOrder sends POST /api/orders and returns the stored order.
func (c *Client) CreateOrder(ctx context.Context, req pos.CreateOrderRequest) (*pos.Order, error) {
	var o pos.Order
	if err := c.do(ctx, http.MethodPost, "/api/orders", req, &o); err != nil {
		return nil, err
	}
	if c.onCreated != nil && o.ID != "" {
		c.onCreated(o)
	}
	return &o, nil
}

// UpdateOrder sends PUT /api/orders/{id}.
func (c *Client) UpdateOrder(ctx context.Context, id pos.ID, req pos.UpdateOrderRequest) (*pos.Order, error) {
	var o pos.Order
	if err := c.do(ctx, http.MethodPut, orderPath(id), req, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// DeleteOrder sends DELETE /api/orders/{id}.
func (c *Client) DeleteOrder(ctx context.Context, id pos.ID) error {
	return c.do(ctx, http.MethodDelete, orderPath(id), nil, nil)
}

// ListTables fetches /api/tables.
func (c *Client) ListTables(ctx context.Context) ([]pos.Table, error) {
	var out []pos.Table
	if err := c.do(ctx, http.MethodGet, "/api/tables", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListFoodItems fetches /api/food-items.
func (c *Client) ListFoodItems(ctx context.Context) ([]pos.FoodItem, error) {
	var out []pos.FoodItem
	if err := c.do(ctx, http.MethodGet, "/api/food-items", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreatePayment sends POST /api/payments.
func (c *Client) CreatePayment(ctx context.Context, req pos.CreatePaymentRequest) (*pos.Payment, error) {
	var p pos.Payment
	if err := c.do(ctx, http.MethodPost, "/api/payments", req, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetPaymentByOrder fetches /api/payments/order/{id}.
func (c *Client) GetPaymentByOrder(ctx context.Context, orderID pos.ID) (*pos.Payment, error) {
	var p pos.Payment
	if err := c.do(ctx, http.MethodGet, "/api/payments/order/"+url.PathEscape(string(orderID)), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func orderPath(id pos.ID) string {
	return "/api/orders/" + url.PathEscape(string(id))
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	logger := c.log.WithFields(log.Fields{"method": method, "path": path})
	if method != http.MethodGet {
		id := ulid.Make().String()
		req.Header.Set("X-Request-ID", id)
		logger = logger.WithField("request_id", id)
	}
	c.setAuth(req)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	logger.WithFields(log.Fields{"status": resp.StatusCode, "took": time.Since(start)}).Debug("request done")

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if err == io.EOF {
			return nil
		}
		return fmt.Errorf("decoding %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) setAuth(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
