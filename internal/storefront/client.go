// Package storefront is the shopper-side SDK for the order API: it prices carts, places orders
// through a durable outbox, reads order history and verifies fulfillment updates.
package storefront

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/loomhouse/api/internal/domain"
	"github.com/loomhouse/api/internal/orderrecord"
)

const (
	defaultClientTimeout = 15 * time.Second
	maxResponseSize      = 4 << 20
)

// TokenSource returns the bearer token sent with each request. An empty token sends none.
type TokenSource func(ctx context.Context) (string, error)

// Client calls the action endpoint of the order API.
type Client struct {
	endpoint string
	http     *http.Client
	token    TokenSource
}

// ClientOption customises a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(client *Client) {
		if c != nil {
			client.http = c
		}
	}
}

// WithTokenSource attaches a Firebase ID token to every request.
func WithTokenSource(src TokenSource) ClientOption {
	return func(client *Client) { client.token = src }
}

// NewClient targets endpoint, the full URL of the exec action route.
func NewClient(endpoint string, opts ...ClientOption) (*Client, error) {
	endpoint = strings.TrimSpace(endpoint)
	parsed, err := url.Parse(endpoint)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("storefront: invalid endpoint %q", endpoint)
	}
	c := &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: defaultClientTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// SubmitResult is the acknowledgement of submitOrder.
type SubmitResult struct {
	OrderID       string
	OrderStatus   domain.FulfillmentStatus
	PaymentStatus domain.PaymentStatus
	Total         decimal.Decimal
	Duplicate     bool
}

// SubmitOrder posts a built order. The order keeps its ID so a resubmission is acknowledged as a
// duplicate instead of creating a second order.
func (c *Client) SubmitOrder(ctx context.Context, order domain.Order) (SubmitResult, error) {
	doc := orderrecord.ToDocument(order)
	body, err := c.call(ctx, http.MethodPost, "submitOrder", map[string]any{
		"order":    doc["order"],
		"customer": doc["customer"],
		"userId":   doc["accountId"],
	})
	if err != nil {
		return SubmitResult{}, err
	}
	return SubmitResult{
		OrderID:       stringField(body, "orderId"),
		OrderStatus:   domain.FulfillmentStatus(stringField(body, "orderStatus")),
		PaymentStatus: domain.PaymentStatus(stringField(body, "paymentStatus")),
		Total:         decimalField(body, "total"),
		Duplicate:     body["duplicate"] == true,
	}, nil
}

// ListOrders returns the orders of account, newest first. A guest reference lists guest orders.
func (c *Client) ListOrders(ctx context.Context, account domain.AccountRef, limit int) ([]domain.Order, error) {
	params := map[string]any{"userId": orderrecord.AccountID(account)}
	if limit > 0 {
		params["limit"] = limit
	}
	body, err := c.call(ctx, http.MethodGet, "getOrders", params)
	if err != nil {
		return nil, err
	}
	return decodeOrders(body["orders"])
}

// ListAllOrders returns every order plus the total count. It requires a staff or admin token.
func (c *Client) ListAllOrders(ctx context.Context, limit int) ([]domain.Order, int, error) {
	params := map[string]any{}
	if limit > 0 {
		params["limit"] = limit
	}
	body, err := c.call(ctx, http.MethodGet, "getAllOrders", params)
	if err != nil {
		return nil, 0, err
	}
	orders, err := decodeOrders(body["orders"])
	if err != nil {
		return nil, 0, err
	}
	return orders, intField(body, "totalCount"), nil
}

// OrderDetails fetches one order by ID.
func (c *Client) OrderDetails(ctx context.Context, orderID string) (domain.Order, error) {
	body, err := c.call(ctx, http.MethodGet, "getOrderDetails", map[string]any{"orderId": orderID})
	if err != nil {
		return domain.Order{}, err
	}
	raw, ok := body["order"].(map[string]any)
	if !ok {
		return domain.Order{}, fmt.Errorf("storefront: getOrderDetails returned no order")
	}
	return orderrecord.Normalize(orderrecord.Record(raw))
}

// OrderStats summarises the orders of an account.
type OrderStats struct {
	TotalOrders       int
	TotalSpent        decimal.Decimal
	AverageOrderValue decimal.Decimal
	OrdersByStatus    map[string]int
}

// OrderStats fetches the account summary.
func (c *Client) OrderStats(ctx context.Context, account domain.AccountRef) (OrderStats, error) {
	body, err := c.call(ctx, http.MethodGet, "getOrderStats", map[string]any{"userId": orderrecord.AccountID(account)})
	if err != nil {
		return OrderStats{}, err
	}
	stats := OrderStats{
		TotalOrders:       intField(body, "totalOrders"),
		TotalSpent:        decimalField(body, "totalSpent"),
		AverageOrderValue: decimalField(body, "averageOrderValue"),
		OrdersByStatus:    map[string]int{},
	}
	if byStatus, ok := body["ordersByStatus"].(map[string]any); ok {
		for status := range byStatus {
			stats.OrdersByStatus[status] = intField(byStatus, status)
		}
	}
	return stats, nil
}

// StatusUpdate is an operator fulfillment change. Nil amounts leave the stored values alone.
type StatusUpdate struct {
	OrderID     string
	Status      domain.FulfillmentStatus
	Courier     string
	TrackingID  string
	Comments    string
	ExtraAmount *decimal.Decimal
	CODCharges  *decimal.Decimal
	Force       bool
}

// StatusUpdateResult echoes the stored fulfillment fields.
type StatusUpdateResult struct {
	OrderID     string
	Status      domain.FulfillmentStatus
	Courier     string
	TrackingID  string
	Comments    string
	Total       decimal.Decimal
	LastUpdated time.Time
}

// UpdateOrderStatus posts an updateOrderStatus action. It requires a staff or admin token.
func (c *Client) UpdateOrderStatus(ctx context.Context, update StatusUpdate) (StatusUpdateResult, error) {
	data := map[string]any{
		"orderId":     update.OrderID,
		"orderStatus": string(update.Status),
		"courier":     update.Courier,
		"trackingId":  update.TrackingID,
		"comments":    update.Comments,
	}
	if update.ExtraAmount != nil {
		data["extraAmount"] = update.ExtraAmount.String()
	}
	if update.CODCharges != nil {
		data["codCharges"] = update.CODCharges.String()
	}
	if update.Force {
		data["force"] = true
	}
	body, err := c.call(ctx, http.MethodPost, "updateOrderStatus", map[string]any{"data": data})
	if err != nil {
		return StatusUpdateResult{}, err
	}
	result := StatusUpdateResult{
		OrderID:    stringField(body, "orderId"),
		Status:     domain.FulfillmentStatus(stringField(body, "orderStatus")),
		Courier:    stringField(body, "courier"),
		TrackingID: stringField(body, "trackingId"),
		Comments:   stringField(body, "comments"),
		Total:      decimalField(body, "total"),
	}
	if ts, err := time.Parse(time.RFC3339, stringField(body, "lastUpdated")); err == nil {
		result.LastUpdated = ts
	}
	return result, nil
}

// PricingConfig fetches the store pricing configuration.
func (c *Client) PricingConfig(ctx context.Context, refresh bool) (domain.PricingConfig, error) {
	params := map[string]any{}
	if refresh {
		params["refresh"] = true
	}
	body, err := c.call(ctx, http.MethodGet, "getPricingConfig", params)
	if err != nil {
		return domain.PricingConfig{}, err
	}
	raw, ok := body["config"].(map[string]any)
	if !ok {
		return domain.PricingConfig{}, fmt.Errorf("storefront: getPricingConfig returned no config")
	}
	return decodePricingConfig(raw)
}

func (c *Client) call(ctx context.Context, method, action string, params map[string]any) (map[string]any, error) {
	req, err := c.newRequest(ctx, method, action, params)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrTransport, action, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: read response: %v", ErrTransport, action, err)
	}
	var body map[string]any
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	if err := decoder.Decode(&body); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return nil, &APIError{Status: resp.StatusCode, Code: "http_" + strconv.Itoa(resp.StatusCode), Message: http.StatusText(resp.StatusCode)}
		}
		return nil, fmt.Errorf("storefront: %s: decode response: %w", action, err)
	}
	if success, _ := body["success"].(bool); !success || resp.StatusCode >= http.StatusBadRequest {
		status := resp.StatusCode
		if status < http.StatusBadRequest {
			status = http.StatusInternalServerError
		}
		return nil, &APIError{Status: status, Code: stringField(body, "error"), Message: stringField(body, "message")}
	}
	return body, nil
}

func (c *Client) newRequest(ctx context.Context, method, action string, params map[string]any) (*http.Request, error) {
	var (
		req *http.Request
		err error
	)
	if method == http.MethodGet {
		query := url.Values{}
		query.Set("action", action)
		for key, value := range params {
			query.Set(key, fmt.Sprint(value))
		}
		req, err = http.NewRequestWithContext(ctx, method, c.endpoint+"?"+query.Encode(), nil)
	} else {
		payload := make(map[string]any, len(params)+1)
		for key, value := range params {
			payload[key] = value
		}
		payload["action"] = action
		encoded, encErr := json.Marshal(payload)
		if encErr != nil {
			return nil, fmt.Errorf("storefront: encode %s: %w", action, encErr)
		}
		req, err = http.NewRequestWithContext(ctx, method, c.endpoint, bytes.NewReader(encoded))
		if err == nil {
			req.Header.Set("Content-Type", "application/json")
		}
	}
	if err != nil {
		return nil, fmt.Errorf("storefront: build %s request: %w", action, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != nil {
		token, err := c.token(ctx)
		if err != nil {
			return nil, fmt.Errorf("storefront: token: %w", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	return req, nil
}

func decodeOrders(raw any) ([]domain.Order, error) {
	list, _ := raw.([]any)
	orders := make([]domain.Order, 0, len(list))
	for _, entry := range list {
		m, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		order, err := orderrecord.Normalize(orderrecord.Record(m))
		if err != nil {
			if errors.Is(err, orderrecord.ErrMalformedRecord) {
				continue
			}
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, nil
}

func decodePricingConfig(raw map[string]any) (domain.PricingConfig, error) {
	cfg := domain.PricingConfig{
		TaxPercentage:         decimalField(raw, "taxPercentage"),
		DefaultShippingMethod: stringField(raw, "defaultShippingMethod"),
		FreeShippingThreshold: decimalField(raw, "freeShippingThreshold"),
		CODCharge:             decimalField(raw, "codCharge"),
		ShippingCosts:         map[string]decimal.Decimal{},
	}
	if costs, ok := raw["shippingCosts"].(map[string]any); ok {
		for method := range costs {
			cfg.ShippingCosts[method] = decimalField(costs, method)
		}
	}
	promos, _ := raw["promoCodes"].([]any)
	for _, entry := range promos {
		m, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		cfg.PromoCodes = append(cfg.PromoCodes, domain.PromoCode{
			Code:           stringField(m, "code"),
			DiscountAmount: decimalField(m, "discountAmount"),
			Kind:           domain.PromoKind(stringField(m, "kind")),
			AppliesTo:      domain.PromoTarget(stringField(m, "appliesTo")),
		})
	}
	if err := cfg.Validate(); err != nil {
		return domain.PricingConfig{}, fmt.Errorf("storefront: pricing config: %w", err)
	}
	return cfg, nil
}

func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func decimalField(m map[string]any, key string) decimal.Decimal {
	switch v := m[key].(type) {
	case json.Number:
		d, err := decimal.NewFromString(v.String())
		if err == nil {
			return d
		}
	case float64:
		return decimal.NewFromFloat(v)
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(v))
		if err == nil {
			return d
		}
	}
	return decimal.Zero
}

func intField(m map[string]any, key string) int {
	d := decimalField(m, key)
	return int(d.IntPart())
}
