package storefront

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	domain "github.com/loomhouse/api/internal/domain"
	"github.com/loomhouse/api/internal/services"
)

func TestClientOrderRoundTrip(t *testing.T) {
	client, _ := newTestAPI(t)
	ctx := context.Background()

	cfg, err := client.PricingConfig(ctx, false)
	if err != nil {
		t.Fatalf("pricing config: %v", err)
	}
	if !cfg.CODCharge.Equal(dec("5")) || cfg.DefaultShippingMethod != "domestic" || len(cfg.PromoCodes) != 1 {
		t.Fatalf("unexpected pricing config %+v", cfg)
	}

	req := testRequest()
	totals, err := services.ComputeOrderTotals(services.TotalsInput{
		Items:          req.Items,
		ShippingMethod: req.ShippingMethod,
		PaymentMethod:  req.PaymentMethod,
	}, cfg)
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	order, err := newTestBuilder("RT0001").Build(services.BuildOrderInput{
		Customer:      req.Customer,
		Account:       req.Account,
		Items:         req.Items,
		Totals:        totals,
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	submitted, err := client.SubmitOrder(ctx, order)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if submitted.OrderID != order.ID || submitted.PaymentStatus != domain.PaymentStatusPendingCOD || submitted.Duplicate {
		t.Fatalf("unexpected submit result %+v", submitted)
	}
	if !submitted.Total.Equal(order.Total) {
		t.Fatalf("expected server total %s, got %s", order.Total, submitted.Total)
	}
	again, err := client.SubmitOrder(ctx, order)
	if err != nil || !again.Duplicate {
		t.Fatalf("expected duplicate acknowledgement, got %+v err=%v", again, err)
	}

	orders, err := client.ListOrders(ctx, domain.GuestAccount(), 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(orders) != 1 || orders[0].ID != order.ID || !orders[0].Account.IsGuest() {
		t.Fatalf("expected the guest order, got %+v", orders)
	}
	if len(orders[0].Items) != 1 || orders[0].Customer.Email != "ada@example.com" {
		t.Fatalf("expected normalised items and customer, got %+v", orders[0])
	}

	update, err := client.UpdateOrderStatus(ctx, StatusUpdate{
		OrderID:    order.ID,
		Status:     domain.StatusShipped,
		Courier:    "DHL",
		TrackingID: "TRK-9",
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if update.Status != domain.StatusShipped || update.TrackingID != "TRK-9" || update.LastUpdated.IsZero() {
		t.Fatalf("unexpected update result %+v", update)
	}

	details, err := client.OrderDetails(ctx, order.ID)
	if err != nil {
		t.Fatalf("details: %v", err)
	}
	if details.Status != domain.StatusShipped || details.Timestamps.ShippedAt == nil {
		t.Fatalf("expected shipped order, got %+v", details)
	}

	stats, err := client.OrderStats(ctx, domain.GuestAccount())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalOrders != 1 || !stats.TotalSpent.Equal(order.Total) || stats.OrdersByStatus["Shipped"] != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	all, count, err := client.ListAllOrders(ctx, 0)
	if err != nil || count != 1 || len(all) != 1 {
		t.Fatalf("expected one order overall, got %d/%d err=%v", len(all), count, err)
	}
}

func TestClientMapsAPIErrors(t *testing.T) {
	client, _ := newTestAPI(t)
	_, err := client.OrderDetails(context.Background(), "ORD-404")
	if !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != "order_not_found" || apiErr.Temporary() {
		t.Fatalf("expected permanent order_not_found, got %+v", apiErr)
	}
	if IsRetryable(err) {
		t.Fatalf("not found must not be retryable")
	}
}

func TestClientTransportFailureIsRetryable(t *testing.T) {
	client, server := newTestAPI(t)
	server.Close()
	_, err := client.OrderDetails(context.Background(), "ORD-1")
	if !errors.Is(err, ErrTransport) || !IsRetryable(err) {
		t.Fatalf("expected retryable transport error, got %v", err)
	}
}

func TestClientServerErrorWithoutEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	t.Cleanup(server.Close)
	client, err := NewClient(server.URL)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	_, err = client.ListOrders(context.Background(), domain.GuestAccount(), 0)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusBadGateway || !IsRetryable(err) {
		t.Fatalf("expected retryable 502, got %v", err)
	}
}

func TestClientSendsBearerToken(t *testing.T) {
	var gotAuth, gotAction string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAction = r.URL.Query().Get("action")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"orders":[],"count":0}`))
	}))
	t.Cleanup(server.Close)

	client, err := NewClient(server.URL, WithTokenSource(func(context.Context) (string, error) {
		return "id-token", nil
	}))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.ListOrders(context.Background(), domain.AccountFor("uid-1"), 0); err != nil {
		t.Fatalf("list: %v", err)
	}
	if gotAuth != "Bearer id-token" || gotAction != "getOrders" {
		t.Fatalf("unexpected request auth=%q action=%q", gotAuth, gotAction)
	}
}

func TestNewClientRejectsRelativeEndpoint(t *testing.T) {
	if _, err := NewClient("/api/v1/exec"); err == nil {
		t.Fatalf("expected error for endpoint without host")
	}
}
