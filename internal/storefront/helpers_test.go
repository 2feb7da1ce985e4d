package storefront

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cockroachdb/pebble/vfs"
	"github.com/shopspring/decimal"

	domain "github.com/loomhouse/api/internal/domain"
	"github.com/loomhouse/api/internal/handlers"
	"github.com/loomhouse/api/internal/repositories/memory"
	"github.com/loomhouse/api/internal/services"
)

var testNow = time.Date(2024, 8, 1, 12, 0, 0, 0, time.UTC)

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func testPricing() domain.PricingConfig {
	return domain.PricingConfig{
		TaxPercentage:         dec("10"),
		ShippingCosts:         map[string]decimal.Decimal{"domestic": dec("9.99"), "express": dec("24.50")},
		DefaultShippingMethod: "domestic",
		FreeShippingThreshold: dec("100"),
		CODCharge:             dec("5"),
		PromoCodes: []domain.PromoCode{
			{Code: "SAVE20", DiscountAmount: dec("20"), Kind: domain.PromoKindFlat, AppliesTo: domain.PromoTargetTotal},
		},
	}
}

func testCustomer() domain.Customer {
	return domain.Customer{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com", Address: "12 Loom St", City: "Leeds"}
}

func testRequest() CheckoutRequest {
	return CheckoutRequest{
		Customer:       testCustomer(),
		Account:        domain.GuestAccount(),
		Items:          []domain.CartLineItem{{ID: "linen", Name: "Linen", UnitPrice: dec("40"), Quantity: 2}},
		ShippingMethod: "domestic",
		PaymentMethod:  domain.PaymentMethodCOD,
	}
}

func newTestOutbox(t *testing.T) *Outbox {
	t.Helper()
	outbox, err := OpenOutbox("outbox", WithOutboxFS(vfs.NewMem()), WithOutboxClock(func() time.Time { return testNow }))
	if err != nil {
		t.Fatalf("open outbox: %v", err)
	}
	t.Cleanup(func() { _ = outbox.Close() })
	return outbox
}

func newTestBuilder(suffix string) *services.OrderBuilder {
	return services.NewOrderBuilder(services.OrderBuilderDeps{
		Clock:  func() time.Time { return testNow },
		Suffix: func() string { return suffix },
	})
}

// newTestAPI serves the real action handlers over an in-memory store.
func newTestAPI(t *testing.T) (*Client, *httptest.Server) {
	t.Helper()
	registry := memory.NewRegistry(memory.ShapeRow)
	pricing, err := services.NewPricingService(services.PricingServiceDeps{Source: memory.StaticPricingConfig{Config: testPricing()}})
	if err != nil {
		t.Fatalf("pricing service: %v", err)
	}
	submission, err := services.NewOrderSubmissionService(services.OrderSubmissionServiceDeps{
		Orders:  registry.Orders(),
		Items:   registry.OrderItems(),
		Pricing: pricing,
	})
	if err != nil {
		t.Fatalf("submission service: %v", err)
	}
	queries, err := services.NewOrderQueryService(services.OrderQueryServiceDeps{Orders: registry.Orders(), Items: registry.OrderItems()})
	if err != nil {
		t.Fatalf("query service: %v", err)
	}
	status, err := services.NewOrderStatusService(services.OrderStatusServiceDeps{Orders: registry.Orders(), Items: registry.OrderItems()})
	if err != nil {
		t.Fatalf("status service: %v", err)
	}
	actions := handlers.NewActionHandlers(handlers.ActionHandlersDeps{
		Pricing:    pricing,
		Submission: submission,
		Queries:    queries,
		Status:     status,
	})
	server := httptest.NewServer(handlers.NewRouter(handlers.WithActionRoutes(actions.Routes)))
	t.Cleanup(server.Close)

	client, err := NewClient(server.URL + "/api/v1/exec")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client, server
}

type stubOrderAPI struct {
	pricingFn func(ctx context.Context, refresh bool) (domain.PricingConfig, error)
	submitFn  func(ctx context.Context, order domain.Order) (SubmitResult, error)
}

func (s *stubOrderAPI) PricingConfig(ctx context.Context, refresh bool) (domain.PricingConfig, error) {
	if s.pricingFn == nil {
		return testPricing(), nil
	}
	return s.pricingFn(ctx, refresh)
}

func (s *stubOrderAPI) SubmitOrder(ctx context.Context, order domain.Order) (SubmitResult, error) {
	return s.submitFn(ctx, order)
}

type stubOrderReader struct {
	detailsFn func(ctx context.Context, orderID string) (domain.Order, error)
}

func (s *stubOrderReader) OrderDetails(ctx context.Context, orderID string) (domain.Order, error) {
	return s.detailsFn(ctx, orderID)
}
