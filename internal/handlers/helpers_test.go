package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/loomhouse/api/internal/platform/auth"
	"github.com/loomhouse/api/internal/services"
)

type stubPricingService struct {
	configFn    func(ctx context.Context, refresh bool) (services.PricingConfig, error)
	calculateFn func(ctx context.Context, input services.TotalsInput) (services.Totals, error)
}

func (s *stubPricingService) Config(ctx context.Context, refresh bool) (services.PricingConfig, error) {
	return s.configFn(ctx, refresh)
}

func (s *stubPricingService) Calculate(ctx context.Context, input services.TotalsInput) (services.Totals, error) {
	return s.calculateFn(ctx, input)
}

type stubSubmissionService struct {
	submitFn func(ctx context.Context, cmd services.SubmitOrderCommand) (services.SubmitOrderResult, error)
}

func (s *stubSubmissionService) Submit(ctx context.Context, cmd services.SubmitOrderCommand) (services.SubmitOrderResult, error) {
	return s.submitFn(ctx, cmd)
}

type stubQueryService struct {
	listForAccountFn func(ctx context.Context, query services.ListOrdersQuery) ([]services.Order, error)
	listAllFn        func(ctx context.Context, query services.ListOrdersQuery) (services.OrderListResult, error)
	getDetailsFn     func(ctx context.Context, orderID string) (services.Order, error)
	statsFn          func(ctx context.Context, account services.AccountRef) (services.OrderStats, error)
}

func (s *stubQueryService) ListForAccount(ctx context.Context, query services.ListOrdersQuery) ([]services.Order, error) {
	return s.listForAccountFn(ctx, query)
}

func (s *stubQueryService) ListAll(ctx context.Context, query services.ListOrdersQuery) (services.OrderListResult, error) {
	return s.listAllFn(ctx, query)
}

func (s *stubQueryService) GetDetails(ctx context.Context, orderID string) (services.Order, error) {
	return s.getDetailsFn(ctx, orderID)
}

func (s *stubQueryService) Stats(ctx context.Context, account services.AccountRef) (services.OrderStats, error) {
	return s.statsFn(ctx, account)
}

type stubStatusService struct {
	updateFn func(ctx context.Context, cmd services.UpdateOrderStatusCommand) (services.Order, error)
}

func (s *stubStatusService) UpdateStatus(ctx context.Context, cmd services.UpdateOrderStatusCommand) (services.Order, error) {
	return s.updateFn(ctx, cmd)
}

func newActionRouter(h *ActionHandlers, identity *auth.Identity) chi.Router {
	r := chi.NewRouter()
	if identity != nil {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				next.ServeHTTP(w, req.WithContext(auth.WithIdentity(req.Context(), identity)))
			})
		})
	}
	h.Routes(r)
	return r
}

func postJSON(t *testing.T, router http.Handler, body map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/exec", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func get(router http.Handler, target string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
	return body
}

func submitBody() map[string]any {
	return map[string]any{
		"action": "submitOrder",
		"order": map[string]any{
			"paymentMethod":  "cod",
			"shippingMethod": "domestic",
			"items": []any{
				map[string]any{"id": "linen", "name": "Linen", "price": 20, "quantity": 2},
			},
			"subtotal":     40,
			"tax":          5,
			"shippingCost": 9.99,
		},
		"customer": map[string]any{
			"name":    "Ada Lovelace",
			"email":   "ada@example.com",
			"address": "12 Loom St",
		},
	}
}
