package services

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/loomhouse/api/internal/domain"
	"github.com/loomhouse/api/internal/orderrecord"
	"github.com/loomhouse/api/internal/repositories"
)

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func decPtr(v string) *decimal.Decimal {
	d := dec(v)
	return &d
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func testPricingConfig() domain.PricingConfig {
	return domain.PricingConfig{
		TaxPercentage: dec("10"),
		ShippingCosts: map[string]decimal.Decimal{
			"domestic": dec("9.99"),
			"express":  dec("24.50"),
		},
		DefaultShippingMethod: "domestic",
		FreeShippingThreshold: dec("100"),
		CODCharge:             dec("5"),
		PromoCodes: []domain.PromoCode{
			{Code: "SAVE20", DiscountAmount: dec("20"), Kind: domain.PromoKindFlat, AppliesTo: domain.PromoTargetTotal},
			{Code: "TENOFF", DiscountAmount: dec("10"), Kind: domain.PromoKindPercentage, AppliesTo: domain.PromoTargetTotal},
			{Code: "SHIPHALF", DiscountAmount: dec("50"), Kind: domain.PromoKindPercentage, AppliesTo: domain.PromoTargetShipping},
			{Code: "SHIPFREE", DiscountAmount: dec("30"), Kind: domain.PromoKindFlat, AppliesTo: domain.PromoTargetShipping},
		},
	}
}

func itemsWorth(total string) []domain.CartLineItem {
	return []domain.CartLineItem{{ID: "fabric", Name: "Fabric", UnitPrice: dec(total), Quantity: 1}}
}

type stubPricingSource struct {
	loadFn func(ctx context.Context) (domain.PricingConfig, error)
}

func (s *stubPricingSource) LoadPricingConfig(ctx context.Context) (domain.PricingConfig, error) {
	return s.loadFn(ctx)
}

type stubOrderRepo struct {
	insertFn func(ctx context.Context, order domain.Order) error
	updateFn func(ctx context.Context, order domain.Order, items repositories.ItemsWrite) error
	findFn   func(ctx context.Context, orderID string) (orderrecord.Record, error)
	listFn   func(ctx context.Context, scope repositories.OrderScope) ([]orderrecord.Record, error)
}

func (s *stubOrderRepo) Insert(ctx context.Context, order domain.Order) error {
	if s.insertFn != nil {
		return s.insertFn(ctx, order)
	}
	return nil
}

func (s *stubOrderRepo) Update(ctx context.Context, order domain.Order, items repositories.ItemsWrite) error {
	if s.updateFn != nil {
		return s.updateFn(ctx, order, items)
	}
	return nil
}

func (s *stubOrderRepo) FindRecord(ctx context.Context, orderID string) (orderrecord.Record, error) {
	return s.findFn(ctx, orderID)
}

func (s *stubOrderRepo) ListRecords(ctx context.Context, scope repositories.OrderScope) ([]orderrecord.Record, error) {
	return s.listFn(ctx, scope)
}

type stubItemRepo struct {
	mu       sync.Mutex
	inserted []orderrecord.ItemRow
	insertFn func(ctx context.Context, rows []orderrecord.ItemRow) error
	listFn   func(ctx context.Context, orderID string, account domain.AccountRef) ([]orderrecord.ItemRow, error)
}

func (s *stubItemRepo) InsertItems(ctx context.Context, rows []orderrecord.ItemRow) error {
	s.mu.Lock()
	s.inserted = append(s.inserted, rows...)
	s.mu.Unlock()
	if s.insertFn != nil {
		return s.insertFn(ctx, rows)
	}
	return nil
}

func (s *stubItemRepo) ListItems(ctx context.Context, orderID string, account domain.AccountRef) ([]orderrecord.ItemRow, error) {
	if s.listFn != nil {
		return s.listFn(ctx, orderID, account)
	}
	return nil, nil
}

type stubNotifier struct {
	mu        sync.Mutex
	confirmed []domain.Order
	shipped   []domain.Order
	err       error
}

func (s *stubNotifier) NotifyOrderConfirmed(_ context.Context, order domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.confirmed = append(s.confirmed, order)
	return s.err
}

func (s *stubNotifier) NotifyOrderShipped(_ context.Context, order domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shipped = append(s.shipped, order)
	return s.err
}

type repoErr struct {
	notFound bool
	conflict bool
}

func (e repoErr) Error() string       { return "repo error" }
func (e repoErr) IsNotFound() bool    { return e.notFound }
func (e repoErr) IsConflict() bool    { return e.conflict }
func (e repoErr) IsUnavailable() bool { return false }

type recordedEvent struct {
	name   string
	fields map[string]any
}

type eventRecorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *eventRecorder) log(_ context.Context, event string, fields map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{name: event, fields: fields})
}

func (r *eventRecorder) has(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.name == name {
			return true
		}
	}
	return false
}
