package storefront

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	domain "github.com/loomhouse/api/internal/domain"
	"github.com/loomhouse/api/internal/services"
)

const defaultSessionPricingTTL = 5 * time.Minute

// OrderAPI is the part of Client used by Checkout.
type OrderAPI interface {
	PricingConfig(ctx context.Context, refresh bool) (domain.PricingConfig, error)
	SubmitOrder(ctx context.Context, order domain.Order) (SubmitResult, error)
}

// CheckoutDeps wires a Checkout.
type CheckoutDeps struct {
	API        OrderAPI
	Outbox     *Outbox
	Builder    *services.OrderBuilder
	PricingTTL time.Duration
	Clock      func() time.Time
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

// Checkout prices carts and places orders for one shopper session.
type Checkout struct {
	api     OrderAPI
	outbox  *Outbox
	builder *services.OrderBuilder
	logger  func(context.Context, string, map[string]any)
	pricing *pricingSession
}

// NewCheckout validates deps and returns a Checkout.
func NewCheckout(deps CheckoutDeps) (*Checkout, error) {
	if deps.API == nil {
		return nil, errors.New("storefront checkout: order api is required")
	}
	if deps.Outbox == nil {
		return nil, errors.New("storefront checkout: outbox is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	builder := deps.Builder
	if builder == nil {
		builder = services.NewOrderBuilder(services.OrderBuilderDeps{Clock: clock})
	}
	ttl := deps.PricingTTL
	if ttl <= 0 {
		ttl = defaultSessionPricingTTL
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &Checkout{
		api:     deps.API,
		outbox:  deps.Outbox,
		builder: builder,
		logger:  logger,
		pricing: &pricingSession{load: deps.API.PricingConfig, ttl: ttl, now: clock},
	}, nil
}

// Quote prices a cart against the session pricing config.
func (c *Checkout) Quote(ctx context.Context, input services.TotalsInput) (domain.Totals, error) {
	cfg, err := c.pricing.get(ctx)
	if err != nil {
		return domain.Totals{}, err
	}
	return services.ComputeOrderTotals(input, cfg)
}

// RefreshPricing drops the session pricing config so the next quote reloads it, bypassing the
// server's own config cache.
func (c *Checkout) RefreshPricing() {
	c.pricing.invalidate()
}

// CheckoutRequest is the shopper's cart and details at the moment of purchase.
type CheckoutRequest struct {
	Customer           domain.Customer
	Account            domain.AccountRef
	Items              []domain.CartLineItem
	ComplementaryItems []domain.ComplementaryItem
	ShippingMethod     string
	PromoCode          string
	PaymentMethod      domain.PaymentMethod
	Card               *services.CardInput
}

// CheckoutResult is the placed order and whether the API has it yet.
type CheckoutResult struct {
	Order      domain.Order
	Totals     domain.Totals
	SyncStatus SyncStatus
	SyncError  string
	Duplicate  bool
}

// PlaceOrder prices and builds the order, stores it in the outbox and submits it.
// Validation failures are returned before anything is stored. Once stored, a transport or
// server failure still returns the order with SyncStatus failed and a nil error; an API
// rejection returns the order with SyncStatus rejected and the API error.
func (c *Checkout) PlaceOrder(ctx context.Context, req CheckoutRequest) (CheckoutResult, error) {
	totals, err := c.Quote(ctx, services.TotalsInput{
		Items:              req.Items,
		ComplementaryItems: req.ComplementaryItems,
		ShippingMethod:     req.ShippingMethod,
		PromoCode:          req.PromoCode,
		PaymentMethod:      req.PaymentMethod,
	})
	if err != nil {
		return CheckoutResult{}, err
	}
	order, err := c.builder.Build(services.BuildOrderInput{
		Customer:           req.Customer,
		Account:            req.Account,
		Items:              req.Items,
		ComplementaryItems: req.ComplementaryItems,
		Totals:             totals,
		PaymentMethod:      req.PaymentMethod,
		Card:               req.Card,
	})
	if err != nil {
		return CheckoutResult{}, err
	}
	if _, err := c.outbox.Put(order); err != nil {
		return CheckoutResult{}, err
	}

	result := CheckoutResult{Order: order, Totals: totals}
	entry, submitted, err := c.submit(ctx, order)
	result.SyncStatus = entry.SyncStatus
	result.SyncError = entry.LastError
	result.Duplicate = submitted.Duplicate
	if entry.SyncStatus == SyncRejected {
		return result, err
	}
	return result, nil
}

// ReconcileReport counts the outcome of a Reconcile pass.
type ReconcileReport struct {
	Synced   int
	Failed   int
	Rejected int
}

// Reconcile resubmits pending and failed outbox entries, oldest first.
func (c *Checkout) Reconcile(ctx context.Context) (ReconcileReport, error) {
	entries, err := c.outbox.Unsynced()
	if err != nil {
		return ReconcileReport{}, err
	}
	var report ReconcileReport
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		order, err := entry.Order()
		if err != nil {
			if _, markErr := c.outbox.MarkRejected(entry.OrderID, err); markErr != nil {
				return report, markErr
			}
			report.Rejected++
			continue
		}
		updated, _, _ := c.submit(ctx, order)
		switch updated.SyncStatus {
		case SyncSynced:
			report.Synced++
		case SyncRejected:
			report.Rejected++
		default:
			report.Failed++
		}
	}
	c.logger(ctx, "storefront.reconcile.completed", map[string]any{
		"synced":   report.Synced,
		"failed":   report.Failed,
		"rejected": report.Rejected,
	})
	return report, nil
}

// submit sends the order and records the outcome. Outbox write errors are logged so the
// shopper still receives the order.
func (c *Checkout) submit(ctx context.Context, order domain.Order) (OutboxEntry, SubmitResult, error) {
	result, err := c.api.SubmitOrder(ctx, order)
	var (
		entry   OutboxEntry
		markErr error
	)
	switch {
	case err == nil:
		entry, markErr = c.outbox.MarkSynced(order.ID)
	case IsRetryable(err):
		c.logger(ctx, "storefront.order.submit.failed", map[string]any{
			"orderId": order.ID,
			"error":   err.Error(),
		})
		entry, markErr = c.outbox.MarkFailed(order.ID, err)
	default:
		c.logger(ctx, "storefront.order.submit.rejected", map[string]any{
			"orderId": order.ID,
			"error":   err.Error(),
		})
		entry, markErr = c.outbox.MarkRejected(order.ID, err)
	}
	if markErr != nil {
		c.logger(ctx, "storefront.outbox.write.failed", map[string]any{
			"orderId": order.ID,
			"error":   markErr.Error(),
		})
		entry = OutboxEntry{OrderID: order.ID, SyncStatus: SyncPending}
		if err != nil {
			entry.SyncStatus = SyncFailed
			entry.LastError = err.Error()
		}
	}
	return entry, result, err
}

// pricingSession caches the pricing config for one checkout session.
type pricingSession struct {
	load func(ctx context.Context, refresh bool) (domain.PricingConfig, error)
	ttl  time.Duration
	now  func() time.Time

	mu       sync.Mutex
	cfg      *domain.PricingConfig
	loadedAt time.Time
	refresh  bool
}

func (s *pricingSession) get(ctx context.Context) (domain.PricingConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg != nil && s.now().Sub(s.loadedAt) < s.ttl {
		return s.cfg.Clone(), nil
	}
	cfg, err := s.load(ctx, s.refresh)
	if err != nil {
		if s.cfg != nil {
			return s.cfg.Clone(), nil
		}
		return domain.PricingConfig{}, fmt.Errorf("storefront: load pricing config: %w", err)
	}
	s.cfg = &cfg
	s.loadedAt = s.now()
	s.refresh = false
	return cfg.Clone(), nil
}

func (s *pricingSession) invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadedAt = time.Time{}
	s.refresh = true
}
