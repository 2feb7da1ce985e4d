package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/loomhouse/api/internal/domain"
	"github.com/loomhouse/api/internal/orderrecord"
	"github.com/loomhouse/api/internal/repositories"
)

// SubmitOrderCommand carries a checkout submission. Order and Customer are nil when the caller
// omitted them. CODCharges is nil when the caller did not send a value; an explicit zero is kept.
type SubmitOrderCommand struct {
	Order      *Order
	Customer   *domain.Customer
	CODCharges *decimal.Decimal
}

// SubmitOrderResult reports the persisted identifiers and statuses.
type SubmitOrderResult struct {
	OrderID       string
	OrderStatus   domain.FulfillmentStatus
	PaymentStatus domain.PaymentStatus
	Duplicate     bool
	Order         Order
}

// OrderSubmissionServiceDeps enumerates collaborators required by the submission service.
type OrderSubmissionServiceDeps struct {
	Orders   repositories.OrderRepository
	Items    repositories.OrderItemRepository
	Pricing  PricingService
	Notifier OrderNotifier
	Metrics  OrderMetrics
	Clock    func() time.Time
	Suffix   func() string
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type orderSubmissionService struct {
	orders   repositories.OrderRepository
	items    repositories.OrderItemRepository
	pricing  PricingService
	notifier OrderNotifier
	metrics  OrderMetrics
	now      func() time.Time
	suffix   func() string
	logger   func(context.Context, string, map[string]any)
}

// NewOrderSubmissionService wires the submission service.
func NewOrderSubmissionService(deps OrderSubmissionServiceDeps) (OrderSubmissionService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order submission service: order repository is required")
	}
	if deps.Items == nil {
		return nil, errors.New("order submission service: item repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	suffix := deps.Suffix
	if suffix == nil {
		suffix = randomSuffix
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = noopOrderMetrics{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &orderSubmissionService{
		orders:   deps.Orders,
		items:    deps.Items,
		pricing:  deps.Pricing,
		notifier: deps.Notifier,
		metrics:  metrics,
		now: func() time.Time {
			return clock().UTC()
		},
		suffix: suffix,
		logger: logger,
	}, nil
}

func (s *orderSubmissionService) Submit(ctx context.Context, cmd SubmitOrderCommand) (SubmitOrderResult, error) {
	if cmd.Order == nil {
		return SubmitOrderResult{}, fmt.Errorf("%w: order is required", ErrOrderInvalidInput)
	}
	if cmd.Customer == nil {
		return SubmitOrderResult{}, fmt.Errorf("%w: customer is required", ErrOrderInvalidInput)
	}

	order, err := s.prepare(ctx, *cmd.Order, *cmd.Customer, cmd.CODCharges)
	if err != nil {
		return SubmitOrderResult{}, err
	}

	if err := s.orders.Insert(ctx, order); err != nil {
		if isRepoConflict(err) {
			return s.acknowledgeDuplicate(ctx, order.ID)
		}
		return SubmitOrderResult{}, mapOrderRepositoryError(err)
	}

	if rows := orderrecord.ItemRows(order); len(rows) > 0 {
		if err := s.items.InsertItems(ctx, rows); err != nil {
			s.logger(ctx, "order.items.persist.failed", map[string]any{
				"orderId": order.ID,
				"items":   len(rows),
				"error":   err.Error(),
			})
		}
	}

	s.metrics.OrderSubmitted(string(order.PaymentMethod), false)
	s.logger(ctx, "order.submitted", map[string]any{
		"orderId":       order.ID,
		"paymentMethod": string(order.PaymentMethod),
		"total":         order.Total.StringFixed(2),
		"guest":         order.Account.IsGuest(),
	})

	if order.Customer.Email != "" {
		s.notifyConfirmed(ctx, order)
	}

	return SubmitOrderResult{
		OrderID:       order.ID,
		OrderStatus:   order.Status,
		PaymentStatus: order.PaymentStatus,
		Order:         order,
	}, nil
}

func (s *orderSubmissionService) prepare(ctx context.Context, order Order, customer domain.Customer, codCharges *decimal.Decimal) (Order, error) {
	order.Customer = sanitizeCustomer(customer)
	if order.Customer.Email == "" {
		return Order{}, fmt.Errorf("%w: customer email is required", ErrOrderInvalidInput)
	}
	if len(order.Items) == 0 {
		return Order{}, fmt.Errorf("%w: at least one item is required", ErrOrderInvalidInput)
	}
	method, ok := domain.ParsePaymentMethod(string(order.PaymentMethod))
	if !ok {
		return Order{}, fmt.Errorf("%w: unsupported payment method %q", ErrOrderInvalidInput, order.PaymentMethod)
	}

	now := s.now()
	order.ID = strings.TrimSpace(order.ID)
	if order.ID == "" {
		order.ID = NewOrderID(now, s.suffix())
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.Items = sanitizeItems(order.Items)
	order.ComplementaryItems = sanitizeComplementary(order.ComplementaryItems)
	order.PaymentMethod = method
	order.PaymentStatus = domain.PaymentStatusFor(method)
	if method != domain.PaymentMethodCard {
		order.Payment = nil
	}
	order.Status = domain.StatusOrderPlaced
	order.Timestamps = domain.StatusTimestamps{}
	order.Courier = ""
	order.TrackingID = ""
	order.Comments = ""
	order.ExtraAmount = decimal.Zero
	order.LastUpdatedAt = now

	order, err := s.reprice(ctx, order)
	if err != nil {
		return Order{}, err
	}
	charge, err := s.codCharge(ctx, method, codCharges, order.CODCharge)
	if err != nil {
		return Order{}, err
	}
	order.CODCharge = charge
	order.RecomputeTotal()
	return order, nil
}

// reprice replaces the client's price components with the server's quote for the same cart.
// When the pricing config cannot be loaded the client's components are kept.
func (s *orderSubmissionService) reprice(ctx context.Context, order Order) (Order, error) {
	if s.pricing == nil {
		return order, nil
	}
	totals, err := s.pricing.Calculate(ctx, TotalsInput{
		Items:              order.Items,
		ComplementaryItems: order.ComplementaryItems,
		ShippingMethod:     order.ShippingMethod,
		PromoCode:          order.PromoCode,
		PaymentMethod:      order.PaymentMethod,
	})
	switch {
	case err == nil:
	case errors.Is(err, ErrPricingInvalidInput), errors.Is(err, ErrPricingEmptyCart):
		return Order{}, fmt.Errorf("%w: %v", ErrOrderInvalidInput, err)
	default:
		s.logger(ctx, "order.totals.reprice_unavailable", map[string]any{
			"orderId": order.ID,
			"error":   err.Error(),
		})
		return order, nil
	}

	if !order.Subtotal.Equal(totals.Subtotal) ||
		!order.Discount.Equal(totals.Discount) ||
		!order.ShippingDiscount.Equal(totals.ShippingDiscount) ||
		!order.Tax.Equal(totals.Tax) ||
		!order.ShippingCost.Equal(totals.ShippingCost) {
		s.logger(ctx, "order.totals.repriced", map[string]any{
			"orderId":            order.ID,
			"clientSubtotal":     order.Subtotal.StringFixed(2),
			"clientDiscount":     order.Discount.StringFixed(2),
			"clientTax":          order.Tax.StringFixed(2),
			"clientShippingCost": order.ShippingCost.StringFixed(2),
			"subtotal":           totals.Subtotal.StringFixed(2),
			"discount":           totals.Discount.StringFixed(2),
			"tax":                totals.Tax.StringFixed(2),
			"shippingCost":       totals.ShippingCost.StringFixed(2),
		})
	}
	order.Subtotal = totals.Subtotal
	order.Discount = totals.Discount
	order.ShippingDiscount = totals.ShippingDiscount
	order.Tax = totals.Tax
	order.ShippingCost = totals.ShippingCost
	order.ShippingMethod = totals.ShippingMethod
	order.PromoCode = totals.PromoCode
	return order, nil
}

// codCharge keeps an explicit value, including zero, and fills a missing one from the pricing config.
func (s *orderSubmissionService) codCharge(ctx context.Context, method domain.PaymentMethod, explicit *decimal.Decimal, fallback decimal.Decimal) (decimal.Decimal, error) {
	if method != domain.PaymentMethodCOD {
		return decimal.Zero, nil
	}
	if explicit != nil {
		if explicit.IsNegative() {
			return decimal.Zero, fmt.Errorf("%w: cod charges must be non-negative", ErrOrderInvalidInput)
		}
		return domain.RoundMoney(*explicit), nil
	}
	if s.pricing != nil {
		cfg, err := s.pricing.Config(ctx, false)
		if err == nil {
			return domain.RoundMoney(cfg.CODCharge), nil
		}
		s.logger(ctx, "order.cod_charge.config_unavailable", map[string]any{
			"error": err.Error(),
		})
	}
	if fallback.IsNegative() {
		return decimal.Zero, nil
	}
	return domain.RoundMoney(fallback), nil
}

func (s *orderSubmissionService) acknowledgeDuplicate(ctx context.Context, orderID string) (SubmitOrderResult, error) {
	rec, err := s.orders.FindRecord(ctx, orderID)
	if err != nil {
		return SubmitOrderResult{}, mapOrderRepositoryError(err)
	}
	existing, err := orderrecord.Normalize(rec)
	if err != nil {
		return SubmitOrderResult{}, fmt.Errorf("order submission: read existing %s: %w", orderID, err)
	}
	s.metrics.OrderSubmitted(string(existing.PaymentMethod), true)
	s.logger(ctx, "order.submitted.duplicate", map[string]any{
		"orderId": orderID,
	})
	return SubmitOrderResult{
		OrderID:       existing.ID,
		OrderStatus:   existing.Status,
		PaymentStatus: existing.PaymentStatus,
		Duplicate:     true,
		Order:         existing,
	}, nil
}

func (s *orderSubmissionService) notifyConfirmed(ctx context.Context, order Order) {
	if s.notifier == nil {
		return
	}
	err := s.notifier.NotifyOrderConfirmed(ctx, order)
	s.metrics.NotificationSent(NotificationOrderConfirmed, err)
	if err != nil {
		s.logger(ctx, "order.notification.failed", map[string]any{
			"orderId": order.ID,
			"kind":    NotificationOrderConfirmed,
			"error":   err.Error(),
		})
	}
}
