package services

import (
	"context"

	domain "github.com/loomhouse/api/internal/domain"
)

// Domain type aliases keep service signatures readable.
type (
	Order         = domain.Order
	Totals        = domain.Totals
	PricingConfig = domain.PricingConfig
	AccountRef    = domain.AccountRef
)

// PricingService serves the cached pricing configuration and prices carts against it.
type PricingService interface {
	Config(ctx context.Context, refresh bool) (PricingConfig, error)
	Calculate(ctx context.Context, input TotalsInput) (Totals, error)
}

// OrderSubmissionService persists checked-out orders.
type OrderSubmissionService interface {
	Submit(ctx context.Context, cmd SubmitOrderCommand) (SubmitOrderResult, error)
}

// OrderQueryService reads persisted orders through the normaliser.
type OrderQueryService interface {
	ListForAccount(ctx context.Context, query ListOrdersQuery) ([]Order, error)
	ListAll(ctx context.Context, query ListOrdersQuery) (OrderListResult, error)
	GetDetails(ctx context.Context, orderID string) (Order, error)
	Stats(ctx context.Context, account AccountRef) (OrderStats, error)
}

// OrderStatusService moves orders through the fulfillment lifecycle.
type OrderStatusService interface {
	UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error)
}

// OrderNotifier sends customer notifications. Failures never fail the calling operation.
type OrderNotifier interface {
	NotifyOrderConfirmed(ctx context.Context, order Order) error
	NotifyOrderShipped(ctx context.Context, order Order) error
}

// OrderMetrics receives counters from the order services.
type OrderMetrics interface {
	OrderSubmitted(paymentMethod string, duplicate bool)
	StatusUpdated(from, to string, forced bool)
	NotificationSent(kind string, err error)
	ItemsFallback(reason string)
}

type noopOrderMetrics struct{}

func (noopOrderMetrics) OrderSubmitted(string, bool)        {}
func (noopOrderMetrics) StatusUpdated(string, string, bool) {}
func (noopOrderMetrics) NotificationSent(string, error)     {}
func (noopOrderMetrics) ItemsFallback(string)               {}

func noopLogger(context.Context, string, map[string]any) {}
