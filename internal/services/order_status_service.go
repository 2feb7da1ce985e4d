package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/loomhouse/api/internal/domain"
	"github.com/loomhouse/api/internal/orderrecord"
	"github.com/loomhouse/api/internal/platform/textutil"
	"github.com/loomhouse/api/internal/repositories"
)

// UpdateOrderStatusCommand is an admin fulfillment update. Courier, TrackingID and Comments
// overwrite the stored values; callers resend current values to keep them. ExtraAmount wins over
// its legacy alias AdditionalCost; nil amounts leave the stored value unchanged.
type UpdateOrderStatusCommand struct {
	OrderID        string
	Status         string
	Courier        string
	TrackingID     string
	Comments       string
	ExtraAmount    *decimal.Decimal
	AdditionalCost *decimal.Decimal
	CODCharges     *decimal.Decimal
	Force          bool
	ActorID        string
}

var orderStatusTransitions = map[domain.FulfillmentStatus][]domain.FulfillmentStatus{
	domain.StatusOrderPlaced: {domain.StatusProcessing, domain.StatusShipped, domain.StatusDelivered},
	domain.StatusProcessing:  {domain.StatusShipped, domain.StatusDelivered},
	domain.StatusShipped:     {domain.StatusDelivered},
	domain.StatusDelivered:   {},
}

// OrderStatusServiceDeps enumerates collaborators for the status service.
type OrderStatusServiceDeps struct {
	Orders   repositories.OrderRepository
	Items    repositories.OrderItemRepository
	Notifier OrderNotifier
	Metrics  OrderMetrics
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type orderStatusService struct {
	orders   repositories.OrderRepository
	items    repositories.OrderItemRepository
	notifier OrderNotifier
	metrics  OrderMetrics
	now      func() time.Time
	logger   func(context.Context, string, map[string]any)
}

// NewOrderStatusService wires the status service.
func NewOrderStatusService(deps OrderStatusServiceDeps) (OrderStatusService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order status service: order repository is required")
	}
	if deps.Items == nil {
		return nil, errors.New("order status service: item repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = noopOrderMetrics{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &orderStatusService{
		orders:   deps.Orders,
		items:    deps.Items,
		notifier: deps.Notifier,
		metrics:  metrics,
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

func (s *orderStatusService) UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	target, ok := domain.ParseFulfillmentStatus(cmd.Status)
	if !ok {
		return Order{}, fmt.Errorf("%w: %q", ErrOrderInvalidStatus, cmd.Status)
	}

	order, items, err := s.load(ctx, orderID)
	if err != nil {
		return Order{}, err
	}

	previous := order.Status
	forced := false
	if !canTransition(previous, target) {
		if !cmd.Force {
			return Order{}, fmt.Errorf("%w: cannot move from %s to %s", ErrOrderInvalidState, previous, target)
		}
		forced = true
		s.logger(ctx, "order.status.forced", map[string]any{
			"orderId": orderID,
			"from":    string(previous),
			"to":      string(target),
			"actor":   cmd.ActorID,
		})
	}

	now := s.now()
	firstEntry := stampStatus(&order, target, now)
	previousTracking := order.TrackingID
	order.Status = target
	order.Courier = textutil.PlainText(cmd.Courier)
	order.TrackingID = textutil.PlainText(cmd.TrackingID)
	order.Comments = textutil.PlainText(cmd.Comments)
	order.LastUpdatedAt = now

	if err := applyAdjustments(&order, cmd); err != nil {
		return Order{}, err
	}
	order.RecomputeTotal()
	if order.Total.IsNegative() {
		return Order{}, fmt.Errorf("%w: adjustments would make the total negative", ErrOrderInvalidInput)
	}

	if err := s.orders.Update(ctx, order, items); err != nil {
		return Order{}, mapOrderRepositoryError(err)
	}

	s.metrics.StatusUpdated(string(previous), string(target), forced)
	s.logger(ctx, "order.status.updated", map[string]any{
		"orderId": orderID,
		"from":    string(previous),
		"to":      string(target),
		"actor":   cmd.ActorID,
	})

	if target == domain.StatusShipped && order.TrackingID != "" && (firstEntry || previousTracking != order.TrackingID) {
		s.notifyShipped(ctx, order)
	}
	return order, nil
}

// load normalises the stored record and restores items from the item store when the embedded
// copy is not trustworthy. When neither source yields reliable items the rewrite must keep the
// stored item fields, so the next read still falls back to the item store.
func (s *orderStatusService) load(ctx context.Context, orderID string) (Order, repositories.ItemsWrite, error) {
	rec, err := s.orders.FindRecord(ctx, orderID)
	if err != nil {
		return Order{}, repositories.ReplaceItems, mapOrderRepositoryError(err)
	}
	decoded, err := orderrecord.Decode(rec)
	if err != nil {
		return Order{}, repositories.ReplaceItems, fmt.Errorf("order status: decode %s: %w", orderID, err)
	}
	order := decoded.Order
	if decoded.Items.Trusted() {
		return order, repositories.ReplaceItems, nil
	}
	rows, err := s.items.ListItems(ctx, orderID, order.Account)
	if err != nil {
		s.logger(ctx, "order.items.fallback.failed", map[string]any{
			"orderId": orderID,
			"error":   err.Error(),
		})
		return order, repositories.KeepStoredItems, nil
	}
	if len(rows) == 0 {
		return order, repositories.KeepStoredItems, nil
	}
	order.Items, order.ComplementaryItems = orderrecord.ItemsFromRows(rows)
	return order, repositories.ReplaceItems, nil
}

func (s *orderStatusService) notifyShipped(ctx context.Context, order Order) {
	if s.notifier == nil || order.Customer.Email == "" {
		return
	}
	err := s.notifier.NotifyOrderShipped(ctx, order)
	s.metrics.NotificationSent(NotificationOrderShipped, err)
	if err != nil {
		s.logger(ctx, "order.notification.failed", map[string]any{
			"orderId": order.ID,
			"kind":    NotificationOrderShipped,
			"error":   err.Error(),
		})
	}
}

// canTransition allows forward moves, including skipped stages, and same-state rewrites.
// Legacy records with an unrecognised status may move to any known status.
func canTransition(current, target domain.FulfillmentStatus) bool {
	if current == target {
		return true
	}
	next, ok := orderStatusTransitions[current]
	if !ok {
		return true
	}
	return slices.Contains(next, target)
}

// stampStatus sets the timestamp for target when unset and reports whether it did.
func stampStatus(order *Order, target domain.FulfillmentStatus, now time.Time) bool {
	var slot **time.Time
	switch target {
	case domain.StatusProcessing:
		slot = &order.Timestamps.ProcessingAt
	case domain.StatusShipped:
		slot = &order.Timestamps.ShippedAt
	case domain.StatusDelivered:
		slot = &order.Timestamps.DeliveredAt
	default:
		return false
	}
	if *slot != nil {
		return false
	}
	stamped := now
	*slot = &stamped
	return true
}

func applyAdjustments(order *Order, cmd UpdateOrderStatusCommand) error {
	switch {
	case cmd.ExtraAmount != nil:
		order.ExtraAmount = domain.RoundMoney(*cmd.ExtraAmount)
	case cmd.AdditionalCost != nil:
		order.ExtraAmount = domain.RoundMoney(*cmd.AdditionalCost)
	}
	if cmd.CODCharges == nil {
		return nil
	}
	charge := domain.RoundMoney(*cmd.CODCharges)
	if charge.IsNegative() {
		return fmt.Errorf("%w: cod charges must be non-negative", ErrOrderInvalidInput)
	}
	if order.PaymentMethod != domain.PaymentMethodCOD {
		if charge.IsPositive() {
			return fmt.Errorf("%w: cod charges apply to cash-on-delivery orders only", ErrOrderInvalidInput)
		}
		order.CODCharge = decimal.Zero
		return nil
	}
	order.CODCharge = charge
	return nil
}
