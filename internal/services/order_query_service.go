package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	domain "github.com/loomhouse/api/internal/domain"
	"github.com/loomhouse/api/internal/orderrecord"
	"github.com/loomhouse/api/internal/repositories"
)

const (
	defaultOrderListLimit = 50
	maxOrderListLimit     = 500
)

// ListOrdersQuery selects orders for one account (ListForAccount) or everyone (ListAll).
type ListOrdersQuery struct {
	Account domain.AccountRef
	Limit   int
}

// OrderListResult is an admin listing with the count of matching orders before the limit.
type OrderListResult struct {
	Orders     []Order
	TotalCount int
}

// OrderStats summarises an account's orders.
type OrderStats struct {
	TotalOrders       int
	TotalSpent        domain.Money
	AverageOrderValue domain.Money
	OrdersByStatus    map[string]int
}

// OrderQueryServiceDeps enumerates collaborators for the query service.
type OrderQueryServiceDeps struct {
	Orders  repositories.OrderRepository
	Items   repositories.OrderItemRepository
	Metrics OrderMetrics
	Logger  func(ctx context.Context, event string, fields map[string]any)
}

type orderQueryService struct {
	orders  repositories.OrderRepository
	items   repositories.OrderItemRepository
	metrics OrderMetrics
	logger  func(context.Context, string, map[string]any)
}

// NewOrderQueryService wires the query service.
func NewOrderQueryService(deps OrderQueryServiceDeps) (OrderQueryService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order query service: order repository is required")
	}
	if deps.Items == nil {
		return nil, errors.New("order query service: item repository is required")
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = noopOrderMetrics{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &orderQueryService{
		orders:  deps.Orders,
		items:   deps.Items,
		metrics: metrics,
		logger:  logger,
	}, nil
}

func (s *orderQueryService) ListForAccount(ctx context.Context, query ListOrdersQuery) ([]Order, error) {
	decoded, err := s.list(ctx, repositories.AccountOrders(query.Account))
	if err != nil {
		return nil, err
	}
	return s.materialise(ctx, limitDecoded(decoded, query.Limit)), nil
}

func (s *orderQueryService) ListAll(ctx context.Context, query ListOrdersQuery) (OrderListResult, error) {
	decoded, err := s.list(ctx, repositories.AllOrders())
	if err != nil {
		return OrderListResult{}, err
	}
	return OrderListResult{
		Orders:     s.materialise(ctx, limitDecoded(decoded, query.Limit)),
		TotalCount: len(decoded),
	}, nil
}

func (s *orderQueryService) GetDetails(ctx context.Context, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	rec, err := s.orders.FindRecord(ctx, orderID)
	if err != nil {
		return Order{}, mapOrderRepositoryError(err)
	}
	decoded, err := orderrecord.Decode(rec)
	if err != nil {
		return Order{}, fmt.Errorf("order query: decode %s: %w", orderID, err)
	}
	return s.resolveItems(ctx, decoded), nil
}

func (s *orderQueryService) Stats(ctx context.Context, account domain.AccountRef) (OrderStats, error) {
	decoded, err := s.list(ctx, repositories.AccountOrders(account))
	if err != nil {
		return OrderStats{}, err
	}
	stats := OrderStats{
		TotalOrders:       len(decoded),
		TotalSpent:        decimal.Zero,
		AverageOrderValue: decimal.Zero,
		OrdersByStatus:    make(map[string]int),
	}
	for _, d := range decoded {
		stats.TotalSpent = stats.TotalSpent.Add(d.Order.Total)
		stats.OrdersByStatus[string(d.Order.Status)]++
	}
	stats.TotalSpent = domain.RoundMoney(stats.TotalSpent)
	if stats.TotalOrders > 0 {
		stats.AverageOrderValue = domain.RoundMoney(stats.TotalSpent.Div(decimal.NewFromInt(int64(stats.TotalOrders))))
	}
	return stats, nil
}

// list decodes every record in scope, newest first. Malformed records are skipped.
func (s *orderQueryService) list(ctx context.Context, scope repositories.OrderScope) ([]orderrecord.Decoded, error) {
	records, err := s.orders.ListRecords(ctx, scope)
	if err != nil {
		return nil, mapOrderRepositoryError(err)
	}
	decoded := make([]orderrecord.Decoded, 0, len(records))
	for _, rec := range records {
		d, err := orderrecord.Decode(rec)
		if err != nil {
			s.logger(ctx, "order.record.malformed", map[string]any{
				"orderId": rec.OrderID(),
				"error":   err.Error(),
			})
			continue
		}
		decoded = append(decoded, d)
	}
	sort.SliceStable(decoded, func(i, j int) bool {
		return decoded[i].Order.CreatedAt.After(decoded[j].Order.CreatedAt)
	})
	return decoded, nil
}

func (s *orderQueryService) materialise(ctx context.Context, decoded []orderrecord.Decoded) []Order {
	out := make([]Order, 0, len(decoded))
	for _, d := range decoded {
		out = append(out, s.resolveItems(ctx, d))
	}
	return out
}

// resolveItems trusts complete embedded items and otherwise reloads them from the item store.
func (s *orderQueryService) resolveItems(ctx context.Context, decoded orderrecord.Decoded) Order {
	order := decoded.Order
	if decoded.Items.Trusted() {
		return order
	}
	if decoded.Items == orderrecord.ItemsMalformed && decoded.ItemsErr != nil {
		s.logger(ctx, "order.items.parse_failed", map[string]any{
			"orderId": order.ID,
			"error":   decoded.ItemsErr.Error(),
		})
	}
	s.metrics.ItemsFallback(decoded.Items.String())

	rows, err := s.items.ListItems(ctx, order.ID, order.Account)
	if err != nil {
		s.logger(ctx, "order.items.fallback.failed", map[string]any{
			"orderId": order.ID,
			"error":   err.Error(),
		})
		return order
	}
	if len(rows) == 0 {
		return order
	}
	order.Items, order.ComplementaryItems = orderrecord.ItemsFromRows(rows)
	return order
}

func limitDecoded(decoded []orderrecord.Decoded, limit int) []orderrecord.Decoded {
	switch {
	case limit <= 0:
		limit = defaultOrderListLimit
	case limit > maxOrderListLimit:
		limit = maxOrderListLimit
	}
	if len(decoded) > limit {
		return decoded[:limit]
	}
	return decoded
}
