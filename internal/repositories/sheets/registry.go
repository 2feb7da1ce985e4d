package sheets

import (
	"context"
	"time"

	"github.com/loomhouse/api/internal/repositories"
)

// Registry exposes the spreadsheet-backed repositories.
type Registry struct {
	orders *OrderRepository
	items  *OrderItemRepository
	health repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry builds repositories over the orders and items tabs.
func NewRegistry(client *Client, ordersTab, itemsTab string, extraChecks ...repositories.DependencyCheck) (*Registry, error) {
	orders, err := NewOrderRepository(client, ordersTab)
	if err != nil {
		return nil, err
	}
	items, err := NewOrderItemRepository(client, itemsTab)
	if err != nil {
		return nil, err
	}
	checks := append([]repositories.DependencyCheck{{
		Name:    "sheets",
		Timeout: 3 * time.Second,
		Check:   func(ctx context.Context) error { return client.Probe(ctx, ordersTab) },
	}}, extraChecks...)
	health, err := repositories.NewProbeHealthRepository(checks, time.Now)
	if err != nil {
		return nil, err
	}
	return &Registry{orders: orders, items: items, health: health}, nil
}

func (r *Registry) Close(context.Context) error                  { return nil }
func (r *Registry) Orders() repositories.OrderRepository         { return r.orders }
func (r *Registry) OrderItems() repositories.OrderItemRepository { return r.items }
func (r *Registry) Health() repositories.HealthRepository        { return r.health }
