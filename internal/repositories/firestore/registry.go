package firestore

import (
	"context"
	"time"

	pfirestore "github.com/loomhouse/api/internal/platform/firestore"
	"github.com/loomhouse/api/internal/repositories"
)

// Registry wires the Firestore repositories around one shared provider.
type Registry struct {
	provider *pfirestore.Provider
	orders   *OrderRepository
	items    *OrderItemRepository
	pricing  *PricingConfigRepository
	health   repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry builds the repositories. extraChecks join the Firestore probe in health reports.
func NewRegistry(provider *pfirestore.Provider, extraChecks ...repositories.DependencyCheck) (*Registry, error) {
	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, err
	}
	items, err := NewOrderItemRepository(provider)
	if err != nil {
		return nil, err
	}
	pricing, err := NewPricingConfigRepository(provider)
	if err != nil {
		return nil, err
	}
	checks := append([]repositories.DependencyCheck{{
		Name:    "firestore",
		Timeout: 2 * time.Second,
		Check:   provider.Ping,
	}}, extraChecks...)
	health, err := repositories.NewProbeHealthRepository(checks, time.Now)
	if err != nil {
		return nil, err
	}
	return &Registry{provider: provider, orders: orders, items: items, pricing: pricing, health: health}, nil
}

func (r *Registry) Close(context.Context) error {
	return r.provider.Close()
}

func (r *Registry) Orders() repositories.OrderRepository         { return r.orders }
func (r *Registry) OrderItems() repositories.OrderItemRepository { return r.items }
func (r *Registry) Health() repositories.HealthRepository        { return r.health }

// PricingConfig returns the settings/pricing source.
func (r *Registry) PricingConfig() *PricingConfigRepository { return r.pricing }
