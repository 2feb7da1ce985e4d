package memory

import (
	"context"
	"time"

	domain "github.com/loomhouse/api/internal/domain"
	"github.com/loomhouse/api/internal/repositories"
)

// Registry exposes a Store through the repository registry.
type Registry struct {
	store  *Store
	health repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry builds a registry over a fresh store.
func NewRegistry(shape Shape) *Registry {
	store := NewStore(shape)
	health, _ := repositories.NewProbeHealthRepository([]repositories.DependencyCheck{{
		Name:  "memory",
		Check: func(context.Context) error { return nil },
	}}, time.Now)
	return &Registry{store: store, health: health}
}

func (r *Registry) Close(context.Context) error                  { return nil }
func (r *Registry) Orders() repositories.OrderRepository         { return r.store }
func (r *Registry) OrderItems() repositories.OrderItemRepository { return r.store }
func (r *Registry) Health() repositories.HealthRepository        { return r.health }

// Store returns the underlying store.
func (r *Registry) Store() *Store { return r.store }

// StaticPricingConfig serves a fixed configuration, usually assembled from environment settings.
type StaticPricingConfig struct {
	Config domain.PricingConfig
}

var _ repositories.PricingConfigRepository = StaticPricingConfig{}

func (s StaticPricingConfig) LoadPricingConfig(context.Context) (domain.PricingConfig, error) {
	return s.Config.Clone(), nil
}
