package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/loomhouse/api/internal/repositories"
)

const defaultPricingConfigTTL = 10 * time.Minute

// PricingServiceDeps enumerates collaborators for the pricing service.
type PricingServiceDeps struct {
	Source repositories.PricingConfigRepository
	TTL    time.Duration
	Clock  func() time.Time
	Logger func(ctx context.Context, event string, fields map[string]any)
}

type pricingService struct {
	source repositories.PricingConfigRepository
	ttl    time.Duration
	now    func() time.Time
	logger func(context.Context, string, map[string]any)

	group    singleflight.Group
	mu       sync.RWMutex
	cached   *PricingConfig
	loadedAt time.Time
}

// NewPricingService caches the pricing configuration for TTL and prices carts against it.
func NewPricingService(deps PricingServiceDeps) (PricingService, error) {
	if deps.Source == nil {
		return nil, errors.New("pricing service: config source is required")
	}
	ttl := deps.TTL
	if ttl <= 0 {
		ttl = defaultPricingConfigTTL
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &pricingService{
		source: deps.Source,
		ttl:    ttl,
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

func (s *pricingService) Config(ctx context.Context, refresh bool) (PricingConfig, error) {
	if !refresh {
		if cfg, ok := s.fresh(); ok {
			return cfg, nil
		}
	}

	value, err, _ := s.group.Do("pricing-config", func() (any, error) {
		cfg, err := s.source.LoadPricingConfig(ctx)
		if err != nil {
			return nil, err
		}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPricingConfigInvalid, err)
		}
		s.mu.Lock()
		stored := cfg.Clone()
		s.cached = &stored
		s.loadedAt = s.now()
		s.mu.Unlock()
		return cfg, nil
	})
	if err != nil {
		if stale, ok := s.stale(); ok {
			s.logger(ctx, "pricing.config.stale", map[string]any{
				"error": err.Error(),
			})
			return stale, nil
		}
		return PricingConfig{}, fmt.Errorf("pricing service: load config: %w", err)
	}
	cfg := value.(PricingConfig)
	return cfg.Clone(), nil
}

func (s *pricingService) Calculate(ctx context.Context, input TotalsInput) (Totals, error) {
	cfg, err := s.Config(ctx, false)
	if err != nil {
		return Totals{}, err
	}
	totals, err := ComputeOrderTotals(input, cfg)
	if err != nil {
		return Totals{}, err
	}
	if totals.PromoRejected {
		s.logger(ctx, "pricing.promo.rejected", map[string]any{
			"promoCode": input.PromoCode,
		})
	}
	return totals, nil
}

func (s *pricingService) fresh() (PricingConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cached == nil || s.now().Sub(s.loadedAt) >= s.ttl {
		return PricingConfig{}, false
	}
	return s.cached.Clone(), true
}

func (s *pricingService) stale() (PricingConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cached == nil {
		return PricingConfig{}, false
	}
	return s.cached.Clone(), true
}
