package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	domain "github.com/loomhouse/api/internal/domain"
	pfirestore "github.com/loomhouse/api/internal/platform/firestore"
	"github.com/loomhouse/api/internal/repositories"
)

const (
	settingsCollection = "settings"
	pricingDocument    = "pricing"
)

type promoDocument struct {
	Code           string  `firestore:"code"`
	DiscountAmount float64 `firestore:"discountAmount"`
	Kind           string  `firestore:"kind"`
	AppliesTo      string  `firestore:"appliesTo"`
}

type pricingDocumentData struct {
	TaxPercentage         float64            `firestore:"taxPercentage"`
	ShippingCosts         map[string]float64 `firestore:"shippingCosts"`
	DefaultShippingMethod string             `firestore:"defaultShippingMethod"`
	FreeShippingThreshold float64            `firestore:"freeShippingThreshold"`
	CODCharge             float64            `firestore:"codCharge"`
	PromoCodes            []promoDocument    `firestore:"promoCodes"`
}

func (d pricingDocumentData) toDomain() (domain.PricingConfig, error) {
	cfg := domain.PricingConfig{
		TaxPercentage:         decimal.NewFromFloat(d.TaxPercentage),
		ShippingCosts:         make(map[string]decimal.Decimal, len(d.ShippingCosts)),
		DefaultShippingMethod: strings.TrimSpace(d.DefaultShippingMethod),
		FreeShippingThreshold: decimal.NewFromFloat(d.FreeShippingThreshold),
		CODCharge:             decimal.NewFromFloat(d.CODCharge),
	}
	for method, cost := range d.ShippingCosts {
		cfg.ShippingCosts[strings.TrimSpace(method)] = decimal.NewFromFloat(cost)
	}
	for _, promo := range d.PromoCodes {
		kind := domain.PromoKind(strings.ToLower(strings.TrimSpace(promo.Kind)))
		if kind == "" {
			kind = domain.PromoKindPercentage
		}
		target := domain.PromoTarget(strings.ToLower(strings.TrimSpace(promo.AppliesTo)))
		if target == "" {
			target = domain.PromoTargetTotal
		}
		cfg.PromoCodes = append(cfg.PromoCodes, domain.PromoCode{
			Code:           strings.ToUpper(strings.TrimSpace(promo.Code)),
			DiscountAmount: decimal.NewFromFloat(promo.DiscountAmount),
			Kind:           kind,
			AppliesTo:      target,
		})
	}
	if err := cfg.Validate(); err != nil {
		return domain.PricingConfig{}, err
	}
	return cfg, nil
}

// PricingConfigRepository reads the pricing settings from settings/pricing.
type PricingConfigRepository struct {
	provider *pfirestore.Provider
}

var _ repositories.PricingConfigRepository = (*PricingConfigRepository)(nil)

// NewPricingConfigRepository constructs the Firestore pricing source.
func NewPricingConfigRepository(provider *pfirestore.Provider) (*PricingConfigRepository, error) {
	if provider == nil {
		return nil, errors.New("pricing config repository requires firestore provider")
	}
	return &PricingConfigRepository{provider: provider}, nil
}

func (r *PricingConfigRepository) LoadPricingConfig(ctx context.Context) (domain.PricingConfig, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.PricingConfig{}, err
	}
	snap, err := client.Collection(settingsCollection).Doc(pricingDocument).Get(ctx)
	if err != nil {
		return domain.PricingConfig{}, pfirestore.WrapError("pricing.load", err)
	}
	var doc pricingDocumentData
	if err := snap.DataTo(&doc); err != nil {
		return domain.PricingConfig{}, pfirestore.WrapError("pricing.decode", err)
	}
	cfg, err := doc.toDomain()
	if err != nil {
		return domain.PricingConfig{}, fmt.Errorf("pricing.decode: %w", err)
	}
	return cfg, nil
}
