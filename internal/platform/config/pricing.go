package config

import (
	"strings"

	"github.com/shopspring/decimal"

	domain "github.com/loomhouse/api/internal/domain"
)

const (
	defaultShippingMethod = "domestic"
	defaultShippingCosts  = "domestic=9.99"
)

// parseStaticPricing reads PRICING_* keys. Invalid entries are reported as field names.
//
//	PRICING_TAX_PERCENT=8.5
//	PRICING_SHIPPING_COSTS=domestic=9.99,express=24.50
//	PRICING_DEFAULT_SHIPPING=domestic
//	PRICING_FREE_SHIPPING_THRESHOLD=100
//	PRICING_COD_CHARGE=5
//	PRICING_PROMO_CODES=SAVE10:percentage:10:total,FREESHIP:percentage:100:shipping
func parseStaticPricing(lookup func(string) (string, bool)) (domain.PricingConfig, []string) {
	var invalid []string
	amount := func(key, fallback string) decimal.Decimal {
		raw := stringWithDefault(lookup, key, fallback)
		d, err := decimal.NewFromString(raw)
		if err != nil {
			invalid = append(invalid, key)
			return decimal.Zero
		}
		return d
	}

	cfg := domain.PricingConfig{
		TaxPercentage:         amount("PRICING_TAX_PERCENT", "0"),
		DefaultShippingMethod: stringWithDefault(lookup, "PRICING_DEFAULT_SHIPPING", defaultShippingMethod),
		FreeShippingThreshold: amount("PRICING_FREE_SHIPPING_THRESHOLD", "0"),
		CODCharge:             amount("PRICING_COD_CHARGE", "0"),
		ShippingCosts:         make(map[string]decimal.Decimal),
	}

	for _, entry := range strings.Split(stringWithDefault(lookup, "PRICING_SHIPPING_COSTS", defaultShippingCosts), ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		method, raw, ok := strings.Cut(entry, "=")
		cost, err := decimal.NewFromString(strings.TrimSpace(raw))
		if !ok || strings.TrimSpace(method) == "" || err != nil {
			invalid = append(invalid, "PRICING_SHIPPING_COSTS")
			continue
		}
		cfg.ShippingCosts[strings.TrimSpace(method)] = cost
	}

	if raw, ok := lookup("PRICING_PROMO_CODES"); ok {
		for _, entry := range strings.Split(raw, ",") {
			entry = strings.TrimSpace(entry)
			if entry == "" {
				continue
			}
			promo, ok := parsePromo(entry)
			if !ok {
				invalid = append(invalid, "PRICING_PROMO_CODES")
				continue
			}
			cfg.PromoCodes = append(cfg.PromoCodes, promo)
		}
	}

	if len(invalid) == 0 {
		if err := cfg.Validate(); err != nil {
			invalid = append(invalid, "Pricing.Static")
		}
	}
	return cfg, invalid
}

// parsePromo reads CODE:kind:amount[:appliesTo]; appliesTo defaults to total.
func parsePromo(entry string) (domain.PromoCode, bool) {
	parts := strings.Split(entry, ":")
	if len(parts) < 3 || len(parts) > 4 {
		return domain.PromoCode{}, false
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(parts[2]))
	if err != nil {
		return domain.PromoCode{}, false
	}
	promo := domain.PromoCode{
		Code:           domain.NormalizePromoCode(parts[0]),
		Kind:           domain.PromoKind(strings.ToLower(strings.TrimSpace(parts[1]))),
		DiscountAmount: amount,
		AppliesTo:      domain.PromoTargetTotal,
	}
	if len(parts) == 4 {
		promo.AppliesTo = domain.PromoTarget(strings.ToLower(strings.TrimSpace(parts[3])))
	}
	return promo, promo.Code != ""
}
