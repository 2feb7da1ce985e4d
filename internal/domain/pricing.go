package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// PromoKind describes how a promo amount is interpreted.
type PromoKind string

const (
	PromoKindPercentage PromoKind = "percentage"
	PromoKindFlat       PromoKind = "flat"
)

// PromoTarget selects what a promo discounts.
type PromoTarget string

const (
	PromoTargetTotal    PromoTarget = "total"
	PromoTargetShipping PromoTarget = "shipping"
)

// PromoCode is a named discount rule.
type PromoCode struct {
	Code           string
	DiscountAmount decimal.Decimal
	Kind           PromoKind
	AppliesTo      PromoTarget
}

// PricingConfig holds the store-wide pricing inputs used when totalling a cart.
type PricingConfig struct {
	TaxPercentage         decimal.Decimal
	ShippingCosts         map[string]decimal.Decimal
	DefaultShippingMethod string
	FreeShippingThreshold decimal.Decimal
	CODCharge             decimal.Decimal
	PromoCodes            []PromoCode
}

// Validate checks the non-negativity and default-method invariants.
func (c PricingConfig) Validate() error {
	var problems []string
	if c.TaxPercentage.IsNegative() {
		problems = append(problems, "tax percentage must be non-negative")
	}
	if c.CODCharge.IsNegative() {
		problems = append(problems, "cod charge must be non-negative")
	}
	method := strings.TrimSpace(c.DefaultShippingMethod)
	if method == "" {
		problems = append(problems, "default shipping method is required")
	} else if _, ok := c.ShippingCosts[method]; !ok {
		problems = append(problems, fmt.Sprintf("shipping cost for default method %q is required", method))
	}
	for name, cost := range c.ShippingCosts {
		if cost.IsNegative() {
			problems = append(problems, fmt.Sprintf("shipping cost for %q must be non-negative", name))
		}
	}
	for _, promo := range c.PromoCodes {
		if strings.TrimSpace(promo.Code) == "" {
			problems = append(problems, "promo code is required")
			continue
		}
		if promo.DiscountAmount.IsNegative() {
			problems = append(problems, fmt.Sprintf("promo %s discount must be non-negative", promo.Code))
		}
		switch promo.Kind {
		case PromoKindPercentage, PromoKindFlat:
		default:
			problems = append(problems, fmt.Sprintf("promo %s has unknown kind %q", promo.Code, promo.Kind))
		}
		switch promo.AppliesTo {
		case PromoTargetTotal, PromoTargetShipping:
		default:
			problems = append(problems, fmt.Sprintf("promo %s has unknown target %q", promo.Code, promo.AppliesTo))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%s", strings.Join(problems, "; "))
	}
	return nil
}

// FindPromo returns the first promo whose code matches case-insensitively.
func (c PricingConfig) FindPromo(code string) (PromoCode, bool) {
	code = NormalizePromoCode(code)
	if code == "" {
		return PromoCode{}, false
	}
	for _, promo := range c.PromoCodes {
		if NormalizePromoCode(promo.Code) == code {
			return promo, true
		}
	}
	return PromoCode{}, false
}

// ShippingCostFor returns the cost of the method, falling back to the default method.
func (c PricingConfig) ShippingCostFor(method string) (string, decimal.Decimal) {
	method = strings.TrimSpace(method)
	if cost, ok := c.ShippingCosts[method]; ok && method != "" {
		return method, cost
	}
	return c.DefaultShippingMethod, c.ShippingCosts[c.DefaultShippingMethod]
}

// FreeShippingEnabled reports whether a positive threshold is configured.
func (c PricingConfig) FreeShippingEnabled() bool {
	return c.FreeShippingThreshold.IsPositive()
}

// Clone returns a deep copy safe to hand to callers of a shared cache.
func (c PricingConfig) Clone() PricingConfig {
	out := c
	if c.ShippingCosts != nil {
		out.ShippingCosts = make(map[string]decimal.Decimal, len(c.ShippingCosts))
		for k, v := range c.ShippingCosts {
			out.ShippingCosts[k] = v
		}
	}
	if c.PromoCodes != nil {
		out.PromoCodes = append([]PromoCode(nil), c.PromoCodes...)
	}
	return out
}

// NormalizePromoCode upper-cases and trims a promo code.
func NormalizePromoCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Totals is the result of pricing a cart.
type Totals struct {
	Subtotal         decimal.Decimal
	Discount         decimal.Decimal
	ShippingDiscount decimal.Decimal
	TaxableAmount    decimal.Decimal
	Tax              decimal.Decimal
	ShippingMethod   string
	ShippingCost     decimal.Decimal
	CODCharge        decimal.Decimal
	Total            decimal.Decimal
	PromoCode        string
	PromoRejected    bool
}
