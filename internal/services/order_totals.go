package services

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	domain "github.com/loomhouse/api/internal/domain"
)

var (
	// ErrPricingEmptyCart is returned when a cart has no primary items.
	ErrPricingEmptyCart = errors.New("pricing: cart is empty")
	// ErrPricingInvalidInput signals negative prices or non-positive quantities.
	ErrPricingInvalidInput = errors.New("pricing: invalid input")
	// ErrPricingConfigInvalid signals a configuration that breaks its invariants.
	ErrPricingConfigInvalid = errors.New("pricing: invalid configuration")
)

var hundred = decimal.NewFromInt(100)

// TotalsInput is everything ComputeOrderTotals needs besides the pricing config.
type TotalsInput struct {
	Items              []domain.CartLineItem
	ComplementaryItems []domain.ComplementaryItem
	ShippingMethod     string
	PromoCode          string
	PaymentMethod      domain.PaymentMethod
}

// ComputeOrderTotals prices a cart. It is pure: identical inputs yield identical totals.
//
// Shipping is waived once the subtotal reaches a positive free-shipping threshold. Promos that
// apply to the total reduce the taxable amount; promos that apply to shipping reduce the shipping
// cost and never take it below zero. Tax is charged on subtotal − discount + shipping, and the
// COD charge is added last for cash-on-delivery orders. An unknown promo code prices the cart
// without a discount and sets PromoRejected.
func ComputeOrderTotals(input TotalsInput, cfg domain.PricingConfig) (domain.Totals, error) {
	if len(input.Items) == 0 {
		return domain.Totals{}, ErrPricingEmptyCart
	}

	subtotal := decimal.Zero
	for _, item := range input.Items {
		if item.Quantity < 1 {
			return domain.Totals{}, fmt.Errorf("%w: item %s quantity must be at least 1", ErrPricingInvalidInput, item.ID)
		}
		if item.UnitPrice.IsNegative() {
			return domain.Totals{}, fmt.Errorf("%w: item %s price must be non-negative", ErrPricingInvalidInput, item.ID)
		}
		subtotal = subtotal.Add(item.Subtotal())
	}
	for _, item := range input.ComplementaryItems {
		if item.UnitPrice.IsNegative() {
			return domain.Totals{}, fmt.Errorf("%w: complementary item %s price must be non-negative", ErrPricingInvalidInput, item.Name)
		}
		subtotal = subtotal.Add(item.Subtotal())
	}
	subtotal = domain.RoundMoney(subtotal)

	method, shipping := cfg.ShippingCostFor(input.ShippingMethod)
	if cfg.FreeShippingEnabled() && subtotal.GreaterThanOrEqual(cfg.FreeShippingThreshold) {
		shipping = decimal.Zero
	}

	totals := domain.Totals{
		Subtotal:         subtotal,
		Discount:         decimal.Zero,
		ShippingDiscount: decimal.Zero,
		ShippingMethod:   method,
		CODCharge:        decimal.Zero,
	}

	if code := domain.NormalizePromoCode(input.PromoCode); code != "" {
		promo, ok := cfg.FindPromo(code)
		if !ok {
			totals.PromoRejected = true
		} else {
			totals.PromoCode = code
			switch promo.AppliesTo {
			case domain.PromoTargetShipping:
				totals.ShippingDiscount = promoAmount(promo, shipping)
				shipping = shipping.Sub(totals.ShippingDiscount)
			default:
				totals.Discount = promoAmount(promo, subtotal)
			}
		}
	}

	totals.ShippingCost = domain.RoundMoney(shipping)
	totals.TaxableAmount = domain.RoundMoney(subtotal.Sub(totals.Discount).Add(totals.ShippingCost))
	totals.Tax = domain.RoundMoney(totals.TaxableAmount.Mul(cfg.TaxPercentage).Div(hundred))
	if input.PaymentMethod == domain.PaymentMethodCOD {
		totals.CODCharge = domain.RoundMoney(cfg.CODCharge)
	}
	totals.Total = domain.RoundMoney(subtotal.
		Sub(totals.Discount).
		Add(totals.Tax).
		Add(totals.ShippingCost).
		Add(totals.CODCharge))
	return totals, nil
}

// promoAmount returns the discount the promo grants against base, capped at base.
func promoAmount(promo domain.PromoCode, base decimal.Decimal) decimal.Decimal {
	if !base.IsPositive() {
		return decimal.Zero
	}
	var amount decimal.Decimal
	switch promo.Kind {
	case domain.PromoKindPercentage:
		amount = base.Mul(promo.DiscountAmount).Div(hundred)
	default:
		amount = promo.DiscountAmount
	}
	if amount.IsNegative() {
		return decimal.Zero
	}
	return domain.RoundMoney(decimal.Min(amount, base))
}
