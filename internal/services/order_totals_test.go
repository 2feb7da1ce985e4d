package services

import (
	"errors"
	"testing"

	domain "github.com/loomhouse/api/internal/domain"
)

func TestComputeOrderTotalsFreeShippingScenario(t *testing.T) {
	totals, err := ComputeOrderTotals(TotalsInput{
		Items:          itemsWorth("120"),
		ShippingMethod: "domestic",
		PaymentMethod:  domain.PaymentMethodCard,
	}, testPricingConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !totals.ShippingCost.IsZero() {
		t.Fatalf("expected free shipping, got %s", totals.ShippingCost)
	}
	if !totals.Tax.Equal(dec("12.00")) {
		t.Fatalf("expected tax 12.00, got %s", totals.Tax)
	}
	if !totals.Total.Equal(dec("132.00")) {
		t.Fatalf("expected total 132.00, got %s", totals.Total)
	}
}

func TestComputeOrderTotalsFlatPromo(t *testing.T) {
	totals, err := ComputeOrderTotals(TotalsInput{
		Items:          itemsWorth("50"),
		ShippingMethod: "domestic",
		PromoCode:      "save20",
		PaymentMethod:  domain.PaymentMethodCard,
	}, testPricingConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !totals.Discount.Equal(dec("20")) {
		t.Fatalf("expected discount 20, got %s", totals.Discount)
	}
	if !totals.TaxableAmount.Equal(dec("39.99")) {
		t.Fatalf("expected taxable 30 + 9.99, got %s", totals.TaxableAmount)
	}
	if totals.PromoCode != "SAVE20" {
		t.Fatalf("expected normalised promo code, got %q", totals.PromoCode)
	}
	// 50 - 20 + 9.99 + 4.00 (3.999 rounded)
	if !totals.Total.Equal(dec("43.99")) {
		t.Fatalf("expected total 43.99, got %s", totals.Total)
	}
}

func TestComputeOrderTotalsPercentagePromo(t *testing.T) {
	totals, err := ComputeOrderTotals(TotalsInput{
		Items:          itemsWorth("50"),
		ShippingMethod: "domestic",
		PromoCode:      "TENOFF",
		PaymentMethod:  domain.PaymentMethodCard,
	}, testPricingConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !totals.Discount.Equal(dec("5.00")) {
		t.Fatalf("expected discount 5.00, got %s", totals.Discount)
	}
	if !totals.TaxableAmount.Equal(dec("54.99")) {
		t.Fatalf("expected taxable 45 + 9.99, got %s", totals.TaxableAmount)
	}
	if !totals.Tax.Equal(dec("5.50")) {
		t.Fatalf("expected tax 5.50, got %s", totals.Tax)
	}
	// 50 - 5 + 9.99 + 5.50
	if !totals.Total.Equal(dec("60.49")) {
		t.Fatalf("expected total 60.49, got %s", totals.Total)
	}
	if totals.PromoRejected {
		t.Fatalf("expected promo to be accepted")
	}
}

func TestComputeOrderTotalsCashOnDelivery(t *testing.T) {
	totals, err := ComputeOrderTotals(TotalsInput{
		Items:          itemsWorth("80"),
		ShippingMethod: "domestic",
		PaymentMethod:  domain.PaymentMethodCOD,
	}, testPricingConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !totals.Tax.Equal(dec("9.00")) {
		t.Fatalf("expected tax 9.00, got %s", totals.Tax)
	}
	if !totals.CODCharge.Equal(dec("5")) {
		t.Fatalf("expected cod charge 5, got %s", totals.CODCharge)
	}
	if !totals.Total.Equal(dec("103.99")) {
		t.Fatalf("expected total 103.99, got %s", totals.Total)
	}
	if !totals.TaxableAmount.Equal(dec("89.99")) {
		t.Fatalf("expected cod charge outside taxable amount, got %s", totals.TaxableAmount)
	}
}

func TestComputeOrderTotalsIsIdempotent(t *testing.T) {
	size := dec("1.5")
	input := TotalsInput{
		Items: []domain.CartLineItem{
			{ID: "a", UnitPrice: dec("13.33"), Quantity: 3, SizeInYards: &size},
			{ID: "b", UnitPrice: dec("7.10"), Quantity: 1},
		},
		ComplementaryItems: []domain.ComplementaryItem{{ParentItemID: "a", UnitPrice: dec("2.25")}},
		ShippingMethod:     "express",
		PromoCode:          "TENOFF",
		PaymentMethod:      domain.PaymentMethodCOD,
	}
	cfg := testPricingConfig()
	first, err := ComputeOrderTotals(input, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, _ := ComputeOrderTotals(input, cfg)
	if !first.Total.Equal(second.Total) || !first.Tax.Equal(second.Tax) || !first.Discount.Equal(second.Discount) {
		t.Fatalf("expected identical totals, got %+v and %+v", first, second)
	}
	recomputed := first.Subtotal.Sub(first.Discount).Add(first.Tax).Add(first.ShippingCost).Add(first.CODCharge)
	if !recomputed.Equal(first.Total) {
		t.Fatalf("expected total to equal its components, got %s vs %s", recomputed, first.Total)
	}
}

func TestComputeOrderTotalsFreeShippingForEveryMethod(t *testing.T) {
	cfg := testPricingConfig()
	for method := range cfg.ShippingCosts {
		totals, err := ComputeOrderTotals(TotalsInput{Items: itemsWorth("100"), ShippingMethod: method}, cfg)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !totals.ShippingCost.IsZero() {
			t.Fatalf("expected free %s shipping at threshold, got %s", method, totals.ShippingCost)
		}
	}
}

func TestComputeOrderTotalsShippingPromos(t *testing.T) {
	cfg := testPricingConfig()

	half, err := ComputeOrderTotals(TotalsInput{Items: itemsWorth("40"), ShippingMethod: "domestic", PromoCode: "SHIPHALF"}, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !half.ShippingCost.Equal(dec("4.99")) || !half.ShippingDiscount.Equal(dec("5.00")) {
		t.Fatalf("expected shipping 4.99 after 5.00 off, got %s / %s", half.ShippingCost, half.ShippingDiscount)
	}
	if !half.Discount.IsZero() {
		t.Fatalf("expected no total discount for shipping promo, got %s", half.Discount)
	}

	flat, err := ComputeOrderTotals(TotalsInput{Items: itemsWorth("40"), ShippingMethod: "domestic", PromoCode: "SHIPFREE"}, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !flat.ShippingCost.IsZero() {
		t.Fatalf("expected shipping clamped at zero, got %s", flat.ShippingCost)
	}
}

func TestComputeOrderTotalsFlatPromoCappedAtSubtotal(t *testing.T) {
	totals, err := ComputeOrderTotals(TotalsInput{Items: itemsWorth("12"), PromoCode: "SAVE20"}, testPricingConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !totals.Discount.Equal(dec("12")) {
		t.Fatalf("expected discount capped at 12, got %s", totals.Discount)
	}
}

func TestComputeOrderTotalsUnknownPromo(t *testing.T) {
	totals, err := ComputeOrderTotals(TotalsInput{Items: itemsWorth("50"), PromoCode: "NOPE"}, testPricingConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !totals.PromoRejected || !totals.Discount.IsZero() || totals.PromoCode != "" {
		t.Fatalf("expected rejected promo with no discount, got %+v", totals)
	}
}

func TestComputeOrderTotalsUnknownMethodFallsBackToDefault(t *testing.T) {
	totals, err := ComputeOrderTotals(TotalsInput{Items: itemsWorth("10"), ShippingMethod: "teleport"}, testPricingConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if totals.ShippingMethod != "domestic" || !totals.ShippingCost.Equal(dec("9.99")) {
		t.Fatalf("expected default method, got %s %s", totals.ShippingMethod, totals.ShippingCost)
	}
}

func TestComputeOrderTotalsRejectsBadCarts(t *testing.T) {
	if _, err := ComputeOrderTotals(TotalsInput{}, testPricingConfig()); !errors.Is(err, ErrPricingEmptyCart) {
		t.Fatalf("expected ErrPricingEmptyCart, got %v", err)
	}
	_, err := ComputeOrderTotals(TotalsInput{Items: []domain.CartLineItem{{ID: "a", UnitPrice: dec("1"), Quantity: 0}}}, testPricingConfig())
	if !errors.Is(err, ErrPricingInvalidInput) {
		t.Fatalf("expected ErrPricingInvalidInput, got %v", err)
	}
}

func TestComputeOrderTotalsCardNeverCarriesCODCharge(t *testing.T) {
	totals, err := ComputeOrderTotals(TotalsInput{Items: itemsWorth("10"), PaymentMethod: domain.PaymentMethodCard}, testPricingConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !totals.CODCharge.IsZero() {
		t.Fatalf("expected no cod charge on card orders, got %s", totals.CODCharge)
	}
}
