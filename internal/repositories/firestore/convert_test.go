package firestore

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/loomhouse/api/internal/domain"
	"github.com/loomhouse/api/internal/orderrecord"
)

func TestItemDocumentRoundTrip(t *testing.T) {
	size := decimal.RequireFromString("1.5")
	row := orderrecord.ItemRow{
		OrderID:     "ORD-1",
		AccountID:   "acct-1",
		ItemID:      "linen",
		Name:        "Linen",
		UnitPrice:   decimal.RequireFromString("12.50"),
		Quantity:    2,
		SizeInYards: &size,
		Subtotal:    decimal.RequireFromString("37.50"),
		CreatedAt:   time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	}

	got := decodeItem(encodeItem(row))
	if !got.UnitPrice.Equal(row.UnitPrice) || !got.Subtotal.Equal(row.Subtotal) {
		t.Fatalf("expected money to survive, got %s/%s", got.UnitPrice, got.Subtotal)
	}
	if got.SizeInYards == nil || !got.SizeInYards.Equal(size) {
		t.Fatalf("expected size 1.5, got %v", got.SizeInYards)
	}
	if !got.BelongsTo("ORD-1", domain.AccountFor("acct-1")) {
		t.Fatalf("expected row to belong to acct-1")
	}
}

func TestPricingDocumentDefaultsPromoFields(t *testing.T) {
	doc := pricingDocumentData{
		TaxPercentage:         10,
		ShippingCosts:         map[string]float64{"domestic": 9.99, "express": 19.99},
		DefaultShippingMethod: "domestic",
		FreeShippingThreshold: 100,
		CODCharge:             5,
		PromoCodes:            []promoDocument{{Code: " save20 ", DiscountAmount: 20}},
	}
	cfg, err := doc.toDomain()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.PromoCodes) != 1 {
		t.Fatalf("expected one promo, got %d", len(cfg.PromoCodes))
	}
	promo := cfg.PromoCodes[0]
	if promo.Code != "SAVE20" || promo.Kind != domain.PromoKindPercentage || promo.AppliesTo != domain.PromoTargetTotal {
		t.Fatalf("unexpected promo %+v", promo)
	}
	if !cfg.ShippingCosts["express"].Equal(decimal.RequireFromString("19.99")) {
		t.Fatalf("expected express 19.99, got %s", cfg.ShippingCosts["express"])
	}
}

func TestPricingDocumentRejectsInvalidConfig(t *testing.T) {
	doc := pricingDocumentData{
		TaxPercentage:         -1,
		ShippingCosts:         map[string]float64{"domestic": 9.99},
		DefaultShippingMethod: "domestic",
	}
	if _, err := doc.toDomain(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestPersistedAccountReadsNestedFallback(t *testing.T) {
	rec := orderrecord.Record{"order": map[string]any{"accountId": "acct-2"}}
	if got := persistedAccount(rec); got != "acct-2" {
		t.Fatalf("expected acct-2, got %q", got)
	}
	if got := persistedAccount(orderrecord.Record{}); got != "" {
		t.Fatalf("expected empty account, got %q", got)
	}
}
