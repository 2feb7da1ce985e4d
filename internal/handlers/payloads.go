package handlers

import (
	"github.com/shopspring/decimal"

	domain "github.com/loomhouse/api/internal/domain"
	"github.com/loomhouse/api/internal/orderrecord"
	"github.com/loomhouse/api/internal/services"
)

func moneyJSON(d decimal.Decimal) float64 {
	return domain.RoundMoney(d).InexactFloat64()
}

// orderPayload renders the nested document shape so clients normalise responses and stored
// records the same way.
func orderPayload(order domain.Order) map[string]any {
	return map[string]any(orderrecord.ToDocument(order))
}

func orderListPayload(orders []domain.Order) []map[string]any {
	out := make([]map[string]any, 0, len(orders))
	for _, order := range orders {
		out = append(out, orderPayload(order))
	}
	return out
}

func totalsPayload(t domain.Totals) map[string]any {
	return map[string]any{
		"subtotal":         moneyJSON(t.Subtotal),
		"discount":         moneyJSON(t.Discount),
		"shippingDiscount": moneyJSON(t.ShippingDiscount),
		"taxableAmount":    moneyJSON(t.TaxableAmount),
		"tax":              moneyJSON(t.Tax),
		"shippingMethod":   t.ShippingMethod,
		"shippingCost":     moneyJSON(t.ShippingCost),
		"codCharges":       moneyJSON(t.CODCharge),
		"total":            moneyJSON(t.Total),
		"promoCode":        t.PromoCode,
		"promoRejected":    t.PromoRejected,
	}
}

func pricingConfigPayload(cfg domain.PricingConfig) map[string]any {
	shipping := make(map[string]float64, len(cfg.ShippingCosts))
	for method, cost := range cfg.ShippingCosts {
		shipping[method] = cost.InexactFloat64()
	}
	promos := make([]map[string]any, 0, len(cfg.PromoCodes))
	for _, promo := range cfg.PromoCodes {
		promos = append(promos, map[string]any{
			"code":           promo.Code,
			"discountAmount": promo.DiscountAmount.InexactFloat64(),
			"kind":           string(promo.Kind),
			"appliesTo":      string(promo.AppliesTo),
		})
	}
	return map[string]any{
		"taxPercentage":         cfg.TaxPercentage.InexactFloat64(),
		"shippingCosts":         shipping,
		"defaultShippingMethod": cfg.DefaultShippingMethod,
		"freeShippingThreshold": cfg.FreeShippingThreshold.InexactFloat64(),
		"codCharge":             cfg.CODCharge.InexactFloat64(),
		"promoCodes":            promos,
	}
}

func statsPayload(stats services.OrderStats) map[string]any {
	byStatus := stats.OrdersByStatus
	if byStatus == nil {
		byStatus = map[string]int{}
	}
	return map[string]any{
		"totalOrders":       stats.TotalOrders,
		"totalSpent":        moneyJSON(stats.TotalSpent),
		"averageOrderValue": moneyJSON(stats.AverageOrderValue),
		"ordersByStatus":    byStatus,
	}
}
