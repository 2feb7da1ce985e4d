package orderrecord

import (
	"encoding/json"
	"fmt"

	"github.com/loomhouse/api/internal/domain"
)

// Top-level document keys kept outside the nested order object.
var preservedDocumentKeys = []string{"id", "date", "status", "lastUpdated", "courier", "trackingId", "comments"}

// ToDocument projects the order into the nested {order, customer} document shape.
func ToDocument(order domain.Order) Record {
	order.RecomputeTotal()
	inner := map[string]any{
		"orderId":            order.ID,
		"accountId":          AccountID(order.Account),
		"paymentMethod":      string(order.PaymentMethod),
		"paymentStatus":      string(order.PaymentStatus),
		"items":              primaryItemMaps(order.Items),
		"complementaryItems": complementaryItemMaps(order.ComplementaryItems),
		"shippingMethod":     order.ShippingMethod,
		"promoCode":          order.PromoCode,
		"subtotal":           moneyValue(order.Subtotal),
		"discount":           moneyValue(order.Discount),
		"shippingDiscount":   moneyValue(order.ShippingDiscount),
		"tax":                moneyValue(order.Tax),
		"shippingCost":       moneyValue(order.ShippingCost),
		"codCharges":         moneyValue(order.CODCharge),
		"extraAmount":        moneyValue(order.ExtraAmount),
		"total":              moneyValue(order.Total),
		"statusTimestamps": map[string]any{
			"processingAt": formatOptionalTime(order.Timestamps.ProcessingAt),
			"shippedAt":    formatOptionalTime(order.Timestamps.ShippedAt),
			"deliveredAt":  formatOptionalTime(order.Timestamps.DeliveredAt),
		},
	}
	if order.Payment != nil {
		inner["payment"] = map[string]any{
			"cardLast4": order.Payment.CardLast4,
			"expiry":    order.Payment.Expiry,
		}
	}

	return Record{
		"id":          order.ID,
		"date":        formatTime(order.CreatedAt),
		"status":      string(order.Status),
		"lastUpdated": formatTime(order.LastUpdatedAt),
		"courier":     order.Courier,
		"trackingId":  order.TrackingID,
		"comments":    order.Comments,
		"accountId":   AccountID(order.Account),
		"customer":    customerMap(order.Customer),
		"order":       inner,
	}
}

// ToRow projects the order into the flat spreadsheet row, including the item blob and
// a full JSON snapshot of the nested document.
func ToRow(order domain.Order) (Record, error) {
	order.RecomputeTotal()
	itemsJSON, err := json.Marshal(embeddedItems(order))
	if err != nil {
		return nil, fmt.Errorf("order record: encode items: %w", err)
	}
	fullJSON, err := json.Marshal(ToDocument(order))
	if err != nil {
		return nil, fmt.Errorf("order record: encode snapshot: %w", err)
	}

	row := Record{
		ColOrderID:          order.ID,
		ColDate:             formatTime(order.CreatedAt),
		ColAccountID:        AccountID(order.Account),
		ColCustomerName:     order.Customer.FullName(),
		ColEmail:            order.Customer.Email,
		ColPhone:            order.Customer.Phone,
		ColAddress:          order.Customer.Address,
		ColCity:             order.Customer.City,
		ColState:            order.Customer.State,
		ColZip:              order.Customer.Zip,
		ColCountry:          order.Customer.Country,
		ColNotes:            order.Customer.Notes,
		ColPaymentMethod:    string(order.PaymentMethod),
		ColPaymentStatus:    string(order.PaymentStatus),
		ColShippingMethod:   order.ShippingMethod,
		ColPromoCode:        order.PromoCode,
		ColSubtotal:         moneyValue(order.Subtotal),
		ColDiscount:         moneyValue(order.Discount),
		ColShippingDiscount: moneyValue(order.ShippingDiscount),
		ColTax:              moneyValue(order.Tax),
		ColShippingCost:     moneyValue(order.ShippingCost),
		ColCODCharges:       moneyValue(order.CODCharge),
		ColExtraAmount:      moneyValue(order.ExtraAmount),
		ColTotal:            moneyValue(order.Total),
		ColStatus:           string(order.Status),
		ColCourier:          order.Courier,
		ColTrackingID:       order.TrackingID,
		ColComments:         order.Comments,
		ColProcessingDate:   formatOptionalTime(order.Timestamps.ProcessingAt),
		ColShippedDate:      formatOptionalTime(order.Timestamps.ShippedAt),
		ColDeliveredDate:    formatOptionalTime(order.Timestamps.DeliveredAt),
		ColLastUpdated:      formatTime(order.LastUpdatedAt),
		ColItemsJSON:        string(itemsJSON),
		ColFullOrderJSON:    string(fullJSON),
	}
	if order.Payment != nil {
		row[ColCardLast4] = order.Payment.CardLast4
		row[ColCardExpiry] = order.Payment.Expiry
	}
	return row, nil
}

func customerMap(c domain.Customer) map[string]any {
	return map[string]any{
		"firstName": c.FirstName,
		"lastName":  c.LastName,
		"email":     c.Email,
		"phone":     c.Phone,
		"address":   c.Address,
		"city":      c.City,
		"state":     c.State,
		"zip":       c.Zip,
		"country":   c.Country,
		"notes":     c.Notes,
	}
}

func embeddedItems(order domain.Order) []any {
	out := make([]any, 0, len(order.Items)+len(order.ComplementaryItems))
	out = append(out, primaryItemMaps(order.Items)...)
	out = append(out, complementaryItemMaps(order.ComplementaryItems)...)
	return out
}

func primaryItemMaps(items []domain.CartLineItem) []any {
	out := make([]any, 0, len(items))
	for _, item := range items {
		m := map[string]any{
			"id":            item.ID,
			"name":          item.Name,
			"price":         moneyValue(item.UnitPrice),
			"quantity":      item.Quantity,
			"subtotal":      moneyValue(item.Subtotal()),
			"imageUrl":      item.ImageURL,
			"complementary": false,
		}
		if item.SizeInYards != nil {
			m["sizeInYards"] = item.SizeInYards.InexactFloat64()
		}
		out = append(out, m)
	}
	return out
}

func complementaryItemMaps(items []domain.ComplementaryItem) []any {
	out := make([]any, 0, len(items))
	for _, item := range items {
		m := map[string]any{
			"parentItemId":  item.ParentItemID,
			"name":          item.Name,
			"price":         moneyValue(item.UnitPrice),
			"quantity":      1,
			"subtotal":      moneyValue(item.Subtotal()),
			"notes":         item.Notes,
			"imageUrl":      item.ImageURL,
			"complementary": true,
		}
		if item.SizeInYards != nil {
			m["sizeInYards"] = item.SizeInYards.InexactFloat64()
		}
		out = append(out, m)
	}
	return out
}

// RetainItems carries the item fields of stored over to updated, a fresh projection of the same
// order, so a rewrite leaves item data it could not verify exactly as it was. Blobs that do not
// parse are kept verbatim and absent fields stay absent.
func RetainItems(updated, stored Record) (Record, error) {
	primary, complementary := storedItems(stored)

	if inner, ok := asMap(updated["order"]); ok {
		setOrDelete(inner, "items", primary)
		setOrDelete(inner, "complementaryItems", complementary)
		updated["order"] = map[string]any(inner)
		return updated, nil
	}

	if raw, ok := firstValue(stored, ColItemsJSON); ok {
		updated[ColItemsJSON] = raw
	} else {
		updated[ColItemsJSON] = ""
	}
	snapshot, ok := asMap(updated[ColFullOrderJSON])
	if !ok {
		return updated, nil
	}
	if inner, ok := asMap(snapshot["order"]); ok {
		setOrDelete(inner, "items", primary)
		setOrDelete(inner, "complementaryItems", complementary)
		snapshot["order"] = map[string]any(inner)
	}
	encoded, err := json.Marshal(map[string]any(snapshot))
	if err != nil {
		return nil, fmt.Errorf("order record: encode snapshot: %w", err)
	}
	updated[ColFullOrderJSON] = string(encoded)
	return updated, nil
}

// storedItems returns the raw item values of a record in either shape.
func storedItems(rec Record) (primary, complementary any) {
	if inner, ok := asMap(rec["order"]); ok {
		return inner["items"], inner["complementaryItems"]
	}
	if raw, ok := firstValue(rec, ColItemsJSON); ok {
		return raw, nil
	}
	if snapshot, ok := asMap(rec[ColFullOrderJSON]); ok {
		if inner, ok := asMap(snapshot["order"]); ok {
			return inner["items"], inner["complementaryItems"]
		}
	}
	return nil, nil
}

func setOrDelete(rec Record, key string, value any) {
	if value == nil {
		delete(rec, key)
		return
	}
	rec[key] = value
}
