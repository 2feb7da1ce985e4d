// Package orderrecord converts between the canonical order and its persisted shapes:
// the flat spreadsheet row, the nested {order, customer} document and item store rows.
package orderrecord

import (
	"errors"
	"strings"

	"github.com/loomhouse/api/internal/domain"
)

// Record is a raw persisted order as read from a store.
type Record map[string]any

// GuestAccountID marks guest orders in persisted rows and query parameters.
const GuestAccountID = "GUEST"

// ErrMalformedRecord is returned when a record has no recognisable order identifier.
var ErrMalformedRecord = errors.New("order record: malformed")

// Flat spreadsheet column names.
const (
	ColOrderID          = "Order ID"
	ColDate             = "Date"
	ColAccountID        = "Account ID"
	ColCustomerName     = "Customer Name"
	ColEmail            = "Email"
	ColPhone            = "Phone"
	ColAddress          = "Address"
	ColCity             = "City"
	ColState            = "State"
	ColZip              = "Zip"
	ColCountry          = "Country"
	ColNotes            = "Notes"
	ColPaymentMethod    = "Payment Method"
	ColPaymentStatus    = "Payment Status"
	ColCardLast4        = "Card Last4"
	ColCardExpiry       = "Card Expiry"
	ColShippingMethod   = "Shipping Method"
	ColPromoCode        = "Promo Code"
	ColSubtotal         = "Subtotal"
	ColDiscount         = "Discount"
	ColShippingDiscount = "Shipping Discount"
	ColTax              = "Tax"
	ColShippingCost     = "Shipping Cost"
	ColCODCharges       = "COD Charges"
	ColExtraAmount      = "Extra Amount"
	ColTotal            = "Total"
	ColStatus           = "Status"
	ColCourier          = "Courier"
	ColTrackingID       = "Tracking ID"
	ColComments         = "Comments"
	ColProcessingDate   = "Processing Date"
	ColShippedDate      = "Shipped Date"
	ColDeliveredDate    = "Delivered Date"
	ColLastUpdated      = "Last Updated"
	ColItemsJSON        = "Items JSON"
	ColFullOrderJSON    = "Full Order JSON"
)

// OrderColumns is the header order of the orders sheet.
var OrderColumns = []string{
	ColOrderID, ColDate, ColAccountID, ColCustomerName, ColEmail, ColPhone,
	ColAddress, ColCity, ColState, ColZip, ColCountry, ColNotes,
	ColPaymentMethod, ColPaymentStatus, ColCardLast4, ColCardExpiry,
	ColShippingMethod, ColPromoCode,
	ColSubtotal, ColDiscount, ColShippingDiscount, ColTax, ColShippingCost,
	ColCODCharges, ColExtraAmount, ColTotal,
	ColStatus, ColCourier, ColTrackingID, ColComments,
	ColProcessingDate, ColShippedDate, ColDeliveredDate, ColLastUpdated,
	ColItemsJSON, ColFullOrderJSON,
}

// AccountID returns the persisted form of an account reference.
func AccountID(ref domain.AccountRef) string {
	if id, ok := ref.ID(); ok {
		return id
	}
	return GuestAccountID
}

// ParseAccountID maps a persisted account identifier back to a reference.
// Blank values and the guest marker both yield a guest reference.
func ParseAccountID(raw string) domain.AccountRef {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || strings.EqualFold(trimmed, GuestAccountID) {
		return domain.GuestAccount()
	}
	return domain.AccountFor(trimmed)
}

// Values lays the record out in the given column order. Missing cells become empty strings.
func (r Record) Values(columns []string) []any {
	out := make([]any, len(columns))
	for i, column := range columns {
		value, ok := r[column]
		if !ok || value == nil {
			out[i] = ""
			continue
		}
		out[i] = value
	}
	return out
}

// FromValues pairs a header row with a value row.
func FromValues(columns []string, values []any) Record {
	rec := make(Record, len(columns))
	for i, column := range columns {
		column = strings.TrimSpace(column)
		if column == "" {
			continue
		}
		if i < len(values) {
			rec[column] = values[i]
		} else {
			rec[column] = ""
		}
	}
	return rec
}

// OrderID extracts the order identifier from either record shape.
func (r Record) OrderID() string {
	if nested, ok := r["order"].(map[string]any); ok {
		if id := firstString(Record(nested), "orderId", "id"); id != "" {
			return id
		}
	}
	return firstString(r, ColOrderID, "id", "orderId")
}
