package orderrecord

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/loomhouse/api/internal/domain"
	"github.com/loomhouse/api/internal/platform/textutil"
)

// ItemsState reports how trustworthy the embedded item list of a record was.
type ItemsState int

const (
	// ItemsEmbedded means every embedded item carried a price and a quantity.
	ItemsEmbedded ItemsState = iota
	// ItemsIncomplete means at least one embedded item lacked a price or quantity.
	ItemsIncomplete
	// ItemsMissing means the record carried no embedded items.
	ItemsMissing
	// ItemsMalformed means the embedded blob could not be parsed.
	ItemsMalformed
)

func (s ItemsState) String() string {
	switch s {
	case ItemsEmbedded:
		return "embedded"
	case ItemsIncomplete:
		return "incomplete"
	case ItemsMissing:
		return "missing"
	case ItemsMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// Trusted reports whether the embedded items can be used without consulting the item store.
func (s ItemsState) Trusted() bool {
	return s == ItemsEmbedded
}

// Decoded is a normalised record together with the state of its embedded items.
type Decoded struct {
	Order    domain.Order
	Items    ItemsState
	ItemsErr error
}

// Normalize converts either persisted shape into the canonical order. The total is always
// recomputed from its components.
func Normalize(rec Record) (domain.Order, error) {
	decoded, err := Decode(rec)
	if err != nil {
		return domain.Order{}, err
	}
	return decoded.Order, nil
}

// Decode is Normalize plus the embedded item state used by the item-store fallback.
func Decode(rec Record) (Decoded, error) {
	cleaned := Record(textutil.NormalizeKeys(rec))
	if cleaned == nil {
		return Decoded{}, fmt.Errorf("%w: empty record", ErrMalformedRecord)
	}

	var decoded Decoded
	switch {
	case isNested(cleaned):
		inner, _ := asMap(cleaned["order"])
		merged := make(Record, len(inner)+len(preservedDocumentKeys))
		for key, value := range inner {
			merged[key] = value
		}
		for _, key := range preservedDocumentKeys {
			if value, ok := firstValue(cleaned, key); ok {
				merged[key] = value
			}
		}
		if _, ok := firstValue(merged, "accountId", "userId"); !ok {
			if value, ok := firstValue(cleaned, "accountId", "userId"); ok {
				merged["accountId"] = value
			}
		}
		customer, ok := asMap(cleaned["customer"])
		if !ok {
			customer, _ = asMap(inner["customer"])
		}
		decoded = decodeDocument(merged, customer)
	case firstString(cleaned, ColOrderID) != "":
		decoded = decodeRow(cleaned)
	case firstString(cleaned, "id", "orderId") != "":
		customer, _ := asMap(cleaned["customer"])
		decoded = decodeDocument(cleaned, customer)
	default:
		return Decoded{}, fmt.Errorf("%w: order id not found", ErrMalformedRecord)
	}

	if decoded.Order.ID == "" {
		return Decoded{}, fmt.Errorf("%w: order id not found", ErrMalformedRecord)
	}
	decoded.Order.RecomputeTotal()
	return decoded, nil
}

func isNested(rec Record) bool {
	_, ok := asMap(rec["order"])
	return ok
}

func decodeDocument(m Record, customer Record) Decoded {
	order := domain.Order{
		ID:             firstString(m, "id", "orderId"),
		CreatedAt:      timeField(m, "date", "createdAt", "orderDate"),
		Account:        ParseAccountID(firstString(m, "accountId", "userId")),
		ShippingMethod: firstString(m, "shippingMethod"),
		PromoCode:      firstString(m, "promoCode"),
		Courier:        firstString(m, "courier"),
		TrackingID:     firstString(m, "trackingId"),
		Comments:       firstString(m, "comments"),
		LastUpdatedAt:  timeField(m, "lastUpdated", "lastUpdatedAt"),
	}
	order.PaymentMethod, order.PaymentStatus = decodePayment(firstString(m, "paymentMethod"), firstString(m, "paymentStatus"))
	if payment, ok := asMap(m["payment"]); ok {
		order.Payment = paymentDetails(firstString(payment, "cardLast4", "last4"), firstString(payment, "expiry", "cardExpiry"))
	} else {
		order.Payment = paymentDetails(firstString(m, "cardLast4"), firstString(m, "cardExpiry"))
	}

	if customer != nil {
		order.Customer = decodeCustomer(customer)
	} else {
		order.Customer = decodeCustomer(m)
	}

	order.Status = decodeStatus(firstString(m, "status", "orderStatus"))
	timestamps, ok := asMap(m["statusTimestamps"])
	if !ok {
		timestamps = m
	}
	order.Timestamps = domain.StatusTimestamps{
		ProcessingAt: optionalTime(timestamps, "processingAt", "processingTimestamp", "processingDate"),
		ShippedAt:    optionalTime(timestamps, "shippedAt", "shippedTimestamp", "shippedDate"),
		DeliveredAt:  optionalTime(timestamps, "deliveredAt", "deliveredTimestamp", "deliveredDate"),
	}

	items, complementary, state, itemsErr := decodeItems(m["items"], m["complementaryItems"])
	order.Items = items
	order.ComplementaryItems = complementary

	order.Subtotal = subtotalOrItems(m, items, complementary, "subtotal")
	order.Discount = moneyField(m, "discount")
	order.ShippingDiscount = moneyField(m, "shippingDiscount")
	order.Tax = moneyField(m, "tax")
	order.ShippingCost = moneyField(m, "shippingCost", "shipping")
	order.CODCharge = moneyField(m, "codCharges", "codCharge")
	order.ExtraAmount = moneyField(m, "extraAmount", "additionalCost")
	order.Total = moneyField(m, "total")

	return Decoded{Order: order, Items: state, ItemsErr: itemsErr}
}

func decodeRow(rec Record) Decoded {
	order := domain.Order{
		ID:             firstString(rec, ColOrderID),
		CreatedAt:      timeField(rec, ColDate),
		Account:        ParseAccountID(firstString(rec, ColAccountID)),
		ShippingMethod: firstString(rec, ColShippingMethod),
		PromoCode:      firstString(rec, ColPromoCode),
		Courier:        firstString(rec, ColCourier),
		TrackingID:     firstString(rec, ColTrackingID),
		Comments:       firstString(rec, ColComments),
		LastUpdatedAt:  timeField(rec, ColLastUpdated),
		Status:         decodeStatus(firstString(rec, ColStatus)),
		Timestamps: domain.StatusTimestamps{
			ProcessingAt: optionalTime(rec, ColProcessingDate),
			ShippedAt:    optionalTime(rec, ColShippedDate),
			DeliveredAt:  optionalTime(rec, ColDeliveredDate),
		},
	}
	order.PaymentMethod, order.PaymentStatus = decodePayment(firstString(rec, ColPaymentMethod), firstString(rec, ColPaymentStatus))
	order.Payment = paymentDetails(firstString(rec, ColCardLast4), firstString(rec, ColCardExpiry))

	first, last := domain.SplitName(firstString(rec, ColCustomerName))
	order.Customer = domain.Customer{
		FirstName: first,
		LastName:  last,
		Email:     firstString(rec, ColEmail),
		Phone:     firstString(rec, ColPhone),
		Address:   firstString(rec, ColAddress),
		City:      firstString(rec, ColCity),
		State:     firstString(rec, ColState),
		Zip:       firstString(rec, ColZip),
		Country:   firstString(rec, ColCountry),
		Notes:     firstString(rec, ColNotes),
	}

	var (
		items         []domain.CartLineItem
		complementary []domain.ComplementaryItem
		state         ItemsState
		itemsErr      error
	)
	if raw, ok := firstValue(rec, ColItemsJSON); ok {
		items, complementary, state, itemsErr = decodeItems(raw, nil)
	} else if snapshot, ok := asMap(rec[ColFullOrderJSON]); ok {
		inner, _ := asMap(snapshot["order"])
		items, complementary, state, itemsErr = decodeItems(inner["items"], inner["complementaryItems"])
	} else {
		state = ItemsMissing
	}
	order.Items = items
	order.ComplementaryItems = complementary

	order.Subtotal = subtotalOrItems(rec, items, complementary, ColSubtotal)
	order.Discount = moneyField(rec, ColDiscount)
	order.ShippingDiscount = moneyField(rec, ColShippingDiscount)
	order.Tax = moneyField(rec, ColTax)
	order.ShippingCost = moneyField(rec, ColShippingCost)
	order.CODCharge = moneyField(rec, ColCODCharges)
	order.ExtraAmount = moneyField(rec, ColExtraAmount)
	order.Total = moneyField(rec, ColTotal)

	return Decoded{Order: order, Items: state, ItemsErr: itemsErr}
}

func decodeCustomer(m Record) domain.Customer {
	first := firstString(m, "firstName")
	last := firstString(m, "lastName")
	if first == "" && last == "" {
		first, last = domain.SplitName(firstString(m, "name", "fullName", "customerName"))
	}
	return domain.Customer{
		FirstName: first,
		LastName:  last,
		Email:     firstString(m, "email"),
		Phone:     firstString(m, "phone"),
		Address:   firstString(m, "address"),
		City:      firstString(m, "city"),
		State:     firstString(m, "state"),
		Zip:       firstString(m, "zip", "zipCode", "postalCode"),
		Country:   firstString(m, "country"),
		Notes:     firstString(m, "notes"),
	}
}

func decodePayment(rawMethod, rawStatus string) (domain.PaymentMethod, domain.PaymentStatus) {
	method, ok := domain.ParsePaymentMethod(rawMethod)
	if !ok {
		method = domain.PaymentMethod(strings.ToLower(rawMethod))
	}
	status := domain.PaymentStatus(strings.ToLower(rawStatus))
	if status == "" && ok {
		status = domain.PaymentStatusFor(method)
	}
	return method, status
}

func paymentDetails(last4, expiry string) *domain.PaymentDetails {
	if last4 == "" && expiry == "" {
		return nil
	}
	return &domain.PaymentDetails{CardLast4: last4, Expiry: expiry}
}

// decodeStatus keeps unrecognised legacy labels verbatim so they remain visible.
func decodeStatus(raw string) domain.FulfillmentStatus {
	if raw == "" {
		return domain.StatusOrderPlaced
	}
	if status, ok := domain.ParseFulfillmentStatus(raw); ok {
		return status
	}
	return domain.FulfillmentStatus(raw)
}

func subtotalOrItems(rec Record, items []domain.CartLineItem, complementary []domain.ComplementaryItem, keys ...string) decimal.Decimal {
	if _, ok := firstValue(rec, keys...); ok {
		return moneyField(rec, keys...)
	}
	sum := decimal.Zero
	for _, item := range items {
		sum = sum.Add(item.Subtotal())
	}
	for _, item := range complementary {
		sum = sum.Add(item.Subtotal())
	}
	return domain.RoundMoney(sum)
}

func decodeItems(rawItems, rawComplementary any) ([]domain.CartLineItem, []domain.ComplementaryItem, ItemsState, error) {
	primary, err := itemList(rawItems)
	if err != nil {
		return nil, nil, ItemsMalformed, err
	}
	extra, err := itemList(rawComplementary)
	if err != nil {
		return nil, nil, ItemsMalformed, err
	}
	if len(primary) == 0 && len(extra) == 0 {
		return nil, nil, ItemsMissing, nil
	}

	var (
		items         []domain.CartLineItem
		complementary []domain.ComplementaryItem
		incomplete    bool
	)
	decodeEntry := func(entry any, forceComplementary bool) error {
		m, ok := asMap(entry)
		if !ok {
			return fmt.Errorf("order record: item entry is %T", entry)
		}
		priceValue, hasPrice := firstValue(m, "price", "unitPrice")
		quantityValue, hasQuantity := firstValue(m, "quantity", "qty")
		price, priceOK := parseMoney(priceValue)
		quantity, quantityOK := parseInt(quantityValue)
		if !hasPrice || !hasQuantity || !priceOK || !quantityOK {
			incomplete = true
		}
		size, _ := firstValue(m, "sizeInYards", "size")
		if forceComplementary || parseBool(m["complementary"]) {
			complementary = append(complementary, domain.ComplementaryItem{
				ParentItemID: firstString(m, "parentItemId", "parentId"),
				Name:         firstString(m, "name"),
				UnitPrice:    price.Round(2),
				SizeInYards:  optionalDecimal(size),
				Notes:        firstString(m, "notes"),
				ImageURL:     firstString(m, "imageUrl", "image"),
			})
			return nil
		}
		if quantity < 1 {
			quantity = 1
		}
		items = append(items, domain.CartLineItem{
			ID:          firstString(m, "id", "itemId"),
			Name:        firstString(m, "name"),
			UnitPrice:   price.Round(2),
			Quantity:    quantity,
			SizeInYards: optionalDecimal(size),
			ImageURL:    firstString(m, "imageUrl", "image"),
		})
		return nil
	}

	for _, entry := range primary {
		if err := decodeEntry(entry, false); err != nil {
			return nil, nil, ItemsMalformed, err
		}
	}
	for _, entry := range extra {
		if err := decodeEntry(entry, true); err != nil {
			return nil, nil, ItemsMalformed, err
		}
	}
	if incomplete {
		return items, complementary, ItemsIncomplete, nil
	}
	return items, complementary, ItemsEmbedded, nil
}

func itemList(raw any) ([]any, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case []any:
		return v, nil
	case []map[string]any:
		out := make([]any, len(v))
		for i := range v {
			out[i] = v[i]
		}
		return out, nil
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return nil, nil
		}
		var decoded []any
		if err := json.Unmarshal([]byte(trimmed), &decoded); err != nil {
			return nil, fmt.Errorf("order record: parse items: %w", err)
		}
		return decoded, nil
	default:
		return nil, fmt.Errorf("order record: unsupported items value %T", raw)
	}
}
