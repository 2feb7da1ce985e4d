package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Money is a currency amount. Derived amounts are rounded to cents with RoundMoney.
type Money = decimal.Decimal

// AccountRef identifies the purchasing account. The zero value is a guest checkout.
type AccountRef struct {
	id string
}

// AccountFor returns a reference to the given account. Blank identifiers yield a guest reference.
func AccountFor(id string) AccountRef {
	return AccountRef{id: strings.TrimSpace(id)}
}

// GuestAccount returns the reference used for unauthenticated checkouts.
func GuestAccount() AccountRef {
	return AccountRef{}
}

// ID returns the account identifier and whether one is present.
func (a AccountRef) ID() (string, bool) {
	return a.id, a.id != ""
}

// IsGuest reports whether the reference carries no account.
func (a AccountRef) IsGuest() bool {
	return a.id == ""
}

// Equal compares two references; two guests are equal.
func (a AccountRef) Equal(other AccountRef) bool {
	return a.id == other.id
}

// PaymentMethod enumerates the checkout payment options.
type PaymentMethod string

const (
	// PaymentMethodCard is a card payment captured outside this system.
	PaymentMethodCard PaymentMethod = "card"
	// PaymentMethodCOD is cash on delivery and carries the configured COD charge.
	PaymentMethodCOD PaymentMethod = "cod"
)

// ParsePaymentMethod normalises user input into a known payment method.
func ParsePaymentMethod(raw string) (PaymentMethod, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "cod", "cash_on_delivery", "cash-on-delivery", "cash on delivery":
		return PaymentMethodCOD, true
	case "card", "credit_card", "credit-card", "creditcard":
		return PaymentMethodCard, true
	default:
		return "", false
	}
}

// PaymentStatus tracks payment progress independently of fulfillment.
type PaymentStatus string

const (
	PaymentStatusPendingCOD     PaymentStatus = "pending_cod"
	PaymentStatusPendingPayment PaymentStatus = "pending_payment"
)

// PaymentStatusFor derives the initial payment status for a method.
func PaymentStatusFor(method PaymentMethod) PaymentStatus {
	if method == PaymentMethodCOD {
		return PaymentStatusPendingCOD
	}
	return PaymentStatusPendingPayment
}

// FulfillmentStatus is the shipping/delivery stage of an order.
type FulfillmentStatus string

const (
	StatusOrderPlaced FulfillmentStatus = "Order Placed"
	StatusProcessing  FulfillmentStatus = "Processing"
	StatusShipped     FulfillmentStatus = "Shipped"
	StatusDelivered   FulfillmentStatus = "Delivered"
)

// FulfillmentStatuses lists the statuses in lifecycle order.
var FulfillmentStatuses = []FulfillmentStatus{
	StatusOrderPlaced,
	StatusProcessing,
	StatusShipped,
	StatusDelivered,
}

// ParseFulfillmentStatus accepts the display label or its snake_case form, case-insensitively.
func ParseFulfillmentStatus(raw string) (FulfillmentStatus, bool) {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.NewReplacer("_", " ", "-", " ").Replace(key)
	switch key {
	case "order placed", "placed":
		return StatusOrderPlaced, true
	case "processing":
		return StatusProcessing, true
	case "shipped":
		return StatusShipped, true
	case "delivered":
		return StatusDelivered, true
	default:
		return "", false
	}
}

// Rank returns the lifecycle position of the status, or -1 when unknown.
func (s FulfillmentStatus) Rank() int {
	for i, candidate := range FulfillmentStatuses {
		if candidate == s {
			return i
		}
	}
	return -1
}

// Customer holds the shopper contact and delivery details captured at checkout.
type Customer struct {
	FirstName string
	LastName  string
	Email     string
	Phone     string
	Address   string
	City      string
	State     string
	Zip       string
	Country   string
	Notes     string
}

// FullName joins first and last name.
func (c Customer) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(c.FirstName) + " " + strings.TrimSpace(c.LastName))
}

// SplitName splits a display name on the first space.
func SplitName(full string) (first, last string) {
	full = strings.TrimSpace(full)
	if full == "" {
		return "", ""
	}
	first, last, _ = strings.Cut(full, " ")
	return first, strings.TrimSpace(last)
}

// CartLineItem is a primary product line in the cart.
type CartLineItem struct {
	ID          string
	Name        string
	UnitPrice   decimal.Decimal
	Quantity    int
	SizeInYards *decimal.Decimal
	ImageURL    string
}

// Subtotal returns unit price × size (or 1) × quantity.
func (i CartLineItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(sizeOrOne(i.SizeInYards)).Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// ComplementaryItem is an add-on attached to a primary line. Its quantity is always 1.
type ComplementaryItem struct {
	ParentItemID string
	Name         string
	UnitPrice    decimal.Decimal
	SizeInYards  *decimal.Decimal
	Notes        string
	ImageURL     string
}

// Subtotal returns unit price × size (or 1).
func (i ComplementaryItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(sizeOrOne(i.SizeInYards))
}

func sizeOrOne(size *decimal.Decimal) decimal.Decimal {
	if size == nil || !size.IsPositive() {
		return decimal.NewFromInt(1)
	}
	return *size
}

// PaymentDetails keeps the masked card data retained with an order.
type PaymentDetails struct {
	CardLast4 string
	Expiry    string
}

// StatusTimestamps records the first entry into each post-placement status.
type StatusTimestamps struct {
	ProcessingAt *time.Time
	ShippedAt    *time.Time
	DeliveredAt  *time.Time
}

// Order is the canonical order aggregate. Both persisted representations are projected from it.
type Order struct {
	ID                 string
	CreatedAt          time.Time
	Customer           Customer
	Account            AccountRef
	PaymentMethod      PaymentMethod
	PaymentStatus      PaymentStatus
	Payment            *PaymentDetails
	Items              []CartLineItem
	ComplementaryItems []ComplementaryItem
	ShippingMethod     string
	PromoCode          string
	Subtotal           decimal.Decimal
	Discount           decimal.Decimal
	ShippingDiscount   decimal.Decimal
	Tax                decimal.Decimal
	ShippingCost       decimal.Decimal
	CODCharge          decimal.Decimal
	ExtraAmount        decimal.Decimal
	Total              decimal.Decimal
	Status             FulfillmentStatus
	Courier            string
	TrackingID         string
	Comments           string
	Timestamps         StatusTimestamps
	LastUpdatedAt      time.Time
}

// ComputedTotal derives the total from its components:
// subtotal − discount + tax + shipping + COD charge + extra amount.
func (o Order) ComputedTotal() decimal.Decimal {
	return RoundMoney(o.Subtotal.
		Sub(o.Discount).
		Add(o.Tax).
		Add(o.ShippingCost).
		Add(o.CODCharge).
		Add(o.ExtraAmount))
}

// RecomputeTotal overwrites Total with ComputedTotal.
func (o *Order) RecomputeTotal() {
	o.Total = o.ComputedTotal()
}

// RoundMoney rounds half away from zero to cents.
func RoundMoney(value decimal.Decimal) decimal.Decimal {
	return value.Round(2)
}
