package services

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	domain "github.com/loomhouse/api/internal/domain"
	"github.com/loomhouse/api/internal/platform/textutil"
)

// CardInput is the card data entered at checkout. Only the last four digits and expiry are kept.
type CardInput struct {
	Number string
	Expiry string
	CVV    string
}

// BuildOrderInput gathers checkout state for OrderBuilder.Build.
type BuildOrderInput struct {
	Customer           domain.Customer
	Account            domain.AccountRef
	Items              []domain.CartLineItem
	ComplementaryItems []domain.ComplementaryItem
	Totals             domain.Totals
	PaymentMethod      domain.PaymentMethod
	Card               *CardInput
}

// OrderBuilder assembles canonical orders from priced checkout state.
type OrderBuilder struct {
	now    func() time.Time
	suffix func() string
}

// OrderBuilderDeps configures an OrderBuilder. Zero values fall back to the wall clock and ULID entropy.
type OrderBuilderDeps struct {
	Clock  func() time.Time
	Suffix func() string
}

// NewOrderBuilder constructs an OrderBuilder.
func NewOrderBuilder(deps OrderBuilderDeps) *OrderBuilder {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	suffix := deps.Suffix
	if suffix == nil {
		suffix = randomSuffix
	}
	return &OrderBuilder{
		now: func() time.Time {
			return clock().UTC()
		},
		suffix: suffix,
	}
}

// NewOrderID formats ORD-<last 6 digits of unix millis>-<suffix>.
func NewOrderID(at time.Time, suffix string) string {
	return fmt.Sprintf("ORD-%06d-%s", at.UnixMilli()%1_000_000, suffix)
}

func randomSuffix() string {
	id := ulid.Make().String()
	return id[len(id)-6:]
}

// Build validates the checkout input and returns a new order in the Order Placed state.
func (b *OrderBuilder) Build(input BuildOrderInput) (domain.Order, error) {
	customer := sanitizeCustomer(input.Customer)
	if customer.Email == "" {
		return domain.Order{}, fmt.Errorf("%w: customer email is required", ErrOrderInvalidInput)
	}
	if customer.Address == "" {
		return domain.Order{}, fmt.Errorf("%w: customer address is required", ErrOrderInvalidInput)
	}
	if len(input.Items) == 0 {
		return domain.Order{}, fmt.Errorf("%w: at least one item is required", ErrOrderInvalidInput)
	}
	method, ok := domain.ParsePaymentMethod(string(input.PaymentMethod))
	if !ok {
		return domain.Order{}, fmt.Errorf("%w: unsupported payment method %q", ErrOrderInvalidInput, input.PaymentMethod)
	}

	var payment *domain.PaymentDetails
	if method == domain.PaymentMethodCard && input.Card != nil {
		details, err := maskCard(*input.Card)
		if err != nil {
			return domain.Order{}, err
		}
		payment = &details
	}

	now := b.now()
	order := domain.Order{
		ID:                 NewOrderID(now, b.suffix()),
		CreatedAt:          now,
		Customer:           customer,
		Account:            input.Account,
		PaymentMethod:      method,
		PaymentStatus:      domain.PaymentStatusFor(method),
		Payment:            payment,
		Items:              sanitizeItems(input.Items),
		ComplementaryItems: sanitizeComplementary(input.ComplementaryItems),
		ShippingMethod:     input.Totals.ShippingMethod,
		PromoCode:          input.Totals.PromoCode,
		Subtotal:           input.Totals.Subtotal,
		Discount:           input.Totals.Discount,
		ShippingDiscount:   input.Totals.ShippingDiscount,
		Tax:                input.Totals.Tax,
		ShippingCost:       input.Totals.ShippingCost,
		CODCharge:          input.Totals.CODCharge,
		Status:             domain.StatusOrderPlaced,
		LastUpdatedAt:      now,
	}
	if method != domain.PaymentMethodCOD {
		order.CODCharge = decimal.Zero
	}
	order.RecomputeTotal()
	return order, nil
}

func maskCard(card CardInput) (domain.PaymentDetails, error) {
	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, card.Number)
	if len(digits) < 4 {
		return domain.PaymentDetails{}, fmt.Errorf("%w: card number is incomplete", ErrOrderInvalidInput)
	}
	return domain.PaymentDetails{
		CardLast4: digits[len(digits)-4:],
		Expiry:    strings.TrimSpace(card.Expiry),
	}, nil
}

func sanitizeCustomer(c domain.Customer) domain.Customer {
	return domain.Customer{
		FirstName: textutil.PlainText(c.FirstName),
		LastName:  textutil.PlainText(c.LastName),
		Email:     strings.ToLower(textutil.PlainText(c.Email)),
		Phone:     textutil.PlainText(c.Phone),
		Address:   textutil.PlainText(c.Address),
		City:      textutil.PlainText(c.City),
		State:     textutil.PlainText(c.State),
		Zip:       textutil.PlainText(c.Zip),
		Country:   textutil.PlainText(c.Country),
		Notes:     textutil.PlainText(c.Notes),
	}
}

func sanitizeItems(items []domain.CartLineItem) []domain.CartLineItem {
	out := make([]domain.CartLineItem, len(items))
	for i, item := range items {
		item.ID = strings.TrimSpace(item.ID)
		item.Name = textutil.PlainText(item.Name)
		item.ImageURL = strings.TrimSpace(item.ImageURL)
		out[i] = item
	}
	return out
}

func sanitizeComplementary(items []domain.ComplementaryItem) []domain.ComplementaryItem {
	if len(items) == 0 {
		return nil
	}
	out := make([]domain.ComplementaryItem, len(items))
	for i, item := range items {
		item.ParentItemID = strings.TrimSpace(item.ParentItemID)
		item.Name = textutil.PlainText(item.Name)
		item.Notes = textutil.PlainText(item.Notes)
		item.ImageURL = strings.TrimSpace(item.ImageURL)
		out[i] = item
	}
	return out
}
