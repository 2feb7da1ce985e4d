package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	domain "github.com/loomhouse/api/internal/domain"
)

const (
	NotificationOrderConfirmed = "order_confirmed"
	NotificationOrderShipped   = "order_shipped"
)

// NotificationMessage is the email job handed to the delivery worker.
type NotificationMessage struct {
	ID       string    `json:"id"`
	Kind     string    `json:"kind"`
	OrderID  string    `json:"orderId"`
	To       string    `json:"to"`
	Name     string    `json:"name,omitempty"`
	Subject  string    `json:"subject"`
	Body     string    `json:"body"`
	QueuedAt time.Time `json:"queuedAt"`
}

// NotificationPublisher enqueues notification jobs.
type NotificationPublisher interface {
	PublishNotification(ctx context.Context, message NotificationMessage) (string, error)
}

// OrderNotifierDeps configures the notifier.
type OrderNotifierDeps struct {
	Publisher   NotificationPublisher
	StoreName   string
	Currency    string
	Language    string
	Clock       func() time.Time
	IDGenerator func() string
}

type orderNotifier struct {
	publisher NotificationPublisher
	store     string
	unit      currency.Unit
	printer   *message.Printer
	now       func() time.Time
	newID     func() string
}

// NewOrderNotifier formats plain-text order emails and publishes them as jobs.
func NewOrderNotifier(deps OrderNotifierDeps) (OrderNotifier, error) {
	if deps.Publisher == nil {
		return nil, errors.New("order notifier: publisher is required")
	}
	code := strings.TrimSpace(deps.Currency)
	if code == "" {
		code = "USD"
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return nil, fmt.Errorf("order notifier: currency %q: %w", code, err)
	}
	tag := language.English
	if raw := strings.TrimSpace(deps.Language); raw != "" {
		parsed, err := language.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("order notifier: language %q: %w", raw, err)
		}
		tag = parsed
	}
	store := strings.TrimSpace(deps.StoreName)
	if store == "" {
		store = "our store"
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	return &orderNotifier{
		publisher: deps.Publisher,
		store:     store,
		unit:      unit,
		printer:   message.NewPrinter(tag),
		now: func() time.Time {
			return clock().UTC()
		},
		newID: idGen,
	}, nil
}

func (n *orderNotifier) NotifyOrderConfirmed(ctx context.Context, order Order) error {
	var body strings.Builder
	fmt.Fprintf(&body, "Hi %s,\n\n", greetingName(order.Customer))
	fmt.Fprintf(&body, "Thank you for shopping with %s. We received order %s.\n\n", n.store, order.ID)
	for _, item := range order.Items {
		fmt.Fprintf(&body, "  %d × %s  %s\n", item.Quantity, item.Name, n.amount(item.Subtotal()))
	}
	for _, item := range order.ComplementaryItems {
		fmt.Fprintf(&body, "  + %s  %s\n", item.Name, n.amount(item.Subtotal()))
	}
	body.WriteString("\n")
	n.line(&body, "Subtotal", order.Subtotal)
	if order.Discount.IsPositive() {
		n.line(&body, "Discount", order.Discount.Neg())
	}
	n.line(&body, "Shipping", order.ShippingCost)
	n.line(&body, "Tax", order.Tax)
	if order.CODCharge.IsPositive() {
		n.line(&body, "COD charge", order.CODCharge)
	}
	n.line(&body, "Total", order.ComputedTotal())
	fmt.Fprintf(&body, "\nPayment: %s (%s)\n", order.PaymentMethod, order.PaymentStatus)

	return n.publish(ctx, NotificationOrderConfirmed, order, fmt.Sprintf("Order %s confirmed", order.ID), body.String())
}

func (n *orderNotifier) NotifyOrderShipped(ctx context.Context, order Order) error {
	if strings.TrimSpace(order.TrackingID) == "" {
		return fmt.Errorf("%w: tracking id is required for shipping notifications", ErrOrderInvalidInput)
	}
	var body strings.Builder
	fmt.Fprintf(&body, "Hi %s,\n\n", greetingName(order.Customer))
	fmt.Fprintf(&body, "Order %s is on its way.\n", order.ID)
	if order.Courier != "" {
		fmt.Fprintf(&body, "Courier: %s\n", order.Courier)
	}
	fmt.Fprintf(&body, "Tracking number: %s\n", order.TrackingID)
	if order.Comments != "" {
		fmt.Fprintf(&body, "\n%s\n", order.Comments)
	}
	return n.publish(ctx, NotificationOrderShipped, order, fmt.Sprintf("Order %s has shipped", order.ID), body.String())
}

func (n *orderNotifier) publish(ctx context.Context, kind string, order Order, subject, body string) error {
	to := strings.TrimSpace(order.Customer.Email)
	if to == "" {
		return fmt.Errorf("%w: customer email is required for notifications", ErrOrderInvalidInput)
	}
	_, err := n.publisher.PublishNotification(ctx, NotificationMessage{
		ID:       n.newID(),
		Kind:     kind,
		OrderID:  order.ID,
		To:       to,
		Name:     order.Customer.FullName(),
		Subject:  subject,
		Body:     body,
		QueuedAt: n.now(),
	})
	if err != nil {
		return fmt.Errorf("publish %s notification: %w", kind, err)
	}
	return nil
}

func (n *orderNotifier) line(b *strings.Builder, label string, value domain.Money) {
	fmt.Fprintf(b, "%-12s %s\n", label+":", n.amount(value))
}

func (n *orderNotifier) amount(value domain.Money) string {
	return n.printer.Sprintf("%s %.2f", n.unit.String(), value.Round(2).InexactFloat64())
}

func greetingName(c domain.Customer) string {
	if name := strings.TrimSpace(c.FirstName); name != "" {
		return name
	}
	return "there"
}

type logOrderNotifier struct {
	logger func(context.Context, string, map[string]any)
}

// NewLogOrderNotifier records notifications in the log instead of sending them.
func NewLogOrderNotifier(logger func(ctx context.Context, event string, fields map[string]any)) OrderNotifier {
	if logger == nil {
		logger = noopLogger
	}
	return logOrderNotifier{logger: logger}
}

func (n logOrderNotifier) NotifyOrderConfirmed(ctx context.Context, order Order) error {
	n.logger(ctx, "order.notification.logged", map[string]any{
		"kind":    NotificationOrderConfirmed,
		"orderId": order.ID,
		"to":      order.Customer.Email,
	})
	return nil
}

func (n logOrderNotifier) NotifyOrderShipped(ctx context.Context, order Order) error {
	n.logger(ctx, "order.notification.logged", map[string]any{
		"kind":       NotificationOrderShipped,
		"orderId":    order.ID,
		"to":         order.Customer.Email,
		"trackingId": order.TrackingID,
	})
	return nil
}
