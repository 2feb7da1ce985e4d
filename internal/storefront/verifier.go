package storefront

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gax "github.com/googleapis/gax-go/v2"

	domain "github.com/loomhouse/api/internal/domain"
)

const (
	defaultVerifyAttempts = 3
	defaultVerifyDelay    = 2 * time.Second
)

// OrderReader is the part of Client used by StatusVerifier.
type OrderReader interface {
	OrderDetails(ctx context.Context, orderID string) (domain.Order, error)
}

// StatusVerifierDeps configures a StatusVerifier. Zero values mean 3 attempts 2s apart.
type StatusVerifierDeps struct {
	Orders   OrderReader
	Attempts int
	Delay    time.Duration
}

// StatusVerifier re-reads an order after a status update until the change is visible.
type StatusVerifier struct {
	orders   OrderReader
	attempts int
	delay    time.Duration
}

// NewStatusVerifier returns a verifier.
func NewStatusVerifier(deps StatusVerifierDeps) (*StatusVerifier, error) {
	if deps.Orders == nil {
		return nil, errors.New("storefront verifier: order reader is required")
	}
	attempts := deps.Attempts
	if attempts <= 0 {
		attempts = defaultVerifyAttempts
	}
	delay := deps.Delay
	if delay <= 0 {
		delay = defaultVerifyDelay
	}
	return &StatusVerifier{orders: deps.Orders, attempts: attempts, delay: delay}, nil
}

type staleReadError struct {
	got domain.Order
}

func (e *staleReadError) Error() string {
	return fmt.Sprintf("order %s shows %q tracking %q", e.got.ID, e.got.Status, e.got.TrackingID)
}

// Verify polls the order until it shows status and, when given, trackingID. It returns
// ErrStatusNotVisible with the last read order once the attempts run out.
func (v *StatusVerifier) Verify(ctx context.Context, orderID string, status domain.FulfillmentStatus, trackingID string) (domain.Order, error) {
	var last domain.Order
	trackingID = strings.TrimSpace(trackingID)
	err := gax.Invoke(ctx, func(ctx context.Context, _ gax.CallSettings) error {
		order, err := v.orders.OrderDetails(ctx, orderID)
		if err != nil {
			return err
		}
		last = order
		if order.Status != status || (trackingID != "" && order.TrackingID != trackingID) {
			return &staleReadError{got: order}
		}
		return nil
	}, gax.WithRetry(func() gax.Retryer {
		return &fixedRetryer{remaining: v.attempts - 1, delay: v.delay}
	}))
	if err == nil {
		return last, nil
	}
	var stale *staleReadError
	if errors.As(err, &stale) {
		return last, fmt.Errorf("%w: %v", ErrStatusNotVisible, err)
	}
	return last, err
}

// fixedRetryer retries stale reads and retryable API failures a fixed number of times.
type fixedRetryer struct {
	remaining int
	delay     time.Duration
}

func (r *fixedRetryer) Retry(err error) (time.Duration, bool) {
	if r.remaining <= 0 {
		return 0, false
	}
	var stale *staleReadError
	if !errors.As(err, &stale) && !IsRetryable(err) {
		return 0, false
	}
	r.remaining--
	return r.delay, true
}
