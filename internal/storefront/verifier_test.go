package storefront

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	domain "github.com/loomhouse/api/internal/domain"
)

func newTestVerifier(t *testing.T, reader OrderReader) *StatusVerifier {
	t.Helper()
	verifier, err := NewStatusVerifier(StatusVerifierDeps{Orders: reader, Delay: time.Millisecond})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	return verifier
}

func TestVerifyWaitsForStatus(t *testing.T) {
	var calls int
	verifier := newTestVerifier(t, &stubOrderReader{
		detailsFn: func(_ context.Context, orderID string) (domain.Order, error) {
			calls++
			if calls < 3 {
				return domain.Order{ID: orderID, Status: domain.StatusProcessing}, nil
			}
			return domain.Order{ID: orderID, Status: domain.StatusShipped, TrackingID: "TRK"}, nil
		},
	})

	order, err := verifier.Verify(context.Background(), "ORD-1", domain.StatusShipped, "TRK")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if calls != 3 || order.Status != domain.StatusShipped {
		t.Fatalf("expected shipped on third read, got %s after %d calls", order.Status, calls)
	}
}

func TestVerifyGivesUpAfterThreeAttempts(t *testing.T) {
	var calls int
	verifier := newTestVerifier(t, &stubOrderReader{
		detailsFn: func(_ context.Context, orderID string) (domain.Order, error) {
			calls++
			return domain.Order{ID: orderID, Status: domain.StatusShipped, TrackingID: "OLD"}, nil
		},
	})

	order, err := verifier.Verify(context.Background(), "ORD-1", domain.StatusShipped, "NEW")
	if !errors.Is(err, ErrStatusNotVisible) {
		t.Fatalf("expected ErrStatusNotVisible, got %v", err)
	}
	if calls != 3 || order.TrackingID != "OLD" {
		t.Fatalf("expected 3 reads returning the last order, got %d reads %+v", calls, order)
	}
}

func TestVerifyRetriesTransientErrors(t *testing.T) {
	var calls int
	verifier := newTestVerifier(t, &stubOrderReader{
		detailsFn: func(_ context.Context, orderID string) (domain.Order, error) {
			calls++
			if calls == 1 {
				return domain.Order{}, fmt.Errorf("%w: timeout", ErrTransport)
			}
			return domain.Order{ID: orderID, Status: domain.StatusDelivered}, nil
		},
	})
	if _, err := verifier.Verify(context.Background(), "ORD-1", domain.StatusDelivered, ""); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 reads, got %d", calls)
	}
}

func TestVerifyStopsOnPermanentError(t *testing.T) {
	var calls int
	verifier := newTestVerifier(t, &stubOrderReader{
		detailsFn: func(context.Context, string) (domain.Order, error) {
			calls++
			return domain.Order{}, &APIError{Status: http.StatusNotFound, Code: "order_not_found"}
		},
	})
	_, err := verifier.Verify(context.Background(), "ORD-1", domain.StatusShipped, "")
	if !IsNotFound(err) || calls != 1 {
		t.Fatalf("expected single not-found read, got %v after %d calls", err, calls)
	}
}

func TestVerifyHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	verifier, err := NewStatusVerifier(StatusVerifierDeps{
		Orders: &stubOrderReader{detailsFn: func(_ context.Context, orderID string) (domain.Order, error) {
			cancel()
			return domain.Order{ID: orderID, Status: domain.StatusProcessing}, nil
		}},
		Delay: time.Hour,
	})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	if _, err := verifier.Verify(ctx, "ORD-1", domain.StatusShipped, ""); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
}
