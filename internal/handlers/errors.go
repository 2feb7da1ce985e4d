package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/loomhouse/api/internal/orderrecord"
	"github.com/loomhouse/api/internal/platform/auth"
	"github.com/loomhouse/api/internal/platform/httpx"
	"github.com/loomhouse/api/internal/services"
)

// writeActionError maps service and auth errors onto the envelope.
func writeActionError(ctx context.Context, w http.ResponseWriter, err error) {
	httpx.WriteError(ctx, w, toHTTPError(err))
}

func toHTTPError(err error) httpx.Error {
	var httpErr httpx.Error
	if errors.As(err, &httpErr) {
		return httpErr
	}
	switch {
	case errors.Is(err, errInvalidParam),
		errors.Is(err, services.ErrOrderInvalidInput),
		errors.Is(err, services.ErrPricingInvalidInput),
		errors.Is(err, orderrecord.ErrMalformedRecord):
		return httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest)
	case errors.Is(err, services.ErrPricingEmptyCart):
		return httpx.NewError("empty_cart", "cart has no items", http.StatusBadRequest)
	case errors.Is(err, services.ErrOrderInvalidStatus):
		return httpx.NewError("invalid_status", err.Error(), http.StatusBadRequest)
	case errors.Is(err, services.ErrOrderInvalidState):
		return httpx.NewError("invalid_state_transition", err.Error(), http.StatusConflict)
	case errors.Is(err, services.ErrOrderNotFound):
		return httpx.NewError("order_not_found", "order not found", http.StatusNotFound)
	case errors.Is(err, services.ErrOrderConflict):
		return httpx.NewError("order_conflict", "order was modified concurrently", http.StatusConflict)
	case errors.Is(err, services.ErrOrderUnavailable):
		return httpx.NewError("store_unavailable", "order store unavailable", http.StatusServiceUnavailable)
	case errors.Is(err, services.ErrPricingConfigInvalid):
		return httpx.NewError("pricing_config_invalid", "pricing configuration is invalid", http.StatusInternalServerError)
	case errors.Is(err, auth.ErrUnauthenticated):
		return httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized)
	case errors.Is(err, auth.ErrForbidden):
		return httpx.NewError("forbidden", "insufficient permissions", http.StatusForbidden)
	case errors.Is(err, context.DeadlineExceeded):
		return httpx.NewError("timeout", "request timed out", http.StatusGatewayTimeout)
	default:
		return httpx.NewError("internal_error", "internal server error", http.StatusInternalServerError)
	}
}
