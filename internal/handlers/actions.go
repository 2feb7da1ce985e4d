package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/loomhouse/api/internal/domain"
	"github.com/loomhouse/api/internal/orderrecord"
	"github.com/loomhouse/api/internal/platform/auth"
	"github.com/loomhouse/api/internal/platform/httpx"
	"github.com/loomhouse/api/internal/platform/requestctx"
	"github.com/loomhouse/api/internal/services"
)

// Action names accepted by the exec endpoint.
const (
	ActionSubmitOrder       = "submitOrder"
	ActionUpdateOrderStatus = "updateOrderStatus"
	ActionGetOrders         = "getOrders"
	ActionGetAllOrders      = "getAllOrders"
	ActionGetOrderDetails   = "getOrderDetails"
	ActionGetOrderStats     = "getOrderStats"
	ActionGetPricingConfig  = "getPricingConfig"
	ActionCalculateTotals   = "calculateTotals"
)

// Placeholder for submissions without an ID; the submission service assigns the real one.
const unassignedOrderID = "ORD-UNASSIGNED"

type actionResult struct {
	status  int
	message string
	payload map[string]any
}

type actionFunc func(ctx context.Context, params actionParams) (actionResult, error)

type actionRoute struct {
	methods []string
	run     actionFunc
}

// ActionHandlersDeps wires the order services into the exec endpoint. EnforceRoles turns on
// caller checks: staff or admin for fulfillment actions, own account only for plain users.
type ActionHandlersDeps struct {
	Pricing      services.PricingService
	Submission   services.OrderSubmissionService
	Queries      services.OrderQueryService
	Status       services.OrderStatusService
	EnforceRoles bool
}

// ActionHandlers serves the action-discriminated order API.
type ActionHandlers struct {
	pricing      services.PricingService
	submission   services.OrderSubmissionService
	queries      services.OrderQueryService
	status       services.OrderStatusService
	enforceRoles bool
	actions      map[string]actionRoute
}

// NewActionHandlers constructs the exec endpoint handlers.
func NewActionHandlers(deps ActionHandlersDeps) *ActionHandlers {
	h := &ActionHandlers{
		pricing:      deps.Pricing,
		submission:   deps.Submission,
		queries:      deps.Queries,
		status:       deps.Status,
		enforceRoles: deps.EnforceRoles,
	}
	post := []string{http.MethodPost}
	getOrPost := []string{http.MethodGet, http.MethodPost}
	h.actions = map[string]actionRoute{
		ActionSubmitOrder:       {methods: post, run: h.submitOrder},
		ActionUpdateOrderStatus: {methods: post, run: h.updateOrderStatus},
		ActionGetOrders:         {methods: getOrPost, run: h.getOrders},
		ActionGetAllOrders:      {methods: getOrPost, run: h.getAllOrders},
		ActionGetOrderDetails:   {methods: getOrPost, run: h.getOrderDetails},
		ActionGetOrderStats:     {methods: getOrPost, run: h.getOrderStats},
		ActionGetPricingConfig:  {methods: getOrPost, run: h.getPricingConfig},
		ActionCalculateTotals:   {methods: getOrPost, run: h.calculateTotals},
	}
	return h
}

// Routes registers GET and POST /exec.
func (h *ActionHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/exec", h.exec)
	r.Post("/exec", h.exec)
}

func (h *ActionHandlers) exec(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	params, err := readActionParams(w, r)
	if err != nil {
		writeActionError(ctx, w, err)
		return
	}
	action := params.text("action")
	if action == "" {
		httpx.WriteError(ctx, w, httpx.NewError("missing_action", "action is required", http.StatusBadRequest))
		return
	}
	route, ok := h.actions[action]
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unknown_action", fmt.Sprintf("unknown action %q", action), http.StatusBadRequest))
		return
	}
	w.Header().Set(httpx.ActionHeader, action)
	if !allowsMethod(route.methods, r.Method) {
		httpx.WriteError(ctx, w, httpx.NewError("method_not_allowed", fmt.Sprintf("%s requires %s", action, strings.Join(route.methods, " or ")), http.StatusMethodNotAllowed))
		return
	}

	ctx = requestctx.WithAction(ctx, action)
	result, err := route.run(ctx, params)
	if err != nil {
		writeActionError(ctx, w, err)
		return
	}
	httpx.WriteSuccess(w, result.status, result.message, result.payload)
}

func allowsMethod(methods []string, method string) bool {
	for _, m := range methods {
		if m == method {
			return true
		}
	}
	return false
}

var errServiceUnavailable = httpx.NewError("service_unavailable", "service unavailable", http.StatusServiceUnavailable)

func (h *ActionHandlers) submitOrder(ctx context.Context, params actionParams) (actionResult, error) {
	if h.submission == nil {
		return actionResult{}, errServiceUnavailable
	}
	orderObj, hasOrder, err := params.object("order")
	if err != nil {
		return actionResult{}, err
	}
	customerObj, hasCustomer, err := params.object("customer")
	if err != nil {
		return actionResult{}, err
	}
	if hasOrder && !hasCustomer {
		if customerObj, hasCustomer, err = orderObj.object("customer"); err != nil {
			return actionResult{}, err
		}
	}

	cmd := services.SubmitOrderCommand{}
	if hasOrder {
		order, err := decodeSubmittedOrder(orderObj, customerObj, params.text("userId", "accountId"))
		if err != nil {
			return actionResult{}, err
		}
		if identity, ok := auth.IdentityFromContext(ctx); ok && !identity.IsOperator() {
			order.Account = identity.Account()
		}
		cmd.Order = &order
		if hasCustomer {
			customer := order.Customer
			cmd.Customer = &customer
		}
		if cmd.CODCharges, err = orderObj.money("codCharges", "codCharge"); err != nil {
			return actionResult{}, err
		}
	}
	if cmd.CODCharges == nil {
		if cmd.CODCharges, err = params.money("codCharges"); err != nil {
			return actionResult{}, err
		}
	}

	result, err := h.submission.Submit(ctx, cmd)
	if err != nil {
		return actionResult{}, err
	}
	status, message := http.StatusCreated, "Order submitted successfully"
	if result.Duplicate {
		status, message = http.StatusOK, "Order already submitted"
	}
	return actionResult{
		status:  status,
		message: message,
		payload: map[string]any{
			"orderId":       result.OrderID,
			"orderStatus":   string(result.OrderStatus),
			"paymentStatus": string(result.PaymentStatus),
			"total":         moneyJSON(result.Order.Total),
			"duplicate":     result.Duplicate,
		},
	}, nil
}

func decodeSubmittedOrder(orderObj, customerObj actionParams, accountID string) (domain.Order, error) {
	inner := make(map[string]any, len(orderObj)+1)
	for k, v := range orderObj {
		inner[k] = v
	}
	placeholder := !orderObj.has("orderId", "id")
	if placeholder {
		inner["orderId"] = unassignedOrderID
	}
	rec := orderrecord.Record{"order": inner}
	if customerObj != nil {
		rec["customer"] = map[string]any(customerObj)
	}
	if accountID != "" {
		rec["accountId"] = accountID
	}
	decoded, err := orderrecord.Decode(rec)
	if err != nil {
		return domain.Order{}, fmt.Errorf("%w: %v", services.ErrOrderInvalidInput, err)
	}
	switch decoded.Items {
	case orderrecord.ItemsIncomplete:
		return domain.Order{}, fmt.Errorf("%w: every item needs a price and a quantity", services.ErrOrderInvalidInput)
	case orderrecord.ItemsMalformed:
		return domain.Order{}, fmt.Errorf("%w: items could not be parsed: %v", services.ErrOrderInvalidInput, decoded.ItemsErr)
	}
	order := decoded.Order
	if placeholder {
		order.ID = ""
	}
	return order, nil
}

func (h *ActionHandlers) updateOrderStatus(ctx context.Context, params actionParams) (actionResult, error) {
	if h.status == nil {
		return actionResult{}, errServiceUnavailable
	}
	identity, err := h.requireOperator(ctx)
	if err != nil {
		return actionResult{}, err
	}
	data, ok, err := params.object("data")
	if err != nil {
		return actionResult{}, err
	}
	if !ok {
		data = params
	}

	cmd := services.UpdateOrderStatusCommand{
		OrderID:    data.text("orderId"),
		Status:     data.text("orderStatus", "status"),
		Courier:    data.text("courier"),
		TrackingID: data.text("trackingId"),
		Comments:   data.text("comments"),
		Force:      data.flag("force"),
		ActorID:    "anonymous",
	}
	if identity != nil {
		cmd.ActorID = identity.UID
	}
	if cmd.ExtraAmount, err = data.money("extraAmount"); err != nil {
		return actionResult{}, err
	}
	if cmd.AdditionalCost, err = data.money("additionalCost"); err != nil {
		return actionResult{}, err
	}
	if cmd.CODCharges, err = data.money("codCharges", "codCharge"); err != nil {
		return actionResult{}, err
	}

	order, err := h.status.UpdateStatus(ctx, cmd)
	if err != nil {
		return actionResult{}, err
	}
	return actionResult{
		status:  http.StatusOK,
		message: "Order status updated successfully",
		payload: map[string]any{
			"orderId":       order.ID,
			"orderStatus":   string(order.Status),
			"paymentStatus": string(order.PaymentStatus),
			"courier":       order.Courier,
			"trackingId":    order.TrackingID,
			"comments":      order.Comments,
			"extraAmount":   moneyJSON(order.ExtraAmount),
			"codCharges":    moneyJSON(order.CODCharge),
			"total":         moneyJSON(order.Total),
			"lastUpdated":   order.LastUpdatedAt.UTC().Format(time.RFC3339),
		},
	}, nil
}

func (h *ActionHandlers) getOrders(ctx context.Context, params actionParams) (actionResult, error) {
	if h.queries == nil {
		return actionResult{}, errServiceUnavailable
	}
	account, err := h.scopedAccount(ctx, params.text("userId", "accountId"))
	if err != nil {
		return actionResult{}, err
	}
	limit, err := listLimit(params)
	if err != nil {
		return actionResult{}, err
	}
	orders, err := h.queries.ListForAccount(ctx, services.ListOrdersQuery{Account: account, Limit: limit})
	if err != nil {
		return actionResult{}, err
	}
	return actionResult{status: http.StatusOK, payload: map[string]any{
		"orders": orderListPayload(orders),
		"count":  len(orders),
	}}, nil
}

func (h *ActionHandlers) getAllOrders(ctx context.Context, params actionParams) (actionResult, error) {
	if h.queries == nil {
		return actionResult{}, errServiceUnavailable
	}
	if _, err := h.requireOperator(ctx); err != nil {
		return actionResult{}, err
	}
	limit, err := listLimit(params)
	if err != nil {
		return actionResult{}, err
	}
	result, err := h.queries.ListAll(ctx, services.ListOrdersQuery{Limit: limit})
	if err != nil {
		return actionResult{}, err
	}
	return actionResult{status: http.StatusOK, payload: map[string]any{
		"orders":     orderListPayload(result.Orders),
		"totalCount": result.TotalCount,
	}}, nil
}

func (h *ActionHandlers) getOrderDetails(ctx context.Context, params actionParams) (actionResult, error) {
	if h.queries == nil {
		return actionResult{}, errServiceUnavailable
	}
	orderID := params.text("orderId")
	if orderID == "" {
		return actionResult{}, fmt.Errorf("%w: orderId is required", errInvalidParam)
	}
	order, err := h.queries.GetDetails(ctx, orderID)
	if err != nil {
		return actionResult{}, err
	}
	return actionResult{status: http.StatusOK, payload: map[string]any{"order": orderPayload(order)}}, nil
}

func (h *ActionHandlers) getOrderStats(ctx context.Context, params actionParams) (actionResult, error) {
	if h.queries == nil {
		return actionResult{}, errServiceUnavailable
	}
	account, err := h.scopedAccount(ctx, params.text("userId", "accountId"))
	if err != nil {
		return actionResult{}, err
	}
	stats, err := h.queries.Stats(ctx, account)
	if err != nil {
		return actionResult{}, err
	}
	return actionResult{status: http.StatusOK, payload: statsPayload(stats)}, nil
}

func (h *ActionHandlers) getPricingConfig(ctx context.Context, params actionParams) (actionResult, error) {
	if h.pricing == nil {
		return actionResult{}, errServiceUnavailable
	}
	cfg, err := h.pricing.Config(ctx, params.flag("refresh"))
	if err != nil {
		return actionResult{}, err
	}
	return actionResult{status: http.StatusOK, payload: map[string]any{"config": pricingConfigPayload(cfg)}}, nil
}

func (h *ActionHandlers) calculateTotals(ctx context.Context, params actionParams) (actionResult, error) {
	if h.pricing == nil {
		return actionResult{}, errServiceUnavailable
	}
	decoded, err := orderrecord.Decode(orderrecord.Record{
		"id":                 "quote",
		"items":              params["items"],
		"complementaryItems": params["complementaryItems"],
	})
	if err != nil {
		return actionResult{}, err
	}
	switch decoded.Items {
	case orderrecord.ItemsIncomplete:
		return actionResult{}, fmt.Errorf("%w: every item needs a price and a quantity", errInvalidParam)
	case orderrecord.ItemsMalformed:
		return actionResult{}, fmt.Errorf("%w: items could not be parsed", errInvalidParam)
	}

	input := services.TotalsInput{
		Items:              decoded.Order.Items,
		ComplementaryItems: decoded.Order.ComplementaryItems,
		ShippingMethod:     params.text("shippingMethod"),
		PromoCode:          params.text("promoCode"),
	}
	if raw := params.text("paymentMethod"); raw != "" {
		method, ok := domain.ParsePaymentMethod(raw)
		if !ok {
			return actionResult{}, fmt.Errorf("%w: unsupported payment method %q", errInvalidParam, raw)
		}
		input.PaymentMethod = method
	}
	totals, err := h.pricing.Calculate(ctx, input)
	if err != nil {
		return actionResult{}, err
	}
	result := actionResult{status: http.StatusOK, payload: map[string]any{"totals": totalsPayload(totals)}}
	if totals.PromoRejected {
		result.message = "Promo code not recognised"
	}
	return result, nil
}

func listLimit(params actionParams) (int, error) {
	limit, ok, err := params.integer("limit")
	if err != nil {
		return 0, err
	}
	if ok && limit < 0 {
		return 0, fmt.Errorf("%w: limit must be positive", errInvalidParam)
	}
	return limit, nil
}

func (h *ActionHandlers) requireOperator(ctx context.Context) (*auth.Identity, error) {
	if !h.enforceRoles {
		identity, _ := auth.IdentityFromContext(ctx)
		return identity, nil
	}
	return auth.RequireRole(ctx, auth.RoleStaff, auth.RoleAdmin)
}

// scopedAccount resolves the account a listing may read. Signed-in shoppers only see their own
// orders; operators and anonymous callers use the userId parameter, where missing or GUEST means
// guest orders.
func (h *ActionHandlers) scopedAccount(ctx context.Context, userID string) (domain.AccountRef, error) {
	requested := orderrecord.ParseAccountID(userID)
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity.IsOperator() {
		return requested, nil
	}
	own := identity.Account()
	if userID != "" && !requested.Equal(own) {
		return domain.AccountRef{}, fmt.Errorf("%w: orders of another account", auth.ErrForbidden)
	}
	return own, nil
}
