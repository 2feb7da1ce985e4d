package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/loomhouse/api/internal/domain"
	"github.com/loomhouse/api/internal/orderrecord"
	"github.com/loomhouse/api/internal/repositories"
	"github.com/loomhouse/api/internal/repositories/memory"
)

func seededStore(t *testing.T, order domain.Order) *memory.Store {
	t.Helper()
	store := memory.NewStore(memory.ShapeRow)
	if err := store.Insert(context.Background(), order); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := store.InsertItems(context.Background(), orderrecord.ItemRows(order)); err != nil {
		t.Fatalf("seed items: %v", err)
	}
	return store
}

func placedOrder(method domain.PaymentMethod) domain.Order {
	order := domain.Order{
		ID:             "ORD-000042-ABCDEF",
		CreatedAt:      time.Date(2024, 7, 1, 8, 0, 0, 0, time.UTC),
		Customer:       validCustomer(),
		Account:        domain.AccountFor("acct-1"),
		PaymentMethod:  method,
		PaymentStatus:  domain.PaymentStatusFor(method),
		Items:          itemsWorth("50"),
		ShippingMethod: "domestic",
		Subtotal:       dec("50"),
		Tax:            dec("5"),
		ShippingCost:   dec("9.99"),
		Status:         domain.StatusOrderPlaced,
	}
	order.Customer.Email = "ada@example.com"
	if method == domain.PaymentMethodCOD {
		order.CODCharge = dec("5")
	}
	order.RecomputeTotal()
	return order
}

func newStatusService(t *testing.T, store *memory.Store, notifier OrderNotifier, now time.Time, logger func(context.Context, string, map[string]any)) OrderStatusService {
	t.Helper()
	svc, err := NewOrderStatusService(OrderStatusServiceDeps{
		Orders:   store,
		Items:    store,
		Notifier: notifier,
		Clock:    fixedClock(now),
		Logger:   logger,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestUpdateStatusSkipToDeliveredStampsOnlyDelivered(t *testing.T) {
	store := seededStore(t, placedOrder(domain.PaymentMethodCard))
	now := time.Date(2024, 7, 3, 10, 0, 0, 0, time.UTC)
	svc := newStatusService(t, store, nil, now, nil)

	order, err := svc.UpdateStatus(context.Background(), UpdateOrderStatusCommand{OrderID: "ORD-000042-ABCDEF", Status: "Delivered"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order.Status != domain.StatusDelivered {
		t.Fatalf("expected Delivered, got %s", order.Status)
	}
	if order.Timestamps.DeliveredAt == nil || !order.Timestamps.DeliveredAt.Equal(now) {
		t.Fatalf("expected deliveredAt stamped, got %v", order.Timestamps.DeliveredAt)
	}
	if order.Timestamps.ProcessingAt != nil || order.Timestamps.ShippedAt != nil {
		t.Fatalf("expected skipped stages to stay unstamped, got %+v", order.Timestamps)
	}

	stored, err := store.FindRecord(context.Background(), "ORD-000042-ABCDEF")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	persisted, err := orderrecord.Normalize(stored)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if persisted.Status != domain.StatusDelivered || !persisted.LastUpdatedAt.Equal(now) {
		t.Fatalf("expected persisted update, got %s at %v", persisted.Status, persisted.LastUpdatedAt)
	}
}

func TestUpdateStatusKeepsFirstShippedTimestamp(t *testing.T) {
	store := seededStore(t, placedOrder(domain.PaymentMethodCard))
	first := time.Date(2024, 7, 2, 9, 0, 0, 0, time.UTC)
	notifier := &stubNotifier{}

	svc := newStatusService(t, store, notifier, first, nil)
	if _, err := svc.UpdateStatus(context.Background(), UpdateOrderStatusCommand{OrderID: "ORD-000042-ABCDEF", Status: "Shipped", Courier: "DHL", TrackingID: "TRK-1"}); err != nil {
		t.Fatalf("first update: %v", err)
	}

	later := first.Add(6 * time.Hour)
	svc = newStatusService(t, store, notifier, later, nil)
	order, err := svc.UpdateStatus(context.Background(), UpdateOrderStatusCommand{OrderID: "ORD-000042-ABCDEF", Status: "Shipped", Courier: "DHL", TrackingID: "TRK-1", Comments: "left depot"})
	if err != nil {
		t.Fatalf("second update: %v", err)
	}
	if order.Timestamps.ShippedAt == nil || !order.Timestamps.ShippedAt.Equal(first) {
		t.Fatalf("expected shippedAt to stay %v, got %v", first, order.Timestamps.ShippedAt)
	}
	if !order.LastUpdatedAt.Equal(later) || order.Comments != "left depot" {
		t.Fatalf("expected lastUpdated and comments refreshed, got %v %q", order.LastUpdatedAt, order.Comments)
	}
	if len(notifier.shipped) != 1 {
		t.Fatalf("expected one shipped notification for an unchanged tracking id, got %d", len(notifier.shipped))
	}

	if _, err := svc.UpdateStatus(context.Background(), UpdateOrderStatusCommand{OrderID: "ORD-000042-ABCDEF", Status: "Shipped", TrackingID: "TRK-2"}); err != nil {
		t.Fatalf("third update: %v", err)
	}
	if len(notifier.shipped) != 2 || notifier.shipped[1].TrackingID != "TRK-2" {
		t.Fatalf("expected a new notification for a changed tracking id, got %d", len(notifier.shipped))
	}
}

func TestUpdateStatusShippedWithoutTrackingDoesNotNotify(t *testing.T) {
	store := seededStore(t, placedOrder(domain.PaymentMethodCard))
	notifier := &stubNotifier{}
	svc := newStatusService(t, store, notifier, time.Now(), nil)
	if _, err := svc.UpdateStatus(context.Background(), UpdateOrderStatusCommand{OrderID: "ORD-000042-ABCDEF", Status: "Shipped"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(notifier.shipped) != 0 {
		t.Fatalf("expected no notification without tracking id")
	}
}

func TestUpdateStatusRejectsBackwardMoveUnlessForced(t *testing.T) {
	order := placedOrder(domain.PaymentMethodCard)
	order.Status = domain.StatusDelivered
	store := seededStore(t, order)
	recorder := &eventRecorder{}
	svc := newStatusService(t, store, nil, time.Now(), recorder.log)

	_, err := svc.UpdateStatus(context.Background(), UpdateOrderStatusCommand{OrderID: order.ID, Status: "Processing"})
	if !errors.Is(err, ErrOrderInvalidState) {
		t.Fatalf("expected ErrOrderInvalidState, got %v", err)
	}

	updated, err := svc.UpdateStatus(context.Background(), UpdateOrderStatusCommand{OrderID: order.ID, Status: "Processing", Force: true, ActorID: "admin-7"})
	if err != nil {
		t.Fatalf("expected forced move to succeed, got %v", err)
	}
	if updated.Status != domain.StatusProcessing {
		t.Fatalf("expected Processing, got %s", updated.Status)
	}
	if !recorder.has("order.status.forced") {
		t.Fatalf("expected forced move to be logged")
	}
}

func TestUpdateStatusRejectsUnknownStatus(t *testing.T) {
	store := seededStore(t, placedOrder(domain.PaymentMethodCard))
	svc := newStatusService(t, store, nil, time.Now(), nil)
	if _, err := svc.UpdateStatus(context.Background(), UpdateOrderStatusCommand{OrderID: "ORD-000042-ABCDEF", Status: "Lost"}); !errors.Is(err, ErrOrderInvalidStatus) {
		t.Fatalf("expected ErrOrderInvalidStatus, got %v", err)
	}
	if _, err := svc.UpdateStatus(context.Background(), UpdateOrderStatusCommand{OrderID: "ORD-missing", Status: "Shipped"}); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestUpdateStatusFromLegacyStatus(t *testing.T) {
	store := memory.NewStore(memory.ShapeRow)
	rec := rowRecord("ORD-LEGACY", time.Now(), "acct-1", "Awaiting Pickup", "10")
	if err := store.PutRecord(rec); err != nil {
		t.Fatalf("seed: %v", err)
	}
	svc := newStatusService(t, store, nil, time.Now(), nil)
	order, err := svc.UpdateStatus(context.Background(), UpdateOrderStatusCommand{OrderID: "ORD-LEGACY", Status: "Order Placed"})
	if err != nil {
		t.Fatalf("expected legacy status to move to a known status, got %v", err)
	}
	if order.Status != domain.StatusOrderPlaced {
		t.Fatalf("expected Order Placed, got %s", order.Status)
	}
}

func TestUpdateStatusAppliesAdjustments(t *testing.T) {
	store := seededStore(t, placedOrder(domain.PaymentMethodCOD))
	svc := newStatusService(t, store, nil, time.Now(), nil)

	order, err := svc.UpdateStatus(context.Background(), UpdateOrderStatusCommand{
		OrderID:        "ORD-000042-ABCDEF",
		Status:         "Processing",
		AdditionalCost: decPtr("4.50"),
		CODCharges:     decPtr("0"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 50 + 5 + 9.99 + 0 + 4.50
	if !order.ExtraAmount.Equal(dec("4.5")) || !order.CODCharge.IsZero() || !order.Total.Equal(dec("69.49")) {
		t.Fatalf("expected extra 4.50 cod 0 total 69.49, got %s %s %s", order.ExtraAmount, order.CODCharge, order.Total)
	}

	order, err = svc.UpdateStatus(context.Background(), UpdateOrderStatusCommand{
		OrderID:        order.ID,
		Status:         "Processing",
		ExtraAmount:    decPtr("1"),
		AdditionalCost: decPtr("100"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !order.ExtraAmount.Equal(dec("1")) {
		t.Fatalf("expected extraAmount to win over additionalCost, got %s", order.ExtraAmount)
	}

	if _, err := svc.UpdateStatus(context.Background(), UpdateOrderStatusCommand{OrderID: order.ID, Status: "Processing", ExtraAmount: decPtr("-500")}); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected negative total to be rejected, got %v", err)
	}
}

func TestUpdateStatusRejectsCODChargeOnCardOrder(t *testing.T) {
	store := seededStore(t, placedOrder(domain.PaymentMethodCard))
	svc := newStatusService(t, store, nil, time.Now(), nil)
	if _, err := svc.UpdateStatus(context.Background(), UpdateOrderStatusCommand{OrderID: "ORD-000042-ABCDEF", Status: "Processing", CODCharges: decPtr("3")}); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected ErrOrderInvalidInput, got %v", err)
	}
}

func TestUpdateStatusRestoresItemsFromItemStore(t *testing.T) {
	order := placedOrder(domain.PaymentMethodCard)
	store := seededStore(t, order)
	rec, _ := store.FindRecord(context.Background(), order.ID)
	rec[orderrecord.ColItemsJSON] = `[{"id":`
	delete(rec, orderrecord.ColFullOrderJSON)
	if err := store.PutRecord(rec); err != nil {
		t.Fatalf("seed: %v", err)
	}
	svc := newStatusService(t, store, nil, time.Now(), nil)

	updated, err := svc.UpdateStatus(context.Background(), UpdateOrderStatusCommand{OrderID: order.ID, Status: "Processing"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(updated.Items) != 1 || updated.Items[0].ID != "fabric" {
		t.Fatalf("expected items restored from the item store, got %+v", updated.Items)
	}
}

func TestUpdateStatusKeepsUnverifiedItemsWhenItemStoreIsEmpty(t *testing.T) {
	const orderID = "ORD-LEGACY-ITEMS"
	incomplete := `[{"id":"fabric","name":"Fabric","price":25}]`
	malformed := `[{"id":"fabric",`

	cases := []struct {
		name  string
		shape memory.Shape
		blob  string
		want  orderrecord.ItemsState
	}{
		{name: "row missing quantity", shape: memory.ShapeRow, blob: incomplete, want: orderrecord.ItemsIncomplete},
		{name: "row unreadable blob", shape: memory.ShapeRow, blob: malformed, want: orderrecord.ItemsMalformed},
		{name: "document missing quantity", shape: memory.ShapeDocument, blob: incomplete, want: orderrecord.ItemsIncomplete},
		{name: "document unreadable blob", shape: memory.ShapeDocument, blob: malformed, want: orderrecord.ItemsMalformed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			store := memory.NewStore(tc.shape)
			var rec orderrecord.Record
			if tc.shape == memory.ShapeRow {
				rec = rowRecord(orderID, time.Now(), "acct-1", "Order Placed", "50")
				rec[orderrecord.ColItemsJSON] = tc.blob
			} else {
				rec = orderrecord.Record{
					"id":        orderID,
					"status":    "Order Placed",
					"accountId": "acct-1",
					"customer":  map[string]any{"name": "Ada Lovelace", "email": "ada@example.com"},
					"order": map[string]any{
						"orderId":       orderID,
						"accountId":     "acct-1",
						"paymentMethod": "card",
						"subtotal":      "50",
						"items":         tc.blob,
					},
				}
			}
			if err := store.PutRecord(rec); err != nil {
				t.Fatalf("seed: %v", err)
			}

			svc := newStatusService(t, store, nil, time.Now(), nil)
			if _, err := svc.UpdateStatus(ctx, UpdateOrderStatusCommand{OrderID: orderID, Status: "Processing"}); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			stored, err := store.FindRecord(ctx, orderID)
			if err != nil {
				t.Fatalf("find: %v", err)
			}
			decoded, err := orderrecord.Decode(stored)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if decoded.Items != tc.want {
				t.Fatalf("expected stored items to stay %s, got %s", tc.want, decoded.Items)
			}
			if decoded.Order.Status != domain.StatusProcessing {
				t.Fatalf("expected status Processing, got %s", decoded.Order.Status)
			}

			restored := domain.Order{
				ID:      orderID,
				Account: domain.AccountFor("acct-1"),
				Items:   []domain.CartLineItem{{ID: "fabric", Name: "Fabric", UnitPrice: dec("25"), Quantity: 2}},
			}
			if err := store.InsertItems(ctx, orderrecord.ItemRows(restored)); err != nil {
				t.Fatalf("seed items: %v", err)
			}
			queries := newQueryService(t, OrderQueryServiceDeps{Orders: store, Items: store})
			details, err := queries.GetDetails(ctx, orderID)
			if err != nil {
				t.Fatalf("details: %v", err)
			}
			if len(details.Items) != 1 || details.Items[0].Quantity != 2 {
				t.Fatalf("expected quantity 2 from the item store, got %+v", details.Items)
			}
		})
	}
}

func TestUpdateStatusReplacesItemsRestoredFromItemStore(t *testing.T) {
	order := placedOrder(domain.PaymentMethodCard)
	store := seededStore(t, order)
	rec, _ := store.FindRecord(context.Background(), order.ID)
	rec[orderrecord.ColItemsJSON] = `[{"id":"fabric","price":50}]`
	delete(rec, orderrecord.ColFullOrderJSON)
	if err := store.PutRecord(rec); err != nil {
		t.Fatalf("seed: %v", err)
	}

	var gotItems repositories.ItemsWrite = -1
	svc, err := NewOrderStatusService(OrderStatusServiceDeps{
		Orders: &stubOrderRepo{
			findFn: store.FindRecord,
			updateFn: func(_ context.Context, _ domain.Order, items repositories.ItemsWrite) error {
				gotItems = items
				return nil
			},
		},
		Items: store,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if _, err := svc.UpdateStatus(context.Background(), UpdateOrderStatusCommand{OrderID: order.ID, Status: "Processing"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotItems != repositories.ReplaceItems {
		t.Fatalf("expected restored items to be written, got mode %d", gotItems)
	}
}
