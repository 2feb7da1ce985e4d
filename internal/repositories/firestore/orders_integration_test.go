//go:build integration

package firestore

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/loomhouse/api/internal/domain"
	"github.com/loomhouse/api/internal/orderrecord"
	pconfig "github.com/loomhouse/api/internal/platform/config"
	pfirestore "github.com/loomhouse/api/internal/platform/firestore"
	"github.com/loomhouse/api/internal/repositories"
)

func newEmulatorProvider(t *testing.T) *pfirestore.Provider {
	t.Helper()
	host := strings.TrimSpace(os.Getenv("FIRESTORE_EMULATOR_HOST"))
	if host == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	provider := pfirestore.NewProvider(pconfig.FirestoreConfig{
		ProjectID:    fmt.Sprintf("orders-test-%d", time.Now().UnixNano()),
		EmulatorHost: host,
	})
	t.Cleanup(func() { _ = provider.Close() })
	return provider
}

func TestOrderRepositoryIntegration(t *testing.T) {
	provider := newEmulatorProvider(t)
	registry, err := NewRegistry(provider)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	order := domain.Order{
		ID:            "ORD-000001-ABCDEF",
		CreatedAt:     time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		Customer:      domain.Customer{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com"},
		Account:       domain.AccountFor("acct-1"),
		PaymentMethod: domain.PaymentMethodCard,
		PaymentStatus: domain.PaymentStatusPendingPayment,
		Items:         []domain.CartLineItem{{ID: "linen", Name: "Linen", UnitPrice: decimal.RequireFromString("20"), Quantity: 2}},
		Subtotal:      decimal.RequireFromString("40"),
		Tax:           decimal.RequireFromString("4"),
		ShippingCost:  decimal.RequireFromString("9.99"),
		Status:        domain.StatusOrderPlaced,
	}
	order.RecomputeTotal()

	if err := registry.Orders().Insert(ctx, order); err != nil {
		t.Fatalf("insert: %v", err)
	}
	err = registry.Orders().Insert(ctx, order)
	var repoErr repositories.RepositoryError
	if !asRepositoryError(err, &repoErr) || !repoErr.IsConflict() {
		t.Fatalf("expected conflict on duplicate insert, got %v", err)
	}

	order.Status = domain.StatusShipped
	if err := registry.Orders().Update(ctx, order, repositories.ReplaceItems); err != nil {
		t.Fatalf("update: %v", err)
	}
	rec, err := registry.Orders().FindRecord(ctx, order.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	got, err := orderrecord.Normalize(rec)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if got.Status != domain.StatusShipped || !got.Total.Equal(order.Total) {
		t.Fatalf("expected shipped order with total %s, got %s/%s", order.Total, got.Status, got.Total)
	}

	mine, err := registry.Orders().ListRecords(ctx, repositories.AccountOrders(domain.AccountFor("acct-1")))
	if err != nil || len(mine) != 1 {
		t.Fatalf("expected one scoped record, got %d (%v)", len(mine), err)
	}
	guests, err := registry.Orders().ListRecords(ctx, repositories.AccountOrders(domain.GuestAccount()))
	if err != nil || len(guests) != 0 {
		t.Fatalf("expected no guest records, got %d (%v)", len(guests), err)
	}

	if err := registry.OrderItems().InsertItems(ctx, orderrecord.ItemRows(order)); err != nil {
		t.Fatalf("insert items: %v", err)
	}
	rows, err := registry.OrderItems().ListItems(ctx, order.ID, order.Account)
	if err != nil || len(rows) != 1 {
		t.Fatalf("expected one item row, got %d (%v)", len(rows), err)
	}

	missing := order
	missing.ID = "ORD-404"
	err = registry.Orders().Update(ctx, missing, repositories.ReplaceItems)
	if !asRepositoryError(err, &repoErr) || !repoErr.IsNotFound() {
		t.Fatalf("expected not found on update, got %v", err)
	}
}

func asRepositoryError(err error, target *repositories.RepositoryError) bool {
	if err == nil {
		return false
	}
	re, ok := err.(repositories.RepositoryError)
	if ok {
		*target = re
	}
	return ok
}
