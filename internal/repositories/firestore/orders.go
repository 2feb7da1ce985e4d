// Package firestore stores orders as nested documents and item rows in a sibling collection.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	domain "github.com/loomhouse/api/internal/domain"
	"github.com/loomhouse/api/internal/orderrecord"
	pfirestore "github.com/loomhouse/api/internal/platform/firestore"
	"github.com/loomhouse/api/internal/repositories"
)

const (
	ordersCollection     = "orders"
	orderItemsCollection = "orderItems"
	accountField         = "accountId"
)

// OrderRepository implements repositories.OrderRepository on the "orders" collection.
type OrderRepository struct {
	provider *pfirestore.Provider
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{provider: provider}, nil
}

func (r *OrderRepository) collection(ctx context.Context) (*firestore.CollectionRef, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(ordersCollection), nil
}

// Insert creates the order document. An existing document with the same ID is a conflict.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	id := strings.TrimSpace(order.ID)
	if id == "" {
		return errors.New("order repository: order id is required")
	}
	coll, err := r.collection(ctx)
	if err != nil {
		return err
	}
	if _, err := coll.Doc(id).Create(ctx, map[string]any(orderrecord.ToDocument(order))); err != nil {
		return pfirestore.WrapError("orders.insert", err)
	}
	return nil
}

// Update replaces an existing order document inside a transaction.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order, items repositories.ItemsWrite) error {
	id := strings.TrimSpace(order.ID)
	if id == "" {
		return errors.New("order repository: order id is required")
	}
	coll, err := r.collection(ctx)
	if err != nil {
		return err
	}
	doc := coll.Doc(id)
	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(doc)
		if err != nil {
			if pfirestore.IsNotFound(err) {
				return pfirestore.NotFound("orders.update", fmt.Errorf("order %s not found", id))
			}
			return pfirestore.WrapError("orders.update.get", err)
		}
		if !snap.Exists() {
			return pfirestore.NotFound("orders.update", fmt.Errorf("order %s not found", id))
		}
		next := orderrecord.ToDocument(order)
		if items == repositories.KeepStoredItems {
			if next, err = orderrecord.RetainItems(next, orderrecord.Record(snap.Data())); err != nil {
				return err
			}
		}
		return tx.Set(doc, map[string]any(next))
	})
}

// FindRecord returns the raw document for orderID.
func (r *OrderRepository) FindRecord(ctx context.Context, orderID string) (orderrecord.Record, error) {
	coll, err := r.collection(ctx)
	if err != nil {
		return nil, err
	}
	snap, err := coll.Doc(strings.TrimSpace(orderID)).Get(ctx)
	if err != nil {
		return nil, pfirestore.WrapError("orders.find", err)
	}
	return orderrecord.Record(snap.Data()), nil
}

// ListRecords returns the raw documents in scope. Account scopes filter server-side; the guest
// scope scans because legacy documents may have no account field at all.
func (r *OrderRepository) ListRecords(ctx context.Context, scope repositories.OrderScope) ([]orderrecord.Record, error) {
	coll, err := r.collection(ctx)
	if err != nil {
		return nil, err
	}
	query := coll.Query
	if !scope.All() && !scope.Account().IsGuest() {
		query = query.Where(accountField, "==", orderrecord.AccountID(scope.Account()))
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var records []orderrecord.Record
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, pfirestore.WrapError("orders.list", err)
		}
		rec := orderrecord.Record(snap.Data())
		if !scope.Matches(persistedAccount(rec)) {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func persistedAccount(rec orderrecord.Record) string {
	if id, ok := rec[accountField].(string); ok {
		return id
	}
	if inner, ok := rec["order"].(map[string]any); ok {
		if id, ok := inner[accountField].(string); ok {
			return id
		}
	}
	return ""
}
