package repositories

import (
	"context"

	domain "github.com/loomhouse/api/internal/domain"
	"github.com/loomhouse/api/internal/orderrecord"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Orders() OrderRepository
	OrderItems() OrderItemRepository
	Health() HealthRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// OrderRepository persists orders. Writes take the canonical order and project it into every
// stored representation; reads return raw records for normalisation.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order, items ItemsWrite) error
	FindRecord(ctx context.Context, orderID string) (orderrecord.Record, error)
	ListRecords(ctx context.Context, scope OrderScope) ([]orderrecord.Record, error)
}

// ItemsWrite selects what an order rewrite does with the item data already on the record.
type ItemsWrite int

const (
	// ReplaceItems projects the items carried by the order.
	ReplaceItems ItemsWrite = iota
	// KeepStoredItems leaves the stored item fields untouched, for orders whose items were
	// decoded from an incomplete or unreadable blob and could not be restored.
	KeepStoredItems
)

// OrderItemRepository stores one row per purchased item.
type OrderItemRepository interface {
	InsertItems(ctx context.Context, rows []orderrecord.ItemRow) error
	ListItems(ctx context.Context, orderID string, account domain.AccountRef) ([]orderrecord.ItemRow, error)
}

// PricingConfigRepository loads the store pricing configuration.
type PricingConfigRepository interface {
	LoadPricingConfig(ctx context.Context) (domain.PricingConfig, error)
}

// OrderScope selects which orders a listing returns. All and account scopes are distinct modes;
// a guest account scope matches guest orders only.
type OrderScope struct {
	all     bool
	account domain.AccountRef
}

// AllOrders returns the unscoped admin listing mode.
func AllOrders() OrderScope {
	return OrderScope{all: true}
}

// AccountOrders scopes a listing to one account reference.
func AccountOrders(account domain.AccountRef) OrderScope {
	return OrderScope{account: account}
}

// All reports whether the scope is unfiltered.
func (s OrderScope) All() bool {
	return s.all
}

// Account returns the scoped account.
func (s OrderScope) Account() domain.AccountRef {
	return s.account
}

// Matches reports whether a persisted account identifier falls in scope.
func (s OrderScope) Matches(persistedAccountID string) bool {
	if s.all {
		return true
	}
	return orderrecord.ParseAccountID(persistedAccountID).Equal(s.account)
}
