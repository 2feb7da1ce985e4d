// Package memory keeps orders in process memory. It backs local development and tests.
package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	domain "github.com/loomhouse/api/internal/domain"
	"github.com/loomhouse/api/internal/orderrecord"
	"github.com/loomhouse/api/internal/repositories"
)

// Shape selects which persisted representation the store keeps for each order.
type Shape int

const (
	// ShapeRow stores the flat spreadsheet row.
	ShapeRow Shape = iota
	// ShapeDocument stores the nested {order, customer} document.
	ShapeDocument
)

// Error categorises memory store failures.
type Error struct {
	Op       string
	Err      error
	notFound bool
	conflict bool
}

func (e *Error) Error() string {
	return fmt.Sprintf("memory %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error       { return e.Err }
func (e *Error) IsNotFound() bool    { return e.notFound }
func (e *Error) IsConflict() bool    { return e.conflict }
func (e *Error) IsUnavailable() bool { return false }

var _ repositories.RepositoryError = (*Error)(nil)

// Store implements the order and item repositories.
type Store struct {
	mu     sync.RWMutex
	shape  Shape
	ids    []string
	orders map[string]orderrecord.Record
	items  []orderrecord.ItemRow
}

var (
	_ repositories.OrderRepository     = (*Store)(nil)
	_ repositories.OrderItemRepository = (*Store)(nil)
)

// NewStore returns an empty store keeping the given shape.
func NewStore(shape Shape) *Store {
	return &Store{
		shape:  shape,
		orders: make(map[string]orderrecord.Record),
	}
}

func (s *Store) project(order domain.Order) (orderrecord.Record, error) {
	if s.shape == ShapeDocument {
		return orderrecord.ToDocument(order), nil
	}
	return orderrecord.ToRow(order)
}

func (s *Store) Insert(_ context.Context, order domain.Order) error {
	rec, err := s.project(order)
	if err != nil {
		return &Error{Op: "insert", Err: err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.orders[order.ID]; exists {
		return &Error{Op: "insert", Err: fmt.Errorf("order %s already exists", order.ID), conflict: true}
	}
	s.orders[order.ID] = rec
	s.ids = append(s.ids, order.ID)
	return nil
}

func (s *Store) Update(_ context.Context, order domain.Order, items repositories.ItemsWrite) error {
	rec, err := s.project(order)
	if err != nil {
		return &Error{Op: "update", Err: err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, exists := s.orders[order.ID]
	if !exists {
		return &Error{Op: "update", Err: fmt.Errorf("order %s not found", order.ID), notFound: true}
	}
	if items == repositories.KeepStoredItems {
		if rec, err = orderrecord.RetainItems(rec, cloneRecord(existing)); err != nil {
			return &Error{Op: "update", Err: err}
		}
	}
	s.orders[order.ID] = rec
	return nil
}

func (s *Store) FindRecord(_ context.Context, orderID string) (orderrecord.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.orders[strings.TrimSpace(orderID)]
	if !ok {
		return nil, &Error{Op: "find", Err: fmt.Errorf("order %s not found", orderID), notFound: true}
	}
	return cloneRecord(rec), nil
}

func (s *Store) ListRecords(_ context.Context, scope repositories.OrderScope) ([]orderrecord.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]orderrecord.Record, 0, len(s.ids))
	for _, id := range s.ids {
		rec := s.orders[id]
		if !scope.Matches(accountOf(rec)) {
			continue
		}
		out = append(out, cloneRecord(rec))
	}
	return out, nil
}

// PutRecord stores a raw record as-is. It seeds legacy shapes in tests and migrations.
func (s *Store) PutRecord(rec orderrecord.Record) error {
	id := rec.OrderID()
	if id == "" {
		return &Error{Op: "put", Err: errors.New("record has no order id")}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.orders[id]; !exists {
		s.ids = append(s.ids, id)
	}
	s.orders[id] = cloneRecord(rec)
	return nil
}

func (s *Store) InsertItems(_ context.Context, rows []orderrecord.ItemRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, rows...)
	return nil
}

func (s *Store) ListItems(_ context.Context, orderID string, account domain.AccountRef) ([]orderrecord.ItemRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []orderrecord.ItemRow
	for _, row := range s.items {
		if row.BelongsTo(orderID, account) {
			out = append(out, row)
		}
	}
	return out, nil
}

func accountOf(rec orderrecord.Record) string {
	if v, ok := rec[orderrecord.ColAccountID].(string); ok {
		return v
	}
	if v, ok := rec["accountId"].(string); ok {
		return v
	}
	if inner, ok := rec["order"].(map[string]any); ok {
		if v, ok := inner["accountId"].(string); ok {
			return v
		}
	}
	return ""
}

func cloneRecord(rec orderrecord.Record) orderrecord.Record {
	out := make(orderrecord.Record, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out
}
