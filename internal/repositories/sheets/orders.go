package sheets

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

// OrderRepository keeps one flat row per order. Writes are serialised in-process because the
// Sheets API offers no conditional writes.
type OrderRepository struct {
	client *Client
	tab    string
	mu     sync.Mutex
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository stores orders on tab.
func NewOrderRepository(client *Client, tab string) (*OrderRepository, error) {
	if client == nil {
		return nil, errors.New("sheets order repository requires client")
	}
	if strings.TrimSpace(tab) == "" {
		return nil, errors.New("sheets order repository requires tab name")
	}
	return &OrderRepository{client: client, tab: tab}, nil
}

func (r *OrderRepository) load(ctx context.Context) (table, error) {
	values, err := r.client.ReadTab(ctx, r.tab)
	if err != nil {
		return table{}, err
	}
	return parseTable(values), nil
}

func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	row, err := orderrecord.ToRow(order)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	t, err := r.load(ctx)
	if err != nil {
		return err
	}
	if _, exists := t.find(orderrecord.ColOrderID, order.ID); exists {
		return conflict("orders.insert", fmt.Errorf("order %s already exists", order.ID))
	}
	columns := t.columns(orderrecord.OrderColumns)
	rows := [][]any{row.Values(columns)}
	if len(t.header) == 0 {
		rows = append([][]any{headerValues(columns)}, rows...)
	}
	return r.client.AppendRows(ctx, r.tab, rows)
}

func (r *OrderRepository) Update(ctx context.Context, order domain.Order, items repositories.ItemsWrite) error {
	row, err := orderrecord.ToRow(order)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	t, err := r.load(ctx)
	if err != nil {
		return err
	}
	existing, ok := t.find(orderrecord.ColOrderID, order.ID)
	if !ok {
		return notFound("orders.update", fmt.Errorf("order %s not found", order.ID))
	}
	if items == repositories.KeepStoredItems {
		if row, err = orderrecord.RetainItems(row, existing.record); err != nil {
			return err
		}
	}
	columns := t.columns(orderrecord.OrderColumns)
	// Keep cells of columns this service does not own.
	for _, column := range columns {
		if _, owned := row[column]; !owned {
			row[column] = existing.record[column]
		}
	}
	return r.client.WriteRow(ctx, r.tab, existing.number, row.Values(columns))
}

func (r *OrderRepository) FindRecord(ctx context.Context, orderID string) (orderrecord.Record, error) {
	t, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	row, ok := t.find(orderrecord.ColOrderID, strings.TrimSpace(orderID))
	if !ok {
		return nil, notFound("orders.find", fmt.Errorf("order %s not found", orderID))
	}
	return row.record, nil
}

func (r *OrderRepository) ListRecords(ctx context.Context, scope repositories.OrderScope) ([]orderrecord.Record, error) {
	t, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	records := make([]orderrecord.Record, 0, len(t.rows))
	for _, row := range t.rows {
		if scope.Matches(cellString(row.record[orderrecord.ColAccountID])) {
			records = append(records, row.record)
		}
	}
	return records, nil
}
