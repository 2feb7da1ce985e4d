package sheets

import (
	"context"
	"errors"
	"strings"
	"sync"

	domain "github.com/loomhouse/api/internal/domain"
	"github.com/loomhouse/api/internal/orderrecord"
	"github.com/loomhouse/api/internal/repositories"
)

// OrderItemRepository appends item rows to the items tab.
type OrderItemRepository struct {
	client *Client
	tab    string
	mu     sync.Mutex
}

var _ repositories.OrderItemRepository = (*OrderItemRepository)(nil)

// NewOrderItemRepository stores item rows on tab.
func NewOrderItemRepository(client *Client, tab string) (*OrderItemRepository, error) {
	if client == nil {
		return nil, errors.New("sheets item repository requires client")
	}
	if strings.TrimSpace(tab) == "" {
		return nil, errors.New("sheets item repository requires tab name")
	}
	return &OrderItemRepository{client: client, tab: tab}, nil
}

func (r *OrderItemRepository) InsertItems(ctx context.Context, rows []orderrecord.ItemRow) error {
	if len(rows) == 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	values, err := r.client.ReadTab(ctx, r.tab)
	if err != nil {
		return err
	}
	t := parseTable(values)
	columns := t.columns(orderrecord.ItemColumns)
	out := make([][]any, 0, len(rows)+1)
	if len(t.header) == 0 {
		out = append(out, headerValues(columns))
	}
	for _, row := range rows {
		out = append(out, row.Record().Values(columns))
	}
	return r.client.AppendRows(ctx, r.tab, out)
}

// ListItems skips rows that fail to parse; the order's embedded snapshot remains the fallback.
func (r *OrderItemRepository) ListItems(ctx context.Context, orderID string, account domain.AccountRef) ([]orderrecord.ItemRow, error) {
	values, err := r.client.ReadTab(ctx, r.tab)
	if err != nil {
		return nil, err
	}
	var rows []orderrecord.ItemRow
	for _, raw := range parseTable(values).rows {
		row, err := orderrecord.ItemRowFromRecord(raw.record)
		if err != nil {
			continue
		}
		if row.BelongsTo(orderID, account) {
			rows = append(rows, row)
		}
	}
	return rows, nil
}
