package firestore

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"google.golang.org/api/iterator"

	domain "github.com/loomhouse/api/internal/domain"
	"github.com/loomhouse/api/internal/orderrecord"
	pfirestore "github.com/loomhouse/api/internal/platform/firestore"
	"github.com/loomhouse/api/internal/repositories"
)

// Firestore caps a write batch at 500 operations.
const maxBatchWrites = 500

type itemDocument struct {
	OrderID       string    `firestore:"orderId"`
	AccountID     string    `firestore:"accountId"`
	ItemID        string    `firestore:"itemId"`
	ParentItemID  string    `firestore:"parentItemId,omitempty"`
	Name          string    `firestore:"name"`
	UnitPrice     float64   `firestore:"unitPrice"`
	Quantity      int       `firestore:"quantity"`
	SizeInYards   *float64  `firestore:"sizeInYards,omitempty"`
	Subtotal      float64   `firestore:"subtotal"`
	Complementary bool      `firestore:"complementary"`
	Notes         string    `firestore:"notes,omitempty"`
	ImageURL      string    `firestore:"imageUrl,omitempty"`
	CreatedAt     time.Time `firestore:"createdAt"`
}

func encodeItem(row orderrecord.ItemRow) itemDocument {
	doc := itemDocument{
		OrderID:       row.OrderID,
		AccountID:     row.AccountID,
		ItemID:        row.ItemID,
		ParentItemID:  row.ParentItemID,
		Name:          row.Name,
		UnitPrice:     row.UnitPrice.Round(2).InexactFloat64(),
		Quantity:      row.Quantity,
		Subtotal:      row.Subtotal.Round(2).InexactFloat64(),
		Complementary: row.Complementary,
		Notes:         row.Notes,
		ImageURL:      row.ImageURL,
		CreatedAt:     row.CreatedAt.UTC(),
	}
	if row.SizeInYards != nil {
		size := row.SizeInYards.InexactFloat64()
		doc.SizeInYards = &size
	}
	return doc
}

func decodeItem(doc itemDocument) orderrecord.ItemRow {
	row := orderrecord.ItemRow{
		OrderID:       doc.OrderID,
		AccountID:     doc.AccountID,
		ItemID:        doc.ItemID,
		ParentItemID:  doc.ParentItemID,
		Name:          doc.Name,
		UnitPrice:     decimal.NewFromFloat(doc.UnitPrice).Round(2),
		Quantity:      doc.Quantity,
		Subtotal:      decimal.NewFromFloat(doc.Subtotal).Round(2),
		Complementary: doc.Complementary,
		Notes:         doc.Notes,
		ImageURL:      doc.ImageURL,
		CreatedAt:     doc.CreatedAt,
	}
	if doc.SizeInYards != nil {
		size := decimal.NewFromFloat(*doc.SizeInYards)
		row.SizeInYards = &size
	}
	return row
}

// OrderItemRepository implements repositories.OrderItemRepository on the "orderItems" collection.
type OrderItemRepository struct {
	provider *pfirestore.Provider
}

var _ repositories.OrderItemRepository = (*OrderItemRepository)(nil)

// NewOrderItemRepository constructs a Firestore-backed item repository.
func NewOrderItemRepository(provider *pfirestore.Provider) (*OrderItemRepository, error) {
	if provider == nil {
		return nil, errors.New("order item repository requires firestore provider")
	}
	return &OrderItemRepository{provider: provider}, nil
}

// InsertItems writes rows in batches with generated document IDs.
func (r *OrderItemRepository) InsertItems(ctx context.Context, rows []orderrecord.ItemRow) error {
	if len(rows) == 0 {
		return nil
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return err
	}
	coll := client.Collection(orderItemsCollection)
	for start := 0; start < len(rows); start += maxBatchWrites {
		end := min(start+maxBatchWrites, len(rows))
		batch := client.Batch()
		for _, row := range rows[start:end] {
			batch.Create(coll.NewDoc(), encodeItem(row))
		}
		if _, err := batch.Commit(ctx); err != nil {
			return pfirestore.WrapError("orderItems.insert", err)
		}
	}
	return nil
}

// ListItems returns the rows for orderID that belong to account.
func (r *OrderItemRepository) ListItems(ctx context.Context, orderID string, account domain.AccountRef) ([]orderrecord.ItemRow, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	iter := client.Collection(orderItemsCollection).
		Where("orderId", "==", orderID).
		Documents(ctx)
	defer iter.Stop()

	var rows []orderrecord.ItemRow
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, pfirestore.WrapError("orderItems.list", err)
		}
		var doc itemDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, pfirestore.WrapError("orderItems.decode", err)
		}
		row := decodeItem(doc)
		if row.BelongsTo(orderID, account) {
			rows = append(rows, row)
		}
	}
	return rows, nil
}
