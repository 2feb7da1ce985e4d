package orderrecord

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/loomhouse/api/internal/domain"
)

// ItemRow is one line of the separate order items store.
type ItemRow struct {
	OrderID       string
	AccountID     string
	ItemID        string
	ParentItemID  string
	Name          string
	UnitPrice     decimal.Decimal
	Quantity      int
	SizeInYards   *decimal.Decimal
	Subtotal      decimal.Decimal
	Complementary bool
	Notes         string
	ImageURL      string
	CreatedAt     time.Time
}

// Item store column names.
const (
	ItemColOrderID       = "Order ID"
	ItemColAccountID     = "Account ID"
	ItemColItemID        = "Item ID"
	ItemColParentItemID  = "Parent Item ID"
	ItemColName          = "Name"
	ItemColUnitPrice     = "Unit Price"
	ItemColQuantity      = "Quantity"
	ItemColSizeInYards   = "Size (Yards)"
	ItemColSubtotal      = "Subtotal"
	ItemColComplementary = "Complementary"
	ItemColNotes         = "Notes"
	ItemColImageURL      = "Image URL"
	ItemColCreatedAt     = "Created At"
)

// ItemColumns is the header order of the items sheet.
var ItemColumns = []string{
	ItemColOrderID, ItemColAccountID, ItemColItemID, ItemColParentItemID, ItemColName,
	ItemColUnitPrice, ItemColQuantity, ItemColSizeInYards, ItemColSubtotal,
	ItemColComplementary, ItemColNotes, ItemColImageURL, ItemColCreatedAt,
}

// ItemRows expands an order into one row per cart item and per complementary item.
func ItemRows(order domain.Order) []ItemRow {
	account := AccountID(order.Account)
	rows := make([]ItemRow, 0, len(order.Items)+len(order.ComplementaryItems))
	for _, item := range order.Items {
		rows = append(rows, ItemRow{
			OrderID:     order.ID,
			AccountID:   account,
			ItemID:      item.ID,
			Name:        item.Name,
			UnitPrice:   item.UnitPrice,
			Quantity:    item.Quantity,
			SizeInYards: item.SizeInYards,
			Subtotal:    domain.RoundMoney(item.Subtotal()),
			ImageURL:    item.ImageURL,
			CreatedAt:   order.CreatedAt,
		})
	}
	for _, item := range order.ComplementaryItems {
		rows = append(rows, ItemRow{
			OrderID:       order.ID,
			AccountID:     account,
			ParentItemID:  item.ParentItemID,
			Name:          item.Name,
			UnitPrice:     item.UnitPrice,
			Quantity:      1,
			SizeInYards:   item.SizeInYards,
			Subtotal:      domain.RoundMoney(item.Subtotal()),
			Complementary: true,
			Notes:         item.Notes,
			ImageURL:      item.ImageURL,
			CreatedAt:     order.CreatedAt,
		})
	}
	return rows
}

// ItemsFromRows rebuilds the cart and complementary item lists from item store rows.
func ItemsFromRows(rows []ItemRow) ([]domain.CartLineItem, []domain.ComplementaryItem) {
	var (
		items         []domain.CartLineItem
		complementary []domain.ComplementaryItem
	)
	for _, row := range rows {
		if row.Complementary {
			complementary = append(complementary, domain.ComplementaryItem{
				ParentItemID: row.ParentItemID,
				Name:         row.Name,
				UnitPrice:    row.UnitPrice,
				SizeInYards:  row.SizeInYards,
				Notes:        row.Notes,
				ImageURL:     row.ImageURL,
			})
			continue
		}
		quantity := row.Quantity
		if quantity < 1 {
			quantity = 1
		}
		items = append(items, domain.CartLineItem{
			ID:          row.ItemID,
			Name:        row.Name,
			UnitPrice:   row.UnitPrice,
			Quantity:    quantity,
			SizeInYards: row.SizeInYards,
			ImageURL:    row.ImageURL,
		})
	}
	return items, complementary
}

// Record projects the row into its sheet columns.
func (r ItemRow) Record() Record {
	size := ""
	if r.SizeInYards != nil {
		size = r.SizeInYards.String()
	}
	return Record{
		ItemColOrderID:       r.OrderID,
		ItemColAccountID:     r.AccountID,
		ItemColItemID:        r.ItemID,
		ItemColParentItemID:  r.ParentItemID,
		ItemColName:          r.Name,
		ItemColUnitPrice:     moneyValue(r.UnitPrice),
		ItemColQuantity:      r.Quantity,
		ItemColSizeInYards:   size,
		ItemColSubtotal:      moneyValue(r.Subtotal),
		ItemColComplementary: r.Complementary,
		ItemColNotes:         r.Notes,
		ItemColImageURL:      r.ImageURL,
		ItemColCreatedAt:     formatTime(r.CreatedAt),
	}
}

// ItemRowFromRecord parses a sheet row of the items store.
func ItemRowFromRecord(rec Record) (ItemRow, error) {
	orderID := firstString(rec, ItemColOrderID)
	if orderID == "" {
		return ItemRow{}, fmt.Errorf("%w: item row without order id", ErrMalformedRecord)
	}
	price, ok := parseMoney(rec[ItemColUnitPrice])
	if !ok {
		return ItemRow{}, fmt.Errorf("%w: item row %s has no unit price", ErrMalformedRecord, orderID)
	}
	quantity, _ := parseInt(rec[ItemColQuantity])
	row := ItemRow{
		OrderID:       orderID,
		AccountID:     firstString(rec, ItemColAccountID),
		ItemID:        firstString(rec, ItemColItemID),
		ParentItemID:  firstString(rec, ItemColParentItemID),
		Name:          firstString(rec, ItemColName),
		UnitPrice:     price.Round(2),
		Quantity:      quantity,
		SizeInYards:   optionalDecimal(rec[ItemColSizeInYards]),
		Subtotal:      moneyField(rec, ItemColSubtotal),
		Complementary: parseBool(rec[ItemColComplementary]),
		Notes:         firstString(rec, ItemColNotes),
		ImageURL:      firstString(rec, ItemColImageURL),
		CreatedAt:     timeField(rec, ItemColCreatedAt),
	}
	return row, nil
}

// BelongsTo reports whether the row matches the order and account.
func (r ItemRow) BelongsTo(orderID string, account domain.AccountRef) bool {
	return r.OrderID == orderID && ParseAccountID(r.AccountID).Equal(account)
}
