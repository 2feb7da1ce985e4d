package storefront

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"

	domain "github.com/loomhouse/api/internal/domain"
	"github.com/loomhouse/api/internal/orderrecord"
)

// SyncStatus tracks whether a locally placed order reached the order API.
type SyncStatus string

const (
	SyncPending  SyncStatus = "pending"
	SyncSynced   SyncStatus = "synced"
	SyncFailed   SyncStatus = "failed"
	SyncRejected SyncStatus = "rejected"
)

// NeedsSync reports whether Reconcile should resubmit the entry.
func (s SyncStatus) NeedsSync() bool {
	return s == SyncPending || s == SyncFailed
}

var outboxPrefix = []byte("outbox/order/")

// ErrOutboxEntryNotFound is returned when no entry exists for an order ID.
var ErrOutboxEntryNotFound = errors.New("storefront: outbox entry not found")

// OutboxEntry is one order awaiting or past submission.
type OutboxEntry struct {
	OrderID    string          `json:"orderId"`
	Document   json.RawMessage `json:"document"`
	SyncStatus SyncStatus      `json:"syncStatus"`
	Attempts   int             `json:"attempts"`
	LastError  string          `json:"lastError,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// Order decodes the stored order document.
func (e OutboxEntry) Order() (domain.Order, error) {
	var rec orderrecord.Record
	if err := json.Unmarshal(e.Document, &rec); err != nil {
		return domain.Order{}, fmt.Errorf("storefront: outbox %s: %w", e.OrderID, err)
	}
	return orderrecord.Normalize(rec)
}

// Outbox is a Pebble-backed local log of placed orders keyed by order ID.
type Outbox struct {
	db  *pebble.DB
	now func() time.Time
}

// OutboxOption customises OpenOutbox.
type OutboxOption func(*outboxConfig)

type outboxConfig struct {
	fs  vfs.FS
	now func() time.Time
}

// WithOutboxFS opens the store on fs, usually vfs.NewMem() in tests.
func WithOutboxFS(fs vfs.FS) OutboxOption {
	return func(cfg *outboxConfig) { cfg.fs = fs }
}

// WithOutboxClock overrides the clock used for entry timestamps.
func WithOutboxClock(now func() time.Time) OutboxOption {
	return func(cfg *outboxConfig) {
		if now != nil {
			cfg.now = now
		}
	}
}

// OpenOutbox opens or creates the outbox under dir.
func OpenOutbox(dir string, opts ...OutboxOption) (*Outbox, error) {
	cfg := outboxConfig{now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	pebbleOpts := &pebble.Options{}
	if cfg.fs != nil {
		pebbleOpts.FS = cfg.fs
	}
	db, err := pebble.Open(filepath.Clean(dir), pebbleOpts)
	if err != nil {
		return nil, fmt.Errorf("storefront: open outbox: %w", err)
	}
	return &Outbox{db: db, now: func() time.Time { return cfg.now().UTC() }}, nil
}

// Close flushes and closes the store.
func (o *Outbox) Close() error {
	return o.db.Close()
}

// Put records a freshly built order as pending. An existing entry is left untouched.
func (o *Outbox) Put(order domain.Order) (OutboxEntry, error) {
	if existing, err := o.Get(order.ID); err == nil {
		return existing, nil
	} else if !errors.Is(err, ErrOutboxEntryNotFound) {
		return OutboxEntry{}, err
	}
	doc, err := json.Marshal(orderrecord.ToDocument(order))
	if err != nil {
		return OutboxEntry{}, fmt.Errorf("storefront: encode order %s: %w", order.ID, err)
	}
	now := o.now()
	entry := OutboxEntry{
		OrderID:    order.ID,
		Document:   doc,
		SyncStatus: SyncPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	return entry, o.write(entry)
}

// Get returns the entry for orderID.
func (o *Outbox) Get(orderID string) (OutboxEntry, error) {
	value, closer, err := o.db.Get(outboxKey(orderID))
	if errors.Is(err, pebble.ErrNotFound) {
		return OutboxEntry{}, fmt.Errorf("%w: %s", ErrOutboxEntryNotFound, orderID)
	}
	if err != nil {
		return OutboxEntry{}, fmt.Errorf("storefront: read outbox %s: %w", orderID, err)
	}
	defer closer.Close()
	var entry OutboxEntry
	if err := json.Unmarshal(value, &entry); err != nil {
		return OutboxEntry{}, fmt.Errorf("storefront: decode outbox %s: %w", orderID, err)
	}
	return entry, nil
}

// MarkSynced records a successful submission attempt.
func (o *Outbox) MarkSynced(orderID string) (OutboxEntry, error) {
	return o.mark(orderID, SyncSynced, nil)
}

// MarkFailed records a retryable failure.
func (o *Outbox) MarkFailed(orderID string, cause error) (OutboxEntry, error) {
	return o.mark(orderID, SyncFailed, cause)
}

// MarkRejected records a submission the API refused; Reconcile skips it.
func (o *Outbox) MarkRejected(orderID string, cause error) (OutboxEntry, error) {
	return o.mark(orderID, SyncRejected, cause)
}

func (o *Outbox) mark(orderID string, status SyncStatus, cause error) (OutboxEntry, error) {
	entry, err := o.Get(orderID)
	if err != nil {
		return OutboxEntry{}, err
	}
	entry.SyncStatus = status
	entry.Attempts++
	entry.LastError = ""
	if cause != nil {
		entry.LastError = cause.Error()
	}
	entry.UpdatedAt = o.now()
	return entry, o.write(entry)
}

// Unsynced lists pending and failed entries, oldest first.
func (o *Outbox) Unsynced() ([]OutboxEntry, error) {
	entries, err := o.List()
	if err != nil {
		return nil, err
	}
	out := entries[:0]
	for _, entry := range entries {
		if entry.SyncStatus.NeedsSync() {
			out = append(out, entry)
		}
	}
	return out, nil
}

// List returns every entry, oldest first.
func (o *Outbox) List() ([]OutboxEntry, error) {
	iter, err := o.db.NewIter(&pebble.IterOptions{
		LowerBound: outboxPrefix,
		UpperBound: prefixEnd(outboxPrefix),
	})
	if err != nil {
		return nil, fmt.Errorf("storefront: scan outbox: %w", err)
	}
	defer iter.Close()

	var entries []OutboxEntry
	for iter.First(); iter.Valid(); iter.Next() {
		var entry OutboxEntry
		if err := json.Unmarshal(iter.Value(), &entry); err != nil {
			return nil, fmt.Errorf("storefront: decode outbox %s: %w", iter.Key(), err)
		}
		entries = append(entries, entry)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("storefront: scan outbox: %w", err)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
	return entries, nil
}

// Delete removes the entry for orderID.
func (o *Outbox) Delete(orderID string) error {
	if err := o.db.Delete(outboxKey(orderID), pebble.Sync); err != nil {
		return fmt.Errorf("storefront: delete outbox %s: %w", orderID, err)
	}
	return nil
}

func (o *Outbox) write(entry OutboxEntry) error {
	value, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("storefront: encode outbox %s: %w", entry.OrderID, err)
	}
	if err := o.db.Set(outboxKey(entry.OrderID), value, pebble.Sync); err != nil {
		return fmt.Errorf("storefront: write outbox %s: %w", entry.OrderID, err)
	}
	return nil
}

func outboxKey(orderID string) []byte {
	return append(append([]byte(nil), outboxPrefix...), orderID...)
}

func prefixEnd(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
