package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
)

const (
	defaultTxAttempts = 5
	defaultTxTimeout  = 15 * time.Second
)

// RunTransaction runs fn in a transaction bounded by a timeout and retried on contention.
func (p *Provider) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx *firestore.Transaction) error) error {
	client, err := p.Client(ctx)
	if err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); !ok || time.Until(deadline) > defaultTxTimeout {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultTxTimeout)
		defer cancel()
	}
	err = client.RunTransaction(ctx, fn, firestore.MaxAttempts(defaultTxAttempts))
	return WrapError("transaction", err)
}
