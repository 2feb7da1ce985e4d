// Package firestore owns the shared Firestore client and maps its errors to repository semantics.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/loomhouse/api/internal/platform/config"
)

const defaultDialTimeout = 10 * time.Second

// ErrProviderClosed is returned by Client after Close.
var ErrProviderClosed = errors.New("firestore: provider is closed")

// Provider dials the Firestore client on first use and shares it.
type Provider struct {
	cfg        config.FirestoreConfig
	clientOpts []option.ClientOption

	mu     sync.Mutex
	client *firestore.Client
	closed bool
}

// NewProvider returns a Provider for cfg. With an emulator host set the client dials it without
// credentials.
func NewProvider(cfg config.FirestoreConfig, opts ...option.ClientOption) *Provider {
	return &Provider{cfg: cfg, clientOpts: opts}
}

// Client returns the shared client, dialling it on first call.
func (p *Provider) Client(ctx context.Context) (*firestore.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrProviderClosed
	}
	if p.client != nil {
		return p.client, nil
	}

	projectID := strings.TrimSpace(p.cfg.ProjectID)
	if projectID == "" {
		return nil, errors.New("firestore: project id is required")
	}
	opts := append([]option.ClientOption(nil), p.clientOpts...)
	if host := strings.TrimSpace(p.cfg.EmulatorHost); host != "" {
		opts = append(opts,
			option.WithEndpoint(host),
			option.WithoutAuthentication(),
			option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
	}

	dialCtx, cancel := context.WithTimeout(ctx, defaultDialTimeout)
	defer cancel()
	client, err := firestore.NewClient(dialCtx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("firestore: create client: %w", err)
	}
	p.client = client
	return client, nil
}

// Close releases the client. The provider cannot be reused.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if p.client == nil {
		return nil
	}
	err := p.client.Close()
	p.client = nil
	return err
}

// Ping reads a sentinel document to prove connectivity; a missing document still counts as
// reachable.
func (p *Provider) Ping(ctx context.Context) error {
	client, err := p.Client(ctx)
	if err != nil {
		return err
	}
	_, err = client.Collection("settings").Doc("health").Get(ctx)
	if err != nil && !IsNotFound(err) {
		return WrapError("ping", err)
	}
	return nil
}
