// Package secrets resolves secret://name references against Secret Manager with a local file
// fallback for development.
package secrets

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const defaultFallbackPath = ".secrets.local"

type accessClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// Resolver fetches and caches secret values.
type Resolver struct {
	client     accessClient
	ownsClient bool
	projectID  string
	logger     *zap.Logger

	fallbackPath string
	fallbackOnce sync.Once
	fallback     map[string]string

	mu    sync.RWMutex
	cache map[string]string

	lookups metric.Int64Counter
}

// Option customises a Resolver.
type Option func(*Resolver)

// WithClient injects a Secret Manager client.
func WithClient(client accessClient) Option {
	return func(r *Resolver) { r.client = client }
}

// WithFallbackFile sets the KEY=value file consulted when Secret Manager is unreachable.
func WithFallbackFile(path string) Option {
	return func(r *Resolver) { r.fallbackPath = strings.TrimSpace(path) }
}

// WithLogger sets the diagnostic logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewResolver builds a Resolver for projectID. Without an injected client one is dialled with
// clientOpts; a dial failure leaves the resolver in fallback-only mode.
func NewResolver(ctx context.Context, projectID string, clientOpts []option.ClientOption, opts ...Option) *Resolver {
	r := &Resolver{
		projectID:    strings.TrimSpace(projectID),
		logger:       zap.NewNop(),
		fallbackPath: defaultFallbackPath,
		cache:        make(map[string]string),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.client == nil && r.projectID != "" {
		client, err := secretmanager.NewClient(ctx, clientOpts...)
		if err != nil {
			r.logger.Warn("secrets: secret manager unavailable, using fallback file", zap.Error(err))
		} else {
			r.client = client
			r.ownsClient = true
		}
	}
	counter, err := otel.GetMeterProvider().Meter("github.com/loomhouse/api/internal/platform/secrets").
		Int64Counter("secrets.lookups", metric.WithDescription("Secret lookups by source"))
	if err == nil {
		r.lookups = counter
	}
	return r
}

// Close releases the Secret Manager client when the resolver dialled it.
func (r *Resolver) Close() error {
	if r.ownsClient && r.client != nil {
		return r.client.Close()
	}
	return nil
}

// ResolveSecret returns the value behind ref (secret://name[?version=N&project=P]).
func (r *Resolver) ResolveSecret(ctx context.Context, ref string) (string, error) {
	name, version, project, err := parseReference(ref)
	if err != nil {
		return "", err
	}
	if project == "" {
		project = r.projectID
	}
	key := fmt.Sprintf("%s/%s@%s", project, name, version)

	r.mu.RLock()
	value, ok := r.cache[key]
	r.mu.RUnlock()
	if ok {
		r.count(ctx, "cache")
		return value, nil
	}

	if r.client != nil && project != "" {
		resp, err := r.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
			Name: fmt.Sprintf("projects/%s/secrets/%s/versions/%s", project, name, version),
		})
		switch {
		case err == nil && resp.GetPayload() != nil:
			value = string(resp.GetPayload().GetData())
			r.store(key, value)
			r.count(ctx, "remote")
			return value, nil
		case err == nil:
			return "", fmt.Errorf("secrets: empty payload for %s", name)
		case !fallbackWorthy(err):
			return "", fmt.Errorf("secrets: access %s: %w", name, err)
		}
		r.logger.Debug("secrets: remote lookup failed, trying fallback", zap.String("secret", name), zap.Error(err))
	}

	value, ok = r.lookupFallback(name)
	if !ok {
		return "", fmt.Errorf("secrets: %s not found", name)
	}
	r.store(key, value)
	r.count(ctx, "fallback")
	return value, nil
}

func (r *Resolver) store(key, value string) {
	r.mu.Lock()
	r.cache[key] = value
	r.mu.Unlock()
}

func (r *Resolver) count(ctx context.Context, source string) {
	if r.lookups != nil {
		r.lookups.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
	}
}

func (r *Resolver) lookupFallback(name string) (string, bool) {
	r.fallbackOnce.Do(func() {
		r.fallback = map[string]string{}
		if r.fallbackPath == "" {
			return
		}
		file, err := os.Open(r.fallbackPath)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				r.logger.Warn("secrets: fallback file unreadable", zap.Error(err))
			}
			return
		}
		defer file.Close()
		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			key, value, ok := strings.Cut(line, "=")
			if !ok {
				continue
			}
			key = strings.TrimSpace(key)
			if n, _, _, err := parseReference(key); err == nil {
				key = n
			}
			r.fallback[key] = strings.TrimSpace(value)
		}
	})
	value, ok := r.fallback[name]
	return value, ok
}

// parseReference accepts secret:// and sm:// references.
func parseReference(ref string) (name, version, project string, err error) {
	ref = strings.TrimSpace(ref)
	if strings.HasPrefix(ref, "sm://") {
		ref = "secret://" + strings.TrimPrefix(ref, "sm://")
	}
	u, err := url.Parse(ref)
	if err != nil || u.Scheme != "secret" {
		return "", "", "", fmt.Errorf("secrets: invalid reference %q", ref)
	}
	name = strings.Trim(u.Host+u.Path, "/")
	if name == "" {
		return "", "", "", fmt.Errorf("secrets: missing secret name in %q", ref)
	}
	version = strings.TrimSpace(u.Query().Get("version"))
	if version == "" {
		version = "latest"
	}
	return name, version, strings.TrimSpace(u.Query().Get("project")), nil
}

func fallbackWorthy(err error) bool {
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated, codes.Unavailable, codes.DeadlineExceeded, codes.NotFound:
		return true
	}
	return false
}
