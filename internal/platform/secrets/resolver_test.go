package secrets

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type stubAccessClient struct {
	calls    int
	accessFn func(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest) (*secretmanagerpb.AccessSecretVersionResponse, error)
}

func (s *stubAccessClient) AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	s.calls++
	return s.accessFn(ctx, req)
}

func (s *stubAccessClient) Close() error { return nil }

func TestResolveSecretFetchesAndCaches(t *testing.T) {
	client := &stubAccessClient{accessFn: func(_ context.Context, req *secretmanagerpb.AccessSecretVersionRequest) (*secretmanagerpb.AccessSecretVersionResponse, error) {
		if req.GetName() != "projects/loom-prod/secrets/sheets-credentials/versions/3" {
			t.Fatalf("unexpected resource name %q", req.GetName())
		}
		return &secretmanagerpb.AccessSecretVersionResponse{Payload: &secretmanagerpb.SecretPayload{Data: []byte(`{"type":"service_account"}`)}}, nil
	}}
	r := NewResolver(context.Background(), "loom-prod", nil, WithClient(client), WithFallbackFile(""))

	for i := 0; i < 2; i++ {
		value, err := r.ResolveSecret(context.Background(), "sm://sheets-credentials?version=3")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if value != `{"type":"service_account"}` {
			t.Fatalf("unexpected value %q", value)
		}
	}
	if client.calls != 1 {
		t.Fatalf("expected one remote call, got %d", client.calls)
	}
}

func TestResolveSecretFallsBackToLocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".secrets.local")
	if err := os.WriteFile(path, []byte("# local\nsecret://sheets-credentials=local-json\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	client := &stubAccessClient{accessFn: func(context.Context, *secretmanagerpb.AccessSecretVersionRequest) (*secretmanagerpb.AccessSecretVersionResponse, error) {
		return nil, status.Error(codes.PermissionDenied, "denied")
	}}
	r := NewResolver(context.Background(), "loom-dev", nil, WithClient(client), WithFallbackFile(path))

	value, err := r.ResolveSecret(context.Background(), "secret://sheets-credentials")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != "local-json" {
		t.Fatalf("expected fallback value, got %q", value)
	}
}

func TestResolveSecretSurfacesHardErrors(t *testing.T) {
	client := &stubAccessClient{accessFn: func(context.Context, *secretmanagerpb.AccessSecretVersionRequest) (*secretmanagerpb.AccessSecretVersionResponse, error) {
		return nil, status.Error(codes.InvalidArgument, "bad name")
	}}
	r := NewResolver(context.Background(), "loom-dev", nil, WithClient(client), WithFallbackFile(""))
	if _, err := r.ResolveSecret(context.Background(), "secret://x"); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := r.ResolveSecret(context.Background(), "https://x"); err == nil {
		t.Fatalf("expected invalid reference error")
	}
}
