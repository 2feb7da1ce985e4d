package repositories

import (
	"context"
	"errors"
	"testing"

	domain "github.com/loomhouse/api/internal/domain"
)

func TestProbeHealthRepositoryAggregatesStatus(t *testing.T) {
	repo, err := NewProbeHealthRepository([]DependencyCheck{
		{Name: "orders", Check: func(context.Context) error { return nil }},
		{Name: "notifications", Check: func(context.Context) error { return errors.New("topic missing") }},
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	report, err := repo.Collect(context.Background())
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if report.Status != domain.HealthStatusDegraded {
		t.Fatalf("expected degraded, got %s", report.Status)
	}
	if report.Checks["orders"].Status != domain.HealthStatusOK {
		t.Fatalf("expected orders ok, got %+v", report.Checks["orders"])
	}
	if report.Checks["notifications"].Error != "topic missing" {
		t.Fatalf("expected error detail, got %+v", report.Checks["notifications"])
	}
}

func TestProbeHealthRepositoryTimeout(t *testing.T) {
	repo, err := NewProbeHealthRepository([]DependencyCheck{
		{Name: "sheets", Timeout: 1, Check: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}},
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	report, _ := repo.Collect(context.Background())
	if report.Status != domain.HealthStatusError {
		t.Fatalf("expected error status, got %s", report.Status)
	}
	if report.Checks["sheets"].Detail != "timeout" {
		t.Fatalf("expected timeout detail, got %+v", report.Checks["sheets"])
	}
}

func TestNewProbeHealthRepositoryValidates(t *testing.T) {
	if _, err := NewProbeHealthRepository(nil, nil); err == nil {
		t.Fatalf("expected error for empty checks")
	}
	if _, err := NewProbeHealthRepository([]DependencyCheck{{Name: "x"}}, nil); err == nil {
		t.Fatalf("expected error for missing check func")
	}
}

func TestOrderScopeMatches(t *testing.T) {
	if !AllOrders().Matches("anyone") {
		t.Fatalf("expected all scope to match")
	}
	guest := AccountOrders(domain.GuestAccount())
	if !guest.Matches("GUEST") || !guest.Matches("") {
		t.Fatalf("expected guest scope to match guest rows")
	}
	if guest.Matches("acct-1") {
		t.Fatalf("expected guest scope to skip account rows")
	}
	if !AccountOrders(domain.AccountFor("acct-1")).Matches("acct-1") {
		t.Fatalf("expected account scope to match its rows")
	}
}
