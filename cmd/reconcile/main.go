// Command reconcile replays storefront orders that never reached the order API and can confirm
// that a status change is visible to readers.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/loomhouse/api/internal/domain"
	"github.com/loomhouse/api/internal/platform/config"
	"github.com/loomhouse/api/internal/platform/observability"
	"github.com/loomhouse/api/internal/storefront"
)

func main() {
	var (
		envFile  string
		endpoint string
		outbox   string
		verify   string
		list     bool
	)
	flag.StringVar(&envFile, "env", "", "optional .env file")
	flag.StringVar(&endpoint, "endpoint", "", "order API action endpoint (defaults to API_STOREFRONT_BASE_URL + /api/v1/exec)")
	flag.StringVar(&outbox, "outbox", "", "outbox directory (defaults to API_STOREFRONT_OUTBOX_PATH)")
	flag.StringVar(&verify, "verify", "", "confirm a status update is visible: ORDER_ID:STATUS[:TRACKING_ID]")
	flag.BoolVar(&list, "list", false, "print unsynced outbox entries without submitting them")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var opts []config.Option
	if envFile != "" {
		opts = append(opts, config.WithEnvFile(envFile))
	}
	cfg, err := config.Load(ctx, opts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	baseLogger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()
	logger := baseLogger.Named("reconcile")

	if endpoint == "" {
		endpoint = strings.TrimRight(cfg.Storefront.BaseURL, "/") + "/api/v1/exec"
	}
	client, err := storefront.NewClient(endpoint, storefront.WithHTTPClient(&http.Client{Timeout: cfg.Storefront.RequestTimeout}))
	if err != nil {
		logger.Fatal("failed to initialise storefront client", zap.Error(err))
	}

	if verify != "" {
		if err := runVerify(ctx, logger, client, cfg.Storefront, verify); err != nil {
			logger.Fatal("status verification failed", zap.Error(err))
		}
		return
	}

	if outbox == "" {
		outbox = cfg.Storefront.OutboxPath
	}
	box, err := storefront.OpenOutbox(outbox)
	if err != nil {
		logger.Fatal("failed to open outbox", zap.String("path", outbox), zap.Error(err))
	}
	defer func() {
		if err := box.Close(); err != nil {
			logger.Warn("outbox close error", zap.Error(err))
		}
	}()

	if list {
		if err := printUnsynced(box); err != nil {
			logger.Fatal("failed to list outbox", zap.Error(err))
		}
		return
	}

	checkout, err := storefront.NewCheckout(storefront.CheckoutDeps{
		API:    client,
		Outbox: box,
		Logger: observability.EventLogger(logger),
	})
	if err != nil {
		logger.Fatal("failed to initialise checkout", zap.Error(err))
	}

	report, err := checkout.Reconcile(ctx)
	if err != nil {
		logger.Fatal("reconcile failed", zap.Error(err))
	}
	logger.Info("reconcile finished",
		zap.Int("synced", report.Synced),
		zap.Int("failed", report.Failed),
		zap.Int("rejected", report.Rejected),
	)
	if report.Failed > 0 {
		os.Exit(2)
	}
}

func runVerify(ctx context.Context, logger *zap.Logger, client *storefront.Client, cfg config.StorefrontConfig, arg string) error {
	parts := strings.SplitN(arg, ":", 3)
	if len(parts) < 2 || strings.TrimSpace(parts[0]) == "" {
		return fmt.Errorf("expected ORDER_ID:STATUS[:TRACKING_ID], got %q", arg)
	}
	status, ok := domain.ParseFulfillmentStatus(parts[1])
	if !ok {
		return fmt.Errorf("unknown status %q", parts[1])
	}
	var tracking string
	if len(parts) == 3 {
		tracking = strings.TrimSpace(parts[2])
	}

	verifier, err := storefront.NewStatusVerifier(storefront.StatusVerifierDeps{
		Orders:   client,
		Attempts: cfg.VerifyAttempts,
		Delay:    cfg.VerifyDelay,
	})
	if err != nil {
		return err
	}
	order, err := verifier.Verify(ctx, strings.TrimSpace(parts[0]), status, tracking)
	if err != nil {
		if errors.Is(err, storefront.ErrStatusNotVisible) {
			logger.Warn("status not visible yet", zap.String("orderId", parts[0]), zap.String("status", string(status)))
		}
		return err
	}
	logger.Info("status visible",
		zap.String("orderId", order.ID),
		zap.String("status", string(order.Status)),
		zap.String("trackingId", order.TrackingID),
		zap.String("total", order.Total.StringFixed(2)),
	)
	return nil
}

func printUnsynced(box *storefront.Outbox) error {
	entries, err := box.Unsynced()
	if err != nil {
		return err
	}
	for _, entry := range entries {
		fmt.Printf("%s\t%s\tattempts=%d\t%s\n", entry.OrderID, entry.SyncStatus, entry.Attempts, entry.LastError)
	}
	return nil
}
