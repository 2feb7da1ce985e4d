// Package config loads runtime configuration from .env files, the environment and Secret Manager.
package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	domain "github.com/loomhouse/api/internal/domain"
)

const (
	defaultEnvFile         = ".env"
	defaultPort            = "8080"
	defaultReadTimeout     = 15 * time.Second
	defaultWriteTimeout    = 30 * time.Second
	defaultIdleTimeout     = 120 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultOrdersTab       = "Orders"
	defaultItemsTab        = "OrderItems"
	defaultPricingTTL      = 5 * time.Minute
	defaultVerifyAttempts  = 3
	defaultVerifyDelay     = 2 * time.Second
)

// Store backends.
const (
	BackendSheets    = "sheets"
	BackendFirestore = "firestore"
	BackendMemory    = "memory"
)

// Pricing sources.
const (
	PricingSourceStatic    = "static"
	PricingSourceFirestore = "firestore"
)

// Config groups runtime configuration by concern.
type Config struct {
	Server        ServerConfig
	LogLevel      string
	Store         StoreConfig
	Firebase      FirebaseConfig
	Auth          AuthConfig
	Firestore     FirestoreConfig
	Sheets        SheetsConfig
	PubSub        PubSubConfig
	Notifications NotificationConfig
	Pricing       PricingConfig
	Storefront    StorefrontConfig
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// StoreConfig selects the order persistence backend.
type StoreConfig struct {
	Backend string
}

// FirebaseConfig stores Firebase project settings.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// AuthConfig controls Firebase token verification on the action endpoint.
type AuthConfig struct {
	Enabled   bool
	RoleClaim string
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// SheetsConfig points at the spreadsheet that holds orders and order items.
type SheetsConfig struct {
	SpreadsheetID   string
	OrdersTab       string
	ItemsTab        string
	CredentialsJSON string
	Endpoint        string
}

// PubSubConfig configures the notification job topic.
type PubSubConfig struct {
	ProjectID          string
	NotificationsTopic string
	EmulatorHost       string
}

// NotificationConfig controls customer emails.
type NotificationConfig struct {
	Enabled   bool
	StoreName string
	Currency  string
	Language  string
}

// PricingConfig selects where pricing comes from. Static is parsed from PRICING_* keys.
type PricingConfig struct {
	Source   string
	CacheTTL time.Duration
	Static   domain.PricingConfig
}

// StorefrontConfig configures the storefront client used by the reconcile command.
type StorefrontConfig struct {
	BaseURL        string
	OutboxPath     string
	VerifyAttempts int
	VerifyDelay    time.Duration
	RequestTimeout time.Duration
}

// ValidationError lists fields that are missing or invalid.
type ValidationError struct {
	fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the offending field names.
func (e *ValidationError) Fields() []string {
	return append([]string(nil), e.fields...)
}

// Load assembles configuration with precedence .env < OS environment < WithEnvMap.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := newLoaderOptions(opts)
	lookup, err := options.lookup()
	if err != nil {
		return Config{}, err
	}

	var invalid []string
	static, pricingErrs := parseStaticPricing(lookup)
	invalid = append(invalid, pricingErrs...)

	cfg := Config{
		Server: ServerConfig{
			Port:            stringWithDefault(lookup, "API_SERVER_PORT", defaultPort),
			ReadTimeout:     durationWithDefault(lookup, "API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:    durationWithDefault(lookup, "API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:     durationWithDefault(lookup, "API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			ShutdownTimeout: durationWithDefault(lookup, "API_SERVER_SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
		},
		LogLevel: stringWithDefault(lookup, "API_LOG_LEVEL", stringWithDefault(lookup, "LOG_LEVEL", "info")),
		Store: StoreConfig{
			Backend: strings.ToLower(stringWithDefault(lookup, "API_STORE_BACKEND", BackendSheets)),
		},
		Firebase: FirebaseConfig{
			ProjectID:       stringWithDefault(lookup, "API_FIREBASE_PROJECT_ID", ""),
			CredentialsFile: stringWithDefault(lookup, "API_FIREBASE_CREDENTIALS_FILE", ""),
		},
		Auth: AuthConfig{
			Enabled:   boolWithDefault(lookup, "API_AUTH_ENABLED", true),
			RoleClaim: stringWithDefault(lookup, "API_AUTH_ROLE_CLAIM", "role"),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "API_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "API_FIRESTORE_EMULATOR_HOST", ""),
		},
		Sheets: SheetsConfig{
			SpreadsheetID:   stringWithDefault(lookup, "API_SHEETS_SPREADSHEET_ID", ""),
			OrdersTab:       stringWithDefault(lookup, "API_SHEETS_ORDERS_TAB", defaultOrdersTab),
			ItemsTab:        stringWithDefault(lookup, "API_SHEETS_ITEMS_TAB", defaultItemsTab),
			CredentialsJSON: stringWithDefault(lookup, "API_SHEETS_CREDENTIALS_JSON", ""),
			Endpoint:        stringWithDefault(lookup, "API_SHEETS_ENDPOINT", ""),
		},
		PubSub: PubSubConfig{
			ProjectID:          stringWithDefault(lookup, "API_PUBSUB_PROJECT_ID", ""),
			NotificationsTopic: stringWithDefault(lookup, "API_PUBSUB_NOTIFICATIONS_TOPIC", ""),
			EmulatorHost:       stringWithDefault(lookup, "API_PUBSUB_EMULATOR_HOST", ""),
		},
		Notifications: NotificationConfig{
			Enabled:   boolWithDefault(lookup, "API_NOTIFICATIONS_ENABLED", true),
			StoreName: stringWithDefault(lookup, "API_NOTIFICATIONS_STORE_NAME", ""),
			Currency:  stringWithDefault(lookup, "API_NOTIFICATIONS_CURRENCY", "USD"),
			Language:  stringWithDefault(lookup, "API_NOTIFICATIONS_LANGUAGE", "en"),
		},
		Pricing: PricingConfig{
			Source:   strings.ToLower(stringWithDefault(lookup, "PRICING_SOURCE", PricingSourceStatic)),
			CacheTTL: durationWithDefault(lookup, "PRICING_CACHE_TTL", defaultPricingTTL),
			Static:   static,
		},
		Storefront: StorefrontConfig{
			BaseURL:        stringWithDefault(lookup, "STOREFRONT_API_BASE_URL", ""),
			OutboxPath:     stringWithDefault(lookup, "STOREFRONT_OUTBOX_PATH", ".outbox"),
			VerifyAttempts: intWithDefault(lookup, "STOREFRONT_VERIFY_ATTEMPTS", defaultVerifyAttempts),
			VerifyDelay:    durationWithDefault(lookup, "STOREFRONT_VERIFY_DELAY", defaultVerifyDelay),
			RequestTimeout: durationWithDefault(lookup, "STOREFRONT_REQUEST_TIMEOUT", 15*time.Second),
		},
	}

	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = cfg.Firebase.ProjectID
	}
	if cfg.PubSub.ProjectID == "" {
		cfg.PubSub.ProjectID = cfg.Firebase.ProjectID
	}

	resolved, err := resolveSecret(ctx, cfg.Sheets.CredentialsJSON, options.secret)
	if err != nil {
		return Config{}, err
	}
	cfg.Sheets.CredentialsJSON = resolved

	if err := validate(cfg, invalid); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config, invalid []string) error {
	fields := append([]string(nil), invalid...)
	if cfg.Server.Port == "" {
		fields = append(fields, "Server.Port")
	}
	switch cfg.Store.Backend {
	case BackendSheets:
		if cfg.Sheets.SpreadsheetID == "" {
			fields = append(fields, "Sheets.SpreadsheetID")
		}
	case BackendFirestore:
		if cfg.Firestore.ProjectID == "" {
			fields = append(fields, "Firestore.ProjectID")
		}
	case BackendMemory:
	default:
		fields = append(fields, "Store.Backend")
	}
	switch cfg.Pricing.Source {
	case PricingSourceStatic:
	case PricingSourceFirestore:
		if cfg.Firestore.ProjectID == "" {
			fields = append(fields, "Firestore.ProjectID")
		}
	default:
		fields = append(fields, "Pricing.Source")
	}
	if cfg.Auth.Enabled && cfg.Firebase.ProjectID == "" {
		fields = append(fields, "Firebase.ProjectID")
	}
	if cfg.PubSub.NotificationsTopic != "" && cfg.PubSub.ProjectID == "" {
		fields = append(fields, "PubSub.ProjectID")
	}
	if cfg.Storefront.VerifyAttempts < 1 {
		fields = append(fields, "Storefront.VerifyAttempts")
	}
	if len(fields) > 0 {
		return &ValidationError{fields: fields}
	}
	return nil
}
