package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	defaultProcessingBudget      = 10 * time.Second
	defaultSignatureTolerance    = 5 * time.Minute
	defaultNotificationBatchSize = 50
	defaultNotificationAttempts  = 1
	defaultNotificationBackoff   = 2 * time.Second
	defaultNotificationMaxWait   = 5 * time.Minute
	defaultLedgerRetention       = 90 * 24 * time.Hour
)

type ReconciliationConfig struct {
	ProcessingBudget time.Duration `koanf:"processing_budget" mapstructure:"processing_budget"`
	// FreeSessionTypes lists session type ids confirmed without a payment.
	FreeSessionTypes []string `koanf:"free_session_types" mapstructure:"free_session_types"`
}

type CalendlyWebhookConfig struct {
	SigningKey string        `koanf:"signing_key" mapstructure:"signing_key"`
	Tolerance  time.Duration `koanf:"tolerance" mapstructure:"tolerance"`
}

type StripeWebhookConfig struct {
	SigningSecret string        `koanf:"signing_secret" mapstructure:"signing_secret"`
	Tolerance     time.Duration `koanf:"tolerance" mapstructure:"tolerance"`
}

type WebhooksConfig struct {
	Calendly CalendlyWebhookConfig `koanf:"calendly" mapstructure:"calendly"`
	Stripe   StripeWebhookConfig   `koanf:"stripe" mapstructure:"stripe"`
}

type NotificationsConfig struct {
	BatchSize      int           `koanf:"batch_size" mapstructure:"batch_size"`
	MaxAttempts    int           `koanf:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoff time.Duration `koanf:"initial_backoff" mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `koanf:"max_backoff" mapstructure:"max_backoff"`
}

type LedgerConfig struct {
	// Retention of zero disables pruning.
	Retention time.Duration `koanf:"retention" mapstructure:"retention"`
}

type Config struct {
	ServiceName    string               `koanf:"service_name" mapstructure:"service_name"`
	Reconciliation ReconciliationConfig `koanf:"reconciliation" mapstructure:"reconciliation"`
	Webhooks       WebhooksConfig       `koanf:"webhooks" mapstructure:"webhooks"`
	Notifications  NotificationsConfig  `koanf:"notifications" mapstructure:"notifications"`
	Ledger         LedgerConfig         `koanf:"ledger" mapstructure:"ledger"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "bookings",
		Reconciliation: ReconciliationConfig{
			ProcessingBudget: defaultProcessingBudget,
		},
		Webhooks: WebhooksConfig{
			Calendly: CalendlyWebhookConfig{Tolerance: defaultSignatureTolerance},
			Stripe:   StripeWebhookConfig{Tolerance: defaultSignatureTolerance},
		},
		Notifications: NotificationsConfig{
			BatchSize:      defaultNotificationBatchSize,
			MaxAttempts:    defaultNotificationAttempts,
			InitialBackoff: defaultNotificationBackoff,
			MaxBackoff:     defaultNotificationMaxWait,
		},
		Ledger: LedgerConfig{
			Retention: defaultLedgerRetention,
		},
	}
}

// Validate checks structural settings only. Missing webhook secrets are legal
// here and surface as authenticity failures at verification time.
func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Reconciliation.ProcessingBudget < 0 {
		return fmt.Errorf("core: reconciliation.processing_budget must not be negative")
	}
	if c.Webhooks.Calendly.Tolerance < 0 || c.Webhooks.Stripe.Tolerance < 0 {
		return fmt.Errorf("core: webhook tolerance must not be negative")
	}
	if c.Notifications.BatchSize < 0 {
		return fmt.Errorf("core: notifications.batch_size must not be negative")
	}
	if c.Notifications.MaxAttempts < 0 {
		return fmt.Errorf("core: notifications.max_attempts must not be negative")
	}
	if c.Notifications.MaxBackoff > 0 && c.Notifications.InitialBackoff > c.Notifications.MaxBackoff {
		return fmt.Errorf("core: notifications.initial_backoff exceeds notifications.max_backoff")
	}
	if c.Ledger.Retention < 0 {
		return fmt.Errorf("core: ledger.retention must not be negative")
	}
	return nil
}

// IsFreeSessionType reports whether sessionTypeID skips the payment step.
func (c Config) IsFreeSessionType(sessionTypeID string) bool {
	sessionTypeID = strings.TrimSpace(sessionTypeID)
	if sessionTypeID == "" {
		return false
	}
	for _, candidate := range c.Reconciliation.FreeSessionTypes {
		if strings.EqualFold(strings.TrimSpace(candidate), sessionTypeID) {
			return true
		}
	}
	return false
}

func (c Config) processingBudget() time.Duration {
	if c.Reconciliation.ProcessingBudget <= 0 {
		return defaultProcessingBudget
	}
	return c.Reconciliation.ProcessingBudget
}
