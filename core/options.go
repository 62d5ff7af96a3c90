package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type IDGenerator func() string

type serviceBuilder struct {
	runtimeConfig   Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorMapper     ErrorMapper
	configProvider  ConfigProvider
	optionsResolver OptionsResolver
	unitOfWork      UnitOfWork
	bookingStore    BookingStore
	ledgerStore     ReconciliationStore
	ledgerPruner    LedgerPruner
	outbox          NotificationOutbox
	sender          NotificationSender
	idGenerator     IDGenerator
	clock           func() time.Time
}

type Option func(*serviceBuilder)

func WithLogger(logger Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *serviceBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *serviceBuilder) {
		b.errorMapper = mapper
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

// WithUnitOfWork sets the transactional boundary used by Reconcile.
func WithUnitOfWork(uow UnitOfWork) Option {
	return func(b *serviceBuilder) {
		b.unitOfWork = uow
	}
}

// WithBookingStore sets the non-transactional reader behind the booking queries.
func WithBookingStore(store BookingStore) Option {
	return func(b *serviceBuilder) {
		b.bookingStore = store
	}
}

func WithReconciliationStore(store ReconciliationStore) Option {
	return func(b *serviceBuilder) {
		b.ledgerStore = store
	}
}

func WithLedgerPruner(pruner LedgerPruner) Option {
	return func(b *serviceBuilder) {
		b.ledgerPruner = pruner
	}
}

func WithNotificationOutbox(outbox NotificationOutbox) Option {
	return func(b *serviceBuilder) {
		b.outbox = outbox
	}
}

func WithNotificationSender(sender NotificationSender) Option {
	return func(b *serviceBuilder) {
		b.sender = sender
	}
}

func WithIDGenerator(generator IDGenerator) Option {
	return func(b *serviceBuilder) {
		b.idGenerator = generator
	}
}

func WithClock(clock func() time.Time) Option {
	return func(b *serviceBuilder) {
		b.clock = clock
	}
}

func defaultServiceBuilder(runtime Config) serviceBuilder {
	loggerProvider, logger := glog.Resolve("bookings", nil, nil)
	return serviceBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorMapper:     bookingErrorMapper,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
		idGenerator:     newUUID,
		clock:           utcNow,
	}
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

// StaticRawConfigLoader serves a fixed raw map, mostly for tests and embedding.
func StaticRawConfigLoader(values map[string]any) RawConfigLoader {
	return staticRawConfigLoader{Values: values}
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			configToLayerMap(defaults, true),
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			configToLayerMap(loaded, false),
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			configToLayerMap(runtime, false),
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

// configToLayerMap flattens cfg into the nested map shape the options stack
// merges. Zero values are skipped unless includeZero is set so that a sparse
// layer never masks a lower one.
func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}

	reconciliation := map[string]any{}
	if includeZero || cfg.Reconciliation.ProcessingBudget != 0 {
		reconciliation["processing_budget"] = cfg.Reconciliation.ProcessingBudget
	}
	if includeZero || len(cfg.Reconciliation.FreeSessionTypes) > 0 {
		reconciliation["free_session_types"] = append([]string(nil), cfg.Reconciliation.FreeSessionTypes...)
	}
	putSection(layer, "reconciliation", reconciliation)

	calendly := map[string]any{}
	if includeZero || cfg.Webhooks.Calendly.SigningKey != "" {
		calendly["signing_key"] = cfg.Webhooks.Calendly.SigningKey
	}
	if includeZero || cfg.Webhooks.Calendly.Tolerance != 0 {
		calendly["tolerance"] = cfg.Webhooks.Calendly.Tolerance
	}
	stripe := map[string]any{}
	if includeZero || cfg.Webhooks.Stripe.SigningSecret != "" {
		stripe["signing_secret"] = cfg.Webhooks.Stripe.SigningSecret
	}
	if includeZero || cfg.Webhooks.Stripe.Tolerance != 0 {
		stripe["tolerance"] = cfg.Webhooks.Stripe.Tolerance
	}
	webhooks := map[string]any{}
	putSection(webhooks, "calendly", calendly)
	putSection(webhooks, "stripe", stripe)
	putSection(layer, "webhooks", webhooks)

	notifications := map[string]any{}
	if includeZero || cfg.Notifications.BatchSize != 0 {
		notifications["batch_size"] = cfg.Notifications.BatchSize
	}
	if includeZero || cfg.Notifications.MaxAttempts != 0 {
		notifications["max_attempts"] = cfg.Notifications.MaxAttempts
	}
	if includeZero || cfg.Notifications.InitialBackoff != 0 {
		notifications["initial_backoff"] = cfg.Notifications.InitialBackoff
	}
	if includeZero || cfg.Notifications.MaxBackoff != 0 {
		notifications["max_backoff"] = cfg.Notifications.MaxBackoff
	}
	putSection(layer, "notifications", notifications)

	if includeZero || cfg.Ledger.Retention != 0 {
		layer["ledger"] = map[string]any{"retention": cfg.Ledger.Retention}
	}
	return layer
}

func putSection(target map[string]any, key string, section map[string]any) {
	if len(section) == 0 {
		return
	}
	target[key] = section
}
