package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/google/uuid"
)

type Service struct {
	config          Config
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
	newID           IDGenerator
	now             func() time.Time
}

// NewService resolves configuration and wires the reconciliation core. When no
// unit of work is supplied an in-memory store backs every persistence contract.
func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("bookings", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("bookings"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = bookingErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.idGenerator == nil {
		builder.idGenerator = newUUID
	}
	if builder.clock == nil {
		builder.clock = utcNow
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if builder.unitOfWork == nil {
		memory := NewMemoryStore()
		builder.unitOfWork = memory
		if builder.bookingStore == nil {
			builder.bookingStore = memory.Bookings()
		}
		if builder.ledgerStore == nil {
			builder.ledgerStore = memory.Ledger()
		}
		if builder.ledgerPruner == nil {
			builder.ledgerPruner = memory.Ledger()
		}
		if builder.outbox == nil {
			builder.outbox = memory.Outbox()
		}
	}
	if builder.ledgerPruner == nil {
		if pruner, ok := builder.ledgerStore.(LedgerPruner); ok {
			builder.ledgerPruner = pruner
		}
	}

	return &Service{
		config:          finalConfig,
		logger:          logger,
		loggerProvider:  provider,
		metricsRecorder: builder.metricsRecorder,
		errorMapper:     builder.errorMapper,
		configProvider:  builder.configProvider,
		optionsResolver: builder.optionsResolver,
		unitOfWork:      builder.unitOfWork,
		bookingStore:    builder.bookingStore,
		ledgerStore:     builder.ledgerStore,
		ledgerPruner:    builder.ledgerPruner,
		outbox:          builder.outbox,
		sender:          builder.sender,
		newID:           builder.idGenerator,
		now:             builder.clock,
	}, nil
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Logger() Logger {
	if s == nil {
		return glog.Nop()
	}
	return s.logger
}

// MapError converts err into the rich error envelope callers render.
func (s *Service) MapError(err error) error {
	if s == nil {
		return mapBuildError(bookingErrorMapper, err)
	}
	return mapBuildError(s.errorMapper, err)
}

func newUUID() string {
	return uuid.NewString()
}

func utcNow() time.Time {
	return time.Now().UTC()
}
