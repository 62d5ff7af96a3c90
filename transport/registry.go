package transport

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-bookings/core"
)

// Sender is a notification sender that names its transport.
type Sender interface {
	core.NotificationSender
	Kind() string
}

type SenderFactory func(config map[string]any) (Sender, error)

type Registry struct {
	mu        sync.RWMutex
	senders   map[string]Sender
	factories map[string]SenderFactory
}

func NewRegistry() *Registry {
	return &Registry{
		senders:   map[string]Sender{},
		factories: map[string]SenderFactory{},
	}
}

// NewDefaultRegistry knows how to build the http, amqp and log senders.
// logger backs the log sender.
func NewDefaultRegistry(logger core.Logger) *Registry {
	registry := NewRegistry()
	_ = registry.RegisterFactory(KindLog, func(map[string]any) (Sender, error) {
		return NewLogSender(logger), nil
	})
	_ = registry.RegisterFactory(KindHTTP, httpFactory)
	_ = registry.RegisterFactory(KindAMQP, amqpFactory)
	return registry
}

func (r *Registry) Register(sender Sender) error {
	if r == nil {
		return fmt.Errorf("transport: registry is nil")
	}
	if sender == nil {
		return fmt.Errorf("transport: sender is nil")
	}
	kind := normalizeKind(sender.Kind())
	if kind == "" {
		return fmt.Errorf("transport: sender kind is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.senders[kind]; exists {
		return fmt.Errorf("transport: sender kind %q already registered", kind)
	}
	r.senders[kind] = sender
	return nil
}

func (r *Registry) RegisterFactory(kind string, factory SenderFactory) error {
	if r == nil {
		return fmt.Errorf("transport: registry is nil")
	}
	kind = normalizeKind(kind)
	if kind == "" {
		return fmt.Errorf("transport: sender kind is required")
	}
	if factory == nil {
		return fmt.Errorf("transport: sender factory is nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[kind]; exists {
		return fmt.Errorf("transport: sender factory kind %q already registered", kind)
	}
	r.factories[kind] = factory
	return nil
}

// Build returns the registered sender for kind or builds one from its factory.
func (r *Registry) Build(kind string, config map[string]any) (Sender, error) {
	if r == nil {
		return nil, fmt.Errorf("transport: registry is nil")
	}
	kind = normalizeKind(kind)
	if kind == "" {
		return nil, fmt.Errorf("transport: sender kind is required")
	}

	r.mu.RLock()
	sender, ok := r.senders[kind]
	factory := r.factories[kind]
	r.mu.RUnlock()
	if ok {
		return sender, nil
	}
	if factory == nil {
		return nil, fmt.Errorf("transport: sender kind %q not registered", kind)
	}
	built, err := factory(cloneMap(config))
	if err != nil {
		return nil, err
	}
	if built == nil {
		return nil, fmt.Errorf("transport: factory for %q returned nil sender", kind)
	}
	return built, nil
}

func (r *Registry) Get(kind string) (Sender, bool) {
	if r == nil {
		return nil, false
	}
	kind = normalizeKind(kind)
	r.mu.RLock()
	defer r.mu.RUnlock()
	sender, ok := r.senders[kind]
	return sender, ok
}

// Kinds lists every kind the registry can produce.
func (r *Registry) Kinds() []string {
	if r == nil {
		return []string{}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := map[string]struct{}{}
	for kind := range r.senders {
		seen[kind] = struct{}{}
	}
	for kind := range r.factories {
		seen[kind] = struct{}{}
	}
	kinds := make([]string, 0, len(seen))
	for kind := range seen {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

func httpFactory(config map[string]any) (Sender, error) {
	endpoint := stringValue(config, "endpoint")
	if endpoint == "" {
		return nil, fmt.Errorf("transport: http sender requires an endpoint")
	}
	sender := NewHTTPSender(endpoint, nil)
	if timeout, ok := config["timeout"].(time.Duration); ok && timeout > 0 {
		sender.Timeout = timeout
	}
	if headers, ok := config["headers"].(map[string]string); ok {
		for key, value := range headers {
			sender.DefaultHeaders[key] = value
		}
	}
	return sender, nil
}

func amqpFactory(config map[string]any) (Sender, error) {
	url := stringValue(config, "url")
	if url == "" {
		return nil, fmt.Errorf("transport: amqp sender requires a url")
	}
	return DialAMQP(url, stringValue(config, "exchange"))
}

func stringValue(config map[string]any, key string) string {
	value, _ := config[key].(string)
	return strings.TrimSpace(value)
}

func normalizeKind(kind string) string {
	return strings.TrimSpace(strings.ToLower(kind))
}

func cloneMap(input map[string]any) map[string]any {
	if len(input) == 0 {
		return map[string]any{}
	}
	output := make(map[string]any, len(input))
	for key, value := range input {
		output[key] = value
	}
	return output
}
