package webhooks

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-bookings/core"
)

// Normalizer maps a verified provider payload to exactly one event variant.
// Unknown event types become core.Ignored; a known type without a correlation
// key is a NormalizationError.
type Normalizer interface {
	Normalize(req core.InboundRequest) (core.Event, error)
}

type NormalizerFunc func(req core.InboundRequest) (core.Event, error)

func (f NormalizerFunc) Normalize(req core.InboundRequest) (core.Event, error) {
	return f(req)
}

type ProviderWebhookTemplate struct {
	ProviderID string
	Verifier   Verifier
	Normalizer Normalizer
}

func (t ProviderWebhookTemplate) Validate() error {
	if strings.TrimSpace(t.ProviderID) == "" {
		return fmt.Errorf("webhooks: template provider id is required")
	}
	if t.Verifier == nil {
		return fmt.Errorf("webhooks: template %s requires a verifier", t.ProviderID)
	}
	if t.Normalizer == nil {
		return fmt.Errorf("webhooks: template %s requires a normalizer", t.ProviderID)
	}
	return nil
}

// Registry holds one template per provider id.
type Registry struct {
	mu        sync.RWMutex
	templates map[string]ProviderWebhookTemplate
}

func NewRegistry(templates ...ProviderWebhookTemplate) (*Registry, error) {
	registry := &Registry{templates: map[string]ProviderWebhookTemplate{}}
	for _, template := range templates {
		if err := registry.Register(template); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func (r *Registry) Register(template ProviderWebhookTemplate) error {
	if r == nil {
		return fmt.Errorf("webhooks: registry is nil")
	}
	if err := template.Validate(); err != nil {
		return err
	}
	key := normalizeProviderID(template.ProviderID)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.templates == nil {
		r.templates = map[string]ProviderWebhookTemplate{}
	}
	if _, exists := r.templates[key]; exists {
		return fmt.Errorf("webhooks: provider %q already registered", key)
	}
	template.ProviderID = key
	r.templates[key] = template
	return nil
}

func (r *Registry) Lookup(providerID string) (ProviderWebhookTemplate, bool) {
	if r == nil {
		return ProviderWebhookTemplate{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	template, ok := r.templates[normalizeProviderID(providerID)]
	return template, ok
}

func (r *Registry) Providers() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.templates))
	for id := range r.templates {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func normalizeProviderID(providerID string) string {
	return strings.ToLower(strings.TrimSpace(providerID))
}
