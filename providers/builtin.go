package providers

import (
	"github.com/goliatone/go-bookings/core"
	"github.com/goliatone/go-bookings/providers/calendly"
	"github.com/goliatone/go-bookings/providers/stripe"
	"github.com/goliatone/go-bookings/webhooks"
)

// BuiltinWebhookTemplates returns the scheduling and payment provider
// templates configured from cfg.
func BuiltinWebhookTemplates(cfg core.Config) []webhooks.ProviderWebhookTemplate {
	return []webhooks.ProviderWebhookTemplate{
		calendly.New(calendly.ConfigFromCore(cfg)),
		stripe.New(stripe.ConfigFromCore(cfg)),
	}
}

// NewRegistry builds a webhook registry holding the built-in providers plus
// any extra templates.
func NewRegistry(cfg core.Config, extra ...webhooks.ProviderWebhookTemplate) (*webhooks.Registry, error) {
	templates := append(BuiltinWebhookTemplates(cfg), extra...)
	return webhooks.NewRegistry(templates...)
}
