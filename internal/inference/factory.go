// Package inference connects the table pipeline to table model servers.
package inference

import (
	"fmt"

	"folio/internal/config"
	"folio/internal/port"
)

// Client runs both table models of one server.
type Client interface {
	port.TableDetector
	port.StructureRecognizer
}

// ProviderFactory is a function that creates a Client from a provider config.
type ProviderFactory func(cfg *config.InferenceProviderConfig) (Client, error)

// registry of provider factories, populated by init() in each provider package
// or explicitly via RegisterProvider.
var providers = map[string]ProviderFactory{}

// RegisterProvider registers a provider factory by name.
func RegisterProvider(name string, factory ProviderFactory) {
	providers[name] = factory
}

// New creates a Client from a provider config using the registered factory.
func New(cfg *config.InferenceProviderConfig) (Client, error) {
	factory, ok := providers[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown inference provider: %s", cfg.Provider)
	}
	return factory(cfg)
}

// FromConfig builds the primary client and, when a secondary is configured,
// wraps both in a FallbackClient.
func FromConfig(cfg *config.InferenceConfig, opts ...FallbackOption) (Client, error) {
	primary, err := New(&cfg.Primary)
	if err != nil {
		return nil, fmt.Errorf("creating primary inference client: %w", err)
	}
	sec := cfg.SecondaryConfig()
	if sec == nil {
		return primary, nil
	}
	secondary, err := New(sec)
	if err != nil {
		return nil, fmt.Errorf("creating secondary inference client: %w", err)
	}
	return NewFallbackClient(
		[]Client{primary, secondary},
		[]string{cfg.Primary.Provider + " (primary)", sec.Provider + " (secondary)"},
		opts...,
	), nil
}
