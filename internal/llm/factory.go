package llm

import (
	"fmt"
	"sort"
	"sync"

	"leasesum/internal/config"
	"leasesum/internal/port"
)

// ProviderFactory is a function that creates a Completer from a provider config.
type ProviderFactory func(cfg *config.LLMProviderConfig) (port.Completer, error)

// registry of provider factories, populated by the binary at startup via RegisterProvider.
var (
	providersMu sync.RWMutex
	providers   = map[string]ProviderFactory{}
)

// RegisterProvider registers a provider factory by name.
func RegisterProvider(name string, factory ProviderFactory) {
	providersMu.Lock()
	defer providersMu.Unlock()
	providers[name] = factory
}

// RegisteredProviders returns the registered provider names, sorted.
func RegisteredProviders() []string {
	providersMu.RLock()
	defer providersMu.RUnlock()
	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewCompleter creates a Completer from a provider config using the registered factory.
// A positive RequestsPerMinute wraps the result in a RateLimitedCompleter.
func NewCompleter(cfg *config.LLMProviderConfig) (port.Completer, error) {
	providersMu.RLock()
	factory, ok := providers[cfg.Provider]
	providersMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
	c, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating %s completer: %w", cfg.Provider, err)
	}
	if cfg.RequestsPerMinute > 0 {
		c = NewRateLimitedCompleter(c, cfg.RequestsPerMinute)
	}
	return c, nil
}

// NewChain builds the configured provider chain. A single provider is returned
// as-is; several are wrapped in a FallbackCompleter in configuration order.
func NewChain(cfg *config.LLMConfig, opts ...FallbackOption) (port.Completer, error) {
	provCfgs := cfg.Providers()
	if len(provCfgs) == 0 {
		return nil, fmt.Errorf("no llm providers configured")
	}
	completers := make([]port.Completer, 0, len(provCfgs))
	names := make([]string, 0, len(provCfgs))
	for _, pc := range provCfgs {
		c, err := NewCompleter(pc)
		if err != nil {
			return nil, err
		}
		completers = append(completers, c)
		names = append(names, pc.Provider)
	}
	if len(completers) == 1 {
		return completers[0], nil
	}
	return NewFallbackCompleter(completers, names, opts...), nil
}
