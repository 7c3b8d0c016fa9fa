package llm

import (
	"fmt"

	"billscope/internal/config"
	"billscope/internal/port"
)

// ProviderFactory creates a Completer from a provider config.
type ProviderFactory func(cfg *config.LLMProviderConfig) (port.Completer, error)

// providers is populated at startup via RegisterProvider.
var providers = map[string]ProviderFactory{}

// RegisterProvider registers a completion provider factory by name.
func RegisterProvider(name string, factory ProviderFactory) {
	providers[name] = factory
}

// NewCompleter creates a Completer from a provider config using the registered factory.
func NewCompleter(cfg *config.LLMProviderConfig) (port.Completer, error) {
	factory, ok := providers[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
	return factory(cfg)
}

// NewChain builds the configured provider chain. A single provider is
// returned as is; more than one is wrapped in a FallbackCompleter.
func NewChain(cfg *config.LLMConfig, opts ...FallbackOption) (port.Completer, error) {
	chain := cfg.Chain()
	completers := make([]port.Completer, 0, len(chain))
	names := make([]string, 0, len(chain))
	for _, pc := range chain {
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
