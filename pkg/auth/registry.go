package auth

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// ProviderConfig contains provider-specific configuration
type ProviderConfig struct {
	Type   string          `yaml:"type" json:"type"`
	Config json.RawMessage `yaml:"config" json:"config"`
}

// VerifierFactory creates verifiers from configuration
type VerifierFactory func(config json.RawMessage) (Verifier, error)

var (
	registry = make(map[string]VerifierFactory)
	mu       sync.RWMutex
)

// RegisterProvider registers a verifier factory for a provider type
func RegisterProvider(providerType string, factory VerifierFactory) {
	mu.Lock()
	defer mu.Unlock()
	registry[providerType] = factory
}

// NewVerifier creates a verifier from provider configuration
func NewVerifier(providerConfig ProviderConfig) (Verifier, error) {
	mu.RLock()
	factory, ok := registry[providerConfig.Type]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown auth provider type: %s", providerConfig.Type)
	}

	return factory(providerConfig.Config)
}

// NewCodec creates a verifier and requires it to issue credentials as well.
func NewCodec(providerConfig ProviderConfig) (Codec, error) {
	v, err := NewVerifier(providerConfig)
	if err != nil {
		return nil, err
	}
	c, ok := v.(Codec)
	if !ok {
		return nil, fmt.Errorf("auth provider %s cannot issue tokens", providerConfig.Type)
	}
	return c, nil
}

// ListProviders returns registered provider types in sorted order
func ListProviders() []string {
	mu.RLock()
	defer mu.RUnlock()

	providers := make([]string, 0, len(registry))
	for name := range registry {
		providers = append(providers, name)
	}
	sort.Strings(providers)
	return providers
}
