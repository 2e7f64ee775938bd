package llm

import (
	"fmt"
	"time"
)

// ProviderConfig holds everything needed to create an LLM provider.
type ProviderConfig struct {
	Provider   string // "openai", "anthropic", "none"
	APIKey     string
	Model      string
	BaseURL    string // override for self-hosted / OpenAI-compatible endpoints
	EmbedModel string // embedding model (OpenAI-compatible providers only)

	Timeout    time.Duration // per-request timeout (default: 2 minutes)
	MaxRetries int           // max retry attempts (default: 3)
	RetryDelay time.Duration // initial retry delay for exponential backoff (default: 1s)
}

// DefaultProviderConfig returns a config with sensible defaults.
func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{
		Timeout:    2 * time.Minute,
		MaxRetries: 3,
		RetryDelay: 1 * time.Second,
	}
}

// ProviderConstructor builds a Provider from config.
type ProviderConstructor func(cfg ProviderConfig) (Provider, error)

// ProviderFactory creates Provider instances from config.
type ProviderFactory struct {
	constructors map[string]ProviderConstructor
}

// NewFactory creates an empty factory; constructors are registered by the
// composition root.
func NewFactory() *ProviderFactory {
	return &ProviderFactory{constructors: make(map[string]ProviderConstructor)}
}

// Register adds a provider constructor under the given name.
func (f *ProviderFactory) Register(name string, ctor ProviderConstructor) {
	f.constructors[name] = ctor
}

// Create builds a Provider from config. It returns nil (no error) when the
// provider is empty or "none", which callers treat as a disabled state rather
// than a runtime branch on provider type. Missing credentials surface here,
// at construction, not on first use.
func (f *ProviderFactory) Create(cfg ProviderConfig) (Provider, error) {
	if cfg.Provider == "" || cfg.Provider == "none" {
		return nil, nil
	}

	ctor, ok := f.constructors[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown LLM provider %q (registered: %v)", cfg.Provider, f.names())
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("LLM provider %q requires an api key", cfg.Provider)
	}

	provider, err := ctor(cfg)
	if err != nil {
		return nil, err
	}

	// Every provider gets the retry wrapper; zero-valued retry fields fall
	// back to the defaults rather than disabling it.
	return WrapWithRetry(provider, cfg), nil
}

func (f *ProviderFactory) names() []string {
	var out []string
	for k := range f.constructors {
		out = append(out, k)
	}
	return out
}
