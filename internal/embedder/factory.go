package embedder

import "strings"

// Config selects and configures an embedding provider.
type Config struct {
	Provider      string
	GeminiAPIKey  string
	MistralAPIKey string
	CacheSize     int
}

// New creates an embedder from cfg. With no explicit provider the first
// configured API key wins, falling back to the deterministic hash provider
// when no key is available.
func New(cfg Config) (Embedder, error) {
	cache := NewCache(cfg.CacheSize)

	switch strings.ToLower(cfg.Provider) {
	case ProviderGemini:
		return NewGeminiProvider(cfg.GeminiAPIKey, cache)
	case ProviderMistral:
		return NewMistralProvider(cfg.MistralAPIKey, cache)
	case ProviderHash:
		return NewHashProvider(cache), nil
	case "":
		// Auto-detect below.
	default:
		return NewHashProvider(cache), nil
	}

	if cfg.GeminiAPIKey != "" {
		return NewGeminiProvider(cfg.GeminiAPIKey, cache)
	}
	if cfg.MistralAPIKey != "" {
		return NewMistralProvider(cfg.MistralAPIKey, cache)
	}
	return NewHashProvider(cache), nil
}
