package embedder

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/repochat/repochat/pkg/types"
)

const (
	ProviderGemini  = "gemini"
	ProviderMistral = "mistral"
	ProviderHash    = "hash"

	DefaultGeminiModel  = "embedding-001"
	DefaultMistralModel = "mistral-embed"

	GeminiDimension  = 768
	MistralDimension = 1024
	HashDimension    = 256

	geminiBaseURL  = "https://generativelanguage.googleapis.com/v1beta"
	mistralBaseURL = "https://api.mistral.ai/v1"
)

// GeminiProvider embeds text through the Google Generative Language API.
type GeminiProvider struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	cache      *Cache
}

// NewGeminiProvider creates a Gemini embedder.
func NewGeminiProvider(apiKey string, cache *Cache) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: gemini api key not set", types.ErrEmbedding)
	}
	return &GeminiProvider{
		apiKey:     apiKey,
		model:      DefaultGeminiModel,
		baseURL:    geminiBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		cache:      cache,
	}, nil
}

func (g *GeminiProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	return embedOne(ctx, g, g.cache, text)
}

func (g *GeminiProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := validateBatch(texts); err != nil {
		return nil, err
	}
	vectors, err := retryWithBackoff(ctx, DefaultRetryConfig(), func() ([][]float32, error) {
		return g.callAPI(ctx, texts)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: gemini: %v", types.ErrEmbedding, err)
	}
	cacheAll(g.cache, texts, vectors)
	return vectors, nil
}

func (g *GeminiProvider) callAPI(ctx context.Context, texts []string) ([][]float32, error) {
	type part struct {
		Text string `json:"text"`
	}
	type content struct {
		Parts []part `json:"parts"`
	}
	type embedReq struct {
		Model   string  `json:"model"`
		Content content `json:"content"`
	}

	reqs := make([]embedReq, len(texts))
	for i, t := range texts {
		reqs[i] = embedReq{Model: "models/" + g.model, Content: content{Parts: []part{{Text: t}}}}
	}
	body, err := json.Marshal(map[string]any{"requests": reqs})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:batchEmbedContents?key=%s", g.baseURL, g.model, g.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("api error %d: %s", resp.StatusCode, string(data))
	}

	var apiResp struct {
		Embeddings []struct {
			Values []float32 `json:"values"`
		} `json:"embeddings"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(apiResp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("got %d embeddings for %d texts", len(apiResp.Embeddings), len(texts))
	}

	vectors := make([][]float32, len(apiResp.Embeddings))
	for i, e := range apiResp.Embeddings {
		vectors[i] = e.Values
	}
	return vectors, nil
}

func (g *GeminiProvider) Dimension() int   { return GeminiDimension }
func (g *GeminiProvider) Provider() string { return ProviderGemini }

// MistralProvider embeds text through the Mistral embeddings API.
type MistralProvider struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	cache      *Cache
}

// NewMistralProvider creates a Mistral embedder.
func NewMistralProvider(apiKey string, cache *Cache) (*MistralProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: mistral api key not set", types.ErrEmbedding)
	}
	return &MistralProvider{
		apiKey:     apiKey,
		model:      DefaultMistralModel,
		baseURL:    mistralBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		cache:      cache,
	}, nil
}

func (m *MistralProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	return embedOne(ctx, m, m.cache, text)
}

func (m *MistralProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := validateBatch(texts); err != nil {
		return nil, err
	}
	vectors, err := retryWithBackoff(ctx, DefaultRetryConfig(), func() ([][]float32, error) {
		return m.callAPI(ctx, texts)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: mistral: %v", types.ErrEmbedding, err)
	}
	cacheAll(m.cache, texts, vectors)
	return vectors, nil
}

func (m *MistralProvider) callAPI(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(map[string]any{"model": m.model, "input": texts})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.apiKey)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("api error %d: %s", resp.StatusCode, string(data))
	}

	var apiResp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(apiResp.Data) != len(texts) {
		return nil, fmt.Errorf("got %d embeddings for %d texts", len(apiResp.Data), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for _, d := range apiResp.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, fmt.Errorf("embedding index %d out of range", d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}

func (m *MistralProvider) Dimension() int   { return MistralDimension }
func (m *MistralProvider) Provider() string { return ProviderMistral }

// HashProvider is a deterministic offline embedder derived from content
// hashes. It carries no semantic signal and exists for tests and for running
// without API keys.
type HashProvider struct {
	cache *Cache
}

// NewHashProvider creates a deterministic hash-based embedder.
func NewHashProvider(cache *Cache) *HashProvider {
	return &HashProvider{cache: cache}
}

func (h *HashProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text is empty", types.ErrEmbedding)
	}
	key := HashText(text)
	if h.cache != nil {
		if v, ok := h.cache.Get(key); ok {
			return v, nil
		}
	}

	vector := make([]float32, HashDimension)
	digest := sha256.Sum256([]byte(text))
	for i := 0; i < HashDimension; i++ {
		// Re-hash every 32 bytes to fill the full dimension.
		if i > 0 && i%len(digest) == 0 {
			digest = sha256.Sum256(digest[:])
		}
		vector[i] = float32(digest[i%len(digest)])/255.0 - 0.5
	}
	vector = Normalize(vector)

	if h.cache != nil {
		h.cache.Set(key, vector)
	}
	return vector, nil
}

func (h *HashProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := validateBatch(texts); err != nil {
		return nil, err
	}
	vectors := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := h.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		vectors[i] = v
	}
	return vectors, nil
}

func (h *HashProvider) Dimension() int   { return HashDimension }
func (h *HashProvider) Provider() string { return ProviderHash }

// embedOne serves single-text requests through the batch path, consulting the
// cache first.
func embedOne(ctx context.Context, e Embedder, cache *Cache, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text is empty", types.ErrEmbedding)
	}
	if cache != nil {
		if v, ok := cache.Get(HashText(text)); ok {
			return v, nil
		}
	}
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func cacheAll(cache *Cache, texts []string, vectors [][]float32) {
	if cache == nil {
		return
	}
	for i, t := range texts {
		cache.Set(HashText(t), vectors[i])
	}
}
