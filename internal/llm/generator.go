package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/repochat/repochat/pkg/types"
)

// Role identifies the author of a prompt message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one prompt message.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Stream yields answer fragments in order. Recv returns done=true exactly
// once, after the final fragment.
type Stream interface {
	Recv() (delta string, done bool, err error)
	Close() error
}

// Generator produces a streamed answer for a prompt.
type Generator interface {
	Generate(ctx context.Context, messages []Message) (Stream, error)
	Model() string
}

// Config selects and configures a generation provider.
type Config struct {
	Provider      string
	GeminiAPIKey  string
	MistralAPIKey string
}

// New creates a generator from cfg. With no explicit provider the first
// configured API key wins.
func New(cfg Config) (Generator, error) {
	switch strings.ToLower(cfg.Provider) {
	case "gemini":
		return NewGemini(cfg.GeminiAPIKey)
	case "mistral":
		return NewMistral(cfg.MistralAPIKey)
	case "":
		// Auto-detect below.
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", types.ErrGeneration, cfg.Provider)
	}

	if cfg.GeminiAPIKey != "" {
		return NewGemini(cfg.GeminiAPIKey)
	}
	if cfg.MistralAPIKey != "" {
		return NewMistral(cfg.MistralAPIKey)
	}
	return nil, fmt.Errorf("%w: no generation provider configured", types.ErrGeneration)
}

// Static always answers with fixed content. Used in tests and offline runs.
type Static struct {
	Content string
}

func (s Static) Model() string { return "static" }

func (s Static) Generate(context.Context, []Message) (Stream, error) {
	return &staticStream{content: s.Content}, nil
}

// staticStream replays a fixed answer as a single fragment.
type staticStream struct {
	content string
	sent    bool
}

func (s *staticStream) Recv() (string, bool, error) {
	if s.sent {
		return "", true, nil
	}
	s.sent = true
	return s.content, false, nil
}

func (s *staticStream) Close() error { return nil }
