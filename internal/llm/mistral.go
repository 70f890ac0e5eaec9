package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/repochat/repochat/pkg/types"
)

const (
	// DefaultMistralModel generates chat answers.
	DefaultMistralModel = "mistral-small-latest"

	mistralChatBaseURL = "https://api.mistral.ai/v1"
)

// Mistral streams answers from the Mistral chat completions API.
type Mistral struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// NewMistral creates a Mistral generator.
func NewMistral(apiKey string) (*Mistral, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: mistral api key not set", types.ErrGeneration)
	}
	return &Mistral{
		apiKey:     apiKey,
		model:      DefaultMistralModel,
		baseURL:    mistralChatBaseURL,
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}, nil
}

// Model returns the configured model name.
func (m *Mistral) Model() string { return m.model }

// Generate opens a chat completions SSE stream for the prompt.
func (m *Mistral) Generate(ctx context.Context, messages []Message) (Stream, error) {
	body, err := json.Marshal(map[string]any{
		"model":    m.model,
		"messages": messages,
		"stream":   true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %v", types.ErrGeneration, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", types.ErrGeneration, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.apiKey)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: mistral: %v", types.ErrGeneration, err)
	}
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		return nil, fmt.Errorf("%w: mistral api error %d: %s", types.ErrGeneration, resp.StatusCode, string(data))
	}

	return &mistralStream{body: resp.Body, r: bufio.NewReader(resp.Body)}, nil
}

type mistralStream struct {
	body io.ReadCloser
	r    *bufio.Reader
}

func (s *mistralStream) Recv() (string, bool, error) {
	for {
		line, err := s.r.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", true, nil
			}
			return "", true, fmt.Errorf("%w: %v", types.ErrGeneration, err)
		}
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			return "", true, nil
		}

		var evt struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
			} `json:"choices"`
		}
		if err := json.Unmarshal([]byte(payload), &evt); err != nil {
			continue
		}
		if len(evt.Choices) == 0 {
			continue
		}
		return evt.Choices[0].Delta.Content, false, nil
	}
}

func (s *mistralStream) Close() error { return s.body.Close() }
