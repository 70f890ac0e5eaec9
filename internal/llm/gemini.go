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
	// DefaultGeminiModel generates chat answers.
	DefaultGeminiModel = "gemini-1.5-flash"

	geminiGenerateBaseURL = "https://generativelanguage.googleapis.com/v1beta"
)

// Gemini streams answers from the Google Generative Language API.
type Gemini struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// NewGemini creates a Gemini generator.
func NewGemini(apiKey string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: gemini api key not set", types.ErrGeneration)
	}
	return &Gemini{
		apiKey:     apiKey,
		model:      DefaultGeminiModel,
		baseURL:    geminiGenerateBaseURL,
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}, nil
}

// Model returns the configured model name.
func (g *Gemini) Model() string { return g.model }

// Generate opens a streamGenerateContent SSE stream for the prompt.
func (g *Gemini) Generate(ctx context.Context, messages []Message) (Stream, error) {
	type part struct {
		Text string `json:"text"`
	}
	type content struct {
		Role  string `json:"role,omitempty"`
		Parts []part `json:"parts"`
	}

	var system *content
	var contents []content
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			system = &content{Parts: []part{{Text: m.Content}}}
		case RoleAssistant:
			contents = append(contents, content{Role: "model", Parts: []part{{Text: m.Content}}})
		default:
			contents = append(contents, content{Role: "user", Parts: []part{{Text: m.Content}}})
		}
	}

	payload := map[string]any{"contents": contents}
	if system != nil {
		payload["systemInstruction"] = system
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %v", types.ErrGeneration, err)
	}

	url := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse&key=%s", g.baseURL, g.model, g.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", types.ErrGeneration, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: gemini: %v", types.ErrGeneration, err)
	}
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		return nil, fmt.Errorf("%w: gemini api error %d: %s", types.ErrGeneration, resp.StatusCode, string(data))
	}

	return &geminiStream{body: resp.Body, r: bufio.NewReader(resp.Body)}, nil
}

type geminiStream struct {
	body io.ReadCloser
	r    *bufio.Reader
}

func (s *geminiStream) Recv() (string, bool, error) {
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
		if payload == "" || payload == "[DONE]" {
			continue
		}

		var evt struct {
			Candidates []struct {
				Content struct {
					Parts []struct {
						Text string `json:"text"`
					} `json:"parts"`
				} `json:"content"`
			} `json:"candidates"`
		}
		if err := json.Unmarshal([]byte(payload), &evt); err != nil {
			continue
		}
		if len(evt.Candidates) == 0 {
			continue
		}
		var b strings.Builder
		for _, p := range evt.Candidates[0].Content.Parts {
			b.WriteString(p.Text)
		}
		return b.String(), false, nil
	}
}

func (s *geminiStream) Close() error { return s.body.Close() }
