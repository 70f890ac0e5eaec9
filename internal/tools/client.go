package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/repochat/repochat/pkg/types"
)

// Client multiplexes tool calls across named servers and normalizes results
// to text for prompt assembly.
type Client struct {
	mu      sync.RWMutex
	servers map[string]*Registry
}

// NewClient creates an empty client.
func NewClient() *Client {
	return &Client{servers: make(map[string]*Registry)}
}

// AddServer registers a named server.
func (c *Client) AddServer(name string, r *Registry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.servers[name] = r
}

// Servers returns the registered server names, sorted.
func (c *Client) Servers() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.servers))
	for name := range c.servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ListTools returns the descriptors of a server.
func (c *Client) ListTools(server string) ([]Descriptor, error) {
	c.mu.RLock()
	r, ok := c.servers[server]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: unknown server %s", types.ErrToolNotFound, server)
	}
	return r.List(), nil
}

// Call invokes a tool on a server and renders its result as text. String
// results pass through; everything else is JSON-encoded.
func (c *Client) Call(ctx context.Context, server, tool string, args map[string]any) (string, error) {
	c.mu.RLock()
	r, ok := c.servers[server]
	c.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: unknown server %s", types.ErrToolNotFound, server)
	}

	result, err := r.Call(ctx, tool, args)
	if err != nil {
		return "", err
	}
	return renderResult(result)
}

func renderResult(result any) (string, error) {
	if s, ok := result.(string); ok {
		return s, nil
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode tool result: %w", err)
	}
	return string(data), nil
}
