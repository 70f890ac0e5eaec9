package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// MCPServer bridges tool registries onto the MCP stdio protocol so editor
// agents can call them directly.
type MCPServer struct {
	mcp *server.MCPServer
}

// NewMCPServer creates a stdio MCP server exposing every tool of the given
// registries.
func NewMCPServer(name, version string, registries ...*Registry) *MCPServer {
	s := &MCPServer{mcp: server.NewMCPServer(name, version)}
	for _, r := range registries {
		s.addRegistry(r)
	}
	return s
}

// Serve runs the server on stdio and blocks until the client disconnects.
func (s *MCPServer) Serve(ctx context.Context) error {
	return server.ServeStdio(s.mcp)
}

func (s *MCPServer) addRegistry(r *Registry) {
	for _, desc := range r.List() {
		s.mcp.AddTool(toMCPTool(desc), makeHandler(r, desc.Name))
	}
}

// toMCPTool converts a descriptor to the MCP tool schema.
func toMCPTool(desc Descriptor) mcp.Tool {
	properties := make(map[string]interface{}, len(desc.Params))
	var required []string
	for _, p := range desc.Params {
		prop := map[string]interface{}{
			"type":        string(p.Type),
			"description": p.Description,
		}
		if p.Type == ParamArray {
			prop["items"] = map[string]interface{}{"type": "string"}
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return mcp.Tool{
		Name:        desc.Name,
		Description: desc.Description,
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: properties,
			Required:   required,
		},
	}
}

func makeHandler(r *Registry, name string) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := request.Params.Arguments.(map[string]interface{})
		result, err := r.Call(ctx, name, args)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		text, err := renderResult(result)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(text), nil
	}
}
