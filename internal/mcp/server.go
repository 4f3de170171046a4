// Package mcp exposes the tool catalog over the Model Context Protocol
// so external agents can drive the same catalog the assistant uses. All
// calls go through the executor, so schema validation, the destructive
// confirmation gate, timeouts and the retry policy apply to MCP clients
// exactly as they do to chat turns.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/novaops/nova/internal/executor"
	"github.com/novaops/nova/internal/router"
	"github.com/novaops/nova/internal/tool"
)

// Server bridges the frozen tool registry to an MCP server.
type Server struct {
	mcpServer *mcp.Server
	registry  *tool.Registry
	executor  *executor.Executor
	logger    *slog.Logger
}

// Config wires an MCP server.
type Config struct {
	Name     string
	Version  string
	Registry *tool.Registry
	Executor *executor.Executor
	Logger   *slog.Logger
}

// NewServer creates an MCP server exposing every tool in the registry.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("server name is required")
	}
	if cfg.Version == "" {
		return nil, fmt.Errorf("server version is required")
	}
	if cfg.Registry == nil || !cfg.Registry.Frozen() {
		return nil, fmt.Errorf("a frozen registry is required")
	}
	if cfg.Executor == nil {
		return nil, fmt.Errorf("an executor is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	s := &Server{
		mcpServer: mcp.NewServer(&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		}, nil),
		registry: cfg.Registry,
		executor: cfg.Executor,
		logger:   logger,
	}
	s.registerTools()
	return s, nil
}

// Run serves the MCP protocol on the given transport. Blocks until the
// context is canceled or the transport closes.
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	return s.mcpServer.Run(ctx, transport)
}

// registerTools registers one MCP tool per catalog descriptor. The
// descriptor's own input schema is reused; destructive tools get an
// extra confirm flag so a client must opt in before anything is
// deleted.
func (s *Server) registerTools() {
	for _, desc := range s.registry.All() {
		schema := desc.InputSchema
		if desc.Destructive {
			schema = withConfirm(schema)
		}
		mcp.AddTool(s.mcpServer, &mcp.Tool{
			Name:        desc.Name,
			Description: desc.Description,
			InputSchema: schema,
		}, func(ctx context.Context, req *mcp.CallToolRequest, args map[string]any) (*mcp.CallToolResult, any, error) {
			return s.invoke(ctx, desc, args)
		})
	}
}

// withConfirm returns a copy of an object schema extended with a
// boolean confirm property. The original descriptor schema stays
// untouched; it is shared with the executor's validation path.
func withConfirm(in *jsonschema.Schema) *jsonschema.Schema {
	props := make(map[string]*jsonschema.Schema, len(in.Properties)+1)
	for name, p := range in.Properties {
		props[name] = p
	}
	props["confirm"] = &jsonschema.Schema{
		Type:        "boolean",
		Description: "Must be true to actually perform this destructive operation",
	}
	out := &jsonschema.Schema{
		Type:       in.Type,
		Properties: props,
		Required:   append([]string(nil), in.Required...),
	}
	return out
}

// invoke runs one tool call through the executor.
func (s *Server) invoke(ctx context.Context, desc *tool.Descriptor, args map[string]any) (*mcp.CallToolResult, any, error) {
	if args == nil {
		args = map[string]any{}
	}
	confirmed, _ := args["confirm"].(bool)
	delete(args, "confirm")

	decision := &router.Decision{
		Class: desc.Class,
		Steps: []router.Step{{Tool: desc.Name, Args: args}},
	}
	invs := s.executor.ExecutePlan(ctx, decision, confirmed)
	if len(invs) == 0 {
		return nil, nil, fmt.Errorf("no invocation result for %s", desc.Name)
	}
	inv := invs[len(invs)-1]

	s.logger.Debug("mcp tool call",
		slog.String("tool", inv.Tool),
		slog.String("status", string(inv.Status)),
		slog.Duration("latency", inv.Latency))

	switch inv.Status {
	case executor.StatusSuccess:
		return resultToMCP(inv.Result, s.logger), nil, nil
	case executor.StatusConfirmationRequired:
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{
				Text: fmt.Sprintf("%s is destructive and was not executed. Call it again with \"confirm\": true to proceed.", desc.Name),
			}},
		}, nil, nil
	default:
		text := fmt.Sprintf("[%s] %s", inv.ErrorKind, inv.ErrorDetail)
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: text}},
			IsError: true,
		}, nil, nil
	}
}

// resultToMCP renders a normalized tool result as JSON text content.
// All data becomes JSON; clients parse it.
func resultToMCP(res *executor.Result, logger *slog.Logger) *mcp.CallToolResult {
	if res == nil {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: ""}},
		}
	}
	b, err := json.Marshal(res)
	if err != nil {
		logger.Warn("marshaling tool result", slog.Any("error", err))
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: "internal marshal error"}},
			IsError: true,
		}
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(b)}},
	}
}
