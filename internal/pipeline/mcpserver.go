package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/tencentyun-labs/cognigate/internal/types"
)

// NewMCPServer advertises the same four mid-stream tools (§4.9) as a
// standard MCP tool server, so an operator's external tooling can invoke
// GREP/VECTOR/SQUIRREL/EPISODIC the same way the Cognitive Pipeline does
// internally, against a caller-supplied scope. Grounded on the teacher's
// BaseTool/Execute registration style in internal/agent/tools, generalized
// from the teacher's in-process tool registry to mcp-go's tool-server
// protocol. d's Dispatch already renders results as plain text, which maps
// directly onto mcp.NewToolResultText.
func NewMCPServer(d *Dispatcher) *server.MCPServer {
	s := server.NewMCPServer("cognigate-tools", "1.0.0")

	s.AddTool(
		mcp.NewTool(string(ToolGrep),
			mcp.WithDescription("Keyword search over the caller's scoped document chunks."),
			mcp.WithString("term", mcp.Required(), mcp.Description("search term")),
			mcp.WithString("tenant_id", mcp.Required(), mcp.Description("tenant id of the caller's scope")),
			mcp.WithString("department_id", mcp.Description("optional department id to restrict the scope to")),
		),
		d.mcpHandler(ToolGrep),
	)
	s.AddTool(
		mcp.NewTool(string(ToolVector),
			mcp.WithDescription("Semantic vector search over the caller's scoped document chunks."),
			mcp.WithString("q", mcp.Required(), mcp.Description("natural-language query")),
			mcp.WithString("tenant_id", mcp.Required(), mcp.Description("tenant id of the caller's scope")),
			mcp.WithString("department_id", mcp.Description("optional department id to restrict the scope to")),
		),
		d.mcpHandler(ToolVector),
	)
	s.AddTool(
		mcp.NewTool(string(ToolSquirrel),
			mcp.WithDescription("Read-only SELECT over aggregate/shape data; rejects any scope-column reference."),
			mcp.WithString("sql", mcp.Required(), mcp.Description("a single read-only SELECT statement")),
		),
		d.mcpHandler(ToolSquirrel),
	)
	s.AddTool(
		mcp.NewTool(string(ToolEpisodic),
			mcp.WithDescription("Semantic search over the caller's scoped episodic memory."),
			mcp.WithString("q", mcp.Required(), mcp.Description("natural-language query")),
			mcp.WithString("user_id", mcp.Description("user id for consumer-mode memory scope")),
			mcp.WithString("tenant_id", mcp.Description("tenant id for enterprise-mode memory scope")),
		),
		d.mcpHandler(ToolEpisodic),
	)
	return s
}

// mcpHandler adapts an MCP tool invocation into a Dispatcher.Dispatch call,
// rebuilding the Scope from the request arguments rather than trusting a
// caller-asserted UUID blindly — the same fail-secure discipline every
// Storage Backend method already applies.
func (d *Dispatcher) mcpHandler(name ToolName) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := make(map[string]string, len(req.Params.Arguments))
		for k, v := range req.Params.Arguments {
			if s, ok := v.(string); ok {
				args[k] = s
			}
		}
		call := ToolCall{Name: name, Args: args}

		chunkScope, memoryScope, err := scopeFromArgs(args)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid scope: %v", err)), nil
		}

		result := d.Dispatch(ctx, call, chunkScope, memoryScope)
		return mcp.NewToolResultText(result), nil
	}
}

func scopeFromArgs(args map[string]string) (chunkScope, memoryScope types.Scope, err error) {
	tenantID, err := parseOptionalUUID(args["tenant_id"])
	if err != nil {
		return types.Scope{}, types.Scope{}, err
	}
	userID, err := parseOptionalUUID(args["user_id"])
	if err != nil {
		return types.Scope{}, types.Scope{}, err
	}
	if tenantID != uuid.Nil {
		var depts []string
		if d := args["department_id"]; d != "" {
			depts = []string{d}
		}
		chunkScope = types.TenantDeptScope(tenantID, depts)
		memoryScope = types.TenantScope(tenantID)
	}
	if userID != uuid.Nil {
		memoryScope = types.UserScope(userID)
	}
	return chunkScope, memoryScope, nil
}

// parseOptionalUUID returns uuid.Nil for an empty string rather than an
// error, since tenant_id/user_id are each optional depending on tenant mode.
func parseOptionalUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, nil
	}
	return uuid.Parse(s)
}
