package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// registerTools registers all MCP tools on the server.
func (s *Server) registerTools() {
	s.mcpServer.AddTools(
		s.getWorkflowStatusTool(),
		s.listPendingConfirmationsTool(),
		s.getCreditSummaryTool(),
	)
}

func (s *Server) getWorkflowStatusTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("get_workflow_status",
		mcplib.WithDescription("Get the workflow state for a session: status, plan progress, results and any pending confirmation"),
		mcplib.WithString("session_id",
			mcplib.Required(),
			mcplib.Description("The session ID to look up"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleGetWorkflowStatus,
	}
}

func (s *Server) listPendingConfirmationsTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("list_pending_confirmations",
		mcplib.WithDescription("List workflows suspended on a user confirmation, oldest first"),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleListPendingConfirmations,
	}
}

func (s *Server) getCreditSummaryTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("get_credit_summary",
		mcplib.WithDescription("Get the aggregated credit journal for a session"),
		mcplib.WithString("session_id",
			mcplib.Required(),
			mcplib.Description("The session ID to summarize"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleGetCreditSummary,
	}
}

func (s *Server) handleGetWorkflowStatus(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Workflows == nil {
		return mcplib.NewToolResultError("workflow reader not configured"), nil
	}
	args := req.GetArguments()
	sessionID, ok := args["session_id"].(string)
	if !ok || sessionID == "" {
		return mcplib.NewToolResultError("session_id is required"), nil
	}
	st, err := s.deps.Workflows.Get(ctx, sessionID)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(
			fmt.Sprintf("failed to get workflow %s", sessionID), err,
		), nil
	}
	data, err := json.Marshal(st)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal workflow", err), nil
	}
	return toolResultJSON(string(data)), nil
}

func (s *Server) handleListPendingConfirmations(ctx context.Context, _ mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Workflows == nil {
		return mcplib.NewToolResultError("workflow reader not configured"), nil
	}
	states, err := s.deps.Workflows.ListSuspended(ctx, 100)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to list pending confirmations", err), nil
	}
	data, err := json.Marshal(states)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal workflows", err), nil
	}
	return toolResultJSON(string(data)), nil
}

func (s *Server) handleGetCreditSummary(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Credits == nil {
		return mcplib.NewToolResultError("credit reader not configured"), nil
	}
	args := req.GetArguments()
	sessionID, ok := args["session_id"].(string)
	if !ok || sessionID == "" {
		return mcplib.NewToolResultError("session_id is required"), nil
	}
	summary, err := s.deps.Credits.Summary(ctx, sessionID)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(
			fmt.Sprintf("failed to summarize credits for %s", sessionID), err,
		), nil
	}
	data, err := json.Marshal(summary)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal summary", err), nil
	}
	return toolResultJSON(string(data)), nil
}

func toolResultJSON(text string) *mcplib.CallToolResult {
	return mcplib.NewToolResultText(text)
}
