// Package mcp exposes a read-only Model Context Protocol server for
// operator tooling: workflow status, pending confirmations and credit
// summaries. No MCP tool mutates state.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/zhuermu/zmead-sub004/internal/config"
	"github.com/zhuermu/zmead-sub004/internal/domain/credit"
	"github.com/zhuermu/zmead-sub004/internal/domain/workflow"
)

// WorkflowReader reads persisted workflow state.
type WorkflowReader interface {
	Get(ctx context.Context, sessionID string) (*workflow.State, error)
	ListSuspended(ctx context.Context, limit int) ([]workflow.State, error)
}

// CreditReader reads the credit journal.
type CreditReader interface {
	Summary(ctx context.Context, sessionID string) (credit.Summary, error)
}

// Deps holds the read-only dependencies the MCP tools serve from.
type Deps struct {
	Workflows WorkflowReader
	Credits   CreditReader
}

// Server hosts the MCP tools over streamable HTTP.
type Server struct {
	mcpServer  *mcpserver.MCPServer
	httpServer *http.Server
	deps       Deps
	addr       string
	apiKey     string
}

// NewServer creates the MCP server and registers its tools.
func NewServer(cfg config.MCP, deps Deps) *Server {
	s := &Server{
		mcpServer: mcpserver.NewMCPServer("zmead-core", "0.1.0",
			mcpserver.WithToolCapabilities(false),
		),
		deps:   deps,
		addr:   cfg.Addr,
		apiKey: cfg.APIKey,
	}
	s.registerTools()
	return s
}

// MCPServer returns the underlying MCP server, mainly for tests.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

// Start binds the listener and serves MCP over HTTP in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("mcp listen %s: %w", s.addr, err)
	}

	handler := AuthMiddleware(s.apiKey, mcpserver.NewStreamableHTTPServer(s.mcpServer))
	s.httpServer = &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("mcp server listening", "addr", ln.Addr().String())
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("mcp server", "error", err)
		}
	}()
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
