// Package mcp provides an MCP (Model Context Protocol) server exposing the
// truth store to agents: snapshot and provenance reads, observation
// submission and corrections.
package mcp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/truthstore/pkg/ledger"
	"github.com/papercomputeco/truthstore/pkg/utils"
)

type Config struct {
	// Ledger serves every tool.
	Ledger *ledger.Ledger

	// Noop for empty MCP server
	Noop bool

	// Logger is the configured slog logger
	Logger *slog.Logger
}

type Server struct {
	config    Config
	mcpServer *mcp.Server
	handler   *mcp.StreamableHTTPHandler
}

// NewServer creates a new MCP server with the truth store tools.
func NewServer(c Config) (*Server, error) {
	s := &Server{
		config: c,
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "truthstore",
			Version: utils.Version,
		},
		&mcp.ServerOptions{},
	)

	if !c.Noop {
		if c.Ledger == nil {
			return nil, errors.New("ledger is required")
		}
		if c.Logger == nil {
			return nil, errors.New("logger is required")
		}

		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        getSnapshotToolName,
			Description: getSnapshotDescription,
		}, s.handleGetSnapshot)

		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        getProvenanceToolName,
			Description: getProvenanceDescription,
		}, s.handleGetProvenance)

		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        submitObservationToolName,
			Description: submitObservationDescription,
		}, s.handleSubmitObservation)

		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        requestCorrectionToolName,
			Description: requestCorrectionDescription,
		}, s.handleRequestCorrection)
	}

	s.mcpServer = mcpServer

	// Create a streamable HTTP net/http handler for stateless operations
	s.handler = mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server {
			return mcpServer
		},
		&mcp.StreamableHTTPOptions{
			Stateless: true,
		},
	)

	return s, nil
}

// Handler returns the HTTP handler for the MCP server.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Connect serves the tools over t, for stdio and in-process clients.
func (s *Server) Connect(ctx context.Context, t mcp.Transport) (*mcp.ServerSession, error) {
	return s.mcpServer.Connect(ctx, t, nil)
}
