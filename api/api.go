package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/papercomputeco/truthstore/pkg/ledger"
)

// OwnerHeader carries the owner scope of every request.
const OwnerHeader = "X-Owner-Scope"

// Server is the API server for the truth store.
type Server struct {
	config Config
	ledger *ledger.Ledger
	logger *slog.Logger
	app    *fiber.App
}

// NewServer creates a new API server.
// The ledger is injected so the serve command can share it with background
// work such as the schema watcher.
func NewServer(config Config, l *ledger.Ledger, logger *slog.Logger) (*Server, error) {
	if l == nil {
		return nil, errors.New("ledger is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		// Relationship keys are "type:source:target" and may arrive escaped.
		UnescapePath: true,
	})

	s := &Server{
		config: config,
		ledger: l,
		logger: logger,
		app:    app,
	}

	app.Get("/ping", s.handlePing)
	app.Get("/version", s.handleVersion)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	if config.MCPHandler != nil {
		app.All("/mcp", adaptor.HTTPHandler(config.MCPHandler))
	}

	v1 := app.Group("/v1")

	v1.Post("/observations", s.handleSubmitObservation)
	v1.Post("/corrections", s.handleRequestCorrection)

	v1.Get("/snapshots", s.handleListSnapshots)
	v1.Get("/snapshots/:key", s.handleGetSnapshot)
	v1.Delete("/snapshots/:key", s.handleSoftDelete)
	v1.Post("/snapshots/:key/restore", s.handleRestore)
	v1.Post("/snapshots/:key/recompute", s.handleRecompute)
	v1.Get("/snapshots/:key/provenance/:field", s.handleGetProvenance)
	v1.Get("/snapshots/:key/history", s.handleHistory)
	v1.Get("/snapshots/:key/fragments", s.handleFragments)

	v1.Post("/merges", s.handleMerge)
	v1.Get("/entities/:key/relationships", s.handleListRelationships)

	v1.Post("/schemas", s.handleRegisterSchema)
	v1.Get("/schemas/:type", s.handleListSchemas)
	v1.Patch("/schemas/:type", s.handleUpdateSchema)
	v1.Post("/schemas/:type/:version/activate", s.handleActivateSchema)
	v1.Post("/schemas/:type/:version/deactivate", s.handleDeactivateSchema)

	return s, nil
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server",
		"listen", s.config.ListenAddr,
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Handler exposes the routes as a net/http handler.
func (s *Server) Handler() http.HandlerFunc {
	return adaptor.FiberApp(s.app)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
