// Package apitest starts an in-memory truthstore API server for tests of
// packages that talk to it over HTTP.
package apitest

import (
	"net/http/httptest"

	"github.com/papercomputeco/truthstore/api"
	"github.com/papercomputeco/truthstore/pkg/ledger"
	"github.com/papercomputeco/truthstore/pkg/logger"
	"github.com/papercomputeco/truthstore/pkg/storage/inmemory"
)

// Server is a running test server and the ledger behind it.
type Server struct {
	*httptest.Server
	Ledger *ledger.Ledger
}

// NewServer starts a server over an empty in-memory store.
func NewServer() (*Server, error) {
	l, err := ledger.New(&ledger.Config{Driver: inmemory.NewDriver(), Logger: logger.Nop()})
	if err != nil {
		return nil, err
	}

	s, err := api.NewServer(api.Config{ListenAddr: ":0"}, l, logger.Nop())
	if err != nil {
		l.Close()
		return nil, err
	}

	return &Server{
		Server: httptest.NewServer(s.Handler()),
		Ledger: l,
	}, nil
}

// Close stops the server and the ledger.
func (s *Server) Close() {
	s.Server.Close()
	s.Ledger.Close()
}
