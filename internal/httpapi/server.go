// Package httpapi implements the localhost-only HTTP surface: batch
// lifecycle, document/finding queries, aggregate stats, and report
// metadata. It depends only on internal/query (reads) and internal/batch
// (writes), never on internal/store directly for anything but the reports
// metadata contract, which has no dedicated package.
package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/redactqc/redactqc/internal/query"
	"github.com/redactqc/redactqc/internal/store"
)

// Server holds the HTTP server and its handler dependencies.
type Server struct {
	addr string
	srv  *http.Server
}

// New wires all §6 routes and returns a Server ready to Run. addr must be a
// 127.0.0.1 address; the core never binds to a non-loopback interface.
func New(addr string, st *store.Store, q *query.API, mgr scanStarter) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	batchesH := &BatchesHandler{Query: q, Manager: mgr}
	docsH := &DocumentsHandler{Query: q}
	statsH := &StatsHandler{Query: q}
	reportsH := &ReportsHandler{Store: st, Query: q}

	r.Route("/api", func(r chi.Router) {
		r.Post("/scan", batchesH.Create)
		r.Get("/batches", batchesH.List)
		r.Get("/batches/{id}", batchesH.Get)
		r.Delete("/batches/{id}", batchesH.Delete)
		r.Get("/batches/{id}/documents", batchesH.ListDocuments)

		r.Get("/documents/{id}", docsH.Get)
		r.Get("/documents/{id}/findings", docsH.ListFindings)

		r.Get("/stats", statsH.Get)
		r.Get("/pii-types", statsH.PIITypes)

		r.Post("/reports/generate", reportsH.Generate)
		r.Get("/reports/{id}/download", reportsH.Download)
	})

	return &Server{
		addr: addr,
		srv:  &http.Server{Addr: addr, Handler: r},
	}
}

// Run starts the HTTP server and blocks until ctx is cancelled. It refuses
// to listen when addr's host is not 127.0.0.1.
func (s *Server) Run(ctx context.Context) error {
	host, _, err := net.SplitHostPort(s.addr)
	if err != nil {
		return fmt.Errorf("httpapi: invalid listen address %q: %w", s.addr, err)
	}
	if host != "127.0.0.1" {
		return fmt.Errorf("httpapi: refusing non-loopback listen address %q", s.addr)
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("httpapi: listening", "addr", s.addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("httpapi: shutting down")
		return s.srv.Shutdown(context.Background())
	case err := <-errCh:
		return err
	}
}
