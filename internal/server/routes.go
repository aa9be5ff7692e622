package server

import (
	"github.com/go-chi/chi/v5"
)

// routes registers all API routes on the router.
func (s *Server) routes(r chi.Router) {
	h := &handlers{store: s.store, engine: s.engine, udfs: s.udfs, logger: s.logger}

	r.Get("/healthz", h.health)

	r.Route("/api", func(r chi.Router) {
		r.Route("/workspaces", func(r chi.Router) {
			r.Post("/", h.createWorkspace)
			r.Get("/", h.listWorkspaces)
			r.Route("/{workspaceID}", func(r chi.Router) {
				r.Get("/", h.getWorkspace)
				r.Delete("/", h.deleteWorkspace)
				r.Post("/tables", h.createTable)
				r.Get("/tables", h.listTables)
			})
		})

		r.Route("/tables/{tableID}", func(r chi.Router) {
			r.Get("/", h.getTable)
			r.Delete("/", h.deleteTable)
			r.Post("/columns", h.createColumn)
			r.Get("/columns", h.listColumns)
			r.Post("/rows", h.createRow)
			r.Get("/rows", h.listRows)
			r.Post("/cells", h.updateCells)
			r.Post("/propagate", h.propagate)
			r.Post("/eval", h.evalFormula)
		})

		r.Route("/columns/{columnID}", func(r chi.Router) {
			r.Delete("/", h.deleteColumn)
			r.Patch("/formula", h.setColumnFormula)
			r.Delete("/formula", h.clearColumnFormula)
		})

		r.Route("/rows/{rowID}", func(r chi.Router) {
			r.Get("/", h.getRowSnapshot)
			r.Delete("/", h.deleteRow)
		})

		r.Get("/functions", h.listFunctions)
	})
}
