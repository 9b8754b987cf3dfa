package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ramonehamilton/cardvault/internal/api/handlers"
	"github.com/ramonehamilton/cardvault/internal/api/response"
	"github.com/ramonehamilton/cardvault/internal/version"
)

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.healthCheck)

	// WebSocket endpoint (no JSON content-type requirement)
	s.router.Get("/ws", s.wsHub.ServeWs)

	s.router.Route("/api/v1/users/{userID}", func(r chi.Router) {
		cardHandler := handlers.NewCardHandler(s.services.Registry, s.services.Collection, s.services.Engine)
		r.Route("/cards", func(r chi.Router) {
			r.Get("/", cardHandler.ListCards)
			r.Post("/", cardHandler.AddCard)
			r.Get("/summary", cardHandler.Summary)
			r.Get("/{cardID}", cardHandler.GetCard)
			r.Patch("/{cardID}", cardHandler.UpdateCard)
			r.Delete("/{cardID}", cardHandler.DeleteCard)
			r.Get("/{cardID}/availability", cardHandler.Availability)
		})

		deckHandler := handlers.NewDeckHandler(s.services.Registry, s.services.Decks)
		r.Route("/decks", func(r chi.Router) {
			containerRoutes(r, deckHandler.ContainerHandler)
			r.Post("/{containerID}/migrate-wishlist", deckHandler.MigrateWishlist)
		})

		binderHandler := handlers.NewContainerHandler(s.services.Registry, s.services.Binders.Store)
		r.Route("/binders", func(r chi.Router) {
			containerRoutes(r, binderHandler)
		})
	})
}

// containerRoutes mounts the endpoints decks and binders share.
func containerRoutes(r chi.Router, h *handlers.ContainerHandler) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{containerID}", h.Get)
	r.Put("/{containerID}", h.Update)
	r.Delete("/{containerID}", h.Delete)
	r.Get("/{containerID}/stats", h.Stats)
	r.Get("/{containerID}/cards", h.Cards)
	r.Post("/{containerID}/allocations", h.Allocate)
	r.Put("/{containerID}/allocations/{cardID}", h.UpdateAllocation)
	r.Delete("/{containerID}/allocations/{cardID}", h.Deallocate)
}

// healthCheck returns server health status.
func (s *Server) healthCheck(w http.ResponseWriter, _ *http.Request) {
	response.JSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": "cardvault-api",
		"version": version.Version,
		"clients": s.wsHub.ClientCount(),
	})
}
