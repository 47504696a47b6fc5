package httpapi

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// NewRouter creates the registry router with all routes configured.
func NewRouter(h *Handler, log *zap.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger(log))
	r.Use(chimw.Recoverer)

	r.Get("/health", h.HandleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/identities", h.HandleRegisterIdentity)
		r.Get("/identities", h.HandleListIdentities)
		r.Get("/identities/{identityPublicKey}", h.HandleGetIdentity)
		r.Post("/fid-links", h.HandleLinkFid)
		r.Get("/fid-links", h.HandleLookupFids)
	})

	return r
}
