package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/vincsso/internal/rate"
)

// RouterDeps contiene las dependencias del router.
type RouterDeps struct {
	API *API

	// AdminAPIKey protege /v1/admin. Vacío = superficie admin cerrada.
	AdminAPIKey string

	CORSAllowedOrigins []string

	// Limiters opcionales por endpoint (nil = sin límite).
	AuthorizeLimiter rate.Limiter
	TokenLimiter     rate.Limiter

	// Ready pingea las dependencias para /readyz (nil = siempre listo).
	Ready func(ctx context.Context) error

	// Metrics es el handler de Prometheus (nil = sin /metrics).
	Metrics http.Handler
}

// NewRouter arma el árbol de rutas completo.
func NewRouter(d RouterDeps) http.Handler {
	api := d.API

	r := chi.NewRouter()
	r.Use(WithRequestID, WithRecover, WithSecurityHeaders)
	if len(d.CORSAllowedOrigins) > 0 {
		r.Use(WithCORS(d.CORSAllowedOrigins))
	}
	r.Use(WithLogging)

	r.Get("/healthz", Healthz)
	r.Get("/readyz", Readyz(d.Ready))
	r.Get("/.well-known/jwks.json", api.JWKS)
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(WithRateLimit(d.AuthorizeLimiter))
		r.Get("/oauth2/authorize", api.Authorize)
	})
	r.Group(func(r chi.Router) {
		r.Use(WithRateLimit(d.TokenLimiter))
		r.Post("/oauth2/token", api.Token)
	})

	r.Post("/v1/sessions/validate", api.ValidateSession)

	// El login UI (server a server) deposita acá la identidad autenticada
	// que /oauth2/authorize canjea vía el parámetro ticket.
	r.Group(func(r chi.Router) {
		r.Use(RequireAdminKey(d.AdminAPIKey))
		r.Post("/v1/tickets", api.MintTicket)
	})

	r.Route("/v1/admin", func(r chi.Router) {
		r.Use(RequireAdminKey(d.AdminAPIKey))

		r.Route("/tenants/{tenant}", func(r chi.Router) {
			r.Get("/sessions", api.AdminListSessions)
			r.Get("/sessions/stats", api.AdminSessionStats)
			r.Delete("/sessions/{sid}", api.AdminRevokeSession)
			r.Post("/users/{uid}/revoke-all", api.AdminRevokeUserSessions)

			r.Get("/security-policy", api.AdminGetPolicy)
			r.Put("/security-policy", api.AdminUpdatePolicy)

			r.Get("/clients", api.AdminListClients)
			r.Post("/clients", api.AdminRegisterClient)
		})

		r.Get("/ipblocks", api.AdminListIPBlocks)
		r.Post("/ipblocks", api.AdminBlockIP)
		r.Delete("/ipblocks", api.AdminUnblockIP)
	})

	return r
}
