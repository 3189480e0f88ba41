package httpapi

import (
	"context"
	"net/http"
	"time"
)

// Healthz responde vivo sin tocar dependencias.
func Healthz(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz chequea las dependencias con un timeout corto. check es
// inyectado por el wiring (ping a pg + cache); nil significa "siempre
// listo" (modo memoria).
func Readyz(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				WriteError(w, http.StatusServiceUnavailable, "not_ready", err.Error(), codeInternal)
				return
			}
		}
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

// JWKS expone la clave pública de verificación en formato JWK Set.
func (a *API) JWKS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=300")
	_, _ = w.Write(a.Issuer.Keys.JWKSJSON())
}
