package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/vincsso/internal/domain/repository"
	"github.com/dropDatabas3/vincsso/internal/sso"
)

// validateRequest es el body de POST /v1/sessions/validate.
type validateRequest struct {
	SessionID string `json:"session_id"`
}

// validateResponse sigue el estilo de introspección: siempre 200, el
// campo active decide. Así el caller server-to-server no confunde "la
// sesión murió" con "el endpoint falló".
type validateResponse struct {
	Active  bool         `json:"active"`
	Reason  string       `json:"reason,omitempty"`
	Session *sessionView `json:"session,omitempty"`
}

// ValidateSession implementa POST /v1/sessions/validate. Recibe el
// session id CRUDO que guarda el client; la resolución es por hash.
func (a *API) ValidateSession(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if !ReadJSON(w, r, &req) {
		return
	}
	if req.SessionID == "" {
		WriteError(w, http.StatusBadRequest, "invalid_request", "session_id requerido", codeInvalidRequest)
		return
	}

	s, err := a.Sessions.Validate(r.Context(), req.SessionID)
	if err != nil {
		reason := ""
		switch {
		case errors.Is(err, sso.ErrSessionNotFound):
			reason = "not_found"
		case errors.Is(err, sso.ErrSessionExpired):
			reason = "expired"
		case errors.Is(err, sso.ErrSessionRevoked):
			reason = "revoked"
		default:
			WriteError(w, http.StatusInternalServerError, "internal_error", "error validando sesión", codeInternal)
			return
		}
		WriteJSON(w, http.StatusOK, validateResponse{Active: false, Reason: reason})
		return
	}

	v := toSessionView(s, true)
	WriteJSON(w, http.StatusOK, validateResponse{Active: true, Session: &v})
}

// ─────────────── Admin: sesiones ───────────────

// AdminListSessions implementa GET /v1/admin/tenants/{tenant}/sessions.
func (a *API) AdminListSessions(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenant")
	q := r.URL.Query()

	filter := repository.ListSessionsFilter{
		Page:     parseIntDefault(q.Get("page"), 1),
		PageSize: parseIntDefault(q.Get("page_size"), 50),
	}
	if v := q.Get("user_id"); v != "" {
		filter.UserID = &v
	}
	if v := q.Get("status"); v != "" {
		filter.Status = &v
	}
	if v := q.Get("device_type"); v != "" {
		filter.DeviceType = &v
	}
	if v := q.Get("client_app"); v != "" {
		app := repository.ClientApp(v)
		if !app.Valid() {
			WriteError(w, http.StatusBadRequest, "invalid_request", "client_app desconocida", codeInvalidRequest)
			return
		}
		filter.ClientApp = &app
	}
	if v := q.Get("search"); v != "" {
		filter.Search = &v
	}

	sessions, total, err := a.Sessions.List(r.Context(), tenantID, filter)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "internal_error", "error listando sesiones", codeInternal)
		return
	}

	views := make([]sessionView, 0, len(sessions))
	for i := range sessions {
		views = append(views, toSessionView(&sessions[i], false))
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"sessions":  views,
		"total":     total,
		"page":      filter.Page,
		"page_size": filter.PageSize,
	})
}

// AdminSessionStats implementa GET /v1/admin/tenants/{tenant}/sessions/stats.
func (a *API) AdminSessionStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.Sessions.Stats(r.Context(), chi.URLParam(r, "tenant"))
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "internal_error", "error calculando stats", codeInternal)
		return
	}
	byDevice := make(map[string]int, len(stats.ByDevice))
	for _, d := range stats.ByDevice {
		byDevice[d.DeviceType] = d.Count
	}
	byCountry := make(map[string]int, len(stats.ByCountry))
	for _, c := range stats.ByCountry {
		byCountry[c.Country] = c.Count
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"total_active": stats.TotalActive,
		"total_today":  stats.TotalToday,
		"by_device":    byDevice,
		"by_country":   byCountry,
	})
}

// AdminRevokeSession implementa DELETE /v1/admin/tenants/{tenant}/sessions/{sid}.
// sid es el HASH del session id (lo único que la superficie admin ve).
// Idempotente: revocar dos veces también responde 200.
func (a *API) AdminRevokeSession(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenant")
	sid := chi.URLParam(r, "sid")
	err := a.Sessions.RevokeForTenant(r.Context(), tenantID, sid, "admin", "admin_revoked")
	if err != nil {
		if errors.Is(err, sso.ErrSessionNotFound) {
			WriteError(w, http.StatusNotFound, "not_found", "sesión desconocida", codeSessionNotFound)
			return
		}
		WriteError(w, http.StatusInternalServerError, "internal_error", "error revocando sesión", codeInternal)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"revoked": true})
}

// AdminRevokeUserSessions implementa
// POST /v1/admin/tenants/{tenant}/users/{uid}/revoke-all.
func (a *API) AdminRevokeUserSessions(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenant")
	userID := chi.URLParam(r, "uid")

	n, err := a.Sessions.RevokeAllByUser(r.Context(), tenantID, userID, "admin", "admin_revoked")
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "internal_error", "error revocando sesiones", codeInternal)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"revoked": n})
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
