package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dropDatabas3/vincsso/internal/sso"
)

type mintTicketRequest struct {
	TenantID    string          `json:"tenant_id"`
	UserID      string          `json:"user_id"`
	Email       string          `json:"email"`
	Role        string          `json:"role"`
	CompanyName string          `json:"company_name"`
	Profile     json.RawMessage `json:"profile"`
}

// MintTicket implementa POST /v1/tickets. Lo llama el login UI (server a
// server, autenticado con la X-Admin-API-Key) después de verificar las
// credenciales; el ticket resultante viaja al browser en el redirect a
// /oauth2/authorize. El valor crudo sale en esta respuesta y nunca más.
func (a *API) MintTicket(w http.ResponseWriter, r *http.Request) {
	var req mintTicketRequest
	if !ReadJSON(w, r, &req) {
		return
	}

	raw, err := a.Tickets.Mint(r.Context(), sso.LoginTicket{
		TenantID:    req.TenantID,
		UserID:      req.UserID,
		Email:       req.Email,
		Role:        req.Role,
		CompanyName: req.CompanyName,
		Profile:     req.Profile,
	})
	if err != nil {
		if errors.Is(err, sso.ErrInvalidTicket) {
			WriteError(w, http.StatusBadRequest, "invalid_request", "tenant_id, user_id y email son requeridos", codeInvalidRequest)
			return
		}
		WriteError(w, http.StatusInternalServerError, "internal_error", "error acuñando ticket", codeInternal)
		return
	}

	WriteJSON(w, http.StatusCreated, map[string]any{
		"ticket":     raw,
		"expires_in": int64(sso.TicketTTL.Seconds()),
	})
}
