package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/vincsso/internal/domain/repository"
	"github.com/dropDatabas3/vincsso/internal/sso"
)

// ─────────────── Admin: IP blocks ───────────────

// AdminListIPBlocks implementa GET /v1/admin/ipblocks.
func (a *API) AdminListIPBlocks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.ListBlockedIPsFilter{
		OnlyActive: q.Get("active") != "false",
		Page:       parseIntDefault(q.Get("page"), 1),
		PageSize:   parseIntDefault(q.Get("page_size"), 50),
	}
	if v := q.Get("tenant_id"); v != "" {
		filter.TenantID = &v
	}

	blocks, total, err := a.IPBlocks.List(r.Context(), filter)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "internal_error", "error listando bloqueos", codeInternal)
		return
	}
	views := make([]blockedIPView, 0, len(blocks))
	for i := range blocks {
		views = append(views, toBlockedIPView(&blocks[i]))
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"blocks":    views,
		"total":     total,
		"page":      filter.Page,
		"page_size": filter.PageSize,
	})
}

type blockIPRequest struct {
	IPAddress     string `json:"ip_address"`
	TenantID      string `json:"tenant_id"` // vacío = bloqueo global
	Reason        string `json:"reason"`
	Description   string `json:"description"`
	ExpiresMinute int    `json:"expires_minutes"` // 0 = permanente
}

// AdminBlockIP implementa POST /v1/admin/ipblocks. Re-bloquear la misma
// IP mergea sobre el registro activo (attempt_count += 1).
func (a *API) AdminBlockIP(w http.ResponseWriter, r *http.Request) {
	var req blockIPRequest
	if !ReadJSON(w, r, &req) {
		return
	}
	if req.IPAddress == "" {
		WriteError(w, http.StatusBadRequest, "invalid_request", "ip_address requerida", codeInvalidRequest)
		return
	}
	reason := repository.BlockReason(req.Reason)
	if reason == "" {
		reason = repository.BlockReasonManual
	}

	input := repository.BlockIPInput{
		IPAddress:   req.IPAddress,
		TenantID:    req.TenantID,
		Reason:      reason,
		Description: req.Description,
		BlockedBy:   "admin",
	}
	if req.ExpiresMinute > 0 {
		exp := time.Now().UTC().Add(time.Duration(req.ExpiresMinute) * time.Minute)
		input.ExpiresAt = &exp
	}

	b, err := a.IPBlocks.Block(r.Context(), input)
	if err != nil {
		if errors.Is(err, repository.ErrInvalidInput) {
			WriteError(w, http.StatusBadRequest, "invalid_request", "ip_address inválida", codeInvalidRequest)
			return
		}
		WriteError(w, http.StatusInternalServerError, "internal_error", "error bloqueando ip", codeInternal)
		return
	}
	WriteJSON(w, http.StatusCreated, toBlockedIPView(b))
}

// AdminUnblockIP implementa DELETE /v1/admin/ipblocks?ip=..&tenant_id=..
// Idempotente: desbloquear una IP sin bloqueo activo responde 200 igual.
func (a *API) AdminUnblockIP(w http.ResponseWriter, r *http.Request) {
	ip := r.URL.Query().Get("ip")
	if ip == "" {
		WriteError(w, http.StatusBadRequest, "invalid_request", "ip requerida", codeInvalidRequest)
		return
	}
	tenantID := r.URL.Query().Get("tenant_id")

	if err := a.IPBlocks.Unblock(r.Context(), ip, tenantID, "admin"); err != nil {
		WriteError(w, http.StatusInternalServerError, "internal_error", "error desbloqueando ip", codeInternal)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"unblocked": true})
}

// ─────────────── Admin: política de seguridad ───────────────

// AdminGetPolicy implementa GET /v1/admin/tenants/{tenant}/security-policy.
// Si el tenant no tiene política todavía, la creación lazy sintetiza la
// default: este endpoint nunca responde 404.
func (a *API) AdminGetPolicy(w http.ResponseWriter, r *http.Request) {
	cfg, err := a.Policy.Get(r.Context(), chi.URLParam(r, "tenant"))
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "internal_error", "error leyendo política", codeInternal)
		return
	}
	WriteJSON(w, http.StatusOK, toPolicyView(cfg))
}

type updatePolicyRequest struct {
	MaxSessionsPerUser     *int     `json:"max_sessions_per_user"`
	SessionTimeoutHours    *int     `json:"session_timeout_hours"`
	MaxLoginAttempts       *int     `json:"max_login_attempts"`
	LockoutMinutes         *int     `json:"lockout_minutes"`
	EnableProgressiveDelay *bool    `json:"enable_progressive_delay"`
	PasswordExpiryDays     *int     `json:"password_expiry_days"`
	NotifyOnLockout        *bool    `json:"notify_on_lockout"`
	NotifyOnNewDevice      *bool    `json:"notify_on_new_device"`
	IPAllowList            []string `json:"ip_allow_list"`
	IPDenyList             []string `json:"ip_deny_list"`
}

// AdminUpdatePolicy implementa PUT /v1/admin/tenants/{tenant}/security-policy.
// Campos ausentes no cambian (patch semántico); la cache del tenant se
// invalida en la misma operación.
func (a *API) AdminUpdatePolicy(w http.ResponseWriter, r *http.Request) {
	var req updatePolicyRequest
	if !ReadJSON(w, r, &req) {
		return
	}

	cfg, err := a.Policy.Update(r.Context(), chi.URLParam(r, "tenant"), repository.UpdateSecurityConfigInput{
		MaxSessionsPerUser:     req.MaxSessionsPerUser,
		SessionTimeoutHours:    req.SessionTimeoutHours,
		MaxLoginAttempts:       req.MaxLoginAttempts,
		LockoutMinutes:         req.LockoutMinutes,
		EnableProgressiveDelay: req.EnableProgressiveDelay,
		PasswordExpiryDays:     req.PasswordExpiryDays,
		NotifyOnLockout:        req.NotifyOnLockout,
		NotifyOnNewDevice:      req.NotifyOnNewDevice,
		IPAllowList:            req.IPAllowList,
		IPDenyList:             req.IPDenyList,
	})
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "internal_error", "error actualizando política", codeInternal)
		return
	}
	WriteJSON(w, http.StatusOK, toPolicyView(cfg))
}

// ─────────────── Admin: clients ───────────────

// AdminListClients implementa GET /v1/admin/tenants/{tenant}/clients.
func (a *API) AdminListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := a.Clients.List(r.Context(), chi.URLParam(r, "tenant"))
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "internal_error", "error listando clients", codeInternal)
		return
	}
	views := make([]clientView, 0, len(clients))
	for i := range clients {
		views = append(views, toClientView(&clients[i]))
	}
	WriteJSON(w, http.StatusOK, map[string]any{"clients": views})
}

type registerClientRequest struct {
	ClientID       string   `json:"client_id"`
	Name           string   `json:"name"`
	RedirectURIs   []string `json:"redirect_uris"`
	AllowedOrigins []string `json:"allowed_origins"`
	App            string   `json:"app"`
	FirstParty     bool     `json:"first_party"`
}

// AdminRegisterClient implementa POST /v1/admin/tenants/{tenant}/clients.
// El secret crudo viaja en esta respuesta y nunca más.
func (a *API) AdminRegisterClient(w http.ResponseWriter, r *http.Request) {
	var req registerClientRequest
	if !ReadJSON(w, r, &req) {
		return
	}

	c, secret, err := a.Clients.Register(r.Context(), sso.RegisterInput{
		ClientID:       req.ClientID,
		TenantID:       chi.URLParam(r, "tenant"),
		Name:           req.Name,
		RedirectURIs:   req.RedirectURIs,
		AllowedOrigins: req.AllowedOrigins,
		App:            repository.ClientApp(req.App),
		FirstParty:     req.FirstParty,
	})
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrInvalidInput):
			WriteError(w, http.StatusBadRequest, "invalid_request", "client_id, app o redirect_uris inválidos", codeInvalidRequest)
		case errors.Is(err, repository.ErrConflict):
			WriteError(w, http.StatusConflict, "conflict", "client_id ya registrado", codeConflict)
		default:
			WriteError(w, http.StatusInternalServerError, "internal_error", "error registrando client", codeInternal)
		}
		return
	}

	WriteJSON(w, http.StatusCreated, map[string]any{
		"client":        toClientView(c),
		"client_secret": secret,
	})
}
