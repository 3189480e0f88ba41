package httpapi

import (
	"encoding/json"
	"time"

	"github.com/dropDatabas3/vincsso/internal/domain/repository"
	"github.com/dropDatabas3/vincsso/internal/jwtx"
	"github.com/dropDatabas3/vincsso/internal/sso"
)

// API agrupa los componentes de dominio que sirven los handlers.
type API struct {
	Clients  *sso.ClientRegistry
	Broker   *sso.CodeBroker
	Sessions *sso.SessionManager
	Attempts *sso.AttemptLedger
	IPBlocks *sso.IPBlockRegistry
	Policy   *sso.PolicyStore
	Tickets  *sso.TicketStore
	Issuer   *jwtx.Issuer
}

// ─────────────── Vistas JSON ───────────────

// sessionView es la proyección admin de una sesión. El id expuesto es el
// HASH del session id: el valor crudo nunca vuelve a existir server-side.
type sessionView struct {
	ID            string          `json:"id"`
	SessionIDHash string          `json:"session_id_hash"`
	TenantID      string          `json:"tenant_id"`
	UserID        string          `json:"user_id"`
	UserEmail     string          `json:"user_email"`
	UserRole      string          `json:"user_role,omitempty"`
	ClientApp     string          `json:"client_app"`
	Status        string          `json:"status"`
	IPAddress     string          `json:"ip_address,omitempty"`
	DeviceType    string          `json:"device_type,omitempty"`
	Browser       string          `json:"browser,omitempty"`
	OS            string          `json:"os,omitempty"`
	Country       string          `json:"country,omitempty"`
	City          string          `json:"city,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	LastActivity  time.Time       `json:"last_activity"`
	ExpiresAt     time.Time       `json:"expires_at"`
	RevokedAt     *time.Time      `json:"revoked_at,omitempty"`
	RevokedReason string          `json:"revoked_reason,omitempty"`
	Profile       json.RawMessage `json:"profile,omitempty"`
}

func toSessionView(s *repository.Session, includeProfile bool) sessionView {
	deref := func(p *string) string {
		if p == nil {
			return ""
		}
		return *p
	}
	v := sessionView{
		ID:            s.ID,
		SessionIDHash: s.SessionIDHash,
		TenantID:      s.TenantID,
		UserID:        s.UserID,
		UserEmail:     s.UserEmail,
		UserRole:      s.UserRole,
		ClientApp:     string(s.ClientApp),
		Status:        s.Status(time.Now().UTC()),
		IPAddress:     deref(s.IPAddress),
		DeviceType:    deref(s.DeviceType),
		Browser:       deref(s.Browser),
		OS:            deref(s.OS),
		Country:       deref(s.Country),
		City:          deref(s.City),
		CreatedAt:     s.CreatedAt,
		LastActivity:  s.LastActivity,
		ExpiresAt:     s.ExpiresAt,
		RevokedAt:     s.RevokedAt,
		RevokedReason: deref(s.RevokeReason),
	}
	if includeProfile && len(s.ProfileJSON) > 0 {
		v.Profile = json.RawMessage(s.ProfileJSON)
	}
	return v
}

// blockedIPView es la proyección admin de un bloqueo.
type blockedIPView struct {
	ID           string     `json:"id"`
	IPAddress    string     `json:"ip_address"`
	TenantID     string     `json:"tenant_id,omitempty"`
	IsGlobal     bool       `json:"is_global"`
	Reason       string     `json:"reason"`
	Description  string     `json:"description,omitempty"`
	AttemptCount int        `json:"attempt_count"`
	BlockedAt    time.Time  `json:"blocked_at"`
	BlockedBy    string     `json:"blocked_by"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	IsActive     bool       `json:"is_active"`
}

func toBlockedIPView(b *repository.BlockedIP) blockedIPView {
	v := blockedIPView{
		ID:           b.ID,
		IPAddress:    b.IPAddress,
		IsGlobal:     b.IsGlobal,
		Reason:       string(b.Reason),
		AttemptCount: b.AttemptCount,
		BlockedAt:    b.BlockedAt,
		BlockedBy:    b.BlockedBy,
		ExpiresAt:    b.ExpiresAt,
		IsActive:     b.IsActive,
	}
	if b.TenantID != nil {
		v.TenantID = *b.TenantID
	}
	if b.Description != nil {
		v.Description = *b.Description
	}
	return v
}

// policyView es la proyección de la política de seguridad del tenant.
type policyView struct {
	TenantID               string    `json:"tenant_id"`
	MaxSessionsPerUser     int       `json:"max_sessions_per_user"`
	SessionTimeoutHours    int       `json:"session_timeout_hours"`
	MaxLoginAttempts       int       `json:"max_login_attempts"`
	LockoutMinutes         int       `json:"lockout_minutes"`
	EnableProgressiveDelay bool      `json:"enable_progressive_delay"`
	PasswordExpiryDays     int       `json:"password_expiry_days"`
	NotifyOnLockout        bool      `json:"notify_on_lockout"`
	NotifyOnNewDevice      bool      `json:"notify_on_new_device"`
	IPAllowList            []string  `json:"ip_allow_list,omitempty"`
	IPDenyList             []string  `json:"ip_deny_list,omitempty"`
	UpdatedAt              time.Time `json:"updated_at"`
}

func toPolicyView(c *repository.TenantSecurityConfig) policyView {
	return policyView{
		TenantID:               c.TenantID,
		MaxSessionsPerUser:     c.MaxSessionsPerUser,
		SessionTimeoutHours:    c.SessionTimeoutHours,
		MaxLoginAttempts:       c.MaxLoginAttempts,
		LockoutMinutes:         c.LockoutMinutes,
		EnableProgressiveDelay: c.EnableProgressiveDelay,
		PasswordExpiryDays:     c.PasswordExpiryDays,
		NotifyOnLockout:        c.NotifyOnLockout,
		NotifyOnNewDevice:      c.NotifyOnNewDevice,
		IPAllowList:            c.IPAllowList,
		IPDenyList:             c.IPDenyList,
		UpdatedAt:              c.UpdatedAt,
	}
}

// clientView es la proyección de un client registrado. Nunca incluye el
// secret ni su hash.
type clientView struct {
	ID             string    `json:"id"`
	ClientID       string    `json:"client_id"`
	TenantID       string    `json:"tenant_id"`
	Name           string    `json:"name"`
	RedirectURIs   []string  `json:"redirect_uris"`
	AllowedOrigins []string  `json:"allowed_origins,omitempty"`
	App            string    `json:"app"`
	FirstParty     bool      `json:"first_party"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
}

func toClientView(c *repository.AuthClient) clientView {
	return clientView{
		ID:             c.ID,
		ClientID:       c.ClientID,
		TenantID:       c.TenantID,
		Name:           c.Name,
		RedirectURIs:   c.RedirectURIs,
		AllowedOrigins: c.AllowedOrigins,
		App:            string(c.App),
		FirstParty:     c.FirstParty,
		IsActive:       c.IsActive,
		CreatedAt:      c.CreatedAt,
	}
}
