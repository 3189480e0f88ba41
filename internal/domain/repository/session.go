package repository

import (
	"context"
	"time"
)

// ClientApp identifica la aplicación cliente dueña de la sesión.
// Enum cerrado: el comportamiento (validación de redirects, orígenes
// permitidos) difiere por app, no es un string libre.
type ClientApp string

const (
	AppAdmin      ClientApp = "admin"
	AppStorefront ClientApp = "storefront"
	AppPortal     ClientApp = "portal"
	AppAPI        ClientApp = "api"
)

// Valid reporta si el tag corresponde a una app conocida.
func (a ClientApp) Valid() bool {
	switch a {
	case AppAdmin, AppStorefront, AppPortal, AppAPI:
		return true
	}
	return false
}

// Session representa una sesión de usuario persistida.
// El session id y el refresh token se guardan SOLO como hash.
type Session struct {
	ID            string
	TenantID      string
	UserID        string
	UserEmail     string
	UserRole      string
	CompanyName   *string
	ProfileJSON   []byte // perfil cacheado, payload opaco
	ClientApp     ClientApp
	ClientID      string // client OAuth2 que creó la sesión
	StorefrontID  *string
	SessionIDHash string

	// Fingerprint de dispositivo/red
	IPAddress         *string
	UserAgent         *string
	DeviceType        *string // desktop, mobile, tablet, unknown
	Browser           *string
	OS                *string
	DeviceFingerprint *string
	CountryCode       *string
	Country           *string
	City              *string

	RefreshTokenHash string
	AccessTokenID    *string // JTI del último access token emitido

	CreatedAt    time.Time
	LastActivity time.Time
	ExpiresAt    time.Time
	RevokedAt    *time.Time
	RevokedBy    *string
	RevokeReason *string
}

// Active reporta si la sesión está viva al instante dado.
// La expiración es un predicado calculado, nunca un flag almacenado:
// el sweep físico y el check inline no pueden divergir.
func (s *Session) Active(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}

// Status calcula el estado de la sesión.
func (s *Session) Status(now time.Time) string {
	if s.RevokedAt != nil {
		return "revoked"
	}
	if !now.Before(s.ExpiresAt) {
		return "expired"
	}
	if now.Sub(s.LastActivity) > 30*time.Minute {
		return "idle"
	}
	return "active"
}

// CreateSessionInput contiene los datos para crear una nueva sesión.
type CreateSessionInput struct {
	TenantID          string
	UserID            string
	UserEmail         string
	UserRole          string
	CompanyName       string
	ProfileJSON       []byte
	ClientApp         ClientApp
	ClientID          string
	StorefrontID      string
	SessionIDHash     string
	IPAddress         string
	UserAgent         string
	DeviceType        string
	Browser           string
	OS                string
	DeviceFingerprint string
	CountryCode       string
	Country           string
	City              string
	RefreshTokenHash  string
	AccessTokenID     string
	ExpiresAt         time.Time
}

// ListSessionsFilter define filtros para listar sesiones.
type ListSessionsFilter struct {
	UserID     *string
	ClientApp  *ClientApp
	DeviceType *string
	Status     *string // active, expired, revoked
	Search     *string // IP, ciudad, país
	Page       int
	PageSize   int
}

// SessionStats contiene estadísticas de sesiones del tenant.
type SessionStats struct {
	TotalActive int
	TotalToday  int
	ByDevice    []SessionDeviceCount
	ByCountry   []SessionCountryCount
}

// SessionDeviceCount contiene conteo por tipo de dispositivo.
type SessionDeviceCount struct {
	DeviceType string
	Count      int
}

// SessionCountryCount contiene conteo por país.
type SessionCountryCount struct {
	Country string
	Count   int
}

// SessionRepository define operaciones para gestionar sesiones de usuario.
type SessionRepository interface {
	// Create crea una nueva sesión.
	Create(ctx context.Context, input CreateSessionInput) (*Session, error)

	// GetByIDHash obtiene una sesión por el hash de su session_id.
	// Retorna ErrNotFound si no existe.
	GetByIDHash(ctx context.Context, sessionIDHash string) (*Session, error)

	// GetByRefreshHash obtiene una sesión por el hash de su refresh token.
	GetByRefreshHash(ctx context.Context, refreshHash string) (*Session, error)

	// UpdateActivity actualiza el timestamp de última actividad.
	UpdateActivity(ctx context.Context, sessionIDHash string, lastActivity time.Time) error

	// RotateRefresh reemplaza el hash del refresh token y el JTI del access
	// token en una sola operación, solo si la sesión sigue activa.
	RotateRefresh(ctx context.Context, sessionIDHash, newRefreshHash, accessTokenID string) error

	// CountActiveByUser cuenta sesiones activas (no revocadas, no expiradas)
	// del usuario en el tenant.
	CountActiveByUser(ctx context.Context, tenantID, userID string) (int, error)

	// RevokeOldestActive revoca la sesión activa más vieja (por last_activity)
	// del usuario. Es la operación atómica de evicción para el tope de
	// sesiones concurrentes. Retorna ErrNotFound si no hay sesiones activas.
	RevokeOldestActive(ctx context.Context, tenantID, userID, reason string) error

	// Revoke marca una sesión como revocada. Idempotente: si ya estaba
	// revocada no es error.
	Revoke(ctx context.Context, sessionIDHash, revokedBy, reason string) error

	// RevokeAllByUser revoca todas las sesiones activas de un usuario.
	// Retorna el número de sesiones revocadas.
	RevokeAllByUser(ctx context.Context, tenantID, userID, revokedBy, reason string) (int, error)

	// List retorna sesiones del tenant con filtros y paginación.
	// El segundo valor retornado es el total para paginación.
	List(ctx context.Context, tenantID string, filter ListSessionsFilter) ([]Session, int, error)

	// DeleteExpired elimina físicamente sesiones expiradas o revocadas.
	// Retorna el número de sesiones eliminadas.
	DeleteExpired(ctx context.Context) (int, error)

	// GetStats retorna estadísticas de sesiones del tenant.
	GetStats(ctx context.Context, tenantID string) (*SessionStats, error)
}
