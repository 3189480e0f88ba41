package repository

import (
	"context"
	"time"
)

// TenantSecurityConfig es la política de seguridad por tenant. Un registro
// por tenant, creado de forma lazy con defaults; nunca se borra, solo se
// actualiza.
type TenantSecurityConfig struct {
	TenantID string

	// Sesiones
	MaxSessionsPerUser  int
	SessionTimeoutHours int

	// Brute force
	MaxLoginAttempts       int
	LockoutMinutes         int
	EnableProgressiveDelay bool

	// Password
	PasswordExpiryDays int // 0 = sin expiración

	// Notificaciones
	NotifyOnLockout   bool
	NotifyOnNewDevice bool

	// Listas de IP propias del tenant (CIDR o IP exacta)
	IPAllowList []string
	IPDenyList  []string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// SessionTimeout retorna el timeout de sesión como duración.
func (c *TenantSecurityConfig) SessionTimeout() time.Duration {
	return time.Duration(c.SessionTimeoutHours) * time.Hour
}

// LockoutWindow retorna la ventana de lockout como duración.
func (c *TenantSecurityConfig) LockoutWindow() time.Duration {
	return time.Duration(c.LockoutMinutes) * time.Minute
}

// DefaultSecurityConfig sintetiza la política default para un tenant.
// Única fuente de los defaults: la creación lazy y el fallback ante
// PolicyNotFound usan exactamente esto.
func DefaultSecurityConfig(tenantID string) *TenantSecurityConfig {
	now := time.Now().UTC()
	return &TenantSecurityConfig{
		TenantID:               tenantID,
		MaxSessionsPerUser:     5,
		SessionTimeoutHours:    24,
		MaxLoginAttempts:       5,
		LockoutMinutes:         15,
		EnableProgressiveDelay: true,
		PasswordExpiryDays:     0,
		NotifyOnLockout:        true,
		NotifyOnNewDevice:      false,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
}

// UpdateSecurityConfigInput es el patch de un admin de tenant. Punteros nil
// significan "sin cambio".
type UpdateSecurityConfigInput struct {
	MaxSessionsPerUser     *int
	SessionTimeoutHours    *int
	MaxLoginAttempts       *int
	LockoutMinutes         *int
	EnableProgressiveDelay *bool
	PasswordExpiryDays     *int
	NotifyOnLockout        *bool
	NotifyOnNewDevice      *bool
	IPAllowList            []string
	IPDenyList             []string
}

// SecurityConfigRepository define el acceso a la política por tenant.
type SecurityConfigRepository interface {
	// Get retorna la política del tenant. ErrNotFound si no existe todavía.
	Get(ctx context.Context, tenantID string) (*TenantSecurityConfig, error)

	// Create persiste una política nueva. ErrConflict si ya existe (la
	// creación lazy tolera la carrera quedándose con la existente).
	Create(ctx context.Context, cfg *TenantSecurityConfig) error

	// Update aplica el patch y retorna la política resultante.
	Update(ctx context.Context, tenantID string, patch UpdateSecurityConfigInput) (*TenantSecurityConfig, error)
}
