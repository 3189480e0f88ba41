package repository

import (
	"context"
	"time"
)

// FailureReason enumera las razones de fallo de un intento de login.
type FailureReason string

const (
	FailureInvalidCredentials FailureReason = "invalid_credentials"
	FailureAccountLocked      FailureReason = "account_locked"
	FailureIPBlocked          FailureReason = "ip_blocked"
	FailureUserDisabled       FailureReason = "user_disabled"
	FailureInvalidClient      FailureReason = "invalid_client"
	FailureRateLimited        FailureReason = "rate_limited"
)

// AttemptRetention es la ventana de retención de intentos: pasado este
// plazo el sweep los purga.
const AttemptRetention = 30 * 24 * time.Hour

// LoginAttempt es un registro de auditoría inmutable: se crea en cada
// intento (éxito o fallo) y jamás se actualiza.
type LoginAttempt struct {
	ID            string
	TenantID      *string // nil = intento a nivel plataforma
	Email         string
	IPAddress     string
	Success       bool
	FailureReason *FailureReason
	ClientID      *string
	DeviceType    *string
	Browser       *string
	OS            *string
	UserAgent     *string
	Country       *string
	City          *string
	CreatedAt     time.Time
}

// RecordAttemptInput contiene los datos de un intento de login.
type RecordAttemptInput struct {
	TenantID      string // vacío = plataforma
	Email         string
	IPAddress     string
	Success       bool
	FailureReason FailureReason
	ClientID      string
	DeviceType    string
	Browser       string
	OS            string
	UserAgent     string
	Country       string
	City          string
}

// RiskCounts agrega intentos dentro de una ventana temporal.
type RiskCounts struct {
	Total  int
	Failed int
}

// LoginAttemptRepository define operaciones sobre el ledger de intentos.
type LoginAttemptRepository interface {
	// Record agrega un intento. Nunca se rechaza ni se actualiza.
	Record(ctx context.Context, input RecordAttemptInput) (*LoginAttempt, error)

	// CountSince retorna {total, failed} de intentos en la ventana que
	// matcheen el email O la IP (unión, no intersección: atrapa tanto IPs
	// rotando contra un email como una IP contra muchos emails).
	CountSince(ctx context.Context, tenantID, email, ip string, since time.Time) (RiskCounts, error)

	// ConsecutiveFailures cuenta fallos consecutivos para el email dentro
	// de la ventana, cortando en el último éxito. Alimenta el delay
	// progresivo.
	ConsecutiveFailures(ctx context.Context, tenantID, email string, since time.Time) (int, error)

	// LastFailure retorna el timestamp del fallo más reciente para el email
	// o IP dentro de la ventana. Retorna ErrNotFound si no hay fallos.
	LastFailure(ctx context.Context, tenantID, email, ip string, since time.Time) (time.Time, error)

	// DeleteOlderThan purga intentos previos al corte. Retorna cuántos.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}
