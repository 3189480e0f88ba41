package sso

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/dropDatabas3/vincsso/internal/domain/repository"
	"github.com/dropDatabas3/vincsso/internal/metrics"
	"github.com/dropDatabas3/vincsso/internal/observability/logger"
)

// progressiveThreshold: a partir de este fallo consecutivo arranca el
// delay exponencial (2^(n-threshold) segundos).
const progressiveThreshold = 3

// AttemptLedger registra intentos de login y evalúa lockout.
type AttemptLedger struct {
	repo     repository.LoginAttemptRepository
	policy   *PolicyStore
	notifier Notifier
}

// NewAttemptLedger crea el ledger.
func NewAttemptLedger(repo repository.LoginAttemptRepository, policy *PolicyStore) *AttemptLedger {
	return &AttemptLedger{repo: repo, policy: policy}
}

// SetNotifier registra el notifier de lockouts. Puede quedar sin setear.
func (l *AttemptLedger) SetNotifier(n Notifier) {
	l.notifier = n
}

// AttemptInput describe un intento de login a registrar.
type AttemptInput struct {
	TenantID  string
	Email     string
	IPAddress string
	Success   bool
	Reason    repository.FailureReason
	ClientID  string
	UserAgent string
	Country   string
	City      string
}

// RecordAttempt agrega el intento al ledger. Best-effort en el sentido de
// que un intento jamás se rechaza; un error acá es un error de
// infraestructura, no de negocio.
func (l *AttemptLedger) RecordAttempt(ctx context.Context, input AttemptInput) error {
	dev := ParseUserAgent(input.UserAgent)
	_, err := l.repo.Record(ctx, repository.RecordAttemptInput{
		TenantID:      input.TenantID,
		Email:         input.Email,
		IPAddress:     input.IPAddress,
		Success:       input.Success,
		FailureReason: input.Reason,
		ClientID:      input.ClientID,
		DeviceType:    dev.DeviceType,
		Browser:       dev.Browser,
		OS:            dev.OS,
		UserAgent:     input.UserAgent,
		Country:       input.Country,
		City:          input.City,
	})
	if err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	result := "failure"
	if input.Success {
		result = "success"
	}
	metrics.LoginAttempts.WithLabelValues(result).Inc()

	if !input.Success && l.notifier != nil {
		go l.maybeNotifyLockout(context.WithoutCancel(ctx), input.TenantID, input.Email, input.IPAddress)
	}
	return nil
}

// maybeNotifyLockout avisa al usuario exactamente cuando el conteo de la
// ventana alcanza el máximo: una vez por lockout, no por cada fallo extra.
func (l *AttemptLedger) maybeNotifyLockout(ctx context.Context, tenantID, email, ip string) {
	cfg, err := l.policy.Get(ctx, tenantID)
	if err != nil {
		return
	}
	counts, err := l.repo.CountSince(ctx, tenantID, email, ip, time.Now().UTC().Add(-cfg.LockoutWindow()))
	if err != nil || counts.Failed != cfg.MaxLoginAttempts {
		return
	}
	l.notifier.NotifyLockout(ctx, tenantID, email, counts.Failed)
}

// EvaluateRisk retorna los conteos de la ventana para el par (email, ip).
func (l *AttemptLedger) EvaluateRisk(ctx context.Context, tenantID, email, ip string, window time.Duration) (repository.RiskCounts, error) {
	return l.repo.CountSince(ctx, tenantID, email, ip, time.Now().UTC().Add(-window))
}

// LockoutStatus es el resultado de CheckLockout.
type LockoutStatus struct {
	Locked     bool
	RetryAfter time.Duration // cuánto falta para poder intentar de nuevo
	Failed     int           // fallos en la ventana
}

// CheckLockout combina el lockout plano (fallos >= max en la ventana) con
// el delay progresivo (2^(consecutivos-umbral) segundos, tope = ventana de
// lockout). Cuando ambos aplican gana el más estricto: el RetryAfter mayor.
func (l *AttemptLedger) CheckLockout(ctx context.Context, tenantID, email, ip string) (LockoutStatus, error) {
	cfg, err := l.policy.Get(ctx, tenantID)
	if err != nil {
		return LockoutStatus{}, err
	}

	now := time.Now().UTC()
	window := cfg.LockoutWindow()
	since := now.Add(-window)

	counts, err := l.repo.CountSince(ctx, tenantID, email, ip, since)
	if err != nil {
		return LockoutStatus{}, fmt.Errorf("count attempts: %w", err)
	}

	status := LockoutStatus{Failed: counts.Failed}

	// Lockout plano: bloquea por lockout_minutes desde el último fallo.
	if counts.Failed >= cfg.MaxLoginAttempts {
		last, err := l.repo.LastFailure(ctx, tenantID, email, ip, since)
		if err != nil && !repository.IsNotFound(err) {
			return LockoutStatus{}, fmt.Errorf("last failure: %w", err)
		}
		if err == nil {
			if until := last.Add(window); now.Before(until) {
				status.Locked = true
				status.RetryAfter = until.Sub(now)
			}
		}
	}

	// Delay progresivo: exponencial sobre fallos consecutivos del email.
	if cfg.EnableProgressiveDelay {
		consec, err := l.repo.ConsecutiveFailures(ctx, tenantID, email, since)
		if err != nil {
			return LockoutStatus{}, fmt.Errorf("consecutive failures: %w", err)
		}
		if consec >= progressiveThreshold {
			delay := time.Duration(math.Pow(2, float64(consec-progressiveThreshold+1))) * time.Second
			if delay > window {
				delay = window
			}
			last, err := l.repo.LastFailure(ctx, tenantID, email, ip, since)
			if err == nil {
				if until := last.Add(delay); now.Before(until) {
					remaining := until.Sub(now)
					// Gana el más estricto.
					if remaining > status.RetryAfter {
						status.RetryAfter = remaining
					}
					status.Locked = true
				}
			}
		}
	}

	if status.Locked {
		metrics.Lockouts.Inc()
		logger.Named("sso.attempts").Warn("login locked out",
			logger.TenantID(tenantID),
			logger.Email(email),
			logger.IP(ip),
			logger.Int("failed", status.Failed),
			logger.Duration(status.RetryAfter),
		)
	}
	return status, nil
}

// PurgeOlderThan purga intentos fuera de la ventana de retención.
func (l *AttemptLedger) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	return l.repo.DeleteOlderThan(ctx, cutoff)
}
