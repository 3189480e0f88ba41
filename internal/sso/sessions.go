package sso

import (
	"context"
	"fmt"
	"time"

	"github.com/dropDatabas3/vincsso/internal/domain/repository"
	"github.com/dropDatabas3/vincsso/internal/metrics"
	"github.com/dropDatabas3/vincsso/internal/observability/logger"
	"github.com/dropDatabas3/vincsso/internal/security/token"
)

const (
	sessionIDBytes    = 32
	refreshTokenBytes = 32

	// evictRetries acota el loop de evicción cuando varias creaciones
	// del mismo usuario corren a la vez.
	evictRetries = 3
)

// SessionManager gestiona el ciclo de vida de sesiones: creación con tope
// por usuario, validación lazy, rotación de refresh y revocación.
type SessionManager struct {
	repo     repository.SessionRepository
	policy   *PolicyStore
	notifier Notifier
}

// NewSessionManager crea el manager. notifier puede ser nil.
func NewSessionManager(repo repository.SessionRepository, policy *PolicyStore, notifier Notifier) *SessionManager {
	return &SessionManager{repo: repo, policy: policy, notifier: notifier}
}

// CreateInput describe la sesión a crear.
type CreateInput struct {
	TenantID     string
	UserID       string
	UserEmail    string
	UserRole     string
	CompanyName  string
	ProfileJSON  []byte
	ClientApp    repository.ClientApp
	ClientID     string
	StorefrontID string

	IPAddress         string
	UserAgent         string
	DeviceFingerprint string
	CountryCode       string
	Country           string
	City              string

	// AccessTokenID es el JTI del access token emitido junto a la sesión.
	AccessTokenID string
}

// CreatedSession es el resultado de Create. SessionID y RefreshToken son
// los valores crudos: esta es la ÚNICA vez que existen; solo sus hashes
// quedan persistidos.
type CreatedSession struct {
	Session      *repository.Session
	SessionID    string
	RefreshToken string
}

// Create crea la sesión aplicando el tope de la política del tenant.
// Cuando el usuario está en el tope, se desaloja la sesión activa más
// vieja por last_activity: loguearse siempre funciona.
func (m *SessionManager) Create(ctx context.Context, input CreateInput) (*CreatedSession, error) {
	if !input.ClientApp.Valid() {
		return nil, repository.ErrInvalidInput
	}

	cfg, err := m.policy.Get(ctx, input.TenantID)
	if err != nil {
		return nil, err
	}

	// Evicción por tope: una UPDATE condicional por vuelta, con retry
	// acotado por si hay creaciones concurrentes del mismo usuario.
	for i := 0; i < evictRetries; i++ {
		n, err := m.repo.CountActiveByUser(ctx, input.TenantID, input.UserID)
		if err != nil {
			return nil, fmt.Errorf("count sessions: %w", err)
		}
		if n < cfg.MaxSessionsPerUser {
			break
		}
		err = m.repo.RevokeOldestActive(ctx, input.TenantID, input.UserID, "session_limit")
		if err != nil && !repository.IsNotFound(err) {
			return nil, fmt.Errorf("evict oldest session: %w", err)
		}
		if err == nil {
			metrics.SessionsEvicted.Inc()
		}
	}

	rawID, err := token.GenerateOpaqueToken(sessionIDBytes)
	if err != nil {
		return nil, fmt.Errorf("generate session id: %w", err)
	}
	rawRefresh, err := token.GenerateOpaqueToken(refreshTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}

	dev := ParseUserAgent(input.UserAgent)
	newDevice := false
	if m.notifier != nil && cfg.NotifyOnNewDevice {
		newDevice = m.isNewDevice(ctx, input.TenantID, input.UserID, input.DeviceFingerprint, dev)
	}

	s, err := m.repo.Create(ctx, repository.CreateSessionInput{
		TenantID:          input.TenantID,
		UserID:            input.UserID,
		UserEmail:         input.UserEmail,
		UserRole:          input.UserRole,
		CompanyName:       input.CompanyName,
		ProfileJSON:       input.ProfileJSON,
		ClientApp:         input.ClientApp,
		ClientID:          input.ClientID,
		StorefrontID:      input.StorefrontID,
		SessionIDHash:     token.SHA256Base64URL(rawID),
		IPAddress:         input.IPAddress,
		UserAgent:         input.UserAgent,
		DeviceType:        dev.DeviceType,
		Browser:           dev.Browser,
		OS:                dev.OS,
		DeviceFingerprint: input.DeviceFingerprint,
		CountryCode:       input.CountryCode,
		Country:           input.Country,
		City:              input.City,
		RefreshTokenHash:  token.SHA256Base64URL(rawRefresh),
		AccessTokenID:     input.AccessTokenID,
		ExpiresAt:         time.Now().UTC().Add(cfg.SessionTimeout()),
	})
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	metrics.SessionsCreated.Inc()

	if newDevice {
		go m.notifier.NotifyNewDevice(context.WithoutCancel(ctx), input.TenantID, input.UserEmail, dev, input.IPAddress)
	}

	logger.Named("sso.sessions").Info("session created",
		logger.TenantID(input.TenantID),
		logger.UserID(input.UserID),
		logger.SessionID(s.SessionIDHash),
		logger.String("client_app", string(input.ClientApp)),
		logger.String("device_type", dev.DeviceType),
	)

	return &CreatedSession{Session: s, SessionID: rawID, RefreshToken: rawRefresh}, nil
}

// isNewDevice: no hay otra sesión reciente del usuario con el mismo
// fingerprint (o mismo browser+OS si no hay fingerprint). Best-effort.
func (m *SessionManager) isNewDevice(ctx context.Context, tenantID, userID, fingerprint string, dev DeviceInfo) bool {
	existing, _, err := m.repo.List(ctx, tenantID, repository.ListSessionsFilter{
		UserID: &userID, Page: 1, PageSize: 100,
	})
	if err != nil {
		return false
	}
	for i := range existing {
		s := &existing[i]
		if fingerprint != "" && s.DeviceFingerprint != nil && *s.DeviceFingerprint == fingerprint {
			return false
		}
		if fingerprint == "" &&
			s.Browser != nil && *s.Browser == dev.Browser &&
			s.OS != nil && *s.OS == dev.OS {
			return false
		}
	}
	// El primer login del usuario no cuenta como dispositivo nuevo.
	return len(existing) > 0
}

// Validate resuelve la sesión por su id crudo. Activa sii no está revocada
// y expires_at > now: predicado calculado, nunca un flag persistido. El
// last_activity se actualiza best-effort sin bloquear al caller.
func (m *SessionManager) Validate(ctx context.Context, rawSessionID string) (*repository.Session, error) {
	s, err := m.repo.GetByIDHash(ctx, token.SHA256Base64URL(rawSessionID))
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	now := time.Now().UTC()
	if s.RevokedAt != nil {
		return nil, ErrSessionRevoked
	}
	if !now.Before(s.ExpiresAt) {
		return nil, ErrSessionExpired
	}

	go func(hash string) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := m.repo.UpdateActivity(ctx, hash, now); err != nil {
			logger.Named("sso.sessions").Debug("activity bump failed", logger.Err(err))
		}
	}(s.SessionIDHash)

	return s, nil
}

// Refresh rota el refresh token: valida el token viejo, genera uno nuevo y
// lo persiste junto al JTI del access token nuevo. El token viejo muere en
// la misma operación. clientID debe ser el client que creó la sesión: un
// refresh token jamás se canjea a nombre de otro client.
func (m *SessionManager) Refresh(ctx context.Context, rawRefreshToken, clientID, accessTokenID string) (*repository.Session, string, error) {
	s, err := m.repo.GetByRefreshHash(ctx, token.SHA256Base64URL(rawRefreshToken))
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, "", ErrInvalidRefresh
		}
		return nil, "", fmt.Errorf("get session by refresh: %w", err)
	}
	if s.ClientID != clientID {
		return nil, "", ErrInvalidRefresh
	}
	if !s.Active(time.Now().UTC()) {
		return nil, "", ErrInvalidRefresh
	}

	newRefresh, err := token.GenerateOpaqueToken(refreshTokenBytes)
	if err != nil {
		return nil, "", fmt.Errorf("generate refresh token: %w", err)
	}
	if err := m.repo.RotateRefresh(ctx, s.SessionIDHash, token.SHA256Base64URL(newRefresh), accessTokenID); err != nil {
		if repository.IsNotFound(err) {
			return nil, "", ErrInvalidRefresh
		}
		return nil, "", fmt.Errorf("rotate refresh: %w", err)
	}
	return s, newRefresh, nil
}

// Revoke revoca por session id crudo. Idempotente: revocar dos veces no es
// error, y una sesión revocada jamás vuelve a estar activa.
func (m *SessionManager) Revoke(ctx context.Context, rawSessionID, revokedBy, reason string) error {
	return m.RevokeByHash(ctx, token.SHA256Base64URL(rawSessionID), revokedBy, reason)
}

// RevokeByHash revoca por hash sin chequear tenant. La superficie admin
// pasa por RevokeForTenant.
func (m *SessionManager) RevokeByHash(ctx context.Context, sessionIDHash, revokedBy, reason string) error {
	if err := m.repo.Revoke(ctx, sessionIDHash, revokedBy, reason); err != nil {
		if repository.IsNotFound(err) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("revoke session: %w", err)
	}
	metrics.SessionsRevoked.WithLabelValues(reason).Inc()
	return nil
}

// RevokeForTenant revoca por hash verificando antes que la sesión
// pertenece al tenant. Un hash de otro tenant responde not found: la
// URL admin de un tenant nunca alcanza sesiones ajenas.
func (m *SessionManager) RevokeForTenant(ctx context.Context, tenantID, sessionIDHash, revokedBy, reason string) error {
	s, err := m.repo.GetByIDHash(ctx, sessionIDHash)
	if err != nil {
		if repository.IsNotFound(err) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("revoke session: %w", err)
	}
	if s.TenantID != tenantID {
		return ErrSessionNotFound
	}
	return m.RevokeByHash(ctx, sessionIDHash, revokedBy, reason)
}

// RevokeAllByUser revoca todas las sesiones del usuario. Retorna cuántas.
func (m *SessionManager) RevokeAllByUser(ctx context.Context, tenantID, userID, revokedBy, reason string) (int, error) {
	n, err := m.repo.RevokeAllByUser(ctx, tenantID, userID, revokedBy, reason)
	if err != nil {
		return 0, fmt.Errorf("revoke all: %w", err)
	}
	if n > 0 {
		metrics.SessionsRevoked.WithLabelValues(reason).Add(float64(n))
		logger.Named("sso.sessions").Info("sessions revoked",
			logger.TenantID(tenantID),
			logger.UserID(userID),
			logger.Count(n),
			logger.Reason(reason),
		)
	}
	return n, nil
}

// List expone el listado paginado para la superficie admin.
func (m *SessionManager) List(ctx context.Context, tenantID string, filter repository.ListSessionsFilter) ([]repository.Session, int, error) {
	return m.repo.List(ctx, tenantID, filter)
}

// Stats expone las estadísticas del tenant.
func (m *SessionManager) Stats(ctx context.Context, tenantID string) (*repository.SessionStats, error) {
	return m.repo.GetStats(ctx, tenantID)
}

// DeleteExpired purga sesiones muertas (lo llama el sweeper).
func (m *SessionManager) DeleteExpired(ctx context.Context) (int, error) {
	return m.repo.DeleteExpired(ctx)
}
