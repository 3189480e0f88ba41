package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/vincsso/internal/domain/repository"
)

// sessionRepo implementa repository.SessionRepository sobre un map.
type sessionRepo struct {
	mu sync.RWMutex
	// byHash indexa por session_id_hash (clave natural de lookup).
	byHash map[string]*repository.Session
}

// NewSessionRepo crea un repositorio de sesiones en memoria.
func NewSessionRepo() repository.SessionRepository {
	return &sessionRepo{byHash: make(map[string]*repository.Session)}
}

func cloneSession(s *repository.Session) *repository.Session {
	cp := *s
	return &cp
}

func (r *sessionRepo) Create(ctx context.Context, input repository.CreateSessionInput) (*repository.Session, error) {
	now := time.Now().UTC()
	s := &repository.Session{
		ID:                uuid.NewString(),
		TenantID:          input.TenantID,
		UserID:            input.UserID,
		UserEmail:         input.UserEmail,
		UserRole:          input.UserRole,
		CompanyName:       strPtr(input.CompanyName),
		ProfileJSON:       input.ProfileJSON,
		ClientApp:         input.ClientApp,
		ClientID:          input.ClientID,
		StorefrontID:      strPtr(input.StorefrontID),
		SessionIDHash:     input.SessionIDHash,
		IPAddress:         strPtr(input.IPAddress),
		UserAgent:         strPtr(input.UserAgent),
		DeviceType:        strPtr(input.DeviceType),
		Browser:           strPtr(input.Browser),
		OS:                strPtr(input.OS),
		DeviceFingerprint: strPtr(input.DeviceFingerprint),
		CountryCode:       strPtr(input.CountryCode),
		Country:           strPtr(input.Country),
		City:              strPtr(input.City),
		RefreshTokenHash:  input.RefreshTokenHash,
		AccessTokenID:     strPtr(input.AccessTokenID),
		CreatedAt:         now,
		LastActivity:      now,
		ExpiresAt:         input.ExpiresAt,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byHash[s.SessionIDHash]; ok {
		return nil, repository.ErrConflict
	}
	r.byHash[s.SessionIDHash] = s
	return cloneSession(s), nil
}

func (r *sessionRepo) GetByIDHash(ctx context.Context, sessionIDHash string) (*repository.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byHash[sessionIDHash]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneSession(s), nil
}

func (r *sessionRepo) GetByRefreshHash(ctx context.Context, refreshHash string) (*repository.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.byHash {
		if s.RefreshTokenHash == refreshHash {
			return cloneSession(s), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *sessionRepo) UpdateActivity(ctx context.Context, sessionIDHash string, lastActivity time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byHash[sessionIDHash]
	if !ok {
		return repository.ErrNotFound
	}
	s.LastActivity = lastActivity
	return nil
}

func (r *sessionRepo) RotateRefresh(ctx context.Context, sessionIDHash, newRefreshHash, accessTokenID string) error {
	now := time.Now().UTC()
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byHash[sessionIDHash]
	if !ok || !s.Active(now) {
		return repository.ErrNotFound
	}
	s.RefreshTokenHash = newRefreshHash
	s.AccessTokenID = strPtr(accessTokenID)
	s.LastActivity = now
	return nil
}

func (r *sessionRepo) CountActiveByUser(ctx context.Context, tenantID, userID string) (int, error) {
	now := time.Now().UTC()
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, s := range r.byHash {
		if s.TenantID == tenantID && s.UserID == userID && s.Active(now) {
			n++
		}
	}
	return n, nil
}

func (r *sessionRepo) RevokeOldestActive(ctx context.Context, tenantID, userID, reason string) error {
	now := time.Now().UTC()
	r.mu.Lock()
	defer r.mu.Unlock()

	var oldest *repository.Session
	for _, s := range r.byHash {
		if s.TenantID != tenantID || s.UserID != userID || !s.Active(now) {
			continue
		}
		if oldest == nil || s.LastActivity.Before(oldest.LastActivity) {
			oldest = s
		}
	}
	if oldest == nil {
		return repository.ErrNotFound
	}
	oldest.RevokedAt = &now
	oldest.RevokedBy = strPtr("system")
	oldest.RevokeReason = strPtr(reason)
	return nil
}

func (r *sessionRepo) Revoke(ctx context.Context, sessionIDHash, revokedBy, reason string) error {
	now := time.Now().UTC()
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byHash[sessionIDHash]
	if !ok {
		return repository.ErrNotFound
	}
	if s.RevokedAt != nil {
		// Idempotente: revocar dos veces no es error.
		return nil
	}
	s.RevokedAt = &now
	s.RevokedBy = strPtr(revokedBy)
	s.RevokeReason = strPtr(reason)
	return nil
}

func (r *sessionRepo) RevokeAllByUser(ctx context.Context, tenantID, userID, revokedBy, reason string) (int, error) {
	now := time.Now().UTC()
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.byHash {
		if s.TenantID == tenantID && s.UserID == userID && s.RevokedAt == nil {
			s.RevokedAt = &now
			s.RevokedBy = strPtr(revokedBy)
			s.RevokeReason = strPtr(reason)
			n++
		}
	}
	return n, nil
}

func (r *sessionRepo) List(ctx context.Context, tenantID string, filter repository.ListSessionsFilter) ([]repository.Session, int, error) {
	now := time.Now().UTC()
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []repository.Session
	for _, s := range r.byHash {
		if s.TenantID != tenantID {
			continue
		}
		if filter.UserID != nil && *filter.UserID != "" && s.UserID != *filter.UserID {
			continue
		}
		if filter.ClientApp != nil && s.ClientApp != *filter.ClientApp {
			continue
		}
		if filter.DeviceType != nil && *filter.DeviceType != "" {
			if s.DeviceType == nil || *s.DeviceType != *filter.DeviceType {
				continue
			}
		}
		if filter.Status != nil && *filter.Status != "" {
			st := s.Status(now)
			// "idle" cuenta como "active" a efectos de filtro.
			if st == "idle" {
				st = "active"
			}
			if st != *filter.Status {
				continue
			}
		}
		if filter.Search != nil && *filter.Search != "" {
			q := strings.ToLower(*filter.Search)
			if !matchSearch(s, q) {
				continue
			}
		}
		out = append(out, *cloneSession(s))
	}

	// Más recientes primero.
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastActivity.After(out[j].LastActivity)
	})

	total := len(out)
	page, size := filter.Page, filter.PageSize
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 20
	}
	start := (page - 1) * size
	if start >= total {
		return []repository.Session{}, total, nil
	}
	end := start + size
	if end > total {
		end = total
	}
	return out[start:end], total, nil
}

func matchSearch(s *repository.Session, q string) bool {
	for _, f := range []*string{s.IPAddress, s.City, s.Country, &s.UserEmail} {
		if f != nil && strings.Contains(strings.ToLower(*f), q) {
			return true
		}
	}
	return false
}

func (r *sessionRepo) DeleteExpired(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for h, s := range r.byHash {
		if !s.Active(now) {
			delete(r.byHash, h)
			n++
		}
	}
	return n, nil
}

func (r *sessionRepo) GetStats(ctx context.Context, tenantID string) (*repository.SessionStats, error) {
	now := time.Now().UTC()
	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := &repository.SessionStats{}
	byDevice := map[string]int{}
	byCountry := map[string]int{}

	for _, s := range r.byHash {
		if s.TenantID != tenantID {
			continue
		}
		if !s.CreatedAt.Before(todayStart) {
			stats.TotalToday++
		}
		if !s.Active(now) {
			continue
		}
		stats.TotalActive++
		dt := "unknown"
		if s.DeviceType != nil && *s.DeviceType != "" {
			dt = *s.DeviceType
		}
		byDevice[dt]++
		if s.Country != nil && *s.Country != "" {
			byCountry[*s.Country]++
		}
	}

	for dt, n := range byDevice {
		stats.ByDevice = append(stats.ByDevice, repository.SessionDeviceCount{DeviceType: dt, Count: n})
	}
	for c, n := range byCountry {
		stats.ByCountry = append(stats.ByCountry, repository.SessionCountryCount{Country: c, Count: n})
	}
	sort.Slice(stats.ByDevice, func(i, j int) bool { return stats.ByDevice[i].Count > stats.ByDevice[j].Count })
	sort.Slice(stats.ByCountry, func(i, j int) bool { return stats.ByCountry[i].Count > stats.ByCountry[j].Count })

	return stats, nil
}

// strPtr retorna nil para strings vacíos (mismo criterio que nullIfEmpty en pg).
func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
