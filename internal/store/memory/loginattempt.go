package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/vincsso/internal/domain/repository"
)

// loginAttemptRepo implementa repository.LoginAttemptRepository sobre un slice.
// El ledger es append-only, así que un slice ordenado por inserción alcanza.
type loginAttemptRepo struct {
	mu       sync.RWMutex
	attempts []repository.LoginAttempt
}

// NewLoginAttemptRepo crea un ledger de intentos en memoria.
func NewLoginAttemptRepo() repository.LoginAttemptRepository {
	return &loginAttemptRepo{}
}

func (r *loginAttemptRepo) Record(ctx context.Context, input repository.RecordAttemptInput) (*repository.LoginAttempt, error) {
	a := repository.LoginAttempt{
		ID:         uuid.NewString(),
		TenantID:   strPtr(input.TenantID),
		Email:      input.Email,
		IPAddress:  input.IPAddress,
		Success:    input.Success,
		ClientID:   strPtr(input.ClientID),
		DeviceType: strPtr(input.DeviceType),
		Browser:    strPtr(input.Browser),
		OS:         strPtr(input.OS),
		UserAgent:  strPtr(input.UserAgent),
		Country:    strPtr(input.Country),
		City:       strPtr(input.City),
		CreatedAt:  time.Now().UTC(),
	}
	if !input.Success && input.FailureReason != "" {
		fr := input.FailureReason
		a.FailureReason = &fr
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, a)
	cp := a
	return &cp, nil
}

// matchTenant: un tenantID vacío matchea intentos a nivel plataforma.
func matchTenant(a *repository.LoginAttempt, tenantID string) bool {
	if tenantID == "" {
		return a.TenantID == nil
	}
	return a.TenantID != nil && *a.TenantID == tenantID
}

func (r *loginAttemptRepo) CountSince(ctx context.Context, tenantID, email, ip string, since time.Time) (repository.RiskCounts, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var counts repository.RiskCounts
	for i := range r.attempts {
		a := &r.attempts[i]
		if a.CreatedAt.Before(since) || !matchTenant(a, tenantID) {
			continue
		}
		// Unión email OR ip: atrapa rotación de IPs y spraying de emails.
		if a.Email != email && a.IPAddress != ip {
			continue
		}
		counts.Total++
		if !a.Success {
			counts.Failed++
		}
	}
	return counts, nil
}

func (r *loginAttemptRepo) ConsecutiveFailures(ctx context.Context, tenantID, email string, since time.Time) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var hits []*repository.LoginAttempt
	for i := range r.attempts {
		a := &r.attempts[i]
		if a.CreatedAt.Before(since) || !matchTenant(a, tenantID) || a.Email != email {
			continue
		}
		hits = append(hits, a)
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].CreatedAt.After(hits[j].CreatedAt) })

	n := 0
	for _, a := range hits {
		if a.Success {
			break
		}
		n++
	}
	return n, nil
}

func (r *loginAttemptRepo) LastFailure(ctx context.Context, tenantID, email, ip string, since time.Time) (time.Time, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var last time.Time
	for i := range r.attempts {
		a := &r.attempts[i]
		if a.Success || a.CreatedAt.Before(since) || !matchTenant(a, tenantID) {
			continue
		}
		if a.Email != email && a.IPAddress != ip {
			continue
		}
		if a.CreatedAt.After(last) {
			last = a.CreatedAt
		}
	}
	if last.IsZero() {
		return time.Time{}, repository.ErrNotFound
	}
	return last, nil
}

func (r *loginAttemptRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.attempts[:0]
	n := 0
	for _, a := range r.attempts {
		if a.CreatedAt.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, a)
	}
	r.attempts = kept
	return n, nil
}
