package sso

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dropDatabas3/vincsso/internal/cache"
	"github.com/dropDatabas3/vincsso/internal/security/token"
)

const (
	// TicketTTL: ventana entre el login UI y el redirect de authorize.
	TicketTTL = 2 * time.Minute

	ticketBytes = 32
)

// LoginTicket es la identidad ya autenticada que el login UI (fuera de
// este servicio) deposita para que authorize la canjee. El ticket es
// opaco, de un solo uso y de vida corta; en cache solo vive su hash.
type LoginTicket struct {
	TenantID    string          `json:"tenant_id"`
	UserID      string          `json:"user_id"`
	Email       string          `json:"email"`
	Role        string          `json:"role"`
	CompanyName string          `json:"company_name,omitempty"`
	Profile     json.RawMessage `json:"profile,omitempty"`
}

// TicketStore acuña y canjea login tickets sobre el cache compartido.
type TicketStore struct {
	cache cache.Client
}

// NewTicketStore crea el store.
func NewTicketStore(c cache.Client) *TicketStore {
	return &TicketStore{cache: c}
}

func ticketKey(hash string) string {
	return "ticket:" + hash
}

// Mint genera el ticket opaco y lo guarda bajo su hash. El valor crudo
// se retorna UNA sola vez (viaja al browser vía el login UI).
func (s *TicketStore) Mint(ctx context.Context, t LoginTicket) (string, error) {
	if t.TenantID == "" || t.UserID == "" || t.Email == "" {
		return "", ErrInvalidTicket
	}
	raw, err := token.GenerateOpaqueToken(ticketBytes)
	if err != nil {
		return "", fmt.Errorf("generate ticket: %w", err)
	}
	data, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("marshal ticket: %w", err)
	}
	if err := s.cache.Set(ctx, ticketKey(token.SHA256Base64URL(raw)), string(data), TicketTTL); err != nil {
		return "", fmt.Errorf("store ticket: %w", err)
	}
	return raw, nil
}

// Redeem canjea el ticket y lo borra en la misma operación atómica: de
// dos canjes concurrentes del mismo ticket exactamente uno gana, el otro
// falla con ErrInvalidTicket.
func (s *TicketStore) Redeem(ctx context.Context, raw string) (*LoginTicket, error) {
	if raw == "" {
		return nil, ErrInvalidTicket
	}
	data, err := s.cache.GetDel(ctx, ticketKey(token.SHA256Base64URL(raw)))
	if err != nil {
		if cache.IsNotFound(err) {
			return nil, ErrInvalidTicket
		}
		return nil, fmt.Errorf("redeem ticket: %w", err)
	}
	var t LoginTicket
	if err := json.Unmarshal([]byte(data), &t); err != nil {
		return nil, ErrInvalidTicket
	}
	return &t, nil
}
