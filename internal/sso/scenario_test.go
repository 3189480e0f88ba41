package sso

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dropDatabas3/vincsso/internal/cache"
	"github.com/dropDatabas3/vincsso/internal/domain/repository"
	"github.com/dropDatabas3/vincsso/internal/store/memory"
)

// TestFullLoginFlow recorre el camino feliz completo del tenant acme:
// registro del client, emisión de code con PKCE S256, exchange, creación
// de sesión de 24h, re-exchange rechazado y revocación terminal.
func TestFullLoginFlow(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	ps := NewPolicyStore(store.SecurityConfig, cache.NewMemory("test", 0))
	clients := NewClientRegistry(store.Clients)
	broker := NewCodeBroker(store.AuthCodes)
	sessions := NewSessionManager(store.Sessions, ps, nil)

	// Client acme-web con redirect exacta.
	client, secret, err := clients.Register(ctx, RegisterInput{
		ClientID:     "acme-web",
		TenantID:     "acme",
		Name:         "Acme Web",
		RedirectURIs: []string{"https://acme.example/cb"},
		App:          repository.AppStorefront,
		FirstParty:   true,
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if secret == "" {
		t.Fatal("no raw secret returned")
	}
	if err := clients.ValidateRedirect(client, "https://acme.example/cb"); err != nil {
		t.Fatalf("ValidateRedirect: %v", err)
	}
	if err := clients.ValidateRedirect(client, "https://acme.example/cb/extra"); !errors.Is(err, ErrInvalidRedirect) {
		t.Fatalf("non-exact redirect accepted: %v", err)
	}
	if _, err := clients.Authenticate(ctx, "acme-web", secret); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if _, err := clients.Authenticate(ctx, "acme-web", "wrong"); !errors.Is(err, ErrInvalidClient) {
		t.Fatalf("wrong secret: err = %v, want ErrInvalidClient", err)
	}

	// Code para u1 con challenge S256(verifier="abc123").
	code, err := broker.Issue(ctx, IssueInput{
		ClientID:        "acme-web",
		TenantID:        "acme",
		UserID:          "u1",
		UserEmail:       "u1@acme.test",
		UserRole:        "customer",
		RedirectURI:     "https://acme.example/cb",
		CodeChallenge:   s256Challenge("abc123"),
		ChallengeMethod: repository.PKCEMethodS256,
	})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	ac, err := broker.Exchange(ctx, code, "abc123")
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}

	created, err := sessions.Create(ctx, CreateInput{
		TenantID:  ac.TenantID,
		UserID:    ac.UserID,
		UserEmail: ac.UserEmail,
		UserRole:  ac.UserRole,
		ClientApp: repository.AppStorefront,
		IPAddress: "10.0.0.1",
	})
	if err != nil {
		t.Fatalf("Create session: %v", err)
	}
	wantExp := time.Now().UTC().Add(24 * time.Hour)
	if d := created.Session.ExpiresAt.Sub(wantExp); d < -time.Minute || d > time.Minute {
		t.Errorf("ExpiresAt = %v, want ~now+24h", created.Session.ExpiresAt)
	}

	// Re-exchange del mismo code.
	if _, err := broker.Exchange(ctx, code, "abc123"); !errors.Is(err, ErrInvalidGrant) {
		t.Fatalf("re-exchange: err = %v, want ErrInvalidGrant", err)
	}

	// Revocación terminal.
	if err := sessions.Revoke(ctx, created.SessionID, "u1", "logout"); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if _, err := sessions.Validate(ctx, created.SessionID); !errors.Is(err, ErrSessionRevoked) {
		t.Fatalf("Validate after revoke: err = %v, want ErrSessionRevoked", err)
	}
}
