package sso

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dropDatabas3/vincsso/internal/domain/repository"
	"github.com/dropDatabas3/vincsso/internal/store/memory"
)

func s256Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func testIssueInput(challenge, method string) IssueInput {
	return IssueInput{
		ClientID:        "acme-web",
		TenantID:        "acme",
		UserID:          "u1",
		UserEmail:       "u1@acme.test",
		UserRole:        "customer",
		RedirectURI:     "https://acme.example/cb",
		State:           "xyz",
		CodeChallenge:   challenge,
		ChallengeMethod: method,
	}
}

func TestBroker_ExchangeS256(t *testing.T) {
	b := NewCodeBroker(memory.NewAuthCodeRepo())
	ctx := context.Background()

	code, err := b.Issue(ctx, testIssueInput(s256Challenge("abc123"), repository.PKCEMethodS256))
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if code == "" {
		t.Fatal("empty code")
	}

	ac, err := b.Exchange(ctx, code, "abc123")
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if ac.UserID != "u1" || ac.TenantID != "acme" {
		t.Errorf("payload = %s/%s, want u1/acme", ac.UserID, ac.TenantID)
	}
}

func TestBroker_WrongVerifierBurnsCode(t *testing.T) {
	b := NewCodeBroker(memory.NewAuthCodeRepo())
	ctx := context.Background()

	code, err := b.Issue(ctx, testIssueInput(s256Challenge("abc123"), repository.PKCEMethodS256))
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if _, err := b.Exchange(ctx, code, "wrong"); !errors.Is(err, ErrInvalidGrant) {
		t.Fatalf("Exchange with wrong verifier: err = %v, want ErrInvalidGrant", err)
	}

	// El fallo de PKCE ya consumió el code: el verifier correcto llega tarde.
	if _, err := b.Exchange(ctx, code, "abc123"); !errors.Is(err, ErrInvalidGrant) {
		t.Fatalf("Exchange after burn: err = %v, want ErrInvalidGrant", err)
	}
}

func TestBroker_SingleUse(t *testing.T) {
	b := NewCodeBroker(memory.NewAuthCodeRepo())
	ctx := context.Background()

	code, err := b.Issue(ctx, testIssueInput("", ""))
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := b.Exchange(ctx, code, ""); err != nil {
		t.Fatalf("first Exchange: %v", err)
	}
	if _, err := b.Exchange(ctx, code, ""); !errors.Is(err, ErrInvalidGrant) {
		t.Fatalf("second Exchange: err = %v, want ErrInvalidGrant", err)
	}
}

func TestBroker_ConcurrentExchangeExactlyOneSuccess(t *testing.T) {
	b := NewCodeBroker(memory.NewAuthCodeRepo())
	ctx := context.Background()

	code, err := b.Issue(ctx, testIssueInput("", ""))
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	const n = 16
	var wg sync.WaitGroup
	results := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = b.Exchange(ctx, code, "")
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range results {
		if err == nil {
			ok++
		} else if !errors.Is(err, ErrInvalidGrant) {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 {
		t.Fatalf("%d successful exchanges, want exactly 1", ok)
	}
}

func TestBroker_ExpiredCode(t *testing.T) {
	repo := memory.NewAuthCodeRepo()
	b := NewCodeBroker(repo)
	ctx := context.Background()

	// Persistir directo con expiración en el pasado: el broker no puede
	// emitir codes vencidos.
	raw := "expired-code-raw"
	if _, err := repo.Create(ctx, repository.CreateAuthCodeInput{
		CodeHash:    hashForTest(raw),
		ClientID:    "acme-web",
		TenantID:    "acme",
		UserID:      "u1",
		RedirectURI: "https://acme.example/cb",
		ExpiresAt:   time.Now().UTC().Add(-time.Second),
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := b.Exchange(ctx, raw, ""); !errors.Is(err, ErrInvalidGrant) {
		t.Fatalf("Exchange expired: err = %v, want ErrInvalidGrant", err)
	}
}

func TestBroker_UnknownCode(t *testing.T) {
	b := NewCodeBroker(memory.NewAuthCodeRepo())
	if _, err := b.Exchange(context.Background(), "never-issued", ""); !errors.Is(err, ErrInvalidGrant) {
		t.Fatalf("Exchange unknown: err = %v, want ErrInvalidGrant", err)
	}
}

func TestBroker_PlainPKCE(t *testing.T) {
	b := NewCodeBroker(memory.NewAuthCodeRepo())
	ctx := context.Background()

	code, err := b.Issue(ctx, testIssueInput("plain-verifier", repository.PKCEMethodPlain))
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := b.Exchange(ctx, code, "plain-verifier"); err != nil {
		t.Fatalf("Exchange plain: %v", err)
	}
}

func TestBroker_RejectsUnknownMethod(t *testing.T) {
	b := NewCodeBroker(memory.NewAuthCodeRepo())
	_, err := b.Issue(context.Background(), testIssueInput("challenge", "S512"))
	if !errors.Is(err, repository.ErrInvalidInput) {
		t.Fatalf("Issue with bogus method: err = %v, want ErrInvalidInput", err)
	}
}
