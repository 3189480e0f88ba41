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
	// codeTTL: ventana corta entre el redirect y el exchange.
	codeTTL = 90 * time.Second

	// codeBytes de entropía del code opaco.
	codeBytes = 32
)

// CodeBroker emite y consume authorization codes de un solo uso.
type CodeBroker struct {
	repo repository.AuthCodeRepository
}

// NewCodeBroker crea el broker.
func NewCodeBroker(repo repository.AuthCodeRepository) *CodeBroker {
	return &CodeBroker{repo: repo}
}

// IssueInput describe el code a emitir. El redirect_uri llega ya validado
// contra el client por el handler de authorize.
type IssueInput struct {
	ClientID        string
	TenantID        string
	UserID          string
	UserEmail       string
	UserRole        string
	RedirectURI     string
	State           string
	Scope           string
	CodeChallenge   string
	ChallengeMethod string
	ProfileJSON     []byte
}

// Issue genera el code opaco, persiste SOLO su hash y retorna el valor
// crudo (única vez que existe fuera del redirect).
func (b *CodeBroker) Issue(ctx context.Context, input IssueInput) (string, error) {
	if input.CodeChallenge != "" {
		m := input.ChallengeMethod
		if m == "" {
			m = repository.PKCEMethodPlain
		}
		if m != repository.PKCEMethodPlain && m != repository.PKCEMethodS256 {
			return "", repository.ErrInvalidInput
		}
		input.ChallengeMethod = m
	}

	code, err := token.GenerateOpaqueToken(codeBytes)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}

	_, err = b.repo.Create(ctx, repository.CreateAuthCodeInput{
		CodeHash:        token.SHA256Base64URL(code),
		ClientID:        input.ClientID,
		TenantID:        input.TenantID,
		UserID:          input.UserID,
		UserEmail:       input.UserEmail,
		UserRole:        input.UserRole,
		RedirectURI:     input.RedirectURI,
		State:           input.State,
		Scope:           input.Scope,
		CodeChallenge:   input.CodeChallenge,
		ChallengeMethod: input.ChallengeMethod,
		ProfileJSON:     input.ProfileJSON,
		ExpiresAt:       time.Now().UTC().Add(codeTTL),
	})
	if err != nil {
		return "", fmt.Errorf("persist code: %w", err)
	}
	metrics.CodesIssued.Inc()
	return code, nil
}

// Exchange consume el code (exactamente una vez, aun bajo concurrencia) y
// verifica PKCE. Un fallo de PKCE DESPUÉS del consumo igual quema el code.
// Todas las causas de fallo colapsan en ErrInvalidGrant de cara afuera;
// la causa real va a logs y métricas.
func (b *CodeBroker) Exchange(ctx context.Context, code, verifier string) (*repository.AuthorizationCode, error) {
	start := time.Now()
	defer func() {
		metrics.ExchangeLatency.Observe(float64(time.Since(start).Milliseconds()))
	}()

	now := time.Now().UTC()
	ac, err := b.repo.Consume(ctx, token.SHA256Base64URL(code), now)
	if err != nil {
		cause := "not_found"
		if repository.IsCodeConsumed(err) {
			cause = "already_used"
		} else if !repository.IsNotFound(err) {
			return nil, fmt.Errorf("consume code: %w", err)
		}
		metrics.CodeExchanges.WithLabelValues(cause).Inc()
		logger.Named("sso.broker").Warn("code exchange rejected", logger.Reason(cause))
		return nil, ErrInvalidGrant
	}

	if ac.CodeChallenge != nil && *ac.CodeChallenge != "" {
		method := repository.PKCEMethodPlain
		if ac.ChallengeMethod != nil && *ac.ChallengeMethod != "" {
			method = *ac.ChallengeMethod
		}
		if !token.VerifyPKCE(method, *ac.CodeChallenge, verifier) {
			metrics.CodeExchanges.WithLabelValues("pkce_failed").Inc()
			logger.Named("sso.broker").Warn("code exchange rejected",
				logger.Reason("pkce_failed"),
				logger.ClientID(ac.ClientID),
				logger.TenantID(ac.TenantID),
			)
			return nil, ErrInvalidGrant
		}
	}

	metrics.CodeExchanges.WithLabelValues("ok").Inc()
	return ac, nil
}

// DeleteExpired purga codes muertos (lo llama el sweeper).
func (b *CodeBroker) DeleteExpired(ctx context.Context) (int, error) {
	return b.repo.DeleteExpired(ctx)
}
