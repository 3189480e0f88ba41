package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/dropDatabas3/vincsso/internal/domain/repository"
	"github.com/dropDatabas3/vincsso/internal/jwtx"
	"github.com/dropDatabas3/vincsso/internal/observability/logger"
	"github.com/dropDatabas3/vincsso/internal/sso"
	"github.com/google/uuid"
)

// Authorize implementa GET /oauth2/authorize.
//
// El usuario llega ya autenticado por el login UI (fuera de este
// servicio) con un ticket opaco de un solo uso. Acá se valida client y
// redirect, se corre el gate de seguridad (IP block + lockout), se
// registra el intento y se emite el code con 302 de vuelta al client.
//
// Errores de client/redirect responden 400 SIN redirect (RFC 6749 §4.1.2.1:
// nunca redirigir a una URI no validada). El resto vuelve al client con
// error= en la query.
func (a *API) Authorize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	clientID := q.Get("client_id")
	redirectURI := q.Get("redirect_uri")
	state := q.Get("state")

	client, err := a.Clients.Resolve(ctx, clientID)
	if err != nil {
		if errors.Is(err, sso.ErrInvalidClient) {
			WriteError(w, http.StatusBadRequest, "invalid_client", "client desconocido o inactivo", codeInvalidClient)
			return
		}
		WriteError(w, http.StatusInternalServerError, "internal_error", "error resolviendo client", codeInternal)
		return
	}
	if err := a.Clients.ValidateRedirect(client, redirectURI); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "redirect_uri no registrada", codeInvalidRedirect)
		return
	}

	// De acá en adelante el redirect es confiable: los errores vuelven al client.
	if q.Get("response_type") != "code" {
		redirectError(w, r, redirectURI, state, "unsupported_response_type", "solo response_type=code")
		return
	}

	challenge := q.Get("code_challenge")
	method := q.Get("code_challenge_method")
	if challenge == "" && !client.FirstParty {
		// Clients públicos sin secret: PKCE obligatorio.
		redirectError(w, r, redirectURI, state, "invalid_request", "pkce requerido para clients públicos")
		return
	}
	if challenge != "" && method != "" &&
		method != repository.PKCEMethodPlain && method != repository.PKCEMethodS256 {
		redirectError(w, r, redirectURI, state, "invalid_request", "code_challenge_method debe ser plain o S256")
		return
	}

	ip := clientIP(r)
	tenantID := client.TenantID

	// Gate 1: IP bloqueada (se chequea antes de tocar el ledger).
	blocked, _, err := a.IPBlocks.IsBlocked(ctx, ip, tenantID)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "internal_error", "error consultando bloqueos", codeInternal)
		return
	}
	if blocked {
		a.recordAttempt(ctx, r, tenantID, "", clientID, false, repository.FailureIPBlocked)
		redirectError(w, r, redirectURI, state, "access_denied", "acceso denegado")
		return
	}

	// Canjear el ticket: identifica al usuario ya autenticado.
	ticket, err := a.Tickets.Redeem(ctx, q.Get("ticket"))
	if err != nil {
		if !errors.Is(err, sso.ErrInvalidTicket) {
			WriteError(w, http.StatusInternalServerError, "internal_error", "error canjeando ticket", codeInternal)
			return
		}
		a.recordAttempt(ctx, r, tenantID, "", clientID, false, repository.FailureInvalidCredentials)
		redirectError(w, r, redirectURI, state, "access_denied", "ticket inválido o vencido")
		return
	}
	if ticket.TenantID != tenantID {
		a.recordAttempt(ctx, r, tenantID, ticket.Email, clientID, false, repository.FailureInvalidCredentials)
		redirectError(w, r, redirectURI, state, "access_denied", "ticket de otro tenant")
		return
	}

	// Gate 2: lockout por brute force. Rechaza aun con ticket válido.
	lock, err := a.Attempts.CheckLockout(ctx, tenantID, ticket.Email, ip)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "internal_error", "error evaluando lockout", codeInternal)
		return
	}
	if lock.Locked {
		a.recordAttempt(ctx, r, tenantID, ticket.Email, clientID, false, repository.FailureAccountLocked)
		if lock.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(lock.RetryAfter.Seconds())))
		}
		redirectError(w, r, redirectURI, state, "access_denied", "cuenta bloqueada temporalmente")
		return
	}

	code, err := a.Broker.Issue(ctx, sso.IssueInput{
		ClientID:        client.ClientID,
		TenantID:        tenantID,
		UserID:          ticket.UserID,
		UserEmail:       ticket.Email,
		UserRole:        ticket.Role,
		RedirectURI:     redirectURI,
		State:           state,
		Scope:           q.Get("scope"),
		CodeChallenge:   challenge,
		ChallengeMethod: method,
		ProfileJSON:     ticket.Profile,
	})
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "internal_error", "error emitiendo code", codeInternal)
		return
	}

	a.recordAttempt(ctx, r, tenantID, ticket.Email, clientID, true, "")

	loc, _ := url.Parse(redirectURI)
	rq := loc.Query()
	rq.Set("code", code)
	if state != "" {
		rq.Set("state", state)
	}
	loc.RawQuery = rq.Encode()
	http.Redirect(w, r, loc.String(), http.StatusFound)
}

func redirectError(w http.ResponseWriter, r *http.Request, redirectURI, state, code, desc string) {
	loc, err := url.Parse(redirectURI)
	if err != nil {
		WriteError(w, http.StatusBadRequest, code, desc, codeInvalidRequest)
		return
	}
	q := loc.Query()
	q.Set("error", code)
	q.Set("error_description", desc)
	if state != "" {
		q.Set("state", state)
	}
	loc.RawQuery = q.Encode()
	http.Redirect(w, r, loc.String(), http.StatusFound)
}

// recordAttempt registra el intento en el ledger. Best-effort: un error
// acá no corta el flujo.
func (a *API) recordAttempt(ctx context.Context, r *http.Request, tenantID, email, clientID string, success bool, reason repository.FailureReason) {
	if err := a.Attempts.RecordAttempt(ctx, sso.AttemptInput{
		TenantID:  tenantID,
		Email:     email,
		IPAddress: clientIP(r),
		Success:   success,
		Reason:    reason,
		ClientID:  clientID,
		UserAgent: r.UserAgent(),
	}); err != nil {
		logger.Named("http.oauth").Warn("record attempt failed", logger.Err(err))
	}
}

// tokenResponse es el payload del token endpoint.
type tokenResponse struct {
	AccessToken  string          `json:"access_token"`
	TokenType    string          `json:"token_type"`
	ExpiresIn    int64           `json:"expires_in"`
	SessionID    string          `json:"session_id,omitempty"`
	RefreshToken string          `json:"refresh_token"`
	Profile      json.RawMessage `json:"profile,omitempty"`
}

// Token implementa POST /oauth2/token (application/x-www-form-urlencoded,
// RFC 6749 §4.1.3). Grants soportados: authorization_code y refresh_token.
// Toda respuesta con tokens lleva Cache-Control: no-store.
func (a *API) Token(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")

	if err := r.ParseForm(); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "form inválido", codeInvalidRequest)
		return
	}

	switch r.PostFormValue("grant_type") {
	case "authorization_code":
		a.tokenAuthorizationCode(w, r)
	case "refresh_token":
		a.tokenRefresh(w, r)
	default:
		WriteError(w, http.StatusBadRequest, "unsupported_grant_type", "grant_type no soportado", codeInvalidRequest)
	}
}

func (a *API) tokenAuthorizationCode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	clientID := r.PostFormValue("client_id")
	secret := r.PostFormValue("client_secret")
	verifier := r.PostFormValue("code_verifier")
	code := r.PostFormValue("code")
	redirectURI := r.PostFormValue("redirect_uri")

	// Autenticación del client: secret (confidencial) o PKCE (público).
	var client *repository.AuthClient
	var err error
	if secret != "" {
		client, err = a.Clients.Authenticate(ctx, clientID, secret)
	} else {
		client, err = a.Clients.Resolve(ctx, clientID)
		if err == nil && verifier == "" {
			err = sso.ErrPKCERequired
		}
	}
	if err != nil {
		switch {
		case errors.Is(err, sso.ErrInvalidClient):
			WriteError(w, http.StatusUnauthorized, "invalid_client", "client o secret inválidos", codeInvalidClient)
		case errors.Is(err, sso.ErrPKCERequired):
			WriteError(w, http.StatusBadRequest, "invalid_request", "code_verifier requerido", codePKCERequired)
		default:
			WriteError(w, http.StatusInternalServerError, "internal_error", "error autenticando client", codeInternal)
		}
		return
	}

	ac, err := a.Broker.Exchange(ctx, code, verifier)
	if err != nil {
		if errors.Is(err, sso.ErrInvalidGrant) {
			WriteError(w, http.StatusBadRequest, "invalid_grant", "code inválido, vencido o ya usado", codeInvalidGrant)
			return
		}
		WriteError(w, http.StatusInternalServerError, "internal_error", "error en el exchange", codeInternal)
		return
	}

	// El code debe haberse emitido para ESTE client y ESTE redirect.
	if ac.ClientID != client.ClientID || ac.RedirectURI != redirectURI {
		WriteError(w, http.StatusBadRequest, "invalid_grant", "code inválido, vencido o ya usado", codeInvalidGrant)
		return
	}

	scope := ""
	if ac.Scope != nil {
		scope = *ac.Scope
	}

	jti := uuid.NewString()
	created, err := a.Sessions.Create(ctx, sso.CreateInput{
		TenantID:      ac.TenantID,
		UserID:        ac.UserID,
		UserEmail:     ac.UserEmail,
		UserRole:      ac.UserRole,
		ProfileJSON:   ac.ProfileJSON,
		ClientApp:     client.App,
		ClientID:      client.ClientID,
		IPAddress:     clientIP(r),
		UserAgent:     r.UserAgent(),
		AccessTokenID: jti,
	})
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "internal_error", "error creando sesión", codeInternal)
		return
	}

	signed, _, exp, err := a.Issuer.IssueAccess(jwtx.AccessClaims{
		TenantID:  ac.TenantID,
		UserID:    ac.UserID,
		Email:     ac.UserEmail,
		Role:      ac.UserRole,
		ClientID:  client.ClientID,
		SessionID: created.Session.SessionIDHash,
		Scope:     scope,
		JTI:       jti,
	})
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "internal_error", "error firmando token", codeInternal)
		return
	}

	WriteJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  signed,
		TokenType:    "Bearer",
		ExpiresIn:    int64(time.Until(exp).Seconds()),
		SessionID:    created.SessionID,
		RefreshToken: created.RefreshToken,
		Profile:      json.RawMessage(ac.ProfileJSON),
	})
}

func (a *API) tokenRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	clientID := r.PostFormValue("client_id")
	secret := r.PostFormValue("client_secret")
	refresh := r.PostFormValue("refresh_token")

	// Mismo esquema que authorization_code: los clients confidenciales
	// (terceros) presentan secret también al refrescar; los first-party
	// públicos solo su client_id.
	var client *repository.AuthClient
	var err error
	if secret != "" {
		client, err = a.Clients.Authenticate(ctx, clientID, secret)
	} else {
		client, err = a.Clients.Resolve(ctx, clientID)
		if err == nil && !client.FirstParty {
			err = sso.ErrInvalidClient
		}
	}
	if err != nil {
		if errors.Is(err, sso.ErrInvalidClient) {
			WriteError(w, http.StatusUnauthorized, "invalid_client", "client o secret inválidos", codeInvalidClient)
			return
		}
		WriteError(w, http.StatusInternalServerError, "internal_error", "error resolviendo client", codeInternal)
		return
	}

	jti := uuid.NewString()
	s, newRefresh, err := a.Sessions.Refresh(ctx, refresh, client.ClientID, jti)
	if err != nil {
		if errors.Is(err, sso.ErrInvalidRefresh) {
			WriteError(w, http.StatusBadRequest, "invalid_grant", "refresh token inválido", codeInvalidRefresh)
			return
		}
		WriteError(w, http.StatusInternalServerError, "internal_error", "error rotando refresh", codeInternal)
		return
	}

	signed, _, exp, err := a.Issuer.IssueAccess(jwtx.AccessClaims{
		TenantID:  s.TenantID,
		UserID:    s.UserID,
		Email:     s.UserEmail,
		Role:      s.UserRole,
		ClientID:  client.ClientID,
		SessionID: s.SessionIDHash,
		JTI:       jti,
	})
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "internal_error", "error firmando token", codeInternal)
		return
	}

	WriteJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  signed,
		TokenType:    "Bearer",
		ExpiresIn:    int64(time.Until(exp).Seconds()),
		RefreshToken: newRefresh,
	})
}
