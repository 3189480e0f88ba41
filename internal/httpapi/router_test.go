package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/dropDatabas3/vincsso/internal/cache"
	"github.com/dropDatabas3/vincsso/internal/domain/repository"
	"github.com/dropDatabas3/vincsso/internal/jwtx"
	"github.com/dropDatabas3/vincsso/internal/security/token"
	"github.com/dropDatabas3/vincsso/internal/sso"
	"github.com/dropDatabas3/vincsso/internal/store/memory"
)

const testAdminKey = "test-admin-key"

type testEnv struct {
	handler  http.Handler
	api      *API
	store    *memory.Store
	tickets  *sso.TicketStore
	attempts *sso.AttemptLedger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := memory.New()
	c := cache.NewMemory("test", 0)
	policy := sso.NewPolicyStore(store.SecurityConfig, c)
	attempts := sso.NewAttemptLedger(store.LoginAttempts, policy)
	ks, err := jwtx.NewEd25519("test-key")
	if err != nil {
		t.Fatalf("NewEd25519: %v", err)
	}

	api := &API{
		Clients:  sso.NewClientRegistry(store.Clients),
		Broker:   sso.NewCodeBroker(store.AuthCodes),
		Sessions: sso.NewSessionManager(store.Sessions, policy, nil),
		Attempts: attempts,
		IPBlocks: sso.NewIPBlockRegistry(store.BlockedIPs, policy),
		Policy:   policy,
		Tickets:  sso.NewTicketStore(c),
		Issuer:   jwtx.NewIssuer("https://sso.test", ks),
	}
	handler := NewRouter(RouterDeps{API: api, AdminAPIKey: testAdminKey})
	return &testEnv{handler: handler, api: api, store: store, tickets: api.Tickets, attempts: attempts}
}

func (e *testEnv) registerClient(t *testing.T, firstParty bool) string {
	t.Helper()
	_, secret, err := e.api.Clients.Register(context.Background(), sso.RegisterInput{
		ClientID:     "acme-web",
		TenantID:     "acme",
		Name:         "Acme Web",
		RedirectURIs: []string{"https://acme.example/cb"},
		App:          repository.AppStorefront,
		FirstParty:   firstParty,
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	return secret
}

func (e *testEnv) mintTicket(t *testing.T) string {
	t.Helper()
	raw, err := e.tickets.Mint(context.Background(), sso.LoginTicket{
		TenantID: "acme",
		UserID:   "u1",
		Email:    "ana@acme.example",
		Role:     "member",
		Profile:  json.RawMessage(`{"name":"Ana"}`),
	})
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	return raw
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func authorizeURL(ticket, challenge, method string) string {
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", "acme-web")
	q.Set("redirect_uri", "https://acme.example/cb")
	q.Set("state", "xyz")
	q.Set("scope", "profile")
	q.Set("ticket", ticket)
	if challenge != "" {
		q.Set("code_challenge", challenge)
		q.Set("code_challenge_method", method)
	}
	return "/oauth2/authorize?" + q.Encode()
}

func locationQuery(t *testing.T, rec *httptest.ResponseRecorder) url.Values {
	t.Helper()
	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	loc, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("Location: %v", err)
	}
	return loc.Query()
}

func postToken(e *testEnv, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/oauth2/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return e.do(req)
}

// TestAuthorizeTokenFlow recorre el circuito completo: authorize con
// ticket + PKCE S256, exchange del code, introspección, refresh, re-uso
// del code y revocación admin.
func TestAuthorizeTokenFlow(t *testing.T) {
	e := newTestEnv(t)
	e.registerClient(t, true) // first-party: refresca sin secret

	verifier := "abc123"
	challenge := token.SHA256Base64URL(verifier)

	rec := e.do(httptest.NewRequest(http.MethodGet, authorizeURL(e.mintTicket(t), challenge, "S256"), nil))
	q := locationQuery(t, rec)
	code := q.Get("code")
	if code == "" {
		t.Fatalf("sin code en redirect: %v", q)
	}
	if q.Get("state") != "xyz" {
		t.Fatalf("state = %q", q.Get("state"))
	}

	// Exchange con verifier correcto.
	form := url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {"acme-web"},
		"code":          {code},
		"code_verifier": {verifier},
		"redirect_uri":  {"https://acme.example/cb"},
	}
	rec = postToken(e, form)
	if rec.Code != http.StatusOK {
		t.Fatalf("token status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "no-store" {
		t.Fatalf("Cache-Control = %q", cc)
	}

	var tok tokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &tok); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if tok.AccessToken == "" || tok.SessionID == "" || tok.RefreshToken == "" {
		t.Fatalf("respuesta incompleta: %+v", tok)
	}
	if tok.TokenType != "Bearer" {
		t.Fatalf("token_type = %q", tok.TokenType)
	}
	if !strings.Contains(string(tok.Profile), "Ana") {
		t.Fatalf("profile = %s", tok.Profile)
	}

	// El access token es un JWT verificable con sid = hash de la sesión.
	claims, err := e.api.Issuer.Parse(tok.AccessToken)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims["sid"] != token.SHA256Base64URL(tok.SessionID) {
		t.Fatal("sid no coincide con el hash del session id")
	}
	if claims["tid"] != "acme" {
		t.Fatalf("tid = %v", claims["tid"])
	}

	// Introspección: activa.
	rec = e.doValidate(tok.SessionID)
	var v validateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode validate: %v", err)
	}
	if !v.Active || v.Session == nil || v.Session.UserID != "u1" {
		t.Fatalf("validate = %+v", v)
	}

	// Refresh: rota el token, el anterior muere.
	rec = postToken(e, url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {"acme-web"},
		"refresh_token": {tok.RefreshToken},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var tok2 tokenResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &tok2)
	if tok2.RefreshToken == "" || tok2.RefreshToken == tok.RefreshToken {
		t.Fatal("refresh token no rotado")
	}
	rec = postToken(e, url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {"acme-web"},
		"refresh_token": {tok.RefreshToken},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("refresh viejo status = %d", rec.Code)
	}

	// Re-exchange del mismo code: invalid_grant.
	rec = postToken(e, form)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("re-exchange status = %d", rec.Code)
	}
	var apiErr apiError
	_ = json.Unmarshal(rec.Body.Bytes(), &apiErr)
	if apiErr.Error != "invalid_grant" {
		t.Fatalf("error = %q", apiErr.Error)
	}

	// Revocación admin por hash; la introspección pasa a revoked.
	sidHash := token.SHA256Base64URL(tok.SessionID)
	req := httptest.NewRequest(http.MethodDelete, "/v1/admin/tenants/acme/sessions/"+sidHash, nil)
	req.Header.Set("X-Admin-API-Key", testAdminKey)
	rec = e.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("revoke status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = e.doValidate(tok.SessionID)
	_ = json.Unmarshal(rec.Body.Bytes(), &v)
	if v.Active || v.Reason != "revoked" {
		t.Fatalf("validate tras revoke = %+v", v)
	}
}

func (e *testEnv) doValidate(sessionID string) *httptest.ResponseRecorder {
	body, _ := json.Marshal(validateRequest{SessionID: sessionID})
	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/validate", strings.NewReader(string(body)))
	req.Header.Set("Content-Type", "application/json")
	return e.do(req)
}

func TestAuthorizeRejectsUnknownClient(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(httptest.NewRequest(http.MethodGet, authorizeURL("tk", "", ""), nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	var apiErr apiError
	_ = json.Unmarshal(rec.Body.Bytes(), &apiErr)
	if apiErr.Error != "invalid_client" {
		t.Fatalf("error = %q", apiErr.Error)
	}
}

func TestAuthorizeRejectsUnregisteredRedirect(t *testing.T) {
	e := newTestEnv(t)
	e.registerClient(t, true)

	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", "acme-web")
	q.Set("redirect_uri", "https://evil.example/cb")
	rec := e.do(httptest.NewRequest(http.MethodGet, "/oauth2/authorize?"+q.Encode(), nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d: nunca redirigir a una URI no registrada", rec.Code)
	}
}

func TestAuthorizePublicClientRequiresPKCE(t *testing.T) {
	e := newTestEnv(t)
	e.registerClient(t, false)

	rec := e.do(httptest.NewRequest(http.MethodGet, authorizeURL(e.mintTicket(t), "", ""), nil))
	q := locationQuery(t, rec)
	if q.Get("error") != "invalid_request" {
		t.Fatalf("error = %q", q.Get("error"))
	}
}

func TestAuthorizeInvalidTicket(t *testing.T) {
	e := newTestEnv(t)
	e.registerClient(t, true)

	rec := e.do(httptest.NewRequest(http.MethodGet, authorizeURL("ticket-falso", "", ""), nil))
	q := locationQuery(t, rec)
	if q.Get("error") != "access_denied" {
		t.Fatalf("error = %q", q.Get("error"))
	}
}

func TestAuthorizeLockoutGate(t *testing.T) {
	e := newTestEnv(t)
	e.registerClient(t, true)
	ctx := context.Background()

	// 5 fallos en la ventana: el 6º intento se rechaza aun con ticket válido.
	for i := 0; i < 5; i++ {
		if err := e.attempts.RecordAttempt(ctx, sso.AttemptInput{
			TenantID:  "acme",
			Email:     "ana@acme.example",
			IPAddress: "192.0.2.1",
			Success:   false,
			Reason:    repository.FailureInvalidCredentials,
		}); err != nil {
			t.Fatalf("RecordAttempt: %v", err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, authorizeURL(e.mintTicket(t), "", ""), nil)
	req.RemoteAddr = "192.0.2.1:4444"
	rec := e.do(req)
	q := locationQuery(t, rec)
	if q.Get("error") != "access_denied" {
		t.Fatalf("error = %q, quería access_denied por lockout", q.Get("error"))
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("sin Retry-After en lockout")
	}
}

func TestAuthorizeIPBlockGate(t *testing.T) {
	e := newTestEnv(t)
	e.registerClient(t, true)

	// Bloqueo GLOBAL: pega aunque el tenant no tenga bloqueo propio.
	if _, err := e.api.IPBlocks.Block(context.Background(), repository.BlockIPInput{
		IPAddress: "203.0.113.9",
		Reason:    repository.BlockReasonManual,
		BlockedBy: "test",
	}); err != nil {
		t.Fatalf("Block: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, authorizeURL(e.mintTicket(t), "", ""), nil)
	req.RemoteAddr = "203.0.113.9:1000"
	rec := e.do(req)
	q := locationQuery(t, rec)
	if q.Get("error") != "access_denied" {
		t.Fatalf("error = %q, quería access_denied por ip block", q.Get("error"))
	}
}

func TestTokenWrongVerifierBurnsCode(t *testing.T) {
	e := newTestEnv(t)
	e.registerClient(t, false)

	challenge := token.SHA256Base64URL("abc123")
	rec := e.do(httptest.NewRequest(http.MethodGet, authorizeURL(e.mintTicket(t), challenge, "S256"), nil))
	code := locationQuery(t, rec).Get("code")

	form := url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {"acme-web"},
		"code":          {code},
		"code_verifier": {"otro-verifier"},
		"redirect_uri":  {"https://acme.example/cb"},
	}
	if rec := postToken(e, form); rec.Code != http.StatusBadRequest {
		t.Fatalf("verifier malo status = %d", rec.Code)
	}

	// El code quedó quemado: el verifier correcto ya no sirve.
	form.Set("code_verifier", "abc123")
	if rec := postToken(e, form); rec.Code != http.StatusBadRequest {
		t.Fatalf("code quemado status = %d", rec.Code)
	}
}

func TestTokenConfidentialClientSecret(t *testing.T) {
	e := newTestEnv(t)
	secret := e.registerClient(t, true)

	rec := e.do(httptest.NewRequest(http.MethodGet, authorizeURL(e.mintTicket(t), "", ""), nil))
	code := locationQuery(t, rec).Get("code")

	// Secret incorrecto: 401 invalid_client.
	form := url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {"acme-web"},
		"client_secret": {"incorrecto"},
		"code":          {code},
		"redirect_uri":  {"https://acme.example/cb"},
	}
	if rec := postToken(e, form); rec.Code != http.StatusUnauthorized {
		t.Fatalf("secret malo status = %d", rec.Code)
	}

	// El code sigue vivo (el fallo fue de client, no de grant).
	form.Set("client_secret", secret)
	if rec := postToken(e, form); rec.Code != http.StatusOK {
		t.Fatalf("secret bueno status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

// obtainTokens corre authorize + exchange PKCE para acme-web y devuelve
// la respuesta del token endpoint.
func (e *testEnv) obtainTokens(t *testing.T) tokenResponse {
	t.Helper()
	verifier := "abc123"
	challenge := token.SHA256Base64URL(verifier)

	rec := e.do(httptest.NewRequest(http.MethodGet, authorizeURL(e.mintTicket(t), challenge, "S256"), nil))
	code := locationQuery(t, rec).Get("code")
	if code == "" {
		t.Fatal("sin code en redirect")
	}

	rec = postToken(e, url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {"acme-web"},
		"code":          {code},
		"code_verifier": {verifier},
		"redirect_uri":  {"https://acme.example/cb"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("exchange status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var tok tokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &tok); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return tok
}

func TestRefreshBoundToIssuingClient(t *testing.T) {
	e := newTestEnv(t)
	e.registerClient(t, true)
	_, otherSecret, err := e.api.Clients.Register(context.Background(), sso.RegisterInput{
		ClientID:     "acme-api",
		TenantID:     "acme",
		Name:         "Acme API",
		RedirectURIs: []string{"https://api.acme.example/cb"},
		App:          repository.AppAdmin,
	})
	if err != nil {
		t.Fatalf("Register acme-api: %v", err)
	}

	tok := e.obtainTokens(t)

	// Otro client registrado, bien autenticado, NO canjea el refresh ajeno.
	rec := postToken(e, url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {"acme-api"},
		"client_secret": {otherSecret},
		"refresh_token": {tok.RefreshToken},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("refresh cruzado status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var apiErr apiError
	_ = json.Unmarshal(rec.Body.Bytes(), &apiErr)
	if apiErr.Error != "invalid_grant" {
		t.Fatalf("error = %q", apiErr.Error)
	}

	// El dueño sigue pudiendo refrescar.
	rec = postToken(e, url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {"acme-web"},
		"refresh_token": {tok.RefreshToken},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh del dueño status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestRefreshThirdPartyRequiresSecret(t *testing.T) {
	e := newTestEnv(t)
	secret := e.registerClient(t, false)

	tok := e.obtainTokens(t)

	// Sin secret: un client de terceros no refresca solo con posesión.
	rec := postToken(e, url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {"acme-web"},
		"refresh_token": {tok.RefreshToken},
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("sin secret status = %d, body = %s", rec.Code, rec.Body.String())
	}

	// Secret incorrecto: 401.
	rec = postToken(e, url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {"acme-web"},
		"client_secret": {"incorrecto"},
		"refresh_token": {tok.RefreshToken},
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("secret malo status = %d", rec.Code)
	}

	// Secret correcto: el refresh rota normalmente.
	rec = postToken(e, url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {"acme-web"},
		"client_secret": {secret},
		"refresh_token": {tok.RefreshToken},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("secret bueno status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestAdminRevokeSessionScopedToTenant(t *testing.T) {
	e := newTestEnv(t)
	e.registerClient(t, true)
	tok := e.obtainTokens(t)
	sidHash := token.SHA256Base64URL(tok.SessionID)

	// El hash es de acme: la URL de otro tenant responde 404 y no revoca.
	req := httptest.NewRequest(http.MethodDelete, "/v1/admin/tenants/globex/sessions/"+sidHash, nil)
	req.Header.Set("X-Admin-API-Key", testAdminKey)
	if rec := e.do(req); rec.Code != http.StatusNotFound {
		t.Fatalf("revoke cruzado status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec := e.doValidate(tok.SessionID)
	var v validateResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &v)
	if !v.Active {
		t.Fatalf("la sesión no debía revocarse: %+v", v)
	}

	// Por la URL del tenant dueño sí.
	req = httptest.NewRequest(http.MethodDelete, "/v1/admin/tenants/acme/sessions/"+sidHash, nil)
	req.Header.Set("X-Admin-API-Key", testAdminKey)
	if rec := e.do(req); rec.Code != http.StatusOK {
		t.Fatalf("revoke propio status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestValidateUnknownSession(t *testing.T) {
	e := newTestEnv(t)
	rec := e.doValidate("no-existe")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var v validateResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &v)
	if v.Active || v.Reason != "not_found" {
		t.Fatalf("validate = %+v", v)
	}
}

func TestAdminRequiresAPIKey(t *testing.T) {
	e := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/admin/ipblocks", nil)
	if rec := e.do(req); rec.Code != http.StatusUnauthorized {
		t.Fatalf("sin key status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/admin/ipblocks", nil)
	req.Header.Set("X-Admin-API-Key", "incorrecta")
	if rec := e.do(req); rec.Code != http.StatusUnauthorized {
		t.Fatalf("key mala status = %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	e := newTestEnv(t)
	if rec := e.do(httptest.NewRequest(http.MethodGet, "/healthz", nil)); rec.Code != http.StatusOK {
		t.Fatalf("healthz = %d", rec.Code)
	}
	if rec := e.do(httptest.NewRequest(http.MethodGet, "/readyz", nil)); rec.Code != http.StatusOK {
		t.Fatalf("readyz = %d", rec.Code)
	}
	rec := e.do(httptest.NewRequest(http.MethodGet, "/.well-known/jwks.json", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "OKP") {
		t.Fatalf("jwks = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestReadyzFailing(t *testing.T) {
	e := newTestEnv(t)
	h := NewRouter(RouterDeps{
		API:         e.api,
		AdminAPIKey: testAdminKey,
		Ready: func(ctx context.Context) error {
			return context.DeadlineExceeded
		},
	})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz = %d", rec.Code)
	}
}

func TestRequestIDPropagation(t *testing.T) {
	e := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "mi-rid")
	rec := e.do(req)
	if rec.Header().Get("X-Request-ID") != "mi-rid" {
		t.Fatalf("X-Request-ID = %q", rec.Header().Get("X-Request-ID"))
	}

	rec = e.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("sin X-Request-ID generado")
	}
}
