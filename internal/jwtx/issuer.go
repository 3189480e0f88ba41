package jwtx

import (
	"errors"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Errores de validación de tokens.
var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrInvalidIssuer = errors.New("invalid issuer")
)

// Issuer firma access tokens con la clave activa.
type Issuer struct {
	Iss       string
	Keys      *KeySet
	AccessTTL time.Duration
}

// NewIssuer crea el issuer con TTL default de 15m.
func NewIssuer(iss string, ks *KeySet) *Issuer {
	return &Issuer{Iss: iss, Keys: ks, AccessTTL: 15 * time.Minute}
}

// AccessClaims es el contenido propio del access token del SSO.
type AccessClaims struct {
	TenantID  string
	UserID    string
	Email     string
	Role      string
	ClientID  string
	SessionID string // hash de la sesión, nunca el valor crudo
	Scope     string

	// JTI opcional: si viene vacío se genera uno. El token endpoint lo
	// pre-genera para poder estampar el mismo valor en la sesión.
	JTI string
}

// IssueAccess emite el access token. Retorna (token firmado, jti, exp).
// El jti se persiste en la sesión como access_token_id.
func (i *Issuer) IssueAccess(c AccessClaims) (string, string, time.Time, error) {
	now := time.Now().UTC()
	exp := now.Add(i.AccessTTL)
	jti := c.JTI
	if jti == "" {
		jti = uuid.NewString()
	}

	claims := jwtv5.MapClaims{
		"iss": i.Iss,
		"sub": c.UserID,
		"aud": c.ClientID,
		"iat": now.Unix(),
		"nbf": now.Unix(),
		"exp": exp.Unix(),
		"jti": jti,
		"tid": c.TenantID,
		"sid": c.SessionID,
	}
	if c.Email != "" {
		claims["email"] = c.Email
	}
	if c.Role != "" {
		claims["role"] = c.Role
	}
	if c.Scope != "" {
		claims["scope"] = c.Scope
	}

	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodEdDSA, claims)
	tk.Header["kid"] = i.Keys.KID
	tk.Header["typ"] = "JWT"

	signed, err := tk.SignedString(i.Keys.Priv)
	if err != nil {
		return "", "", time.Time{}, err
	}
	return signed, jti, exp, nil
}

// Parse valida firma EdDSA, iss y exp/nbf, y devuelve las claims.
func (i *Issuer) Parse(token string) (jwtv5.MapClaims, error) {
	tok, err := jwtv5.Parse(token,
		func(t *jwtv5.Token) (any, error) { return i.Keys.Pub, nil },
		jwtv5.WithValidMethods([]string{"EdDSA"}),
		jwtv5.WithIssuer(i.Iss),
		jwtv5.WithLeeway(30*time.Second),
	)
	if err != nil || !tok.Valid {
		return nil, ErrInvalidToken
	}
	claims, ok := tok.Claims.(jwtv5.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
