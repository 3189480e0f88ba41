package token

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
)

// GenerateOpaqueToken genera un token opaco aleatorio (base64url sin padding).
// Se usa para authorization codes, session ids y refresh tokens.
func GenerateOpaqueToken(nBytes int) (string, error) {
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// SHA256Base64URL devuelve sha256(input) en base64url sin padding.
// Es el hash con el que se persisten codes, session ids y refresh tokens:
// el valor crudo nunca toca la base.
func SHA256Base64URL(s string) string {
	sum := sha256.Sum256([]byte(s))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// VerifyPKCE valida el code_verifier contra el challenge almacenado según
// el método (RFC 7636). Comparación en tiempo constante.
func VerifyPKCE(method, challenge, verifier string) bool {
	var derived string
	switch method {
	case "S256":
		derived = SHA256Base64URL(verifier)
	case "plain":
		derived = verifier
	default:
		return false
	}
	return subtle.ConstantTimeCompare([]byte(derived), []byte(challenge)) == 1
}
