// Package jwtx firma y valida los access tokens del SSO (EdDSA/Ed25519).
package jwtx

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// KeySet mantiene la clave de firma activa con su KID.
type KeySet struct {
	Priv ed25519.PrivateKey
	Pub  ed25519.PublicKey
	KID  string
	Alg  string // "EdDSA"
}

// NewEd25519 genera una clave Ed25519 en memoria con el KID dado.
func NewEd25519(kid string) (*KeySet, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &KeySet{Priv: priv, Pub: pub, KID: kid, Alg: "EdDSA"}, nil
}

// FromSeed deriva la clave de un seed base64url de 32 bytes (config de
// producción: misma clave en todos los nodos).
func FromSeed(kid, seedB64 string) (*KeySet, error) {
	seed, err := base64.RawURLEncoding.DecodeString(seedB64)
	if err != nil {
		return nil, fmt.Errorf("decode key seed: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("key seed: got %d bytes, want %d", len(seed), ed25519.SeedSize)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &KeySet{
		Priv: priv,
		Pub:  priv.Public().(ed25519.PublicKey),
		KID:  kid,
		Alg:  "EdDSA",
	}, nil
}

// ─── JWKS ───

type jwk struct {
	Kty string `json:"kty"` // "OKP"
	Crv string `json:"crv"` // "Ed25519"
	Kid string `json:"kid"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	X   string `json:"x"` // base64url(pub)
}

type jwks struct {
	Keys []jwk `json:"keys"`
}

// JWKSJSON devuelve el JWKS (solo la pública) en JSON.
func (k *KeySet) JWKSJSON() []byte {
	j := jwks{
		Keys: []jwk{{
			Kty: "OKP",
			Crv: "Ed25519",
			Kid: k.KID,
			Alg: k.Alg,
			Use: "sig",
			X:   base64.RawURLEncoding.EncodeToString(k.Pub),
		}},
	}
	b, _ := json.Marshal(j)
	return b
}
