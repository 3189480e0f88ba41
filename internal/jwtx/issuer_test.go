package jwtx

import (
	"testing"
	"time"
)

func TestIssueAndParse(t *testing.T) {
	ks, err := NewEd25519("test-key")
	if err != nil {
		t.Fatalf("NewEd25519: %v", err)
	}
	iss := NewIssuer("https://sso.test", ks)

	signed, jti, exp, err := iss.IssueAccess(AccessClaims{
		TenantID:  "acme",
		UserID:    "u1",
		Email:     "u1@acme.test",
		Role:      "customer",
		ClientID:  "acme-web",
		SessionID: "session-hash",
	})
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if jti == "" {
		t.Fatal("empty jti")
	}
	if until := time.Until(exp); until < 14*time.Minute || until > 16*time.Minute {
		t.Errorf("exp = %v, want ~15m out", exp)
	}

	claims, err := iss.Parse(signed)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims["tid"] != "acme" || claims["sid"] != "session-hash" {
		t.Errorf("claims tid/sid = %v/%v", claims["tid"], claims["sid"])
	}
	if claims["sub"] != "u1" || claims["jti"] != jti {
		t.Errorf("claims sub/jti = %v/%v", claims["sub"], claims["jti"])
	}
}

func TestParse_RejectsWrongIssuerAndKey(t *testing.T) {
	ks1, _ := NewEd25519("k1")
	ks2, _ := NewEd25519("k2")

	signed, _, _, err := NewIssuer("https://sso.test", ks1).IssueAccess(AccessClaims{UserID: "u1", ClientID: "c"})
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}

	// Otra clave.
	if _, err := NewIssuer("https://sso.test", ks2).Parse(signed); err == nil {
		t.Error("token signed with another key accepted")
	}
	// Otro issuer.
	if _, err := NewIssuer("https://other.test", ks1).Parse(signed); err == nil {
		t.Error("token with wrong issuer accepted")
	}
}

func TestFromSeed_Deterministic(t *testing.T) {
	seed := "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA" // 32 bytes base64url
	a, err := FromSeed("k", seed)
	if err != nil {
		t.Fatalf("FromSeed: %v", err)
	}
	b, err := FromSeed("k", seed)
	if err != nil {
		t.Fatalf("FromSeed: %v", err)
	}
	if !a.Pub.Equal(b.Pub) {
		t.Error("same seed produced different keys")
	}

	if _, err := FromSeed("k", "short"); err == nil {
		t.Error("short seed accepted")
	}
}
