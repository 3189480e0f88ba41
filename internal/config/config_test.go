package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeYAML(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	return p
}

func TestLoad_Defaults(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Server.Addr != ":8080" {
		t.Errorf("addr = %q", c.Server.Addr)
	}
	if c.Storage.Driver != "memory" || c.Cache.Kind != "memory" {
		t.Errorf("drivers = %q/%q, want memory/memory", c.Storage.Driver, c.Cache.Kind)
	}
	if c.JWT.AccessTTL != "15m" {
		t.Errorf("access ttl = %q", c.JWT.AccessTTL)
	}
}

func TestLoad_YAMLAndEnvOverride(t *testing.T) {
	p := writeYAML(t, `
server:
  addr: ":9090"
storage:
  driver: postgres
  dsn: postgres://localhost/sso
jwt:
  issuer: https://sso.acme.example
`)
	t.Setenv("SERVER_ADDR", ":7070")

	c, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	// env pisa yaml
	if c.Server.Addr != ":7070" {
		t.Errorf("addr = %q, want :7070", c.Server.Addr)
	}
	if c.Storage.DSN != "postgres://localhost/sso" {
		t.Errorf("dsn = %q", c.Storage.DSN)
	}
	if c.JWT.Issuer != "https://sso.acme.example" {
		t.Errorf("issuer = %q", c.JWT.Issuer)
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"postgres sin dsn", "storage:\n  driver: postgres\n"},
		{"driver desconocido", "storage:\n  driver: sqlite\n"},
		{"redis sin addr", "cache:\n  kind: redis\n"},
		{"rate sin redis", "rate:\n  enabled: true\n"},
		{"duracion invalida", "jwt:\n  access_ttl: nope\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(writeYAML(t, tc.yaml)); err == nil {
				t.Errorf("Load accepted invalid config")
			}
		})
	}
}

func TestLoad_ProdRequiresSecrets(t *testing.T) {
	p := writeYAML(t, "app:\n  env: prod\n")
	if _, err := Load(p); err == nil {
		t.Fatal("prod without admin key/seed accepted")
	}

	t.Setenv("ADMIN_API_KEY", "k")
	t.Setenv("JWT_KEY_SEED", "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")
	if _, err := Load(p); err != nil {
		t.Fatalf("prod with secrets rejected: %v", err)
	}
}
