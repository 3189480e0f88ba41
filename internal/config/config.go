// Package config carga la configuración del servicio: config.yaml con
// defaults sanos, pisado por variables de entorno.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dropDatabas3/vincsso/internal/notify"
)

type Config struct {
	App struct {
		// dev | staging | prod
		Env string `yaml:"env"`
	} `yaml:"app"`

	Server struct {
		Addr               string   `yaml:"addr"`
		CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
		ReadTimeout        string   `yaml:"read_timeout"`
		WriteTimeout       string   `yaml:"write_timeout"`
	} `yaml:"server"`

	Storage struct {
		// postgres | memory
		Driver   string `yaml:"driver"`
		DSN      string `yaml:"dsn"`
		Postgres struct {
			MaxConns        int    `yaml:"max_conns"`
			MinConns        int    `yaml:"min_conns"`
			ConnMaxLifetime string `yaml:"conn_max_lifetime"`
		} `yaml:"postgres"`
	} `yaml:"storage"`

	Cache struct {
		// memory | redis
		Kind  string `yaml:"kind"`
		Redis struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
		Memory struct {
			DefaultTTL string `yaml:"default_ttl"`
		} `yaml:"memory"`
	} `yaml:"cache"`

	JWT struct {
		Issuer    string `yaml:"issuer"`
		AccessTTL string `yaml:"access_ttl"`
		KeyID     string `yaml:"key_id"`
		// base64url(32 bytes); vacío en dev genera clave efímera
		KeySeed string `yaml:"key_seed"`
	} `yaml:"jwt"`

	Rate struct {
		Enabled bool `yaml:"enabled"`
		Token   struct {
			Limit  int    `yaml:"limit"`
			Window string `yaml:"window"`
		} `yaml:"token"`
		Authorize struct {
			Limit  int    `yaml:"limit"`
			Window string `yaml:"window"`
		} `yaml:"authorize"`
	} `yaml:"rate"`

	Admin struct {
		APIKey string `yaml:"api_key"`
	} `yaml:"admin"`

	SMTP notify.SMTPConfig `yaml:"smtp"`

	Notify struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"notify"`

	Sweeper struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"sweeper"`
}

// Load lee el YAML, aplica defaults, pisa con env y valida.
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, err
		}
	}

	// sane defaults
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ReadTimeout == "" {
		c.Server.ReadTimeout = "10s"
	}
	if c.Server.WriteTimeout == "" {
		c.Server.WriteTimeout = "20s"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.Cache.Memory.DefaultTTL == "" {
		c.Cache.Memory.DefaultTTL = "2m"
	}
	if c.Cache.Redis.Prefix == "" {
		c.Cache.Redis.Prefix = "vincsso"
	}
	if c.JWT.Issuer == "" {
		c.JWT.Issuer = "http://localhost:8080"
	}
	if c.JWT.AccessTTL == "" {
		c.JWT.AccessTTL = "15m"
	}
	if c.JWT.KeyID == "" {
		c.JWT.KeyID = "sso-1"
	}
	if c.Rate.Token.Limit == 0 {
		c.Rate.Token.Limit = 30
	}
	if c.Rate.Token.Window == "" {
		c.Rate.Token.Window = "1m"
	}
	if c.Rate.Authorize.Limit == 0 {
		c.Rate.Authorize.Limit = 60
	}
	if c.Rate.Authorize.Window == "" {
		c.Rate.Authorize.Window = "1m"
	}
	if c.SMTP.TLSMode == "" {
		c.SMTP.TLSMode = "auto"
	}

	c.applyEnvOverrides()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate chequea combinaciones inválidas.
func (c *Config) Validate() error {
	if c.Storage.Driver != "memory" && c.Storage.Driver != "postgres" {
		return fmt.Errorf("storage.driver %q: want memory|postgres", c.Storage.Driver)
	}
	if c.Storage.Driver == "postgres" && c.Storage.DSN == "" {
		return fmt.Errorf("storage.dsn required with postgres driver")
	}
	if c.Cache.Kind == "redis" && c.Cache.Redis.Addr == "" {
		return fmt.Errorf("cache.redis.addr required with redis cache")
	}
	if c.Rate.Enabled && c.Cache.Redis.Addr == "" {
		return fmt.Errorf("rate limiting requires cache.redis.addr")
	}
	for _, d := range []struct{ name, v string }{
		{"server.read_timeout", c.Server.ReadTimeout},
		{"server.write_timeout", c.Server.WriteTimeout},
		{"jwt.access_ttl", c.JWT.AccessTTL},
		{"rate.token.window", c.Rate.Token.Window},
		{"rate.authorize.window", c.Rate.Authorize.Window},
		{"cache.memory.default_ttl", c.Cache.Memory.DefaultTTL},
	} {
		if d.v == "" {
			continue
		}
		if _, err := time.ParseDuration(d.v); err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
	}
	if c.Storage.Postgres.ConnMaxLifetime != "" {
		if _, err := time.ParseDuration(c.Storage.Postgres.ConnMaxLifetime); err != nil {
			return fmt.Errorf("storage.postgres.conn_max_lifetime: %w", err)
		}
	}
	if strings.EqualFold(c.App.Env, "prod") {
		if c.Admin.APIKey == "" {
			return fmt.Errorf("admin.api_key required in prod")
		}
		if c.JWT.KeySeed == "" {
			return fmt.Errorf("jwt.key_seed required in prod")
		}
	}
	return nil
}

// Duration parsea una duración ya validada.
func Duration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

// ─── env overrides ───

// applyEnvOverrides: pisa el YAML con variables de entorno.
func (c *Config) applyEnvOverrides() {
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = v
	}
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvCSV("CORS_ALLOWED_ORIGINS"); ok {
		c.Server.CORSAllowedOrigins = v
	}
	if v, ok := getEnvStr("STORAGE_DRIVER"); ok {
		c.Storage.Driver = v
	}
	if v, ok := getEnvStr("DATABASE_URL"); ok {
		c.Storage.DSN = v
	}
	if v, ok := getEnvStr("CACHE_KIND"); ok {
		c.Cache.Kind = v
	}
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Cache.Redis.Addr = v
	}
	if v, ok := getEnvStr("REDIS_PASSWORD"); ok {
		c.Cache.Redis.Password = v
	}
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.Cache.Redis.DB = v
	}
	if v, ok := getEnvStr("JWT_ISSUER"); ok {
		c.JWT.Issuer = v
	}
	if v, ok := getEnvStr("JWT_KEY_SEED"); ok {
		c.JWT.KeySeed = v
	}
	if v, ok := getEnvStr("ADMIN_API_KEY"); ok {
		c.Admin.APIKey = v
	}
	if v, ok := getEnvBool("RATE_ENABLED"); ok {
		c.Rate.Enabled = v
	}
	if v, ok := getEnvStr("SMTP_HOST"); ok {
		c.SMTP.Host = v
	}
	if v, ok := getEnvInt("SMTP_PORT"); ok {
		c.SMTP.Port = v
	}
	if v, ok := getEnvStr("SMTP_USERNAME"); ok {
		c.SMTP.Username = v
	}
	if v, ok := getEnvStr("SMTP_PASSWORD"); ok {
		c.SMTP.Password = v
	}
	if v, ok := getEnvStr("SMTP_FROM"); ok {
		c.SMTP.From = v
	}
	if v, ok := getEnvBool("NOTIFY_ENABLED"); ok {
		c.Notify.Enabled = v
	}
	if v, ok := getEnvBool("SWEEPER_ENABLED"); ok {
		c.Sweeper.Enabled = v
	}
}

// ---- Helpers env ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}

func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}

func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}

func getEnvCSV(key string) ([]string, bool) {
	if s, ok := getEnvStr(key); ok {
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out, len(out) > 0
	}
	return nil, false
}
