// Command vincsso levanta el servicio SSO: OAuth2 authorize/token,
// validación de sesiones y la superficie admin.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	rdb "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/dropDatabas3/vincsso/internal/cache"
	"github.com/dropDatabas3/vincsso/internal/config"
	"github.com/dropDatabas3/vincsso/internal/domain/repository"
	"github.com/dropDatabas3/vincsso/internal/httpapi"
	"github.com/dropDatabas3/vincsso/internal/jwtx"
	"github.com/dropDatabas3/vincsso/internal/metrics"
	"github.com/dropDatabas3/vincsso/internal/notify"
	"github.com/dropDatabas3/vincsso/internal/observability/logger"
	"github.com/dropDatabas3/vincsso/internal/rate"
	"github.com/dropDatabas3/vincsso/internal/sso"
	"github.com/dropDatabas3/vincsso/internal/store/memory"
	"github.com/dropDatabas3/vincsso/internal/store/pg"
	"github.com/dropDatabas3/vincsso/internal/sweeper"
	migrations "github.com/dropDatabas3/vincsso/migrations/postgres"
)

// repos junta los repositorios del driver elegido más sus hooks de ciclo
// de vida.
type repos struct {
	Sessions       repository.SessionRepository
	AuthCodes      repository.AuthCodeRepository
	LoginAttempts  repository.LoginAttemptRepository
	BlockedIPs     repository.BlockedIPRepository
	SecurityConfig repository.SecurityConfigRepository
	Clients        repository.ClientRepository

	ping  func(ctx context.Context) error
	close func()
}

func openStore(ctx context.Context, cfg *config.Config) (*repos, error) {
	switch cfg.Storage.Driver {
	case "postgres":
		st, err := pg.Open(ctx, cfg.Storage.DSN, pg.PoolConfig{
			MaxConns:        cfg.Storage.Postgres.MaxConns,
			MinConns:        cfg.Storage.Postgres.MinConns,
			ConnMaxLifetime: config.Duration(cfg.Storage.Postgres.ConnMaxLifetime),
		})
		if err != nil {
			return nil, err
		}
		if err := st.MigrateUp(ctx, migrations.FS); err != nil {
			st.Close()
			return nil, err
		}
		return &repos{
			Sessions:       st.Sessions,
			AuthCodes:      st.AuthCodes,
			LoginAttempts:  st.LoginAttempts,
			BlockedIPs:     st.BlockedIPs,
			SecurityConfig: st.SecurityConfig,
			Clients:        st.Clients,
			ping:           st.Ping,
			close:          st.Close,
		}, nil
	default:
		st := memory.New()
		return &repos{
			Sessions:       st.Sessions,
			AuthCodes:      st.AuthCodes,
			LoginAttempts:  st.LoginAttempts,
			BlockedIPs:     st.BlockedIPs,
			SecurityConfig: st.SecurityConfig,
			Clients:        st.Clients,
			ping:           func(context.Context) error { return nil },
			close:          func() {},
		}, nil
	}
}

func main() {
	configPath := flag.String("config", "config.yaml", "ruta del config YAML (vacío = solo env)")
	flag.Parse()

	_ = godotenv.Load()

	path := *configPath
	if _, err := os.Stat(path); err != nil {
		// Sin YAML se arranca con defaults + env.
		path = ""
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger.Init(logger.Config{
		Env:         cfg.App.Env,
		Level:       os.Getenv("LOG_LEVEL"),
		ServiceName: "vincsso",
	})
	defer logger.Sync()
	lg := logger.Named("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg)
	if err != nil {
		lg.Fatal("store", logger.Err(err))
	}
	defer st.close()

	cc, err := cache.New(cache.Config{
		Driver:     cfg.Cache.Kind,
		Addr:       cfg.Cache.Redis.Addr,
		Password:   cfg.Cache.Redis.Password,
		DB:         cfg.Cache.Redis.DB,
		Prefix:     cfg.Cache.Redis.Prefix,
		DefaultTTL: config.Duration(cfg.Cache.Memory.DefaultTTL),
	})
	if err != nil {
		lg.Fatal("cache", logger.Err(err))
	}
	defer cc.Close()

	// Clave de firma: seed explícito o efímera en dev.
	var keys *jwtx.KeySet
	if cfg.JWT.KeySeed != "" {
		keys, err = jwtx.FromSeed(cfg.JWT.KeyID, cfg.JWT.KeySeed)
	} else {
		keys, err = jwtx.NewEd25519(cfg.JWT.KeyID)
		lg.Warn("jwt.key_seed vacío: clave efímera, los tokens no sobreviven un restart")
	}
	if err != nil {
		lg.Fatal("jwt keys", logger.Err(err))
	}
	issuer := jwtx.NewIssuer(cfg.JWT.Issuer, keys)
	issuer.AccessTTL = config.Duration(cfg.JWT.AccessTTL)

	var notifier sso.Notifier
	if cfg.Notify.Enabled {
		notifier = notify.New(notify.NewSMTPSender(cfg.SMTP))
	}

	policy := sso.NewPolicyStore(st.SecurityConfig, cc)
	attempts := sso.NewAttemptLedger(st.LoginAttempts, policy)
	if notifier != nil {
		attempts.SetNotifier(notifier)
	}
	ipblocks := sso.NewIPBlockRegistry(st.BlockedIPs, policy)
	sessions := sso.NewSessionManager(st.Sessions, policy, notifier)
	broker := sso.NewCodeBroker(st.AuthCodes)
	clients := sso.NewClientRegistry(st.Clients)
	tickets := sso.NewTicketStore(cc)

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		lg.Fatal("metrics", logger.Err(err))
	}

	var authorizeLimiter, tokenLimiter rate.Limiter
	if cfg.Rate.Enabled {
		rc := rdb.NewClient(&rdb.Options{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
		})
		defer rc.Close()
		authorizeLimiter = rate.NewRedisLimiter(rc, "rl:authorize",
			cfg.Rate.Authorize.Limit, config.Duration(cfg.Rate.Authorize.Window))
		tokenLimiter = rate.NewRedisLimiter(rc, "rl:token",
			cfg.Rate.Token.Limit, config.Duration(cfg.Rate.Token.Window))
	}

	handler := httpapi.NewRouter(httpapi.RouterDeps{
		API: &httpapi.API{
			Clients:  clients,
			Broker:   broker,
			Sessions: sessions,
			Attempts: attempts,
			IPBlocks: ipblocks,
			Policy:   policy,
			Tickets:  tickets,
			Issuer:   issuer,
		},
		AdminAPIKey:        cfg.Admin.APIKey,
		CORSAllowedOrigins: cfg.Server.CORSAllowedOrigins,
		AuthorizeLimiter:   authorizeLimiter,
		TokenLimiter:       tokenLimiter,
		Ready: func(ctx context.Context) error {
			if err := st.ping(ctx); err != nil {
				return err
			}
			return cc.Ping(ctx)
		},
		Metrics: promhttp.Handler(),
	})

	if cfg.Sweeper.Enabled {
		sw := sweeper.New(sessions, broker, attempts, ipblocks)
		if err := sw.Start(); err != nil {
			lg.Fatal("sweeper", logger.Err(err))
		}
		defer sw.Stop()
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  config.Duration(cfg.Server.ReadTimeout),
		WriteTimeout: config.Duration(cfg.Server.WriteTimeout),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lg.Info("service up",
			logger.String("addr", cfg.Server.Addr),
			logger.String("env", cfg.App.Env),
			logger.String("storage", cfg.Storage.Driver),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		lg.Fatal("http", logger.Err(err))
	}
	lg.Info("service down")
}
