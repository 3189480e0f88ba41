// Package metrics define las métricas Prometheus del subsistema SSO.
// Paquete standalone para evitar ciclos de import entre sso y httpapi.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	LoginAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sso_login_attempts_total",
		Help: "Intentos de login registrados, por resultado",
	}, []string{"result"}) // success | failure

	Lockouts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sso_lockouts_total",
		Help: "Logins rechazados por política de brute force",
	})

	IPBlockHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sso_ip_block_hits_total",
		Help: "Requests rechazados por IP bloqueada",
	})

	CodesIssued = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sso_auth_codes_issued_total",
		Help: "Authorization codes emitidos",
	})

	// El label cause es SOLO interno: hacia afuera todo es invalid_grant.
	CodeExchanges = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sso_code_exchanges_total",
		Help: "Intercambios de authorization code, por causa interna",
	}, []string{"cause"}) // ok | not_found | expired | already_used | pkce_failed

	SessionsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sso_sessions_created_total",
		Help: "Sesiones creadas",
	})

	SessionsRevoked = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sso_sessions_revoked_total",
		Help: "Sesiones revocadas, por razón",
	}, []string{"reason"})

	SessionsEvicted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sso_sessions_evicted_total",
		Help: "Sesiones desalojadas por tope de sesiones concurrentes",
	})

	SweepDeleted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sso_sweep_deleted_total",
		Help: "Registros purgados por el sweep de TTL, por entidad",
	}, []string{"entity"}) // auth_code | session | login_attempt | blocked_ip

	ExchangeLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sso_code_exchange_latency_ms",
		Help:    "Latencia del token exchange en milisegundos",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})
)

// Register registra todas las métricas en el registry dado (o default si nil).
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	cs := []prometheus.Collector{
		LoginAttempts, Lockouts, IPBlockHits, CodesIssued, CodeExchanges,
		SessionsCreated, SessionsRevoked, SessionsEvicted, SweepDeleted,
		ExchangeLatency,
	}
	for _, c := range cs {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}
