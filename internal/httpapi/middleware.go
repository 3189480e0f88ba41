package httpapi

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dropDatabas3/vincsso/internal/observability/logger"
	"github.com/dropDatabas3/vincsso/internal/rate"
)

// Middleware es un decorador de http.Handler.
type Middleware func(http.Handler) http.Handler

// ─────────────── Request ID ───────────────

// WithRequestID propaga el X-Request-ID del cliente o genera uno nuevo.
// El ID queda en el header de respuesta antes de llamar al handler, así
// WriteError siempre lo encuentra.
func WithRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if rid == "" {
			var b [16]byte
			_, _ = rand.Read(b[:])
			rid = hex.EncodeToString(b[:])
		}
		w.Header().Set("X-Request-ID", rid)
		next.ServeHTTP(w, r)
	})
}

// ─────────────── Recover de pánicos ───────────────

func WithRecover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Named("http").Error("panic recovered",
					logger.RequestID(w.Header().Get("X-Request-ID")),
					logger.Path(r.URL.Path),
					logger.Any("recover", rec),
				)
				WriteError(w, http.StatusInternalServerError, "internal_error", "panic recover", codeInternal)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// ─────────────── Security Headers ───────────────

func isHTTPS(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

// WithSecurityHeaders inyecta cabeceras de defensa por defecto. No toca
// Cache-Control: eso lo maneja cada handler sensible a tokens.
func WithSecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Cross-Origin-Resource-Policy", "same-site")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'; base-uri 'none'; form-action 'self'")
		if isHTTPS(r) {
			h.Set("Strict-Transport-Security", "max-age=15552000; includeSubDomains")
		}
		next.ServeHTTP(w, r)
	})
}

// ─────────────── CORS ───────────────

func WithCORS(allowed []string) Middleware {
	trim := func(s string) string { return strings.TrimRight(strings.TrimSpace(s), "/") }

	alist := make([]string, len(allowed))
	for i, v := range allowed {
		alist[i] = trim(v)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := trim(r.Header.Get("Origin"))
			allowedOrigin := ""
			for _, a := range alist {
				if a == "*" || (origin != "" && strings.EqualFold(origin, a)) {
					allowedOrigin = origin
					break
				}
			}

			w.Header().Add("Vary", "Origin")
			w.Header().Add("Vary", "Access-Control-Request-Method")
			w.Header().Add("Vary", "Access-Control-Request-Headers")

			if allowedOrigin != "" {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", allowedOrigin)
				h.Set("Access-Control-Allow-Credentials", "true")
				h.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,HEAD,OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID, X-Admin-API-Key")
				h.Set("Access-Control-Expose-Headers", "X-Request-ID, Retry-After, Location")
				h.Set("Access-Control-Max-Age", "600")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ─────────────── Logging ───────────────

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(b)
	s.bytes += n
	return n, err
}

// WithLogging registra cada request con el logger singleton y deja un
// logger scoped (request_id, method, path) en el contexto.
func WithLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		reqLog := logger.L().With(
			logger.RequestID(w.Header().Get("X-Request-ID")),
			logger.Method(r.Method),
			logger.Path(r.URL.Path),
		)
		ctx := logger.ToContext(r.Context(), reqLog)

		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r.WithContext(ctx))

		dur := time.Since(start)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		switch {
		case rec.status >= 500:
			reqLog.Error("request failed",
				logger.Status(rec.status),
				logger.Bytes(rec.bytes),
				logger.DurationMs(dur.Milliseconds()),
			)
		default:
			reqLog.Info("request completed",
				logger.Status(rec.status),
				logger.Bytes(rec.bytes),
				logger.DurationMs(dur.Milliseconds()),
			)
		}
	})
}

// ─────────────── Rate limit ───────────────

// WithRateLimit limita por IP+path con el limiter de Redis. Un error del
// limiter deja pasar: preferimos degradar a abrir la puerta a un outage.
func WithRateLimit(limiter rate.Limiter) Middleware {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientIP(r) + "|" + r.URL.Path
			res, err := limiter.Allow(r.Context(), key)
			if err != nil {
				logger.Named("http").Warn("rate limit check failed", logger.Err(err))
				next.ServeHTTP(w, r)
				return
			}
			if !res.Allowed {
				if res.RetryAfter > 0 {
					w.Header().Set("Retry-After", strconv.Itoa(int(res.RetryAfter.Seconds())))
				}
				WriteError(w, http.StatusTooManyRequests, "rate_limited", "demasiadas solicitudes", codeRateLimited)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ─────────────── Admin API key ───────────────

// RequireAdminKey exige el header X-Admin-API-Key. Comparación en tiempo
// constante. Si el servicio arrancó sin key, la superficie admin queda
// cerrada (nunca abierta por omisión).
func RequireAdminKey(apiKey string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get("X-Admin-API-Key")
			if apiKey == "" || got == "" ||
				subtle.ConstantTimeCompare([]byte(got), []byte(apiKey)) != 1 {
				WriteError(w, http.StatusUnauthorized, "unauthorized", "admin api key inválida", codeUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP: primer hop del X-Forwarded-For o el RemoteAddr pelado.
func clientIP(r *http.Request) string {
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		parts := strings.Split(xf, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}
