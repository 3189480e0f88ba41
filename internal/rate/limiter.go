// Package rate implementa rate limiting fixed-window sobre Redis.
// Protege los endpoints de authorize/token por IP; la política de brute
// force por email vive en internal/sso (capas distintas: esta corta
// volumen, aquella corta credenciales).
package rate

import (
	"context"
	"strconv"
	"strings"
	"time"

	rdb "github.com/redis/go-redis/v9"
)

type Result struct {
	Allowed     bool
	Remaining   int64
	RetryAfter  time.Duration
	CurrentHits int64
}

type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// RedisLimiter cuenta hits por ventana fija alineada al reloj. La clave
// incluye el inicio de ventana, así el contador muere solo con el TTL y
// nunca hay que resetearlo.
type RedisLimiter struct {
	client *rdb.Client
	prefix string
	max    int64
	window time.Duration
}

func NewRedisLimiter(client *rdb.Client, prefix string, max int, window time.Duration) *RedisLimiter {
	if prefix == "" {
		prefix = "rl:"
	}
	return &RedisLimiter{client: client, prefix: prefix, max: int64(max), window: window}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Result, error) {
	winStart := time.Now().UTC().Truncate(l.window)

	var b strings.Builder
	b.WriteString(l.prefix)
	b.WriteString(strings.Map(func(r rune) rune {
		if r == ' ' {
			return '_'
		}
		return r
	}, key))
	b.WriteByte(':')
	b.WriteString(strconv.FormatInt(winStart.Unix(), 10))
	redisKey := b.String()

	// Un solo round trip: INCR + EXPIRE NX dejan el TTL solo en el
	// primer hit de la ventana.
	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.ExpireNX(ctx, redisKey, l.window)
	ttl := pipe.PTTL(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return Result{}, err
	}

	hits := incr.Val()
	remaining := l.max - hits
	if remaining < 0 {
		remaining = 0
	}

	res := Result{
		Allowed:     hits <= l.max,
		Remaining:   remaining,
		CurrentHits: hits,
	}
	if !res.Allowed {
		// Retry after: lo que queda de la ventana.
		res.RetryAfter = ttl.Val()
		if res.RetryAfter <= 0 {
			res.RetryAfter = l.window
		}
	}
	return res, nil
}
