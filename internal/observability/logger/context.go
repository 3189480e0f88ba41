package logger

import (
	"context"

	"go.uber.org/zap"
)

type ctxKey struct{}

// ToContext cuelga un logger request-scoped del contexto. El middleware
// HTTP lo usa para propagar los campos del request (método, path, IP).
func ToContext(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// From recupera el logger del contexto. Sin middleware de por medio cae
// al singleton del proceso, así From(ctx) sirve en cualquier capa.
func From(ctx context.Context) *zap.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxKey{}).(*zap.Logger); ok {
			return l
		}
	}
	return L()
}
