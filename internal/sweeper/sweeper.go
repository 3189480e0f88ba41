// Package sweeper corre la limpieza física periódica: sesiones y codes
// muertos, intentos fuera de retención y bloqueos de IP vencidos. La
// validez lógica nunca depende del sweep (la expiración es un predicado
// calculado); esto solo recupera espacio.
package sweeper

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dropDatabas3/vincsso/internal/domain/repository"
	"github.com/dropDatabas3/vincsso/internal/metrics"
	"github.com/dropDatabas3/vincsso/internal/observability/logger"
	"github.com/dropDatabas3/vincsso/internal/sso"
)

// sweepTimeout acota cada pasada.
const sweepTimeout = 2 * time.Minute

// Sweeper agrupa los jobs de limpieza.
type Sweeper struct {
	sessions *sso.SessionManager
	broker   *sso.CodeBroker
	attempts *sso.AttemptLedger
	ipblocks *sso.IPBlockRegistry

	cron *cron.Cron
}

// New crea el sweeper.
func New(sessions *sso.SessionManager, broker *sso.CodeBroker, attempts *sso.AttemptLedger, ipblocks *sso.IPBlockRegistry) *Sweeper {
	return &Sweeper{
		sessions: sessions,
		broker:   broker,
		attempts: attempts,
		ipblocks: ipblocks,
		cron:     cron.New(),
	}
}

// Start agenda los jobs y arranca el scheduler.
//   - codes: cada minuto (TTL de 90s, la tabla se mantiene chica)
//   - sesiones y bloqueos vencidos: cada 10 minutos
//   - intentos fuera de retención: una vez por hora
func (s *Sweeper) Start() error {
	jobs := []struct {
		spec string
		name string
		run  func(context.Context)
	}{
		{"* * * * *", "auth_codes", s.sweepCodes},
		{"*/10 * * * *", "sessions", s.sweepSessions},
		{"*/10 * * * *", "ip_blocks", s.sweepIPBlocks},
		{"0 * * * *", "login_attempts", s.sweepAttempts},
	}
	for _, j := range jobs {
		job := j
		if _, err := s.cron.AddFunc(job.spec, func() {
			ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
			defer cancel()
			job.run(ctx)
		}); err != nil {
			return err
		}
	}
	s.cron.Start()
	logger.Named("sweeper").Info("sweeper started")
	return nil
}

// Stop frena el scheduler y espera los jobs en curso.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// RunOnce ejecuta todas las pasadas una vez (CLI y tests).
func (s *Sweeper) RunOnce(ctx context.Context) {
	s.sweepCodes(ctx)
	s.sweepSessions(ctx)
	s.sweepIPBlocks(ctx)
	s.sweepAttempts(ctx)
}

func (s *Sweeper) sweepCodes(ctx context.Context) {
	n, err := s.broker.DeleteExpired(ctx)
	s.report("auth_codes", n, err)
}

func (s *Sweeper) sweepSessions(ctx context.Context) {
	n, err := s.sessions.DeleteExpired(ctx)
	s.report("sessions", n, err)
}

func (s *Sweeper) sweepIPBlocks(ctx context.Context) {
	n, err := s.ipblocks.DeactivateExpired(ctx)
	s.report("ip_blocks", n, err)
}

func (s *Sweeper) sweepAttempts(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-repository.AttemptRetention)
	n, err := s.attempts.PurgeOlderThan(ctx, cutoff)
	s.report("login_attempts", n, err)
}

func (s *Sweeper) report(entity string, n int, err error) {
	log := logger.Named("sweeper")
	if err != nil {
		log.Error("sweep failed", logger.String("entity", entity), logger.Err(err))
		return
	}
	if n > 0 {
		metrics.SweepDeleted.WithLabelValues(entity).Add(float64(n))
		log.Info("sweep done", logger.String("entity", entity), logger.Count(n))
	}
}
