// Package idempotency чистит просроченные ключи идемпотентности.
//
// Истёкшие ключи и так не мешают повторному запросу (repo перезаписывает их
// при CreateProcessing), sweeper только не даёт таблице расти бесконечно.
package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/feistyindonesia-code/webapp/internal/metrics"
)

const (
	DefaultSweepInterval  = 10 * time.Minute
	DefaultSweepBatchSize = 500
)

// ExpiredKeyDeleter удаляет порцию ключей с ttl <= before.
type ExpiredKeyDeleter interface {
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}

// Option настраивает Sweeper.
type Option func(*Sweeper)

func WithLogger(logger *log.Entry) Option {
	return func(s *Sweeper) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithInterval(interval time.Duration) Option {
	return func(s *Sweeper) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

func WithBatchSize(batchSize int) Option {
	return func(s *Sweeper) {
		if batchSize > 0 {
			s.batchSize = batchSize
		}
	}
}

// WithRegisterer регистрирует метрики sweeper в указанном реестре.
func WithRegisterer(registerer prometheus.Registerer) Option {
	return func(s *Sweeper) {
		s.registerer = registerer
	}
}

// Sweeper периодически удаляет просроченные записи идемпотентности.
type Sweeper struct {
	repo       ExpiredKeyDeleter
	logger     *log.Entry
	interval   time.Duration
	batchSize  int
	registerer prometheus.Registerer
	now        func() time.Time

	runs        *prometheus.CounterVec
	deleted     prometheus.Counter
	lastDeleted prometheus.Gauge
}

// NewSweeper создаёт sweeper. Без WithRegisterer метрики пишутся в глобальный реестр.
func NewSweeper(repo ExpiredKeyDeleter, options ...Option) *Sweeper {
	s := &Sweeper{
		repo:       repo,
		logger:     log.WithField("component", "idempotency-sweeper"),
		interval:   DefaultSweepInterval,
		batchSize:  DefaultSweepBatchSize,
		registerer: prometheus.DefaultRegisterer,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		option(s)
	}

	s.runs = metrics.Register(s.registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outlet_idempotency_sweep_runs_total",
		Help: "Total number of idempotency sweep runs grouped by result.",
	}, []string{"result"}))
	s.deleted = metrics.Register(s.registerer, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "outlet_idempotency_sweep_deleted_total",
		Help: "Total number of deleted expired idempotency keys.",
	}))
	s.lastDeleted = metrics.Register(s.registerer, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "outlet_idempotency_sweep_last_deleted",
		Help: "Number of keys deleted during the last sweep.",
	}))

	return s
}

// Run чистит ключи сразу и затем каждые interval до отмены ctx.
func (s *Sweeper) Run(ctx context.Context) {
	if s.repo == nil {
		s.logger.Warn("idempotency sweeper is disabled: repo is nil")
		return
	}

	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	deleted, err := s.DeleteExpired(ctx, s.now())
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		s.runs.WithLabelValues("error").Inc()
		s.logger.WithError(err).Warn("idempotency sweep failed")
		return
	}

	s.runs.WithLabelValues("ok").Inc()
	s.lastDeleted.Set(float64(deleted))
	if deleted > 0 {
		s.logger.WithField("deleted", deleted).Info("expired idempotency keys removed")
	}
}

// DeleteExpired удаляет все ключи с ttl <= before порциями batchSize
// и возвращает общее количество удалённых.
func (s *Sweeper) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	if before.IsZero() {
		before = s.now()
	}

	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		n, err := s.repo.DeleteExpired(ctx, before, s.batchSize)
		if err != nil {
			return total, err
		}
		total += n
		if n > 0 {
			s.deleted.Add(float64(n))
		}
		if n < s.batchSize {
			return total, nil
		}
	}
}
