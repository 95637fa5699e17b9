// Package outbox переносит события заказов из transactional outbox в брокер.
//
// Relay публикует события пачками в порядке записи. Если событие заказа не
// удалось опубликовать, остальные события того же заказа в пачке ждут
// следующего опроса, чтобы потребители не увидели order.paid раньше
// order.created.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/feistyindonesia-code/webapp/internal/domain"
	"github.com/feistyindonesia-code/webapp/internal/metrics"
)

const (
	DefaultPollInterval = time.Second
	DefaultBatchSize    = 100
	DefaultMaxAttempts  = 3
	DefaultRetryDelay   = 50 * time.Millisecond

	maxRetryDelay = 5 * time.Second
)

// Исходы обработки события, метка outcome в outlet_outbox_events_total.
const (
	outcomePublished        = "published"
	outcomeRetried          = "retried"
	outcomeFailed           = "failed"
	outcomeDeadLettered     = "dead_lettered"
	outcomeDeadLetterFailed = "dead_letter_failed"
	outcomeDeferred         = "deferred"
)

type settings struct {
	logger       *log.Entry
	deadLetters  domain.OutboxPublisher
	registerer   prometheus.Registerer
	pollInterval time.Duration
	batchSize    int
	maxAttempts  int
	retryDelay   time.Duration
}

// Option настраивает Relay.
type Option func(*settings)

func WithLogger(logger *log.Entry) Option {
	return func(s *settings) { s.logger = logger }
}

// WithDeadLetters задаёт publisher для событий, исчерпавших попытки.
func WithDeadLetters(publisher domain.OutboxPublisher) Option {
	return func(s *settings) { s.deadLetters = publisher }
}

func WithPollInterval(interval time.Duration) Option {
	return func(s *settings) { s.pollInterval = interval }
}

func WithBatchSize(size int) Option {
	return func(s *settings) { s.batchSize = size }
}

// WithMaxAttempts задаёт число попыток публикации одного события за опрос.
func WithMaxAttempts(attempts int) Option {
	return func(s *settings) { s.maxAttempts = attempts }
}

// WithRetryDelay задаёт первую паузу между попытками; дальше она удваивается
// до maxRetryDelay.
func WithRetryDelay(delay time.Duration) Option {
	return func(s *settings) { s.retryDelay = delay }
}

// WithRegisterer задаёт реестр метрик; по умолчанию prometheus.DefaultRegisterer.
func WithRegisterer(registerer prometheus.Registerer) Option {
	return func(s *settings) { s.registerer = registerer }
}

// Relay публикует pending-события outbox.
type Relay struct {
	repo      domain.OutboxRepository
	publisher domain.OutboxPublisher
	cfg       settings
	logger    *log.Entry
	now       func() time.Time

	events        *prometheus.CounterVec
	pending       prometheus.Gauge
	oldestPending prometheus.Gauge
}

// NewRelay создаёт Relay. Некорректные значения опций заменяются значениями по умолчанию.
func NewRelay(repo domain.OutboxRepository, publisher domain.OutboxPublisher, options ...Option) *Relay {
	cfg := settings{
		registerer:   prometheus.DefaultRegisterer,
		pollInterval: DefaultPollInterval,
		batchSize:    DefaultBatchSize,
		maxAttempts:  DefaultMaxAttempts,
		retryDelay:   DefaultRetryDelay,
	}
	for _, option := range options {
		option(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = log.WithField("component", "outbox-relay")
	}
	if cfg.pollInterval <= 0 {
		cfg.pollInterval = DefaultPollInterval
	}
	if cfg.batchSize <= 0 {
		cfg.batchSize = DefaultBatchSize
	}
	if cfg.maxAttempts <= 0 {
		cfg.maxAttempts = DefaultMaxAttempts
	}
	if cfg.retryDelay < 0 {
		cfg.retryDelay = 0
	}

	r := &Relay{
		repo:      repo,
		publisher: publisher,
		cfg:       cfg,
		logger:    cfg.logger,
		now:       time.Now,
	}
	r.events = metrics.Register(cfg.registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outlet_outbox_events_total",
		Help: "Outbox events handled by the relay, by event type and outcome.",
	}, []string{"event_type", "outcome"}))
	r.pending = metrics.Register(cfg.registerer, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "outlet_outbox_pending_events",
		Help: "Pending events in the transactional outbox.",
	}))
	r.oldestPending = metrics.Register(cfg.registerer, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "outlet_outbox_oldest_pending_seconds",
		Help: "Age of the oldest pending outbox event.",
	}))
	return r
}

// Run опрашивает outbox до отмены ctx. Без repo или publisher сразу возвращается.
func (r *Relay) Run(ctx context.Context) {
	if r.repo == nil || r.publisher == nil {
		r.logger.Warn("outbox relay is disabled: repo or publisher is nil")
		return
	}

	ticker := time.NewTicker(r.cfg.pollInterval)
	defer ticker.Stop()

	for {
		r.Flush(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Flush публикует одну пачку pending-событий и возвращает число опубликованных.
func (r *Relay) Flush(ctx context.Context) int {
	if ctx.Err() != nil {
		return 0
	}

	batch, err := r.repo.PullPending(ctx, r.cfg.batchSize)
	if err != nil {
		r.logger.WithError(err).Warn("failed to pull pending outbox events")
		return 0
	}

	published := 0
	stalled := make(map[string]struct{})
	for _, msg := range batch {
		if ctx.Err() != nil {
			break
		}
		key := msg.AggregateType + "/" + msg.AggregateID
		if _, ok := stalled[key]; ok {
			r.count(msg, outcomeDeferred)
			continue
		}
		if r.deliver(ctx, msg) {
			published++
			continue
		}
		stalled[key] = struct{}{}
	}

	r.observeBacklog(ctx)
	return published
}

// deliver публикует событие; false означает, что событие не ушло в основной topic.
func (r *Relay) deliver(ctx context.Context, msg domain.OutboxMessage) bool {
	logger := r.logger.WithFields(log.Fields{
		"outbox_id":    msg.ID,
		"event_type":   msg.EventType,
		"aggregate_id": msg.AggregateID,
	})

	attempts, err := r.publish(ctx, msg)
	if err == nil {
		r.count(msg, outcomePublished)
		if err := r.repo.MarkSent(ctx, msg.ID); err != nil {
			// Событие уйдёт повторно на следующем опросе, publisher идемпотентен.
			logger.WithError(err).Warn("outbox event published but not marked sent")
		}
		return true
	}
	if ctx.Err() != nil {
		// Остановка сервиса: событие остаётся pending.
		return false
	}

	logger.WithError(err).WithField("attempts", attempts).Error("outbox event not published")
	r.count(msg, outcomeFailed)
	if sent, dlErr := r.deadLetter(ctx, msg, attempts, err); dlErr != nil {
		logger.WithError(dlErr).Warn("failed to publish dead letter")
		r.count(msg, outcomeDeadLetterFailed)
	} else if sent {
		r.count(msg, outcomeDeadLettered)
	}
	if err := r.repo.MarkFailed(ctx, msg.ID); err != nil {
		logger.WithError(err).Warn("failed to mark outbox event as failed")
	}
	return false
}

func (r *Relay) publish(ctx context.Context, msg domain.OutboxMessage) (int, error) {
	for attempt := 1; ; attempt++ {
		err := r.publisher.Publish(ctx, msg)
		if err == nil {
			return attempt, nil
		}
		if attempt >= r.cfg.maxAttempts {
			return attempt, fmt.Errorf("%w: %w", domain.ErrOutboxPublish, err)
		}
		r.count(msg, outcomeRetried)

		timer := time.NewTimer(r.retryDelay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, ctx.Err()
		case <-timer.C:
		}
	}
}

// retryDelay возвращает паузу после попытки attempt: retryDelay * 2^(attempt-1),
// не больше maxRetryDelay.
func (r *Relay) retryDelay(attempt int) time.Duration {
	delay := r.cfg.retryDelay
	if delay <= 0 {
		return 0
	}
	for i := 1; i < attempt && delay < maxRetryDelay; i++ {
		delay *= 2
	}
	return min(delay, maxRetryDelay)
}

// DeadLetter — событие, которое не удалось опубликовать за все попытки.
type DeadLetter struct {
	OutboxID      string          `json:"outbox_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Attempts      int             `json:"attempts"`
	Error         string          `json:"error"`
	EnqueuedAt    time.Time       `json:"enqueued_at"`
	FailedAt      time.Time       `json:"failed_at"`
	Payload       json.RawMessage `json:"payload"`
}

func (r *Relay) deadLetter(ctx context.Context, msg domain.OutboxMessage, attempts int, cause error) (bool, error) {
	if r.cfg.deadLetters == nil {
		return false, nil
	}

	var payload json.RawMessage
	if len(msg.Payload) > 0 {
		payload = json.RawMessage(msg.Payload)
	}
	body, err := json.Marshal(DeadLetter{
		OutboxID:      msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Attempts:      attempts,
		Error:         cause.Error(),
		EnqueuedAt:    msg.CreatedAt.UTC(),
		FailedAt:      r.now().UTC(),
		Payload:       payload,
	})
	if err != nil {
		return false, fmt.Errorf("marshal dead letter: %w", err)
	}

	letter := msg
	letter.Payload = body
	if err := r.cfg.deadLetters.Publish(ctx, letter); err != nil {
		return false, fmt.Errorf("publish dead letter: %w", err)
	}
	return true, nil
}

func (r *Relay) observeBacklog(ctx context.Context) {
	stats, err := r.repo.Stats(ctx)
	if err != nil {
		r.logger.WithError(err).Warn("failed to collect outbox backlog stats")
		return
	}

	r.pending.Set(float64(stats.PendingCount))
	if stats.PendingCount == 0 || stats.OldestPendingAt.IsZero() {
		r.oldestPending.Set(0)
		return
	}
	r.oldestPending.Set(max(r.now().Sub(stats.OldestPendingAt).Seconds(), 0))
}

func (r *Relay) count(msg domain.OutboxMessage, outcome string) {
	r.events.WithLabelValues(msg.EventType, outcome).Inc()
}
