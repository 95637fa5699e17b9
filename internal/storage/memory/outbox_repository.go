package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/feistyindonesia-code/webapp/internal/domain"
)

// outboxRecord хранит сообщение и служебные поля для in-memory реализации.
type outboxRecord struct {
	msg        domain.OutboxMessage
	seq        int64
	attemptCnt int
	updatedAt  time.Time
}

func (r outboxRecord) clone() outboxRecord {
	r.msg.Payload = append([]byte(nil), r.msg.Payload...)
	return r
}

// outboxRepository — in-memory хранилище для transactional outbox.
type outboxRepository struct {
	v view
}

// Enqueue сохраняет событие со статусом `pending` и возвращает его с идентификатором.
func (r outboxRepository) Enqueue(_ context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	err := r.v.write(func(st *state) error {
		if msg.ID == "" {
			msg.ID = uuid.NewString()
		}
		now := time.Now().UTC()
		msg.Status = domain.OutboxStatusPending
		if msg.CreatedAt.IsZero() {
			msg.CreatedAt = now
		}

		st.outboxSeq++
		record := outboxRecord{msg: msg, seq: st.outboxSeq, updatedAt: now}
		st.outbox[msg.ID] = record.clone()
		return nil
	})
	return msg, err
}

// PullPending возвращает до limit сообщений со статусом `pending` в порядке записи.
func (r outboxRepository) PullPending(_ context.Context, limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}

	var pending []outboxRecord
	err := r.v.read(func(st *state) error {
		for _, rec := range st.outbox {
			if rec.msg.Status == domain.OutboxStatusPending {
				pending = append(pending, rec.clone())
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(pending, func(i, j int) bool { return pending[i].seq < pending[j].seq })
	if len(pending) > limit {
		pending = pending[:limit]
	}

	result := make([]domain.OutboxMessage, 0, len(pending))
	for _, rec := range pending {
		result = append(result, rec.msg)
	}
	return result, nil
}

// Stats возвращает размер backlog и время самого старого pending-события.
func (r outboxRepository) Stats(_ context.Context) (domain.OutboxStats, error) {
	var stats domain.OutboxStats
	err := r.v.read(func(st *state) error {
		for _, rec := range st.outbox {
			if rec.msg.Status != domain.OutboxStatusPending {
				continue
			}
			stats.PendingCount++
			if stats.OldestPendingAt.IsZero() || rec.msg.CreatedAt.Before(stats.OldestPendingAt) {
				stats.OldestPendingAt = rec.msg.CreatedAt
			}
		}
		return nil
	})
	return stats, err
}

// MarkSent обновляет статус события после успешной публикации.
func (r outboxRepository) MarkSent(_ context.Context, id string) error {
	return r.mark(id, domain.OutboxStatusSent)
}

// MarkFailed фиксирует ошибку публикации.
func (r outboxRepository) MarkFailed(_ context.Context, id string) error {
	return r.mark(id, domain.OutboxStatusFailed)
}

func (r outboxRepository) mark(id string, status domain.OutboxStatus) error {
	return r.v.write(func(st *state) error {
		record, ok := st.outbox[id]
		if !ok {
			return domain.ErrOutboxPublish
		}
		record.msg.Status = status
		record.attemptCnt++
		record.updatedAt = time.Now().UTC()
		st.outbox[id] = record
		return nil
	})
}

var _ domain.OutboxRepository = outboxRepository{}
