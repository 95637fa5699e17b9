package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/feistyindonesia-code/webapp/internal/domain"
)

func TestOutboxRepository_PostgresFlow(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	ctx := context.Background()
	repo := store.Outbox()

	first, err := repo.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: domain.AggregateOrder,
		AggregateID:   "order-1",
		EventType:     domain.EventOrderCreated,
		Payload:       []byte(`{"order_id":"order-1"}`),
	})
	require.NoError(t, err)
	require.NotEmpty(t, first.ID)
	require.Equal(t, domain.OutboxStatusPending, first.Status)

	time.Sleep(5 * time.Millisecond)
	second, err := repo.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: domain.AggregateCustomer,
		AggregateID:   "7",
		EventType:     domain.EventReferralRewarded,
		Payload:       []byte(`{}`),
	})
	require.NoError(t, err)

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, stats.PendingCount)
	require.False(t, stats.OldestPendingAt.IsZero())

	pending, err := repo.PullPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	require.Equal(t, first.ID, pending[0].ID)
	require.Equal(t, second.ID, pending[1].ID)

	require.NoError(t, repo.MarkSent(ctx, first.ID))
	require.NoError(t, repo.MarkFailed(ctx, second.ID))
	require.ErrorIs(t, repo.MarkSent(ctx, "missing"), domain.ErrOutboxPublish)

	pending, err = repo.PullPending(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestTimelineRepository_PostgresAppendAndList(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	seedCatalog(t, store)
	ctx := context.Background()
	customer := seedCustomer(t, store, "+6281101", "REFA0001", nil)

	now := time.Now().UTC().Round(time.Microsecond)
	require.NoError(t, store.Orders().Create(ctx, sampleOrder("order-1", customer.ID, now)))

	require.NoError(t, store.Timeline().Append(ctx, domain.TimelineEvent{OrderID: "order-1", Type: domain.TimelineOrderCreated, Reason: "order created", Occurred: now}))
	require.NoError(t, store.Timeline().Append(ctx, domain.TimelineEvent{OrderID: "order-1", Type: domain.TimelineStatusChanged, Reason: "pending -> paid", Occurred: now.Add(time.Second)}))

	events, err := store.Timeline().List(ctx, "order-1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, domain.TimelineOrderCreated, events[0].Type)
	require.Equal(t, domain.TimelineStatusChanged, events[1].Type)
}

func TestIdempotencyRepository_PostgresLifecycle(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	ctx := context.Background()
	repo := NewIdempotencyRepository(store)

	ttl := time.Now().UTC().Add(time.Hour)
	created, err := repo.CreateProcessing(ctx, "key-1", "hash-1", ttl)
	require.NoError(t, err)
	require.Equal(t, domain.IdempotencyStatusProcessing, created.Status)

	_, err = repo.CreateProcessing(ctx, "key-1", "hash-1", ttl)
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyAlreadyExists)
	_, err = repo.CreateProcessing(ctx, "key-1", "hash-2", ttl)
	require.ErrorIs(t, err, domain.ErrIdempotencyHashMismatch)

	require.NoError(t, repo.MarkDone(ctx, "key-1", []byte(`{"ok":true}`), 0))
	got, err := repo.Get(ctx, "key-1")
	require.NoError(t, err)
	require.Equal(t, domain.IdempotencyStatusDone, got.Status)
	require.JSONEq(t, `{"ok":true}`, string(got.ResponseBody))

	require.ErrorIs(t, repo.MarkFailed(ctx, "missing", nil, 13), domain.ErrIdempotencyKeyNotFound)

	require.NoError(t, repo.Release(ctx, "key-1"))
	require.ErrorIs(t, repo.Release(ctx, "key-1"), domain.ErrIdempotencyKeyNotFound)
	_, err = repo.Get(ctx, " ")
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyRequired)
}

func TestIdempotencyRepository_PostgresExpiredKeyIsReused(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	ctx := context.Background()
	repo := NewIdempotencyRepository(store)

	_, err := repo.CreateProcessing(ctx, "key-1", "hash-1", time.Now().UTC().Add(-time.Minute))
	require.NoError(t, err)

	_, err = repo.Get(ctx, "key-1")
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyNotFound)

	created, err := repo.CreateProcessing(ctx, "key-1", "hash-2", time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, "hash-2", created.RequestHash)
}
