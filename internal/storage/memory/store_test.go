package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/feistyindonesia-code/webapp/internal/domain"
	"github.com/feistyindonesia-code/webapp/internal/storage/memory"
)

func TestStore_WithinTxCommits(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	err := store.WithinTx(ctx, func(ctx context.Context, tx domain.Store) error {
		if err := tx.Orders().Create(ctx, newOrder("order-1")); err != nil {
			return err
		}
		_, err := tx.Outbox().Enqueue(ctx, domain.OutboxMessage{EventType: domain.EventOrderCreated, AggregateID: "order-1"})
		return err
	})
	require.NoError(t, err)

	_, err = store.Orders().Get(ctx, "order-1")
	require.NoError(t, err)

	pending, err := store.Outbox().PullPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
}

func TestStore_WithinTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	boom := errors.New("boom")

	err := store.WithinTx(ctx, func(ctx context.Context, tx domain.Store) error {
		require.NoError(t, tx.Orders().Create(ctx, newOrder("order-1")))
		require.NoError(t, tx.Timeline().Append(ctx, domain.TimelineEvent{OrderID: "order-1", Type: domain.TimelineOrderCreated}))

		_, err := tx.Orders().Get(ctx, "order-1")
		require.NoError(t, err, "order must be visible inside its own transaction")
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = store.Orders().Get(ctx, "order-1")
	require.ErrorIs(t, err, domain.ErrOrderNotFound)

	events, err := store.Timeline().List(ctx, "order-1")
	require.NoError(t, err)
	require.Empty(t, events)
}

func TestStore_WithinTxCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := memory.NewStore().WithinTx(ctx, func(context.Context, domain.Store) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, called)
}

func TestCatalogRepositories(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	store.PutOutlet(domain.Outlet{ID: 2, Name: "B", Active: true, Location: &domain.GeoPoint{Lat: 1, Lng: 1}})
	store.PutOutlet(domain.Outlet{ID: 1, Name: "A", Active: true, Location: &domain.GeoPoint{Lat: 0, Lng: 0}})
	store.PutOutlet(domain.Outlet{ID: 3, Name: "closed", Active: false, Location: &domain.GeoPoint{Lat: 0, Lng: 0}})
	store.PutOutlet(domain.Outlet{ID: 4, Name: "no location", Active: true})

	outlets, err := store.Outlets().ListActiveWithLocation(ctx)
	require.NoError(t, err)
	require.Len(t, outlets, 2)
	require.Equal(t, int64(1), outlets[0].ID)
	require.Equal(t, int64(2), outlets[1].ID)

	_, err = store.Outlets().Get(ctx, 99)
	require.ErrorIs(t, err, domain.ErrOutletNotFound)

	store.PutProduct(domain.Product{ID: 10, OutletID: 1, Name: "Kopi", PriceMinor: 15000, Active: true})
	store.PutProduct(domain.Product{ID: 11, OutletID: 1, Name: "Teh", PriceMinor: 8000, Active: false})
	store.PutProduct(domain.Product{ID: 12, OutletID: 2, Name: "Roti", PriceMinor: 9000, Active: true})

	products, err := store.Products().ProductsForOutlet(ctx, 1, []int64{10, 11, 12, 13})
	require.NoError(t, err)
	require.Len(t, products, 2)
	require.Contains(t, products, int64(10))
	require.False(t, products[11].Active)
	require.NotContains(t, products, int64(12))
}

func TestCustomerRepository(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewStore().Customers()

	referrer, err := repo.Create(ctx, domain.Customer{Phone: "+62811", Name: "Ayu", ReferralCode: "AAAA1111"})
	require.NoError(t, err)
	require.Equal(t, int64(1), referrer.ID)
	require.False(t, referrer.CreatedAt.IsZero())

	_, err = repo.Create(ctx, domain.Customer{Phone: "+62811", ReferralCode: "BBBB2222"})
	require.ErrorIs(t, err, domain.ErrCustomerAlreadyExists)

	_, err = repo.Create(ctx, domain.Customer{Phone: "+62812", ReferralCode: "AAAA1111"})
	require.ErrorIs(t, err, domain.ErrReferralCodeTaken)

	referred, err := repo.Create(ctx, domain.Customer{Phone: "+62813", Name: "Budi", ReferralCode: "CCCC3333"})
	require.NoError(t, err)

	ok, err := repo.SetReferrer(ctx, referred.ID, referrer.ID)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repo.SetReferrer(ctx, referred.ID, 42)
	require.NoError(t, err)
	require.False(t, ok, "referrer is immutable once set")

	require.NoError(t, repo.IncrementReferralCount(ctx, referrer.ID))
	require.ErrorIs(t, repo.IncrementReferralCount(ctx, 404), domain.ErrCustomerNotFound)

	byCode, err := repo.GetByReferralCode(ctx, "AAAA1111")
	require.NoError(t, err)
	require.Equal(t, int64(1), byCode.ReferralCount)

	byPhone, err := repo.GetByPhone(ctx, "+62813")
	require.NoError(t, err)
	require.Equal(t, referrer.ID, *byPhone.ReferrerID)

	_, err = repo.GetByReferralCode(ctx, "ZZZZ0000")
	require.ErrorIs(t, err, domain.ErrReferralCodeNotFound)
}
