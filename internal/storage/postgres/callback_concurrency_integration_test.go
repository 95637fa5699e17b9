package postgres

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/feistyindonesia-code/webapp/internal/domain"
	"github.com/feistyindonesia-code/webapp/internal/service/ledger"
	"github.com/feistyindonesia-code/webapp/internal/service/pricing"
	"github.com/feistyindonesia-code/webapp/internal/service/referral"
	"github.com/feistyindonesia-code/webapp/internal/service/webhook"
)

// Параллельные доставки одного callback сериализуются на строке заказа
// (SELECT ... FOR UPDATE + условный UPDATE статуса).
func TestWebhookProcessor_PostgresConcurrentDuplicatesApplyOnce(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	seedCatalog(t, store)
	ctx := context.Background()

	referrer := seedCustomer(t, store, "+6281100", "REFB0001", nil)
	referrerID := referrer.ID
	customer := seedCustomer(t, store, "+6281101", "REFA0001", &referrerID)

	now := time.Now().UTC().Round(time.Microsecond)
	require.NoError(t, store.Orders().Create(ctx, sampleOrder("order-c", customer.ID, now)))
	attached, err := store.Orders().AttachPaymentReference(ctx, "order-c", "T-C", "", now)
	require.NoError(t, err)
	require.True(t, attached)

	l := ledger.New(store, store, pricing.NewPricer(), referral.NewRewarder(nil, nil), ledger.Config{}, nil, nil)
	processor := webhook.NewProcessor(store, l, nil, nil)
	cb := webhook.Callback{TransactionID: "T-C", Status: "PAID", AmountMinor: 65000}

	const deliveries = 20
	results := make(chan webhook.Result, deliveries)
	var wg sync.WaitGroup
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := processor.HandleCallback(ctx, cb)
			if err != nil {
				result = webhook.ResultFailed
			}
			results <- result
		}()
	}
	wg.Wait()
	close(results)

	counts := make(map[webhook.Result]int)
	for result := range results {
		counts[result]++
	}
	require.Equal(t, 1, counts[webhook.ResultApplied])
	require.Equal(t, deliveries-1, counts[webhook.ResultDuplicate])

	got, err := store.Orders().Get(ctx, "order-c")
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusPaid, got.Status)
	require.True(t, got.ReferralRewarded)

	stored, err := store.Customers().Get(ctx, referrer.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), stored.ReferralCount)
}
