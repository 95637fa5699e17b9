package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/feistyindonesia-code/webapp/internal/domain"
	"github.com/feistyindonesia-code/webapp/internal/health"
	"github.com/feistyindonesia-code/webapp/internal/storage/memory"
	"github.com/feistyindonesia-code/webapp/internal/storage/postgres"
)

// backend объединяет репозитории и транзакции хранилища.
type backend interface {
	domain.Store
	domain.TxManager
}

// runtimeStorage держит выбранное хранилище и зависящие от него части.
type runtimeStorage struct {
	store           backend
	idempotencyRepo domain.IdempotencyRepository
	// pinger задан только для postgres.
	pinger health.Pinger
	close  func() error
}

func initStorage(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeStorage, error) {
	switch cfg.StorageDriver {
	case "", StorageDriverMemory:
		store := memory.NewStore()
		seedDemoCatalog(store)
		logger.Warn("используется in-memory хранилище с демо-каталогом, данные не сохраняются")
		return &runtimeStorage{
			store:           store,
			idempotencyRepo: memory.NewIdempotencyRepository(),
			close:           func() error { return nil },
		}, nil
	case StorageDriverPostgres:
		if strings.TrimSpace(cfg.PostgresDSN) == "" {
			return nil, errors.New("postgres dsn is required")
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN, cfg.Delivery)
		if err != nil {
			return nil, err
		}
		logger.Info("postgres storage connected")
		return &runtimeStorage{
			store:           store,
			idempotencyRepo: postgres.NewIdempotencyRepository(store),
			pinger:          store,
			close:           store.Close,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}

// seedDemoCatalog заполняет in-memory хранилище одной точкой и меню,
// чтобы сервис можно было попробовать без базы.
func seedDemoCatalog(store *memory.Store) {
	store.PutOutlet(domain.Outlet{
		ID:              1,
		Name:            "Outlet Palopo",
		Active:          true,
		Location:        &domain.GeoPoint{Lat: -2.5833, Lng: 120.3667},
		ServiceRadiusKm: 20,
		FreeRadiusKm:    3,
		FeePerKm:        2000,
	})
	store.PutProduct(domain.Product{ID: 1, OutletID: 1, Name: "Nasi Goreng", PriceMinor: 15000, Active: true})
	store.PutProduct(domain.Product{ID: 2, OutletID: 1, Name: "Ayam Bakar", PriceMinor: 25000, Active: true})
	store.PutProduct(domain.Product{ID: 3, OutletID: 1, Name: "Es Teh", PriceMinor: 5000, Active: true})
}
