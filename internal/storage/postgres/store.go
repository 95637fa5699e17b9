package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/feistyindonesia-code/webapp/internal/domain"
)

const (
	defaultConnTimeout     = 5 * time.Second
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 25
	defaultConnMaxLifetime = 30 * time.Minute
	defaultConnMaxIdleTime = 5 * time.Minute

	opTimeout = 5 * time.Second
)

// DeliveryDefaults подставляются, если у точки не заданы параметры доставки.
type DeliveryDefaults struct {
	ServiceRadiusKm float64
	FreeRadiusKm    float64
	FeePerKm        int64
}

// DefaultDeliveryDefaults возвращает радиус 20 км, бесплатную зону 3 км и 2000 за км.
func DefaultDeliveryDefaults() DeliveryDefaults {
	return DeliveryDefaults{ServiceRadiusKm: 20, FreeRadiusKm: 3, FeePerKm: 2000}
}

// querier покрывает общее подмножество *sql.DB и *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store оборачивает SQL-подключение к PostgreSQL и реализует domain.Store и domain.TxManager.
type Store struct {
	db       *sql.DB
	defaults DeliveryDefaults
}

// Open открывает подключение к PostgreSQL и проверяет доступность базы.
func Open(ctx context.Context, dsn string, defaults DeliveryDefaults) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}
	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)
	db.SetConnMaxIdleTime(defaultConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return NewStore(db, defaults), nil
}

// NewStore создаёт Store поверх готового подключения.
func NewStore(db *sql.DB, defaults DeliveryDefaults) *Store {
	return &Store{db: db, defaults: defaults}
}

// DB возвращает raw SQL DB, когда нужен низкоуровневый доступ.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping проверяет доступность подключения.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("postgres store is not initialized")
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()
	return s.db.PingContext(pingCtx)
}

// Close закрывает подключение к БД.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// WithinTx выполняет fn в транзакции. Ошибка или паника fn откатывает транзакцию.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.Store) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(ctx, repos{q: tx, locking: true, defaults: s.defaults}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *Store) root() repos {
	return repos{q: s.db, defaults: s.defaults}
}

func (s *Store) Outlets() domain.OutletRepository { return s.root().Outlets() }
func (s *Store) Products() domain.ProductReader { return s.root().Products() }
func (s *Store) Customers() domain.CustomerRepository { return s.root().Customers() }
func (s *Store) Orders() domain.OrderRepository { return s.root().Orders() }
func (s *Store) Outbox() domain.OutboxRepository { return s.root().Outbox() }
func (s *Store) Timeline() domain.TimelineRepository { return s.root().Timeline() }

// repos привязывает репозитории к подключению или к транзакции.
// locking включает SELECT ... FOR UPDATE для чтений, за которыми следует запись.
type repos struct {
	q        querier
	locking  bool
	defaults DeliveryDefaults
}

func (r repos) Outlets() domain.OutletRepository {
	return &outletRepository{q: r.q, defaults: r.defaults}
}

func (r repos) Products() domain.ProductReader {
	return &productRepository{q: r.q}
}

func (r repos) Customers() domain.CustomerRepository {
	return &customerRepository{q: r.q, locking: r.locking}
}

func (r repos) Orders() domain.OrderRepository {
	return &orderRepository{q: r.q, locking: r.locking}
}

func (r repos) Outbox() domain.OutboxRepository {
	return &outboxRepository{q: r.q}
}

func (r repos) Timeline() domain.TimelineRepository {
	return &timelineRepository{q: r.q}
}

// withTimeout ограничивает запрос opTimeout, если у ctx нет более раннего дедлайна.
func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, opTimeout)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func uniqueConstraint(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return pgErr.ConstraintName
	}
	return ""
}

var (
	_ domain.Store     = (*Store)(nil)
	_ domain.TxManager = (*Store)(nil)
	_ domain.Store     = repos{}
)
