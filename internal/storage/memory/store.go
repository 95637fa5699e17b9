package memory

import (
	"context"
	"sync"

	"github.com/feistyindonesia-code/webapp/internal/domain"
)

// state — всё содержимое in-memory хранилища. Транзакция работает с копией
// и подменяет state целиком при успешном завершении.
type state struct {
	outlets     map[int64]domain.Outlet
	products    map[int64]domain.Product
	customers   map[int64]domain.Customer
	customerSeq int64
	orders      map[string]domain.Order
	outbox      map[string]outboxRecord
	outboxSeq   int64
	timeline    map[string][]domain.TimelineEvent
}

func newState() *state {
	return &state{
		outlets:   make(map[int64]domain.Outlet),
		products:  make(map[int64]domain.Product),
		customers: make(map[int64]domain.Customer),
		orders:    make(map[string]domain.Order),
		outbox:    make(map[string]outboxRecord),
		timeline:  make(map[string][]domain.TimelineEvent),
	}
}

func (s *state) clone() *state {
	dst := newState()
	for id, outlet := range s.outlets {
		dst.outlets[id] = cloneOutlet(outlet)
	}
	for id, product := range s.products {
		dst.products[id] = product
	}
	for id, customer := range s.customers {
		dst.customers[id] = cloneCustomer(customer)
	}
	for id, order := range s.orders {
		dst.orders[id] = cloneOrder(order)
	}
	for id, record := range s.outbox {
		dst.outbox[id] = record.clone()
	}
	for id, events := range s.timeline {
		dst.timeline[id] = append([]domain.TimelineEvent(nil), events...)
	}
	dst.customerSeq = s.customerSeq
	dst.outboxSeq = s.outboxSeq
	return dst
}

// Store — in-memory реализация domain.Store и domain.TxManager для локальной
// разработки и тестов. Транзакции сериализуются одним мьютексом.
type Store struct {
	mu sync.RWMutex
	st *state
}

// view привязывает репозитории либо к общему состоянию под мьютексом,
// либо к копии внутри транзакции.
type view struct {
	store *Store
	tx    *state
}

// NewStore создаёт пустое хранилище.
func NewStore() *Store {
	return &Store{st: newState()}
}

func (s *Store) root() view { return view{store: s} }

func (v view) read(fn func(st *state) error) error {
	if v.tx != nil {
		return fn(v.tx)
	}
	v.store.mu.RLock()
	defer v.store.mu.RUnlock()
	return fn(v.store.st)
}

func (v view) write(fn func(st *state) error) error {
	if v.tx != nil {
		return fn(v.tx)
	}
	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	return fn(v.store.st)
}

// WithinTx выполняет fn над копией состояния. Ошибка fn отбрасывает копию.
// Внутри fn нужно пользоваться только переданным tx: обращение к s приведёт к deadlock.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	working := s.st.clone()
	if err := fn(ctx, txStore{v: view{store: s, tx: working}}); err != nil {
		return err
	}
	s.st = working
	return nil
}

func (s *Store) Outlets() domain.OutletRepository { return outletRepository{v: s.root()} }
func (s *Store) Products() domain.ProductReader { return productRepository{v: s.root()} }
func (s *Store) Customers() domain.CustomerRepository { return customerRepository{v: s.root()} }
func (s *Store) Orders() domain.OrderRepository { return orderRepository{v: s.root()} }
func (s *Store) Outbox() domain.OutboxRepository { return outboxRepository{v: s.root()} }
func (s *Store) Timeline() domain.TimelineRepository { return timelineRepository{v: s.root()} }

// txStore представляет хранилище внутри транзакции.
type txStore struct {
	v view
}

func (t txStore) Outlets() domain.OutletRepository { return outletRepository{v: t.v} }
func (t txStore) Products() domain.ProductReader { return productRepository{v: t.v} }
func (t txStore) Customers() domain.CustomerRepository { return customerRepository{v: t.v} }
func (t txStore) Orders() domain.OrderRepository { return orderRepository{v: t.v} }
func (t txStore) Outbox() domain.OutboxRepository { return outboxRepository{v: t.v} }
func (t txStore) Timeline() domain.TimelineRepository { return timelineRepository{v: t.v} }

var (
	_ domain.Store     = (*Store)(nil)
	_ domain.TxManager = (*Store)(nil)
	_ domain.Store     = txStore{}
)
