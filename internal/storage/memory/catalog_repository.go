package memory

import (
	"context"
	"sort"

	"github.com/feistyindonesia-code/webapp/internal/domain"
)

type outletRepository struct {
	v view
}

type productRepository struct {
	v view
}

// PutOutlet добавляет или заменяет точку (наполнение каталога для dev/тестов).
func (s *Store) PutOutlet(outlet domain.Outlet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.outlets[outlet.ID] = cloneOutlet(outlet)
}

// PutProduct добавляет или заменяет товар.
func (s *Store) PutProduct(product domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.products[product.ID] = product
}

// ListActiveWithLocation возвращает активные точки с геопозицией, упорядоченные по id.
func (r outletRepository) ListActiveWithLocation(_ context.Context) ([]domain.Outlet, error) {
	var result []domain.Outlet
	err := r.v.read(func(st *state) error {
		for _, outlet := range st.outlets {
			if !outlet.Routable() {
				continue
			}
			result = append(result, cloneOutlet(outlet))
		}
		return nil
	})
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, err
}

// Get возвращает точку или ErrOutletNotFound.
func (r outletRepository) Get(_ context.Context, id int64) (domain.Outlet, error) {
	var outlet domain.Outlet
	err := r.v.read(func(st *state) error {
		stored, ok := st.outlets[id]
		if !ok {
			return domain.ErrOutletNotFound
		}
		outlet = cloneOutlet(stored)
		return nil
	})
	return outlet, err
}

// ProductsForOutlet возвращает найденные товары точки по списку id.
func (r productRepository) ProductsForOutlet(_ context.Context, outletID int64, ids []int64) (map[int64]domain.Product, error) {
	result := make(map[int64]domain.Product, len(ids))
	err := r.v.read(func(st *state) error {
		for _, id := range ids {
			product, ok := st.products[id]
			if !ok || product.OutletID != outletID {
				continue
			}
			result[id] = product
		}
		return nil
	})
	return result, err
}

func cloneOutlet(src domain.Outlet) domain.Outlet {
	dst := src
	if src.Location != nil {
		loc := *src.Location
		dst.Location = &loc
	}
	return dst
}

var (
	_ domain.OutletRepository = outletRepository{}
	_ domain.ProductReader    = productRepository{}
)
