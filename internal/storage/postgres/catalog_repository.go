package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/feistyindonesia-code/webapp/internal/domain"
)

type outletRepository struct {
	q        querier
	defaults DeliveryDefaults
}

type productRepository struct {
	q querier
}

const outletColumns = `
	o.id, o.name, o.active, o.service_radius_km, o.free_radius_km, o.fee_per_km,
	l.lat, l.lng
`

type outletScanner interface {
	Scan(dest ...any) error
}

func (r *outletRepository) scan(row outletScanner) (domain.Outlet, error) {
	var (
		outlet        domain.Outlet
		serviceRadius sql.NullFloat64
		freeRadius    sql.NullFloat64
		feePerKm      sql.NullInt64
		lat, lng      sql.NullFloat64
	)
	if err := row.Scan(
		&outlet.ID, &outlet.Name, &outlet.Active,
		&serviceRadius, &freeRadius, &feePerKm,
		&lat, &lng,
	); err != nil {
		return domain.Outlet{}, err
	}

	outlet.ServiceRadiusKm = r.defaults.ServiceRadiusKm
	if serviceRadius.Valid {
		outlet.ServiceRadiusKm = serviceRadius.Float64
	}
	outlet.FreeRadiusKm = r.defaults.FreeRadiusKm
	if freeRadius.Valid {
		outlet.FreeRadiusKm = freeRadius.Float64
	}
	outlet.FeePerKm = r.defaults.FeePerKm
	if feePerKm.Valid {
		outlet.FeePerKm = feePerKm.Int64
	}
	if lat.Valid && lng.Valid {
		outlet.Location = &domain.GeoPoint{Lat: lat.Float64, Lng: lng.Float64}
	}

	return outlet, nil
}

// ListActiveWithLocation возвращает активные точки с активной геопозицией.
func (r *outletRepository) ListActiveWithLocation(ctx context.Context) ([]domain.Outlet, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := r.q.QueryContext(ctx, `
		SELECT `+outletColumns+`
		FROM outlets o
		JOIN outlet_locations l ON l.outlet_id = o.id AND l.active
		WHERE o.active
		ORDER BY o.id
	`)
	if err != nil {
		return nil, fmt.Errorf("list outlets: %w", err)
	}
	defer rows.Close()

	outlets := make([]domain.Outlet, 0)
	for rows.Next() {
		outlet, err := r.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan outlet: %w", err)
		}
		outlets = append(outlets, outlet)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outlets: %w", err)
	}

	return outlets, nil
}

// Get возвращает точку по id. Location = nil, если активной геопозиции нет.
func (r *outletRepository) Get(ctx context.Context, id int64) (domain.Outlet, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	outlet, err := r.scan(r.q.QueryRowContext(ctx, `
		SELECT `+outletColumns+`
		FROM outlets o
		LEFT JOIN outlet_locations l ON l.outlet_id = o.id AND l.active
		WHERE o.id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Outlet{}, domain.ErrOutletNotFound
		}
		return domain.Outlet{}, fmt.Errorf("select outlet: %w", err)
	}
	return outlet, nil
}

// ProductsForOutlet загружает товары точки одним запросом.
func (r *productRepository) ProductsForOutlet(ctx context.Context, outletID int64, ids []int64) (map[int64]domain.Product, error) {
	result := make(map[int64]domain.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := r.q.QueryContext(ctx, `
		SELECT id, outlet_id, name, price_minor, active
		FROM products
		WHERE outlet_id = $1 AND id = ANY($2)
	`, outletID, ids)
	if err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var product domain.Product
		if err := rows.Scan(&product.ID, &product.OutletID, &product.Name, &product.PriceMinor, &product.Active); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		result[product.ID] = product
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}

	return result, nil
}

var (
	_ domain.OutletRepository = (*outletRepository)(nil)
	_ domain.ProductReader    = (*productRepository)(nil)
)
