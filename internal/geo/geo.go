// Package geo подбирает ближайшую точку продаж и считает стоимость доставки.
package geo

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/feistyindonesia-code/webapp/internal/domain"
	"github.com/feistyindonesia-code/webapp/internal/metrics"
)

const earthRadiusKm = 6371

// HaversineKm возвращает расстояние по дуге большого круга, округлённое до 0.01 км.
func HaversineKm(a, b domain.GeoPoint) float64 {
	return roundKm(haversineExactKm(a, b))
}

func roundKm(km float64) float64 {
	return math.Round(km*100) / 100
}

func haversineExactKm(a, b domain.GeoPoint) float64 {
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(a.Lat*math.Pi/180)*math.Cos(b.Lat*math.Pi/180)*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusKm * c
}

// CalculateDeliveryFee возвращает стоимость доставки в минимальных единицах:
// 0 внутри бесплатного радиуса, иначе floor((distance - free) * feePerKm).
func CalculateDeliveryFee(distanceKm, freeRadiusKm float64, feePerKm int64) (int64, error) {
	if distanceKm < 0 || freeRadiusKm < 0 || feePerKm < 0 ||
		math.IsNaN(distanceKm) || math.IsNaN(freeRadiusKm) ||
		math.IsInf(distanceKm, 0) || math.IsInf(freeRadiusKm, 0) {
		return 0, fmt.Errorf("delivery fee: %w", domain.ErrInvalidArgument)
	}
	if distanceKm <= freeRadiusKm {
		return 0, nil
	}

	extra := decimal.NewFromFloat(distanceKm).Sub(decimal.NewFromFloat(freeRadiusKm))
	return extra.Mul(decimal.NewFromInt(feePerKm)).Floor().IntPart(), nil
}

// Match описывает точку продаж с расстоянием до клиента.
type Match struct {
	Outlet       domain.Outlet
	DistanceKm   float64
	CanDeliver   bool
	FreeRadiusKm float64
	FeePerKm     int64

	// exactKm без округления, по нему упорядочивается выдача.
	exactKm float64
}

// Quote содержит расчёт доставки от конкретной точки.
type Quote struct {
	Match
	FeeMinor int64
}

// Matcher подбирает точки по координатам клиента. Только читает данные.
type Matcher struct {
	outlets domain.OutletRepository
	metrics *metrics.CheckoutMetrics
	logger  *log.Entry
}

// NewMatcher создаёт Matcher.
func NewMatcher(outlets domain.OutletRepository, m *metrics.CheckoutMetrics, logger *log.Entry) *Matcher {
	if logger == nil {
		logger = log.WithField("component", "geo-matcher")
	}
	return &Matcher{outlets: outlets, metrics: m, logger: logger}
}

// FindNearestOutlet возвращает ближайшую активную точку с геопозицией.
// При равных расстояниях выигрывает меньший id.
func (m *Matcher) FindNearestOutlet(ctx context.Context, point domain.GeoPoint) (Match, error) {
	started := time.Now()
	defer func() { m.metrics.RecordGeoLookup("nearest", time.Since(started)) }()

	matches, err := m.rank(ctx, point)
	if err != nil {
		return Match{}, err
	}
	if len(matches) == 0 {
		return Match{}, domain.ErrNoOutletAvailable
	}

	nearest := matches[0]
	m.logger.WithFields(log.Fields{
		"outlet_id":   nearest.Outlet.ID,
		"distance_km": nearest.DistanceKm,
		"can_deliver": nearest.CanDeliver,
	}).Debug("nearest outlet resolved")
	return nearest, nil
}

// ListAvailableOutlets возвращает все активные точки по возрастанию расстояния.
func (m *Matcher) ListAvailableOutlets(ctx context.Context, point domain.GeoPoint) ([]Match, error) {
	started := time.Now()
	defer func() { m.metrics.RecordGeoLookup("list", time.Since(started)) }()

	return m.rank(ctx, point)
}

// QuoteDelivery считает расстояние и стоимость доставки от точки outletID.
func (m *Matcher) QuoteDelivery(ctx context.Context, outletID int64, point domain.GeoPoint) (Quote, error) {
	if err := point.Validate(); err != nil {
		return Quote{}, err
	}

	outlet, err := m.outlets.Get(ctx, outletID)
	if err != nil {
		return Quote{}, err
	}
	if !outlet.Routable() {
		return Quote{}, domain.ErrOutletNotFound
	}

	match := newMatch(outlet, point)
	fee, err := CalculateDeliveryFee(match.DistanceKm, outlet.FreeRadiusKm, outlet.FeePerKm)
	if err != nil {
		return Quote{}, err
	}
	return Quote{Match: match, FeeMinor: fee}, nil
}

func (m *Matcher) rank(ctx context.Context, point domain.GeoPoint) ([]Match, error) {
	if err := point.Validate(); err != nil {
		return nil, err
	}

	outlets, err := m.outlets.ListActiveWithLocation(ctx)
	if err != nil {
		return nil, fmt.Errorf("list outlets: %w", err)
	}

	matches := make([]Match, 0, len(outlets))
	for _, outlet := range outlets {
		if !outlet.Routable() {
			continue
		}
		matches = append(matches, newMatch(outlet, point))
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].exactKm != matches[j].exactKm {
			return matches[i].exactKm < matches[j].exactKm
		}
		return matches[i].Outlet.ID < matches[j].Outlet.ID
	})
	return matches, nil
}

func newMatch(outlet domain.Outlet, point domain.GeoPoint) Match {
	exact := haversineExactKm(point, *outlet.Location)
	distance := roundKm(exact)
	return Match{
		Outlet:       outlet,
		DistanceKm:   distance,
		CanDeliver:   distance <= outlet.ServiceRadiusKm,
		FreeRadiusKm: outlet.FreeRadiusKm,
		FeePerKm:     outlet.FeePerKm,
		exactKm:      exact,
	}
}
